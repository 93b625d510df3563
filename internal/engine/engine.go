// Package engine builds date-plan itineraries: it fills a phase-specific
// slot skeleton with venues, reconciles free-text requests, and expands the
// result into a timed schedule with travel legs and bookends.
package engine

import (
	"context"
	"database/sql"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/config"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/domain"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/events"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/geo"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/places"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/repo"
)

// VenueStore is the curated read-only venue database.
type VenueStore interface {
	SearchVenues(ctx context.Context, f repo.VenueFilters) ([]domain.Venue, error)
	GetVenueByName(ctx context.Context, area, name string) (domain.Venue, error)
	CountVenuesInArea(ctx context.Context, area string) (int, error)
}

// VenueSearcher finds venues by free-text query through an external provider.
type VenueSearcher interface {
	SearchText(ctx context.Context, query, location string, opts places.SearchOptions) (*domain.Venue, error)
}

// DetailFetcher loads richer venue detail (hours, reviews, website) by id.
type DetailFetcher interface {
	PlaceDetails(ctx context.Context, placeID string) (*domain.Venue, error)
}

// Geocoder resolves a free-text area name to a reference coordinate. It must
// return an error for unresolvable input, never a sentinel coordinate.
type Geocoder interface {
	AreaCoordinate(ctx context.Context, location string) (domain.LatLng, error)
}

// TransitPlanner enriches train legs with a public-transit route, best effort.
type TransitPlanner interface {
	TransitDirections(ctx context.Context, origin, dest domain.LatLng) (*domain.TransitSummary, error)
}

// ItineraryGenerator produces a whole draft plan from the conditions, e.g.
// via an LLM. Its output still runs through the assembler's finishing stages.
type ItineraryGenerator interface {
	Generate(ctx context.Context, cond domain.Conditions, adjustment string) (*domain.Plan, error)
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config

	Store     VenueStore
	Search    VenueSearcher
	Details   DetailFetcher
	Geocoder  Geocoder
	Transit   TransitPlanner
	Generator ItineraryGenerator

	Now  func() time.Time
	Rand func(n int) int
}

func New(db *sql.DB, cfg *config.Config) *Engine {
	r := repo.Repo{DB: db}
	return &Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{DB: db},
		Config: cfg,
		Store:  r,
		Now:    time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) intn(n int) int {
	if n <= 1 {
		return 0
	}
	if e.Rand != nil {
		return e.Rand(n)
	}
	return int(time.Now().UnixNano()) % n
}

// BuildOptions control one plan construction.
type BuildOptions struct {
	// AllowExternal permits provider and model calls. The offline rebuild
	// after a deadline miss passes false and touches only local data.
	AllowExternal bool
	ActorID       string
}

// resolvedArea is the geographic frame for one build.
type resolvedArea struct {
	Key     string // config key; empty for ad-hoc areas
	Label   string
	Center  domain.LatLng
	Station config.Station
	// Provisional marks a center borrowed from the default area because the
	// name resolved nowhere; it is replaced by the centroid of the venues
	// that actually resolve during the build.
	Provisional bool
}

// AdjustIntent classifies a free-text adjustment request. The assembler only
// ever sees the enum, so the rule-based matcher could be swapped for a model
// without touching it.
type AdjustIntent int

const (
	IntentNone AdjustIntent = iota
	IntentBudgetDown
	IntentBudgetUp
	IntentPhaseFirst
	IntentPhaseAnniversary
	IntentPhaseCasual
)

var (
	budgetDownRe = regexp.MustCompile(`安く|安い|節約|リーズナブル|お金|予算`)
	budgetUpRe   = regexp.MustCompile(`高級|贅沢|豪華|リッチ`)
	phaseFirstRe = regexp.MustCompile(`初めて|初デート|1回目`)
	phaseAnnivRe = regexp.MustCompile(`記念日|特別|アニバーサリー`)
	phaseCasRe   = regexp.MustCompile(`カジュアル|気軽`)
)

// ClassifyAdjustment maps free text to a single intent. Budget wording wins
// over phase wording because 特別 appears in both vocabularies.
func ClassifyAdjustment(text string) AdjustIntent {
	switch {
	case text == "":
		return IntentNone
	case budgetDownRe.MatchString(text):
		return IntentBudgetDown
	case budgetUpRe.MatchString(text):
		return IntentBudgetUp
	case phaseFirstRe.MatchString(text):
		return IntentPhaseFirst
	case phaseAnnivRe.MatchString(text):
		return IntentPhaseAnniversary
	case phaseCasRe.MatchString(text):
		return IntentPhaseCasual
	default:
		return IntentNone
	}
}

func applyAdjustment(cond domain.Conditions, intent AdjustIntent) domain.Conditions {
	switch intent {
	case IntentBudgetDown:
		if cond.Budget == domain.BudgetHigh {
			cond.Budget = domain.BudgetMedium
		} else {
			cond.Budget = domain.BudgetLow
		}
	case IntentBudgetUp:
		if cond.Budget == domain.BudgetLow {
			cond.Budget = domain.BudgetMedium
		} else {
			cond.Budget = domain.BudgetHigh
		}
	case IntentPhaseFirst:
		cond.Phase = domain.PhaseFirst
	case IntentPhaseAnniversary:
		cond.Phase = domain.PhaseAnniversary
	case IntentPhaseCasual:
		cond.Phase = domain.PhaseCasual
	}
	return cond
}

// resolveArea pins the build to a configured area, a geocoded ad-hoc area, or
// the service default, in that order. It never fails: an unresolvable name
// keeps its label but borrows the default area's geography.
func (e *Engine) resolveArea(ctx context.Context, name string, allowExternal bool) resolvedArea {
	if key, a, ok := e.Config.ResolveArea(name); ok {
		return resolvedArea{
			Key:     key,
			Label:   a.Label,
			Center:  domain.LatLng{Lat: a.Lat, Lng: a.Lng},
			Station: e.Config.StationFor(key, a.Label),
		}
	}
	if name != "" && allowExternal && e.Geocoder != nil {
		if coord, err := e.Geocoder.AreaCoordinate(ctx, name); err == nil {
			return resolvedArea{
				Label:   name,
				Center:  coord,
				Station: e.Config.StationFor("", name),
			}
		} else {
			log.Printf("[plan] geocode %q failed: %v", name, err)
		}
	}
	key := e.Config.Service.DefaultArea
	a := e.Config.Areas[key]
	if name == "" {
		return resolvedArea{
			Key:     key,
			Label:   a.Label,
			Center:  domain.LatLng{Lat: a.Lat, Lng: a.Lng},
			Station: e.Config.StationFor(key, a.Label),
		}
	}
	// Unknown name: keep its label, borrow the default geography for now and
	// let the build recenter on whatever venues resolve there.
	return resolvedArea{
		Label:       name,
		Center:      domain.LatLng{Lat: a.Lat, Lng: a.Lng},
		Station:     e.Config.StationFor("", name),
		Provisional: true,
	}
}

// recenterProvisional replaces a provisional area's borrowed center with the
// centroid of the venues that actually resolved, so travel legs and bookends
// anchor near the real stops instead of the default area.
func recenterProvisional(area resolvedArea, venues []domain.Venue) resolvedArea {
	if !area.Provisional {
		return area
	}
	var pts []domain.LatLng
	for _, v := range venues {
		if !v.Synthetic && v.Coord != nil {
			pts = append(pts, *v.Coord)
		}
	}
	if c, ok := geo.Centroid(pts); ok {
		area.Center = c
	}
	return area
}

// BuildPlan assembles a complete itinerary for the given conditions. It never
// returns an error for missing data; every gap degrades to a deterministic
// fallback so the schedule stays structurally complete.
func (e *Engine) BuildPlan(ctx context.Context, cond domain.Conditions, adjustment string, opts BuildOptions) (*domain.Plan, error) {
	cond = applyAdjustment(cond, ClassifyAdjustment(adjustment))
	area := e.resolveArea(ctx, cond.Area, opts.AllowExternal)

	if e.Generator != nil && opts.AllowExternal {
		if plan, err := e.Generator.Generate(ctx, cond, adjustment); err == nil {
			e.finishModelPlan(ctx, cond, area, plan)
			e.recordPlan(ctx, plan, area, opts.ActorID)
			return plan, nil
		} else {
			log.Printf("[plan] model generation failed, using rules: %v", err)
		}
	}

	plan := e.buildRulePlan(ctx, cond, adjustment, area, opts.AllowExternal)
	e.recordPlan(ctx, plan, area, opts.ActorID)
	return plan, nil
}

func (e *Engine) buildRulePlan(ctx context.Context, cond domain.Conditions, adjustment string, area resolvedArea, allowExternal bool) *domain.Plan {
	slots := skeletonFor(cond, e.Config)
	items, venues := e.fillSlots(ctx, cond, area, slots, allowExternal)
	area = recenterProvisional(area, venues)

	var meetingOv, farewellOv *bookendOverride
	customRole := RoleInsertion
	if cond.CustomRequest != "" {
		res := e.resolveCustomRequest(ctx, cond, area, allowExternal)
		customRole = res.Role
		switch res.Role {
		case RoleMeeting:
			meetingOv = res.override()
		case RoleFarewell:
			farewellOv = res.override()
		default:
			items = spliceCustomItem(items, res.item(cond, e.prices(cond)))
		}
	}

	if allowExternal {
		items = e.hydrate(ctx, area, items)
	}
	schedule := e.finalize(cond, area, items, meetingOv, farewellOv)
	if allowExternal {
		schedule = e.enrichTransit(ctx, schedule)
	}
	schedule = applyMedia(schedule)

	// A meeting/farewell override produces no IsCustom item, so the schedule
	// scan only applies to insertions; an applied override is satisfied.
	outcome := customAbsent
	if cond.CustomRequest != "" {
		if customRole == RoleInsertion {
			outcome = customOutcome(schedule, cond.CustomRequest)
		} else {
			outcome = customOnTime
		}
	}
	plan := &domain.Plan{
		ID:                 uuid.New().String(),
		Summary:            planSummary(cond.Phase),
		Reason:             e.planReason(cond, outcome, adjustment),
		EstimatedCost:      e.totalCost(cond.Budget),
		Schedule:           schedule,
		AdjustablePoints:   adjustablePoints(),
		ConversationTopics: conversationTopics(),
		NextStepPhrase:     nextStepPhrase(cond.Phase),
		GeneratedBy:        "rules",
	}
	if !allowExternal {
		plan.GeneratedBy = "offline"
	}
	return plan
}

// finishModelPlan runs a model-drafted schedule through the same finishing
// stages as the rule path: coordinate resolution, travel legs, bookends, and
// opening-hours validation. The draft's text survives; its geometry does not.
func (e *Engine) finishModelPlan(ctx context.Context, cond domain.Conditions, area resolvedArea, plan *domain.Plan) {
	items := make([]domain.ScheduleItem, 0, len(plan.Schedule))
	for _, it := range plan.Schedule {
		if !it.Kind.IsVisit() {
			continue
		}
		if it.Coord == nil {
			v := e.resolveVenueByName(ctx, area, it.PlaceName)
			if v.Coord != nil {
				it.Coord = v.Coord
				it.VenueID = v.ID
				it.OpeningHours = v.OpeningHours
				if it.InfoURL == "" {
					it.InfoURL = resolveDisplayURL(v)
				}
				if it.Rating == 0 {
					it.Rating = v.Rating
				}
			}
		}
		if it.Area == "" {
			it.Area = area.Key
		}
		items = append(items, it)
	}
	items = e.hydrate(ctx, area, items)
	plan.Schedule = applyMedia(e.enrichTransit(ctx, e.finalize(cond, area, items, nil, nil)))
	if plan.EstimatedCost == "" {
		plan.EstimatedCost = e.totalCost(cond.Budget)
	}
	if plan.ID == "" {
		plan.ID = uuid.New().String()
	}
}

// resolveVenueByName tries the curated store first, then the provider.
func (e *Engine) resolveVenueByName(ctx context.Context, area resolvedArea, name string) domain.Venue {
	if name == "" {
		return domain.Venue{}
	}
	if e.Store != nil {
		if v, err := e.Store.GetVenueByName(ctx, area.Key, name); err == nil {
			return v
		}
	}
	if e.Search != nil {
		if v, err := e.Search.SearchText(ctx, name, area.Label, places.SearchOptions{Pinned: true}); err == nil {
			return *v
		}
	}
	return domain.Venue{}
}

func (e *Engine) prices(cond domain.Conditions) config.SlotPrices {
	if p, ok := e.Config.Budgets[string(cond.Budget)]; ok {
		return p
	}
	return e.Config.Budgets["medium"]
}

func (e *Engine) totalCost(budget domain.Budget) string {
	if c, ok := e.Config.TotalCosts[string(budget)]; ok {
		return c
	}
	return e.Config.TotalCosts["medium"]
}

func (e *Engine) recordPlan(ctx context.Context, plan *domain.Plan, area resolvedArea, actorID string) {
	if e.Events.DB == nil {
		return
	}
	if err := e.Events.PlanGenerated(ctx, plan.ID, area.Key, actorID, plan.GeneratedBy, len(plan.Schedule)); err != nil {
		log.Printf("[plan] event append failed: %v", err)
	}
}

// resolveDisplayURL picks the link shown for a venue, in fixed fallback
// order: provider info link, official site, then a generic search link.
func resolveDisplayURL(v domain.Venue) string {
	if v.InfoURL != "" {
		return v.InfoURL
	}
	if v.OfficialURL != "" {
		return v.OfficialURL
	}
	return searchLink(v.Name)
}
