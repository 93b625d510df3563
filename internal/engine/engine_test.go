package engine_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/config"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/db"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/domain"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/engine"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/geo"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/migrate"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/places"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/repo"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	// A fixed Saturday so opening-hours checks are deterministic.
	eng.Now = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local) }
	eng.Rand = func(int) int { return 0 }
	return eng
}

func visitItems(plan *domain.Plan) []domain.ScheduleItem {
	var out []domain.ScheduleItem
	for _, it := range plan.Schedule {
		if it.Kind.IsVisit() {
			out = append(out, it)
		}
	}
	return out
}

func TestBuildPlanStructure(t *testing.T) {
	eng := newTestEngine(t)
	plan, err := eng.BuildPlan(context.Background(), domain.Conditions{
		Area: "shibuya", Phase: domain.PhaseFirst, Budget: domain.BudgetMedium, TimeSlot: domain.SlotLunch,
	}, "", engine.BuildOptions{ActorID: "test"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if plan.Schedule[0].Kind != domain.KindMeeting {
		t.Errorf("first item = %s, want meeting", plan.Schedule[0].Kind)
	}
	if last := plan.Schedule[len(plan.Schedule)-1]; last.Kind != domain.KindFarewell {
		t.Errorf("last item = %s, want farewell", last.Kind)
	}
	if got := len(visitItems(plan)); got != 4 {
		t.Errorf("visit items = %d, want 4 for a first date", got)
	}
	if plan.Summary == "" || plan.Reason == "" || plan.EstimatedCost == "" {
		t.Errorf("narration missing: %+v", plan)
	}
	if plan.GeneratedBy != "offline" {
		t.Errorf("generated_by = %q, want offline without external calls", plan.GeneratedBy)
	}
}

func TestBuildPlanMonotonicTime(t *testing.T) {
	eng := newTestEngine(t)
	for _, phase := range []domain.Phase{domain.PhaseFirst, domain.PhaseSecond, domain.PhaseAnniversary, domain.PhaseCasual} {
		plan, err := eng.BuildPlan(context.Background(), domain.Conditions{
			Area: "shinjuku", Phase: phase, Budget: domain.BudgetMedium, TimeSlot: domain.SlotLunch,
		}, "", engine.BuildOptions{})
		if err != nil {
			t.Fatalf("%s: %v", phase, err)
		}
		prev := -1
		for _, it := range plan.Schedule {
			at := domain.ClockToMinutes(it.Time)
			if at < prev {
				t.Errorf("%s: %s at %s starts before %s", phase, it.Kind, it.Time, domain.MinutesToClock(prev))
			}
			prev = at
		}
	}
}

func TestBuildPlanNoDuplicateVenues(t *testing.T) {
	eng := newTestEngine(t)
	plan, err := eng.BuildPlan(context.Background(), domain.Conditions{
		Area: "ginza", Phase: domain.PhaseFirst, Budget: domain.BudgetMedium, TimeSlot: domain.SlotLunch,
	}, "", engine.BuildOptions{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	seen := map[string]bool{}
	for _, it := range visitItems(plan) {
		if it.Kind == domain.KindWalk {
			continue
		}
		if seen[it.PlaceName] {
			t.Errorf("venue %q appears twice", it.PlaceName)
		}
		seen[it.PlaceName] = true
	}
}

func TestBuildPlanGracefulDegradation(t *testing.T) {
	eng := newTestEngine(t)
	// kichijoji is configured but not seeded, and no external collaborators
	// are wired, so every slot must come from synthetic placeholders.
	plan, err := eng.BuildPlan(context.Background(), domain.Conditions{
		Area: "kichijoji", Phase: domain.PhaseCasual, Budget: domain.BudgetLow, TimeSlot: domain.SlotLunch,
	}, "", engine.BuildOptions{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(visitItems(plan)) == 0 {
		t.Fatal("expected at least one visit item")
	}
	for _, it := range plan.Schedule {
		if it.Kind == domain.KindTravel {
			continue
		}
		if it.Coord == nil {
			t.Errorf("%s %q has no coordinates", it.Kind, it.PlaceName)
		}
	}
}

func TestBuildPlanLegCap(t *testing.T) {
	eng := newTestEngine(t)
	maxLeg := 10
	plan, err := eng.BuildPlan(context.Background(), domain.Conditions{
		Area: "shibuya", Phase: domain.PhaseCasual, Budget: domain.BudgetMedium, TimeSlot: domain.SlotLunch,
		CustomRequest: "19時に浅草寺に行きたい",
		Movement:      &domain.MovementPreference{Key: "slow", Label: "のんびり", MaxLegMinutes: maxLeg},
	}, "", engine.BuildOptions{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	sawTravel := false
	for _, it := range plan.Schedule {
		if it.Kind != domain.KindTravel {
			continue
		}
		sawTravel = true
		if it.TravelMinutes > maxLeg {
			t.Errorf("travel leg %dmin exceeds cap %d", it.TravelMinutes, maxLeg)
		}
	}
	if !sawTravel {
		t.Fatal("expected travel legs")
	}
}

func TestBuildPlanCustomInsertionRoundTrip(t *testing.T) {
	eng := newTestEngine(t)
	plan, err := eng.BuildPlan(context.Background(), domain.Conditions{
		Area: "asakusa", Phase: domain.PhaseCasual, Budget: domain.BudgetMedium, TimeSlot: domain.SlotLunch,
		CustomRequest: "19時に浅草寺に行きたい",
	}, "", engine.BuildOptions{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var custom *domain.ScheduleItem
	for i := range plan.Schedule {
		if plan.Schedule[i].IsCustom {
			custom = &plan.Schedule[i]
			break
		}
	}
	if custom == nil {
		t.Fatal("custom request item missing from schedule")
	}
	if custom.PlaceName != "浅草寺" {
		t.Errorf("custom item resolved to %q, want 浅草寺", custom.PlaceName)
	}
	if custom.Time != "19:00" {
		t.Errorf("custom item at %s, want 19:00", custom.Time)
	}
}

func TestBuildPlanMeetingOverride(t *testing.T) {
	eng := newTestEngine(t)
	plan, err := eng.BuildPlan(context.Background(), domain.Conditions{
		Area: "shibuya", Phase: domain.PhaseFirst, Budget: domain.BudgetMedium, TimeSlot: domain.SlotLunch,
		CustomRequest: "11:30にスクランブル交差点で集合",
	}, "", engine.BuildOptions{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	meeting := plan.Schedule[0]
	if meeting.Kind != domain.KindMeeting {
		t.Fatalf("first item = %s", meeting.Kind)
	}
	if meeting.Time != "11:30" {
		t.Errorf("meeting at %s, want 11:30", meeting.Time)
	}
	if meeting.PlaceName != "スクランブル交差点" {
		t.Errorf("meeting place = %q", meeting.PlaceName)
	}
}

func TestBuildPlanMeetingOverrideNarration(t *testing.T) {
	eng := newTestEngine(t)
	plan, err := eng.BuildPlan(context.Background(), domain.Conditions{
		Area: "shibuya", Phase: domain.PhaseFirst, Budget: domain.BudgetMedium, TimeSlot: domain.SlotLunch,
		CustomRequest: "ハチ公前で集合したい",
	}, "", engine.BuildOptions{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	meeting := plan.Schedule[0]
	if meeting.Kind != domain.KindMeeting {
		t.Fatalf("first item = %s", meeting.Kind)
	}
	if meeting.PlaceName != "ハチ公前" {
		t.Errorf("meeting place = %q, want ハチ公前", meeting.PlaceName)
	}
	if strings.Contains(plan.Reason, "含められませんでした") {
		t.Errorf("reason claims the request was dropped although the meeting override applied:\n%s", plan.Reason)
	}
	if !strings.Contains(plan.Reason, "反映しています") {
		t.Errorf("reason does not report the request as reflected:\n%s", plan.Reason)
	}
}

func TestPlanReasonCostSuffix(t *testing.T) {
	eng := newTestEngine(t)
	plan, err := eng.BuildPlan(context.Background(), domain.Conditions{
		Area: "ginza", Phase: domain.PhaseCasual, Budget: domain.BudgetMedium, TimeSlot: domain.SlotLunch,
	}, "", engine.BuildOptions{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if strings.Contains(plan.Reason, "円円") {
		t.Errorf("reason doubles the 円 suffix:\n%s", plan.Reason)
	}
	if want := config.Default().TotalCosts["medium"]; !strings.Contains(plan.Reason, want) {
		t.Errorf("reason is missing the cost range %q:\n%s", want, plan.Reason)
	}
}

// pinnedSearcher resolves every query to the same coordinate, standing in for
// a provider that actually knows the requested neighborhood.
type pinnedSearcher struct {
	coord domain.LatLng
}

func (s pinnedSearcher) SearchText(_ context.Context, query, location string, _ places.SearchOptions) (*domain.Venue, error) {
	c := s.coord
	return &domain.Venue{Name: location + " " + query, Coord: &c}, nil
}

func TestBuildPlanRecentersUnknownArea(t *testing.T) {
	eng := newTestEngine(t)
	namba := domain.LatLng{Lat: 34.6661, Lng: 135.5007}
	eng.Search = pinnedSearcher{coord: namba}

	// 難波 is not configured, so the area starts on borrowed default
	// geography and must recenter on the provider-resolved venues.
	plan, err := eng.BuildPlan(context.Background(), domain.Conditions{
		Area: "難波", Phase: domain.PhaseCasual, Budget: domain.BudgetMedium, TimeSlot: domain.SlotLunch,
	}, "", engine.BuildOptions{AllowExternal: true})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	meeting := plan.Schedule[0]
	if meeting.Kind != domain.KindMeeting || meeting.Coord == nil {
		t.Fatalf("meeting item malformed: %+v", meeting)
	}
	if d := geo.Distance(*meeting.Coord, namba); d > 1000 {
		t.Errorf("meeting anchored %.0fm from the resolved venues, want the venue centroid", d)
	}
}

// emptyStore reports zero coverage and fails the build if it is searched.
type emptyStore struct {
	searches atomic.Int32
}

func (s *emptyStore) SearchVenues(context.Context, repo.VenueFilters) ([]domain.Venue, error) {
	s.searches.Add(1)
	return nil, nil
}

func (s *emptyStore) GetVenueByName(context.Context, string, string) (domain.Venue, error) {
	return domain.Venue{}, repo.ErrNotFound
}

func (s *emptyStore) CountVenuesInArea(context.Context, string) (int, error) {
	return 0, nil
}

func TestBuildPlanSkipsUncoveredStore(t *testing.T) {
	eng := newTestEngine(t)
	store := &emptyStore{}
	eng.Store = store
	plan, err := eng.BuildPlan(context.Background(), domain.Conditions{
		Area: "shibuya", Phase: domain.PhaseCasual, Budget: domain.BudgetMedium, TimeSlot: domain.SlotLunch,
	}, "", engine.BuildOptions{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if n := store.searches.Load(); n != 0 {
		t.Errorf("store searched %d times although it covers no venue in the area", n)
	}
	if len(visitItems(plan)) == 0 {
		t.Error("expected synthetic visit items")
	}
}

func TestBuildPlanAdjustmentLowersBudget(t *testing.T) {
	eng := newTestEngine(t)
	plan, err := eng.BuildPlan(context.Background(), domain.Conditions{
		Area: "ueno", Phase: domain.PhaseCasual, Budget: domain.BudgetMedium, TimeSlot: domain.SlotLunch,
	}, "もっと安くしたい", engine.BuildOptions{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if plan.EstimatedCost != config.Default().TotalCosts["low"] {
		t.Errorf("estimated cost = %q, want the low tier after adjustment", plan.EstimatedCost)
	}
}

func TestBuildPlanRecordsEvent(t *testing.T) {
	eng := newTestEngine(t)
	plan, err := eng.BuildPlan(context.Background(), domain.Conditions{
		Area: "odaiba", Phase: domain.PhaseCasual, Budget: domain.BudgetMedium, TimeSlot: domain.SlotLunch,
	}, "", engine.BuildOptions{ActorID: "test"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	evts, err := eng.Repo.LatestEvents(context.Background(), 5, "plan.generated")
	if err != nil || len(evts) != 1 {
		t.Fatalf("events = %d err=%v", len(evts), err)
	}
	if evts[0].PlanID != plan.ID {
		t.Errorf("event plan id = %q, want %q", evts[0].PlanID, plan.ID)
	}
}

func TestClassifyAdjustment(t *testing.T) {
	cases := map[string]engine.AdjustIntent{
		"":                 engine.IntentNone,
		"もっと安くしたい":         engine.IntentBudgetDown,
		"贅沢なプランにして":        engine.IntentBudgetUp,
		"初デートっぽくして":        engine.IntentPhaseFirst,
		"記念日らしくしたい":        engine.IntentPhaseAnniversary,
		"気軽な感じで":           engine.IntentPhaseCasual,
		"カフェを増やしてほしいだけ":    engine.IntentNone,
		"予算を抑えつつ記念日らしくしたい": engine.IntentBudgetDown,
	}
	for in, want := range cases {
		if got := engine.ClassifyAdjustment(in); got != want {
			t.Errorf("ClassifyAdjustment(%q) = %v, want %v", in, got, want)
		}
	}
}
