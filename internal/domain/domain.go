package domain

import (
	"fmt"
	"strings"
)

// Phase is the relationship stage a plan is built for.
type Phase string

const (
	PhaseFirst       Phase = "first"
	PhaseSecond      Phase = "second"
	PhaseCasual      Phase = "casual"
	PhaseAnniversary Phase = "anniversary"
)

// ParsePhase resolves free input to a known phase, defaulting to casual.
func ParsePhase(s string) Phase {
	switch Phase(strings.ToLower(strings.TrimSpace(s))) {
	case PhaseFirst:
		return PhaseFirst
	case PhaseSecond:
		return PhaseSecond
	case PhaseAnniversary:
		return PhaseAnniversary
	default:
		return PhaseCasual
	}
}

// Budget is the spending tier for the whole date.
type Budget string

const (
	BudgetLow    Budget = "low"
	BudgetMedium Budget = "medium"
	BudgetHigh   Budget = "high"
)

// ParseBudget resolves free input to a known budget, defaulting to medium.
// Venue-sheet aliases (mid, middle, no_limit) are folded in here as well.
func ParseBudget(s string) Budget {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "free":
		return BudgetLow
	case "high", "no_limit":
		return BudgetHigh
	default:
		return BudgetMedium
	}
}

// TimeSlot is the named window the date happens in.
type TimeSlot string

const (
	SlotLunch   TimeSlot = "lunch"
	SlotDinner  TimeSlot = "dinner"
	SlotHalfDay TimeSlot = "halfday"
	SlotFullDay TimeSlot = "fullday"
)

func ParseTimeSlot(s string) TimeSlot {
	switch TimeSlot(strings.ToLower(strings.TrimSpace(s))) {
	case SlotDinner:
		return SlotDinner
	case SlotHalfDay:
		return SlotHalfDay
	case SlotFullDay:
		return SlotFullDay
	default:
		return SlotLunch
	}
}

// Mood flavours venue selection; empty means no preference.
type Mood string

const (
	MoodRelax    Mood = "relax"
	MoodActive   Mood = "active"
	MoodRomantic Mood = "romantic"
	MoodCasual   Mood = "casual"
)

// TransportMode is how a travel leg is covered.
type TransportMode string

const (
	ModeWalk  TransportMode = "walk"
	ModeTrain TransportMode = "train"
	ModeCar   TransportMode = "car"
	ModeTaxi  TransportMode = "taxi"
)

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MovementPreference bounds how much of the date is spent in transit.
type MovementPreference struct {
	Key           string `json:"key"`
	Label         string `json:"label,omitempty"`
	Description   string `json:"description,omitempty"`
	Focus         string `json:"focus,omitempty"`
	MaxLegMinutes int    `json:"max_leg_minutes"`
	MaxAreas      int    `json:"max_areas"`
}

// Conditions is the per-request input to plan construction.
type Conditions struct {
	Area            string              `json:"area"`
	Phase           Phase               `json:"date_phase"`
	Budget          Budget              `json:"date_budget_level"`
	TimeSlot        TimeSlot            `json:"time_slot"`
	StartTime       string              `json:"start_time,omitempty"` // HH:MM; with DurationMinutes overrides TimeSlot
	DurationMinutes int                 `json:"duration_minutes,omitempty"`
	Mood            Mood                `json:"mood,omitempty"`
	NGConditions    []string            `json:"ng_conditions,omitempty"`
	CustomRequest   string              `json:"custom_request,omitempty"`
	Movement        *MovementPreference `json:"movement_preference,omitempty"`
	TransportModes  []TransportMode     `json:"transport_modes,omitempty"`
	PreferredAreas  []string            `json:"preferred_areas,omitempty"`
}

// Review is a short visitor comment attached to a venue.
type Review struct {
	Author string  `json:"author"`
	Rating float64 `json:"rating,omitempty"`
	Text   string  `json:"text"`
}

// Venue is a concrete place a slot resolved to. Venues are built fresh per
// request; once a schedule item is derived from one, only hydration may
// attach further detail.
type Venue struct {
	ID           string   `json:"id,omitempty"` // store row id or provider place id
	Name         string   `json:"name"`
	Category     string   `json:"category,omitempty"`
	Area         string   `json:"area,omitempty"`
	Coord        *LatLng  `json:"coord,omitempty"`
	Address      string   `json:"address,omitempty"`
	Rating       float64  `json:"rating,omitempty"`
	InfoURL      string   `json:"info_url,omitempty"`
	OfficialURL  string   `json:"official_url,omitempty"`
	OpeningHours []string `json:"opening_hours,omitempty"` // per-weekday text lines
	Photos       []string `json:"photos,omitempty"`
	Reviews      []Review `json:"reviews,omitempty"`
	PriceRange   string   `json:"price_range,omitempty"`
	StayMinutes  int      `json:"stay_minutes,omitempty"`
	Description  string   `json:"description,omitempty"`
	Tips         string   `json:"tips,omitempty"`
	Synthetic    bool     `json:"-"` // placeholder built around the area centroid
}

// ItemKind classifies a schedule entry.
type ItemKind string

const (
	KindMeeting  ItemKind = "meeting"
	KindTravel   ItemKind = "travel"
	KindLunch    ItemKind = "lunch"
	KindActivity ItemKind = "activity"
	KindCafe     ItemKind = "cafe"
	KindDinner   ItemKind = "dinner"
	KindWalk     ItemKind = "walk"
	KindCustom   ItemKind = "custom"
	KindFarewell ItemKind = "farewell"
)

// IsVisit reports whether the kind is a real stop rather than part of the
// meeting/travel/farewell frame around the stops.
func (k ItemKind) IsVisit() bool {
	switch k {
	case KindMeeting, KindTravel, KindFarewell:
		return false
	default:
		return true
	}
}

// TransitStep is one ride within a transit summary.
type TransitStep struct {
	LineName      string `json:"line_name,omitempty"`
	Agency        string `json:"agency,omitempty"`
	Headsign      string `json:"headsign,omitempty"`
	NumStops      int    `json:"num_stops,omitempty"`
	DepartureStop string `json:"departure_stop,omitempty"`
	ArrivalStop   string `json:"arrival_stop,omitempty"`
}

// TransitSummary is a best-effort public-transit route for a train leg.
type TransitSummary struct {
	Summary         string        `json:"summary,omitempty"`
	DurationMinutes int           `json:"duration_minutes,omitempty"`
	Steps           []TransitStep `json:"steps,omitempty"`
}

// ScheduleItem is one row of the final timeline.
type ScheduleItem struct {
	Time            string   `json:"time"`               // HH:MM start
	EndTime         string   `json:"end_time,omitempty"` // HH:MM
	Kind            ItemKind `json:"type"`
	PlaceName       string   `json:"place_name"`
	Coord           *LatLng  `json:"coord,omitempty"`
	Area            string   `json:"area,omitempty"`
	Address         string   `json:"address,omitempty"`
	PriceRange      string   `json:"price_range,omitempty"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	Reason          string   `json:"reason,omitempty"`
	ReasonTags      []string `json:"reason_tags,omitempty"`
	InfoURL         string   `json:"info_url,omitempty"`
	OfficialURL     string   `json:"official_url,omitempty"`
	Rating          float64  `json:"rating,omitempty"`
	Photos          []string `json:"photos,omitempty"`
	Reviews         []Review `json:"reviews,omitempty"`
	VenueID         string   `json:"venue_id,omitempty"`
	OpeningHours    []string `json:"-"` // kept for re-validation after time shifts

	// Travel-leg fields, set only for KindTravel.
	DistanceMeters int             `json:"walking_distance_m,omitempty"`
	TransportMode  TransportMode   `json:"transport_mode,omitempty"`
	TransportLabel string          `json:"transport_label,omitempty"`
	TravelMinutes  int             `json:"travel_time_min,omitempty"`
	DirectionsURL  string          `json:"directions_url,omitempty"`
	TransitNote    string          `json:"directions_note,omitempty"`
	TransitRoute   *TransitSummary `json:"transit_route,omitempty"`

	// Custom-request bookkeeping.
	IsCustom              bool `json:"is_custom,omitempty"`
	PreferredStartMinutes int  `json:"-"` // 0 = unset

	// ClosedWarning carries an opening-hours caution evaluated at the item's
	// final computed time.
	ClosedWarning string `json:"closed_warning,omitempty"`
}

// Plan is the finished itinerary returned to the caller.
type Plan struct {
	ID                 string         `json:"id"`
	Summary            string         `json:"plan_summary"`
	Reason             string         `json:"plan_reason"`
	EstimatedCost      string         `json:"total_estimated_cost"`
	Schedule           []ScheduleItem `json:"schedule"`
	AdjustablePoints   []string       `json:"adjustable_points,omitempty"`
	ConversationTopics []string       `json:"conversation_topics,omitempty"`
	NextStepPhrase     string         `json:"next_step_phrase,omitempty"`
	GeneratedBy        string         `json:"generated_by,omitempty" enum:"rules,model,offline"`
}

// Event is one row of the plan-generation journal.
type Event struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts" format:"date-time"`
	Type    string `json:"type"`
	PlanID  string `json:"plan_id,omitempty"`
	Area    string `json:"area,omitempty"`
	ActorID string `json:"actor_id"`
	Payload string `json:"payload_json"`
}

// APIKey is a stored credential for the HTTP API.
type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ClockToMinutes parses "HH:MM" (or a bare hour) into minutes since midnight.
// Malformed input yields 0, matching the tolerant handling of upstream data.
func ClockToMinutes(clock string) int {
	var h, m int
	if _, err := fmt.Sscanf(clock, "%d:%d", &h, &m); err != nil {
		m = 0
		if _, err := fmt.Sscanf(clock, "%d", &h); err != nil {
			return 0
		}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0
	}
	return h*60 + m
}

// MinutesToClock renders minutes since midnight as "HH:MM", wrapping past 24h.
func MinutesToClock(min int) string {
	if min < 0 {
		min = 0
	}
	return fmt.Sprintf("%02d:%02d", (min/60)%24, min%60)
}
