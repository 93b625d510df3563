package server

import (
	"net/url"
	"strings"

	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/config"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/domain"
)

// Request payloads

type GeneratePlanRequest struct {
	Area            string   `json:"area"`
	Phase           string   `json:"date_phase,omitempty" enum:"first,second,casual,anniversary"`
	Budget          string   `json:"date_budget_level,omitempty" enum:"low,medium,high"`
	TimeSlot        string   `json:"time_slot,omitempty" enum:"lunch,dinner,halfday,fullday"`
	StartTime       string   `json:"start_time,omitempty" example:"10:00"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	Mood            string   `json:"mood,omitempty"`
	NGConditions    []string `json:"ng_conditions,omitempty"`
	CustomRequest   string   `json:"custom_request,omitempty"`
	Movement        string   `json:"movement_preference,omitempty"`
	TransportModes  []string `json:"transport_modes,omitempty"`
	Adjustment      string   `json:"adjustment_request,omitempty"`
}

type AlternativesRequest struct {
	Area     string   `json:"area"`
	Category string   `json:"category" enum:"lunch,activity,cafe,dinner"`
	Phase    string   `json:"date_phase,omitempty"`
	Budget   string   `json:"date_budget_level,omitempty"`
	TimeSlot string   `json:"time_slot,omitempty"`
	Mood     string   `json:"mood,omitempty"`
	Exclude  []string `json:"exclude,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

type VenueSearchRequest struct {
	Query    string `json:"query"`
	Location string `json:"location,omitempty"`
	Budget   string `json:"date_budget_level,omitempty"`
	Phase    string `json:"date_phase,omitempty"`
	TimeSlot string `json:"time_slot,omitempty"`
	Category string `json:"category,omitempty"`
}

type VenueDetailRequest struct {
	PlaceID string `json:"place_id"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Response payloads

type PlanResponse struct {
	Plan domain.Plan `json:"plan"`
}

type VenueListResponse struct {
	Items []domain.Venue `json:"items"`
}

type VenueResponse struct {
	Venue  domain.Venue `json:"venue"`
	Source string       `json:"source" enum:"provider,fallback"`
}

type AreaResponse struct {
	Key     string        `json:"key"`
	Label   string        `json:"label"`
	Coord   domain.LatLng `json:"coord"`
	Station string        `json:"station,omitempty"`
}

type paginatedEvents struct {
	Items []domain.Event `json:"items"`
}

// Conversion helpers

func (r GeneratePlanRequest) conditions() domain.Conditions {
	cond := domain.Conditions{
		Area:            strings.TrimSpace(r.Area),
		Phase:           domain.ParsePhase(r.Phase),
		Budget:          domain.ParseBudget(r.Budget),
		TimeSlot:        domain.ParseTimeSlot(r.TimeSlot),
		StartTime:       r.StartTime,
		DurationMinutes: r.DurationMinutes,
		Mood:            domain.Mood(r.Mood),
		NGConditions:    r.NGConditions,
		CustomRequest:   strings.TrimSpace(r.CustomRequest),
	}
	for _, m := range r.TransportModes {
		cond.TransportModes = append(cond.TransportModes, domain.TransportMode(m))
	}
	return cond
}

// movementFromConfig resolves a movement style key against the config table.
func movementFromConfig(cfg *config.Config, key string) *domain.MovementPreference {
	if key == "" {
		return nil
	}
	style, ok := cfg.MovementStyles[key]
	if !ok {
		return nil
	}
	return &domain.MovementPreference{
		Key:           key,
		Label:         style.Label,
		Description:   style.Description,
		Focus:         style.Focus,
		MaxLegMinutes: style.MaxLegMinutes,
		MaxAreas:      style.MaxAreas,
	}
}

func areaResponses(cfg *config.Config) []AreaResponse {
	res := make([]AreaResponse, 0, len(cfg.Areas))
	for key, a := range cfg.Areas {
		res = append(res, AreaResponse{
			Key:     key,
			Label:   a.Label,
			Coord:   domain.LatLng{Lat: a.Lat, Lng: a.Lng},
			Station: a.Station.Name,
		})
	}
	return res
}

// fallbackVenue stands in when the places provider is absent or failing, so
// the search endpoint stays useful offline.
func fallbackVenue(query, location string) domain.Venue {
	label := strings.TrimSpace(query + " " + location)
	return domain.Venue{
		Name:    query,
		Area:    location,
		InfoURL: "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(label),
	}
}

func nonNilVenues(in []domain.Venue) []domain.Venue {
	if in == nil {
		return []domain.Venue{}
	}
	return in
}
