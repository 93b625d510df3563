package dateaisdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal date plan HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 15 * time.Second,
	}
}

// PlanRequest mirrors the generate endpoint body.
type PlanRequest struct {
	Area            string   `json:"area"`
	Phase           string   `json:"date_phase,omitempty"`
	Budget          string   `json:"date_budget_level,omitempty"`
	TimeSlot        string   `json:"time_slot,omitempty"`
	StartTime       string   `json:"start_time,omitempty"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	Mood            string   `json:"mood,omitempty"`
	NGConditions    []string `json:"ng_conditions,omitempty"`
	CustomRequest   string   `json:"custom_request,omitempty"`
	Movement        string   `json:"movement_preference,omitempty"`
	Adjustment      string   `json:"adjustment_request,omitempty"`
}

// ScheduleItem is one row of the returned timeline (partial).
type ScheduleItem struct {
	Time          string  `json:"time"`
	EndTime       string  `json:"end_time,omitempty"`
	Type          string  `json:"type"`
	PlaceName     string  `json:"place_name"`
	Area          string  `json:"area,omitempty"`
	PriceRange    string  `json:"price_range,omitempty"`
	Reason        string  `json:"reason,omitempty"`
	Rating        float64 `json:"rating,omitempty"`
	TransportMode string  `json:"transport_mode,omitempty"`
	TravelMinutes int     `json:"travel_time_min,omitempty"`
	DirectionsURL string  `json:"directions_url,omitempty"`
	IsCustom      bool    `json:"is_custom,omitempty"`
	ClosedWarning string  `json:"closed_warning,omitempty"`
}

// Plan is the assembled itinerary.
type Plan struct {
	ID                 string         `json:"id"`
	Summary            string         `json:"plan_summary"`
	Reason             string         `json:"plan_reason"`
	EstimatedCost      string         `json:"total_estimated_cost"`
	Schedule           []ScheduleItem `json:"schedule"`
	AdjustablePoints   []string       `json:"adjustable_points,omitempty"`
	ConversationTopics []string       `json:"conversation_topics,omitempty"`
	NextStepPhrase     string         `json:"next_step_phrase,omitempty"`
	GeneratedBy        string         `json:"generated_by,omitempty"`
}

// Venue is a place a slot can resolve to (partial).
type Venue struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name"`
	Category    string  `json:"category,omitempty"`
	Area        string  `json:"area,omitempty"`
	Address     string  `json:"address,omitempty"`
	Rating      float64 `json:"rating,omitempty"`
	InfoURL     string  `json:"info_url,omitempty"`
	PriceRange  string  `json:"price_range,omitempty"`
	Description string  `json:"description,omitempty"`
}

// AreaInfo is one configured date area.
type AreaInfo struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Station string `json:"station,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// GeneratePlan builds a full itinerary for the given conditions.
func (c *Client) GeneratePlan(ctx context.Context, req PlanRequest) (Plan, error) {
	var resp struct {
		Plan Plan `json:"plan"`
	}
	err := c.do(ctx, http.MethodPost, "v0/plans/generate", req, &resp)
	return resp.Plan, err
}

// Alternatives lists replacement venues for one schedule slot.
func (c *Client) Alternatives(ctx context.Context, area, category string, exclude []string, limit int) ([]Venue, error) {
	body := map[string]any{
		"area":     area,
		"category": category,
		"exclude":  exclude,
		"limit":    limit,
	}
	var resp struct {
		Items []Venue `json:"items"`
	}
	err := c.do(ctx, http.MethodPost, "v0/venues/alternatives", body, &resp)
	return resp.Items, err
}

// SearchVenue looks up a single venue by free-text query near a location.
func (c *Client) SearchVenue(ctx context.Context, query, location string) (Venue, string, error) {
	body := map[string]any{
		"query":    query,
		"location": location,
	}
	var resp struct {
		Venue  Venue  `json:"venue"`
		Source string `json:"source"`
	}
	err := c.do(ctx, http.MethodPost, "v0/venues/search", body, &resp)
	return resp.Venue, resp.Source, err
}

// VenueDetail fetches full detail for a provider place id.
func (c *Client) VenueDetail(ctx context.Context, placeID string) (Venue, error) {
	var resp struct {
		Venue Venue `json:"venue"`
	}
	err := c.do(ctx, http.MethodPost, "v0/venues/detail", map[string]any{"place_id": placeID}, &resp)
	return resp.Venue, err
}

// Areas lists the configured date areas.
func (c *Client) Areas(ctx context.Context) ([]AreaInfo, error) {
	var resp []AreaInfo
	err := c.do(ctx, http.MethodGet, "v0/areas", nil, &resp)
	return resp, err
}

// DevLogin mints a development bearer token and stores it on the client.
func (c *Client) DevLogin(ctx context.Context, actorID string, roles []string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]any{"actor_id": actorID, "roles": roles}
	if err := c.do(ctx, http.MethodPost, "v0/auth/dev/login", body, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "v0/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
