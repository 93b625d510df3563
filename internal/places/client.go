// Package places talks to the Google Places (New), Geocoding and Directions
// APIs. Every call degrades to (nil, error) so the engine can fall through to
// its curated and synthetic tiers.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/domain"
)

const (
	searchTextURL    = "https://places.googleapis.com/v1/places:searchText"
	placeDetailsBase = "https://places.googleapis.com/v1"
	geocodeURL       = "https://maps.googleapis.com/maps/api/geocode/json"
	directionsURL    = "https://maps.googleapis.com/maps/api/directions/json"
)

// ErrNoAPIKey is returned when the client has no key configured; callers
// treat it like any other miss.
var ErrNoAPIKey = errors.New("places: api key not configured")

// ErrNotFound is returned when the provider has no result for a query.
var ErrNotFound = errors.New("places: no result")

type Client struct {
	APIKey     string
	Referer    string
	HTTPClient *http.Client

	// SearchURL, GeocodeURL and DirectionsURL override the Google endpoints
	// in tests.
	SearchURL     string
	GeocodeURL    string
	DirectionsURL string

	// Rand picks one of the top-n search hits. Defaults to rand.Intn.
	Rand func(n int) int

	mu        sync.Mutex
	areaCache map[string]domain.LatLng
}

func New(apiKey, referer string) *Client {
	return &Client{
		APIKey:     apiKey,
		Referer:    referer,
		HTTPClient: &http.Client{Timeout: 8 * time.Second},
		areaCache:  map[string]domain.LatLng{},
	}
}

// SearchOptions tune the text-search query the way the conditions demand.
type SearchOptions struct {
	Budget   domain.Budget
	Phase    domain.Phase
	TimeSlot string
	Category string
	Pinned   bool // take the top hit instead of a random top-5 pick
}

var budgetKeywords = map[domain.Budget]string{
	domain.BudgetLow:    "カジュアル リーズナブル",
	domain.BudgetMedium: "人気 おすすめ",
	domain.BudgetHigh:   "高級 上質 ハイクラス",
}

var phaseKeywords = map[domain.Phase]string{
	domain.PhaseFirst:       "落ち着いた 個室 静か",
	domain.PhaseSecond:      "おしゃれ 雰囲気",
	domain.PhaseCasual:      "人気 話題",
	domain.PhaseAnniversary: "特別 記念日 高級",
}

var timeSlotKeywords = map[string]string{
	"lunch":  "ランチ",
	"dinner": "ディナー",
}

type searchRequest struct {
	TextQuery      string `json:"textQuery"`
	LanguageCode   string `json:"languageCode"`
	MaxResultCount int    `json:"maxResultCount"`
	RankPreference string `json:"rankPreference"`
	LocationBias   *struct {
		Circle struct {
			Center struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			} `json:"center"`
			Radius float64 `json:"radius"`
		} `json:"circle"`
	} `json:"locationBias,omitempty"`
	IncludedType string  `json:"includedType,omitempty"`
	MinRating    float64 `json:"minRating,omitempty"`
}

type placeResult struct {
	Name        string `json:"name"`
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	FormattedAddress string `json:"formattedAddress"`
	Location         *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	Rating        float64  `json:"rating"`
	GoogleMapsURI string   `json:"googleMapsUri"`
	Types         []string `json:"types"`
}

// SearchText runs a Places text search biased to the location's center and
// returns the chosen hit as a venue.
func (c *Client) SearchText(ctx context.Context, query, location string, opts SearchOptions) (*domain.Venue, error) {
	if c.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	q := query
	if kw := budgetKeywords[opts.Budget]; kw != "" {
		q += " " + kw
	}
	if kw := phaseKeywords[opts.Phase]; kw != "" {
		q += " " + kw
	}
	if kw := timeSlotKeywords[opts.TimeSlot]; kw != "" {
		q += " " + kw
	}

	req := searchRequest{
		TextQuery:      q + " " + location,
		LanguageCode:   "ja",
		MaxResultCount: 10,
		RankPreference: "RELEVANCE",
		IncludedType:   opts.Category,
	}
	if opts.Budget != "" {
		req.MinRating = 3.5
	}
	if center, err := c.AreaCoordinate(ctx, location); err == nil {
		bias := &struct {
			Circle struct {
				Center struct {
					Latitude  float64 `json:"latitude"`
					Longitude float64 `json:"longitude"`
				} `json:"center"`
				Radius float64 `json:"radius"`
			} `json:"circle"`
		}{}
		bias.Circle.Center.Latitude = center.Lat
		bias.Circle.Center.Longitude = center.Lng
		bias.Circle.Radius = 2500
		req.LocationBias = bias
	}

	var out struct {
		Places []placeResult `json:"places"`
	}
	fieldMask := "places.displayName,places.formattedAddress,places.location,places.rating,places.name,places.googleMapsUri,places.types"
	if err := c.doJSON(ctx, http.MethodPost, c.searchURL(), req, fieldMask, &out); err != nil {
		return nil, err
	}
	if len(out.Places) == 0 {
		return nil, ErrNotFound
	}

	top := len(out.Places)
	if top > 5 {
		top = 5
	}
	idx := 0
	if !opts.Pinned {
		idx = c.intn(top)
	}
	p := out.Places[idx]

	v := &domain.Venue{
		ID:       p.Name,
		Name:     firstNonEmpty(p.DisplayName.Text, p.Name, query),
		Category: opts.Category,
		Address:  p.FormattedAddress,
		Rating:   p.Rating,
	}
	if p.Location != nil {
		v.Coord = &domain.LatLng{Lat: p.Location.Latitude, Lng: p.Location.Longitude}
	}
	switch {
	case p.GoogleMapsURI != "":
		v.InfoURL = p.GoogleMapsURI
	case v.Coord != nil:
		v.InfoURL = fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%g,%g", v.Coord.Lat, v.Coord.Lng)
	default:
		v.InfoURL = "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(v.Name+" "+location)
	}
	return v, nil
}

// PlaceDetails fetches opening hours, website and reviews for a place
// resource name ("places/...").
func (c *Client) PlaceDetails(ctx context.Context, placeID string) (*domain.Venue, error) {
	if c.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if placeID == "" || !strings.HasPrefix(placeID, "places/") {
		return nil, ErrNotFound
	}
	var out struct {
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		FormattedAddress    string `json:"formattedAddress"`
		RegularOpeningHours struct {
			WeekdayDescriptions []string `json:"weekdayDescriptions"`
		} `json:"regularOpeningHours"`
		WebsiteURI string  `json:"websiteUri"`
		Rating     float64 `json:"rating"`
		Reviews    []struct {
			AuthorAttribution struct {
				DisplayName string `json:"displayName"`
			} `json:"authorAttribution"`
			Rating float64 `json:"rating"`
			Text   struct {
				Text string `json:"text"`
			} `json:"text"`
		} `json:"reviews"`
	}
	u := c.detailsURL(placeID) + "?languageCode=ja"
	fieldMask := "displayName,formattedAddress,regularOpeningHours,websiteUri,rating,reviews"
	if err := c.doJSON(ctx, http.MethodGet, u, nil, fieldMask, &out); err != nil {
		return nil, err
	}
	v := &domain.Venue{
		ID:           placeID,
		Name:         out.DisplayName.Text,
		Address:      out.FormattedAddress,
		OpeningHours: out.RegularOpeningHours.WeekdayDescriptions,
		OfficialURL:  out.WebsiteURI,
		Rating:       out.Rating,
	}
	for i, r := range out.Reviews {
		if i >= 3 {
			break
		}
		v.Reviews = append(v.Reviews, domain.Review{
			Author: r.AuthorAttribution.DisplayName,
			Rating: r.Rating,
			Text:   r.Text.Text,
		})
	}
	return v, nil
}

// AreaCoordinate geocodes a location name, with a per-client cache. Unlike
// the search path it returns an explicit error when nothing resolves; the
// engine substitutes its own centroid fallback.
func (c *Client) AreaCoordinate(ctx context.Context, location string) (domain.LatLng, error) {
	c.mu.Lock()
	if cached, ok := c.areaCache[location]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	if c.APIKey == "" {
		return domain.LatLng{}, ErrNoAPIKey
	}
	q := url.Values{}
	q.Set("address", location+" 日本")
	q.Set("key", c.APIKey)
	q.Set("language", "ja")
	var out struct {
		Results []struct {
			Geometry struct {
				Location struct {
					Lat float64 `json:"lat"`
					Lng float64 `json:"lng"`
				} `json:"location"`
			} `json:"geometry"`
		} `json:"results"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.geocodeURL()+"?"+q.Encode(), nil, "", &out); err != nil {
		return domain.LatLng{}, err
	}
	if len(out.Results) == 0 {
		return domain.LatLng{}, fmt.Errorf("geocode %q: %w", location, ErrNotFound)
	}
	coord := domain.LatLng{
		Lat: out.Results[0].Geometry.Location.Lat,
		Lng: out.Results[0].Geometry.Location.Lng,
	}
	c.mu.Lock()
	c.areaCache[location] = coord
	c.mu.Unlock()
	return coord, nil
}

// TransitDirections asks the Directions API for a transit route between two
// coordinates and condenses it into a summary.
func (c *Client) TransitDirections(ctx context.Context, origin, dest domain.LatLng) (*domain.TransitSummary, error) {
	if c.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	q := url.Values{}
	q.Set("origin", fmt.Sprintf("%g,%g", origin.Lat, origin.Lng))
	q.Set("destination", fmt.Sprintf("%g,%g", dest.Lat, dest.Lng))
	q.Set("mode", "transit")
	q.Set("language", "ja")
	q.Set("key", c.APIKey)
	q.Set("alternatives", "false")

	var out struct {
		Status string `json:"status"`
		Routes []struct {
			Summary string `json:"summary"`
			Legs    []struct {
				Duration struct {
					Value int `json:"value"`
				} `json:"duration"`
				Steps []struct {
					TravelMode     string `json:"travel_mode"`
					TransitDetails *struct {
						Headsign string `json:"headsign"`
						NumStops int    `json:"num_stops"`
						Line     struct {
							ShortName string `json:"short_name"`
							Name      string `json:"name"`
							Agencies  []struct {
								Name string `json:"name"`
							} `json:"agencies"`
						} `json:"line"`
						DepartureStop struct {
							Name string `json:"name"`
						} `json:"departure_stop"`
						ArrivalStop struct {
							Name string `json:"name"`
						} `json:"arrival_stop"`
					} `json:"transit_details"`
				} `json:"steps"`
			} `json:"legs"`
		} `json:"routes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.directionsURL()+"?"+q.Encode(), nil, "", &out); err != nil {
		return nil, err
	}
	if out.Status != "OK" || len(out.Routes) == 0 || len(out.Routes[0].Legs) == 0 {
		return nil, ErrNotFound
	}
	route := out.Routes[0]
	leg := route.Legs[0]
	summary := &domain.TransitSummary{
		Summary:         route.Summary,
		DurationMinutes: (leg.Duration.Value + 30) / 60,
	}
	for _, s := range leg.Steps {
		if s.TransitDetails == nil {
			continue
		}
		t := s.TransitDetails
		agency := ""
		if len(t.Line.Agencies) > 0 {
			agency = t.Line.Agencies[0].Name
		}
		summary.Steps = append(summary.Steps, domain.TransitStep{
			LineName:      firstNonEmpty(t.Line.ShortName, t.Line.Name),
			Agency:        agency,
			Headsign:      t.Headsign,
			NumStops:      t.NumStops,
			DepartureStop: t.DepartureStop.Name,
			ArrivalStop:   t.ArrivalStop.Name,
		})
	}
	return summary, nil
}

// SeedAreaCache preloads the geocode cache, typically with the configured
// area centers so known areas never hit the network.
func (c *Client) SeedAreaCache(entries map[string]domain.LatLng) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.areaCache == nil {
		c.areaCache = map[string]domain.LatLng{}
	}
	for k, v := range entries {
		c.areaCache[k] = v
	}
}

func (c *Client) doJSON(ctx context.Context, method, u string, body any, fieldMask string, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if fieldMask != "" {
		req.Header.Set("X-Goog-Api-Key", c.APIKey)
		req.Header.Set("X-Goog-FieldMask", fieldMask)
	}
	if c.Referer != "" {
		req.Header.Set("Referer", c.Referer)
	}
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("places: %s returned %s", req.URL.Host, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) searchURL() string {
	if c.SearchURL != "" {
		return c.SearchURL
	}
	return searchTextURL
}

func (c *Client) detailsURL(placeID string) string {
	if c.SearchURL != "" {
		// Tests point everything at one server.
		return strings.TrimSuffix(c.SearchURL, "/places:searchText") + "/" + placeID
	}
	return placeDetailsBase + "/" + placeID
}

func (c *Client) geocodeURL() string {
	if c.GeocodeURL != "" {
		return c.GeocodeURL
	}
	return geocodeURL
}

func (c *Client) directionsURL() string {
	if c.DirectionsURL != "" {
		return c.DirectionsURL
	}
	return directionsURL
}

func (c *Client) intn(n int) int {
	if c.Rand != nil {
		return c.Rand(n)
	}
	return rand.Intn(n)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
