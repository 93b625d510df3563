package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// VenueFilters narrows the curated store. Equality filters run in SQL; the
// tag-shaped ones (phase, time slot, mood, NG conditions) are applied on the
// scanned rows because they match against pipe-separated tag lists.
type VenueFilters struct {
	Area               string
	Category           string
	Budget             domain.Budget
	Phase              domain.Phase
	TimeSlot           string
	Mood               domain.Mood
	NGConditions       []string
	RequireCoordinates bool
	Exclude            []string // venue names or IDs already used in the itinerary
	Limit              int
}

type venueRow struct {
	domain.Venue
	recommendedFor string
	bestTimeSlot   string
	moodTags       string
	indoorOutdoor  string
	weatherOK      bool
	budgetLevel    string
}

const venueColumns = `id,name,area_id,category,budget_level,recommended_for,best_time_slot,mood_tags,indoor_outdoor,lat,lng,address,price_range,stay_minutes,weather_ok,rating,info_url,description,tips`

// SearchVenues returns curated venues matching the filters, best rated first.
func (r Repo) SearchVenues(ctx context.Context, f VenueFilters) ([]domain.Venue, error) {
	var clauses []string
	var args []any
	if f.Area != "" {
		clauses = append(clauses, "area_id=?")
		args = append(args, f.Area)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.Budget != "" {
		clauses = append(clauses, "budget_level=?")
		args = append(args, string(f.Budget))
	}
	if f.RequireCoordinates {
		clauses = append(clauses, "lat IS NOT NULL AND lng IS NOT NULL")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + venueColumns + ` FROM venues ` + where + ` ORDER BY rating DESC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	excluded := map[string]bool{}
	for _, e := range f.Exclude {
		excluded[e] = true
	}
	var res []domain.Venue
	for rows.Next() {
		vr, err := scanVenue(rows)
		if err != nil {
			return nil, err
		}
		if excluded[vr.ID] || excluded[vr.Name] {
			continue
		}
		if !matchesTags(vr, f) {
			continue
		}
		res = append(res, vr.Venue)
		if f.Limit > 0 && len(res) >= f.Limit {
			break
		}
	}
	return res, rows.Err()
}

// GetVenueByName resolves a venue by exact or substring name match, scoped to
// an area when one is given.
func (r Repo) GetVenueByName(ctx context.Context, area, name string) (domain.Venue, error) {
	clauses := []string{"(name=? OR name LIKE ?)"}
	args := []any{name, "%" + name + "%"}
	if area != "" {
		clauses = append(clauses, "area_id=?")
		args = append(args, area)
	}
	query := `SELECT ` + venueColumns + ` FROM venues WHERE ` + strings.Join(clauses, " AND ") +
		` ORDER BY CASE WHEN name=? THEN 0 ELSE 1 END, rating DESC LIMIT 1`
	args = append(args, name)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.Venue{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.Venue{}, err
		}
		return domain.Venue{}, ErrNotFound
	}
	vr, err := scanVenue(rows)
	if err != nil {
		return domain.Venue{}, err
	}
	return vr.Venue, nil
}

// CountVenuesInArea reports how many curated venues exist for an area. The
// selector skips the store entirely for uncovered areas.
func (r Repo) CountVenuesInArea(ctx context.Context, area string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM venues WHERE area_id=?`, area).Scan(&n)
	return n, err
}

// ListVenues returns every curated venue for an area (or all areas when
// empty), for the CLI venues table.
func (r Repo) ListVenues(ctx context.Context, area string) ([]domain.Venue, error) {
	query := `SELECT ` + venueColumns + ` FROM venues`
	var args []any
	if area != "" {
		query += ` WHERE area_id=?`
		args = append(args, area)
	}
	query += ` ORDER BY area_id ASC, category ASC, rating DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Venue
	for rows.Next() {
		vr, err := scanVenue(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, vr.Venue)
	}
	return res, rows.Err()
}

// InsertVenue adds a curated venue row.
func (r Repo) InsertVenue(ctx context.Context, v domain.Venue, budget domain.Budget, phases, timeSlots []string, moodTags, indoorOutdoor string, weatherOK bool) error {
	if v.ID == "" || v.Name == "" || v.Area == "" {
		return errors.New("id, name and area required")
	}
	var lat, lng any
	if v.Coord != nil {
		lat, lng = v.Coord.Lat, v.Coord.Lng
	}
	if len(phases) == 0 {
		phases = []string{"all"}
	}
	if len(timeSlots) == 0 {
		timeSlots = []string{"anytime"}
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO venues(`+venueColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		v.ID, v.Name, v.Area, v.Category, string(budget), strings.Join(phases, "|"), strings.Join(timeSlots, "|"),
		nullable(moodTags), nullable(indoorOutdoor), lat, lng, nullable(v.Address), nullable(v.PriceRange),
		stayOrDefault(v.StayMinutes), weatherOK, v.Rating, nullable(v.InfoURL), nullable(v.Description), nullable(v.Tips))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVenue(row rowScanner) (venueRow, error) {
	var vr venueRow
	var lat, lng sql.NullFloat64
	var moodTags, indoorOutdoor, address, priceRange, infoURL, description, tips sql.NullString
	err := row.Scan(&vr.ID, &vr.Name, &vr.Venue.Area, &vr.Category, &vr.budgetLevel, &vr.recommendedFor, &vr.bestTimeSlot,
		&moodTags, &indoorOutdoor, &lat, &lng, &address, &priceRange, &vr.StayMinutes, &vr.weatherOK, &vr.Rating,
		&infoURL, &description, &tips)
	if err == sql.ErrNoRows {
		return vr, ErrNotFound
	}
	if err != nil {
		return vr, err
	}
	if lat.Valid && lng.Valid {
		vr.Coord = &domain.LatLng{Lat: lat.Float64, Lng: lng.Float64}
	}
	vr.moodTags = moodTags.String
	vr.indoorOutdoor = indoorOutdoor.String
	vr.Address = address.String
	vr.PriceRange = priceRange.String
	vr.InfoURL = infoURL.String
	vr.Venue.Description = description.String
	vr.Tips = tips.String
	return vr, nil
}

func matchesTags(vr venueRow, f VenueFilters) bool {
	if f.Phase != "" && !tagListHas(vr.recommendedFor, string(f.Phase), "all") {
		return false
	}
	if f.TimeSlot != "" && !tagListHas(vr.bestTimeSlot, f.TimeSlot, "anytime") {
		return false
	}
	if f.Mood != "" && !strings.Contains(strings.ToLower(vr.moodTags), strings.ToLower(string(f.Mood))) {
		return false
	}
	for _, ng := range f.NGConditions {
		switch ng {
		case "outdoor":
			if vr.indoorOutdoor == "outdoor" {
				return false
			}
		case "indoor":
			if vr.indoorOutdoor == "indoor" {
				return false
			}
		case "crowd":
			if strings.Contains(vr.moodTags, "賑やか") {
				return false
			}
		case "quiet":
			if strings.Contains(vr.moodTags, "静か") {
				return false
			}
		case "walk":
			if vr.StayMinutes > 120 {
				return false
			}
		case "rain":
			if !vr.weatherOK {
				return false
			}
		}
	}
	return true
}

func tagListHas(list, want, wildcard string) bool {
	for _, tag := range strings.Split(list, "|") {
		tag = strings.TrimSpace(tag)
		if tag == want || tag == wildcard {
			return true
		}
	}
	return false
}

// LatestEvents returns the most recent journal rows, newest first.
func (r Repo) LatestEvents(ctx context.Context, limit int, evtType string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id,ts,type,COALESCE(plan_id,''),COALESCE(area,''),actor_id,payload_json FROM events`
	var args []any
	if evtType != "" {
		query += ` WHERE type=?`
		args = append(args, evtType)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.PlanID, &e.Area, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func stayOrDefault(v int) int {
	if v <= 0 {
		return 60
	}
	return v
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
