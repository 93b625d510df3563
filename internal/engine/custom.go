package engine

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/config"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/domain"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/places"
)

// CustomRole says what a free-text request wants to change.
type CustomRole int

const (
	RoleInsertion CustomRole = iota
	RoleMeeting
	RoleFarewell
)

var (
	meetingWordsRe  = regexp.MustCompile(`(?i)(集合|待ち合わせ|待合せ|meet)`)
	farewellWordsRe = regexp.MustCompile(`(?i)(解散|終わり|別れ|バイバイ|帰る|farewell|goodbye)`)
	explicitTimeRe  = regexp.MustCompile(`(\d{1,2})[:：](\d{2})`)
	hourOnlyRe      = regexp.MustCompile(`(\d{1,2})時`)
	morningRe       = regexp.MustCompile(`(?i)朝|午前|morning`)
	middayRe        = regexp.MustCompile(`(?i)昼|ランチ|午後|afternoon`)
	eveningRe       = regexp.MustCompile(`(?i)夕方|夜|ディナー|dinner|night`)
	intentWordsRe   = regexp.MustCompile(`(?i)に行きたい|へ行きたい|に行く|行きたい|で集合|集合|待ち合わせ|待合せ|で解散|解散|終わり|別れ|帰る|したい|でお願いします|でお願い|お願いします|お願い`)
)

// CustomResolution is the parsed and venue-resolved form of a request.
type CustomResolution struct {
	Role             CustomRole
	Time             string // HH:MM, never empty once resolved
	PreferredMinutes int
	Name             string
	Venue            domain.Venue
	Resolved         bool // a real venue was found for the name
	MapURL           string
	RawText          string
}

// resolveCustomRequest classifies the request, extracts a preferred clock
// time and a venue-name guess, and resolves the name to coordinates. An
// unparsable request degrades to searching the whole text as a venue name.
func (e *Engine) resolveCustomRequest(ctx context.Context, cond domain.Conditions, area resolvedArea, allowExternal bool) CustomResolution {
	text := cond.CustomRequest
	role := RoleInsertion
	if meetingWordsRe.MatchString(text) {
		role = RoleMeeting
	} else if farewellWordsRe.MatchString(text) {
		role = RoleFarewell
	}

	clock := tableClock(cond, e.Config)
	defaultTime := clock(domain.KindActivity, clock(domain.KindLunch, "12:00"))
	preferred := parsePreferredTime(text, clock, defaultTime)

	name := strippedPlaceName(text)
	if name == "" {
		name = text
	}

	res := CustomResolution{
		Role:             role,
		Time:             preferred,
		PreferredMinutes: domain.ClockToMinutes(preferred),
		Name:             name,
		MapURL:           searchLink(name),
		RawText:          text,
	}
	res.Venue = domain.Venue{Name: name, Coord: &domain.LatLng{Lat: area.Center.Lat, Lng: area.Center.Lng}}

	if e.Store != nil {
		for _, scope := range []string{area.Key, ""} {
			v, err := e.Store.GetVenueByName(ctx, scope, name)
			if err == nil && v.Coord != nil {
				res.Venue = v
				res.Resolved = true
				res.MapURL = resolveDisplayURL(v)
				return res
			}
			if scope == "" {
				break
			}
		}
	}
	if allowExternal && e.Search != nil {
		for _, location := range []string{area.Label, "東京都"} {
			v, err := e.Search.SearchText(ctx, name, location, places.SearchOptions{Pinned: true})
			if err != nil {
				log.Printf("[plan] custom request search %q in %s: %v", name, location, err)
				continue
			}
			if v.Coord != nil {
				res.Venue = *v
				res.Resolved = true
				res.MapURL = resolveDisplayURL(*v)
				return res
			}
		}
	}
	return res
}

// parsePreferredTime extracts a clock time from free text: explicit HH:MM
// first, then a bare hour, then daypart words mapped through the time table.
func parsePreferredTime(text string, clock func(domain.ItemKind, string) string, fallback string) string {
	if m := explicitTimeRe.FindStringSubmatch(text); m != nil {
		h := clampInt(atoi(m[1]), 0, 23)
		min := clampInt(atoi(m[2]), 0, 59)
		return fmt.Sprintf("%02d:%02d", h, min)
	}
	if m := hourOnlyRe.FindStringSubmatch(text); m != nil {
		return fmt.Sprintf("%02d:00", clampInt(atoi(m[1]), 0, 23))
	}
	switch {
	case morningRe.MatchString(text):
		return "10:00"
	case middayRe.MatchString(text):
		return clock(domain.KindLunch, "13:00")
	case eveningRe.MatchString(text):
		return clock(domain.KindDinner, "19:00")
	}
	return fallback
}

// strippedPlaceName removes time patterns and intent vocabulary, leaving the
// best guess at a venue name.
func strippedPlaceName(text string) string {
	s := explicitTimeRe.ReplaceAllString(text, "")
	s = hourOnlyRe.ReplaceAllString(s, "")
	s = intentWordsRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	// Removing the time leaves its particle behind ("19時に浅草寺" -> "に浅草寺").
	for _, p := range []string{"に", "へ", "で", "を"} {
		s = strings.TrimPrefix(s, p)
	}
	return strings.TrimSpace(s)
}

// override turns a meeting/farewell resolution into a bookend replacement.
func (r CustomResolution) override() *bookendOverride {
	coord := domain.LatLng{}
	if r.Venue.Coord != nil {
		coord = *r.Venue.Coord
	}
	name := r.Venue.Name
	if name == "" {
		name = r.Name
	}
	return &bookendOverride{
		Name:   name,
		Coord:  coord,
		Time:   r.Time,
		MapURL: r.MapURL,
	}
}

// item turns an insertion resolution into a schedule entry carrying its
// preferred start for ordering and satisfaction checks.
func (r CustomResolution) item(cond domain.Conditions, prices config.SlotPrices) domain.ScheduleItem {
	v := r.Venue
	return domain.ScheduleItem{
		Time:                  r.Time,
		Kind:                  domain.KindCustom,
		PlaceName:             v.Name,
		Coord:                 v.Coord,
		PriceRange:            prices.Activity,
		DurationMinutes:       60,
		Reason:                "ユーザーリクエスト: " + r.RawText,
		ReasonTags:            []string{"リクエスト反映"},
		InfoURL:               r.MapURL,
		VenueID:               v.ID,
		OpeningHours:          v.OpeningHours,
		Photos:                placeholderPhotos(v.Name),
		Reviews:               []domain.Review{},
		IsCustom:              true,
		PreferredStartMinutes: r.PreferredMinutes,
	}
}

// spliceCustomItem inserts the item at its chronological position; on a tie
// it goes before the existing entry at that time.
func spliceCustomItem(items []domain.ScheduleItem, custom domain.ScheduleItem) []domain.ScheduleItem {
	at := custom.PreferredStartMinutes
	for i, it := range items {
		if it.Time != "" && at <= domain.ClockToMinutes(it.Time) {
			out := make([]domain.ScheduleItem, 0, len(items)+1)
			out = append(out, items[:i]...)
			out = append(out, custom)
			return append(out, items[i:]...)
		}
	}
	return append(items, custom)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
