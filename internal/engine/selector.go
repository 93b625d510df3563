package engine

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/domain"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/places"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/repo"
)

// searchQueries seeds the provider text search per slot kind; the places
// client layers budget/phase/time-slot keywords on top.
var searchQueries = map[domain.ItemKind]string{
	domain.KindLunch:    "ランチ おすすめ",
	domain.KindActivity: "観光スポット 人気",
	domain.KindCafe:     "カフェ おしゃれ",
	domain.KindDinner:   "ディナー レストラン",
}

// fillSlots resolves one venue per slot, returning the schedule items and
// the venues they came from. The first two slots have no mutual dependency
// and run as one concurrent batch; the remaining slots run as a second batch
// so they can exclude the first batch's picks and anchor their placeholders
// near the first resolved stop instead of the raw area center.
func (e *Engine) fillSlots(ctx context.Context, cond domain.Conditions, area resolvedArea, slots []slot, allowExternal bool) ([]domain.ScheduleItem, []domain.Venue) {
	items := make([]domain.ScheduleItem, len(slots))
	venues := make([]domain.Venue, len(slots))

	storeCovered := e.storeCovers(ctx, area)

	split := 2
	if split > len(slots) {
		split = len(slots)
	}

	runBatch := func(idx []int, exclude []string, anchor domain.LatLng) {
		g, gctx := errgroup.WithContext(ctx)
		for _, i := range idx {
			i := i
			g.Go(func() error {
				venues[i] = e.venueForSlot(gctx, cond, area, slots[i], exclude, anchor, storeCovered, allowExternal, i)
				return nil
			})
		}
		_ = g.Wait()
	}

	first := make([]int, 0, split)
	for i := 0; i < split; i++ {
		first = append(first, i)
	}
	runBatch(first, nil, area.Center)

	exclude := make([]string, 0, len(slots))
	anchor := area.Center
	for i := 0; i < split; i++ {
		if venues[i].Name != "" {
			exclude = append(exclude, venues[i].Name)
		}
		if venues[i].Coord != nil && anchor == area.Center {
			anchor = *venues[i].Coord
		}
	}

	rest := make([]int, 0, len(slots)-split)
	for i := split; i < len(slots); i++ {
		rest = append(rest, i)
	}
	runBatch(rest, exclude, anchor)

	for i, s := range slots {
		items[i] = e.itemFromVenue(cond, area, s, venues[i])
	}
	return items, venues
}

// storeCovers reports whether the curated store has any venue for the area,
// so uncovered areas skip straight to the provider tier. A count failure
// still lets the per-slot queries try.
func (e *Engine) storeCovers(ctx context.Context, area resolvedArea) bool {
	if e.Store == nil || area.Key == "" {
		return false
	}
	n, err := e.Store.CountVenuesInArea(ctx, area.Key)
	if err != nil {
		log.Printf("[plan] store count %s: %v", area.Key, err)
		return true
	}
	return n > 0
}

// venueForSlot works down the source tiers: curated store, provider search,
// synthetic placeholder. It never fails; the placeholder is always available.
func (e *Engine) venueForSlot(ctx context.Context, cond domain.Conditions, area resolvedArea, s slot, exclude []string, anchor domain.LatLng, storeCovered, allowExternal bool, variant int) domain.Venue {
	if s.Kind == domain.KindWalk {
		return walkVenue(area)
	}

	if storeCovered {
		found, err := e.Store.SearchVenues(ctx, repo.VenueFilters{
			Area:               area.Key,
			Category:           string(s.Kind),
			Budget:             cond.Budget,
			Phase:              cond.Phase,
			TimeSlot:           string(cond.TimeSlot),
			Mood:               cond.Mood,
			NGConditions:       cond.NGConditions,
			RequireCoordinates: true,
			Exclude:            exclude,
			Limit:              e.Config.Search.MaxResults,
		})
		if err != nil {
			log.Printf("[plan] store search %s/%s: %v", area.Key, s.Kind, err)
		} else if len(found) > 0 {
			pick := e.intn(minInt(len(found), 3))
			return found[pick]
		}
	}

	if allowExternal && e.Search != nil {
		query := searchQueries[s.Kind]
		v, err := e.Search.SearchText(ctx, query, area.Label, places.SearchOptions{
			Budget:   cond.Budget,
			Phase:    cond.Phase,
			TimeSlot: string(cond.TimeSlot),
			Category: string(s.Kind),
		})
		if err != nil {
			log.Printf("[plan] provider search %s in %s: %v", s.Kind, area.Label, err)
		} else if !nameIn(exclude, v.Name) {
			return *v
		}
	}

	return syntheticVenue(area, s.Kind, anchor, variant)
}

// walkVenue is the area-stroll stop; it is always synthetic and free.
func walkVenue(area resolvedArea) domain.Venue {
	center := area.Center
	return domain.Venue{
		Name:       area.Label + " 街歩き",
		Category:   string(domain.KindWalk),
		Coord:      &center,
		PriceRange: "0",
		Synthetic:  true,
	}
}

var syntheticNames = map[domain.ItemKind]string{
	domain.KindLunch:    "%s 人気ランチ",
	domain.KindActivity: "%s散策",
	domain.KindCafe:     "%s カフェ",
	domain.KindDinner:   "%s ディナー",
	domain.KindCustom:   "%s スポット",
}

var syntheticOffsets = []float64{0.001, 0.0015, 0.002}

// syntheticVenue fabricates a plausible stop near the anchor so the schedule
// stays complete when neither the store nor the provider produced a venue.
func syntheticVenue(area resolvedArea, kind domain.ItemKind, anchor domain.LatLng, variant int) domain.Venue {
	name, ok := syntheticNames[kind]
	if !ok {
		name = "%s スポット"
	}
	off := syntheticOffsets[variant%len(syntheticOffsets)]
	coord := domain.LatLng{Lat: anchor.Lat + off, Lng: anchor.Lng + off}
	return domain.Venue{
		Name:      fmt.Sprintf(name, area.Label),
		Category:  string(kind),
		Coord:     &coord,
		Synthetic: true,
	}
}

// itemFromVenue turns a resolved venue into the slot's schedule entry.
func (e *Engine) itemFromVenue(cond domain.Conditions, area resolvedArea, s slot, v domain.Venue) domain.ScheduleItem {
	reason, tags := reasonAndTags(s.Kind, cond)
	item := domain.ScheduleItem{
		Time:            s.Nominal,
		Kind:            s.Kind,
		PlaceName:       v.Name,
		Coord:           v.Coord,
		Area:            area.Key,
		Address:         v.Address,
		PriceRange:      e.prices(cond).ForSlot(string(s.Kind)),
		DurationMinutes: s.DurationMinutes,
		Reason:          reason,
		ReasonTags:      tags,
		InfoURL:         resolveDisplayURL(v),
		OfficialURL:     v.OfficialURL,
		Rating:          v.Rating,
		Photos:          v.Photos,
		Reviews:         v.Reviews,
		VenueID:         v.ID,
		OpeningHours:    v.OpeningHours,
	}
	if s.Kind == domain.KindWalk {
		item.PriceRange = "0"
		item.InfoURL = ""
	}
	if v.PriceRange != "" && v.PriceRange != "0" {
		item.PriceRange = v.PriceRange
	}
	if v.Synthetic {
		item.Reviews = mockReviews(v.Name)
	}
	return item
}

// ListAlternatives returns swap candidates for one slot category: exact
// budget/phase matches first, then relaxed matches to fill the quota.
func (e *Engine) ListAlternatives(ctx context.Context, cond domain.Conditions, category string, exclude []string, limit int) ([]domain.Venue, error) {
	area := e.resolveArea(ctx, cond.Area, false)
	if area.Key == "" {
		area.Key = e.Config.Service.DefaultArea
	}
	if limit <= 0 {
		limit = 5
	}
	strict, err := e.Store.SearchVenues(ctx, repo.VenueFilters{
		Area:               area.Key,
		Category:           category,
		Budget:             cond.Budget,
		Phase:              cond.Phase,
		Mood:               cond.Mood,
		NGConditions:       cond.NGConditions,
		RequireCoordinates: true,
		Exclude:            exclude,
		Limit:              limit,
	})
	if err != nil {
		return nil, err
	}
	if len(strict) >= limit {
		return strict[:limit], nil
	}
	seen := append([]string{}, exclude...)
	for _, v := range strict {
		seen = append(seen, v.Name)
	}
	relaxed, err := e.Store.SearchVenues(ctx, repo.VenueFilters{
		Area:               area.Key,
		Category:           category,
		NGConditions:       cond.NGConditions,
		RequireCoordinates: true,
		Exclude:            seen,
		Limit:              limit - len(strict),
	})
	if err != nil {
		return nil, err
	}
	return append(strict, relaxed...), nil
}

func searchLink(name string) string {
	if name == "" {
		return ""
	}
	return "https://www.google.com/search?q=" + url.QueryEscape(name)
}

func nameIn(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
