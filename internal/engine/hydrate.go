package engine

import (
	"context"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/domain"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/places"
)

// minHydrationBudget is the remaining deadline below which the hydration
// pass is skipped wholesale and placeholder data is kept.
const minHydrationBudget = 1500 * time.Millisecond

// hydrate fetches richer detail (hours, website, rating, reviews) for the
// visit items, fanning out one lookup per item. Failures leave the item as
// it was; the pass only ever adds data.
func (e *Engine) hydrate(ctx context.Context, area resolvedArea, items []domain.ScheduleItem) []domain.ScheduleItem {
	if e.Details == nil {
		return items
	}
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < minHydrationBudget {
		log.Printf("[plan] skipping hydration, %s left before deadline", time.Until(dl).Round(time.Millisecond))
		return items
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range items {
		it := &items[i]
		if !it.Kind.IsVisit() || it.Kind == domain.KindWalk {
			continue
		}
		g.Go(func() error {
			e.hydrateItem(gctx, area, it)
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func (e *Engine) hydrateItem(ctx context.Context, area resolvedArea, it *domain.ScheduleItem) {
	placeID := it.VenueID
	if !strings.HasPrefix(placeID, "places/") {
		placeID = ""
	}
	if placeID == "" && e.Search != nil && it.PlaceName != "" {
		v, err := e.Search.SearchText(ctx, it.PlaceName, area.Label, places.SearchOptions{Pinned: true})
		if err != nil {
			return
		}
		if strings.HasPrefix(v.ID, "places/") {
			placeID = v.ID
		}
		if it.Coord == nil && v.Coord != nil {
			it.Coord = v.Coord
		}
	}
	if placeID == "" {
		return
	}

	v, err := e.Details.PlaceDetails(ctx, placeID)
	if err != nil {
		log.Printf("[plan] hydrate %s: %v", it.PlaceName, err)
		return
	}
	it.VenueID = placeID
	if len(v.OpeningHours) > 0 {
		it.OpeningHours = v.OpeningHours
	}
	if v.OfficialURL != "" {
		it.OfficialURL = v.OfficialURL
	}
	if v.Rating > 0 {
		it.Rating = v.Rating
	}
	if v.Address != "" {
		it.Address = v.Address
	}
	if len(v.Reviews) > 0 {
		it.Reviews = v.Reviews
	}
}

// enrichTransit attaches a best-effort transit route to each train leg.
func (e *Engine) enrichTransit(ctx context.Context, items []domain.ScheduleItem) []domain.ScheduleItem {
	if e.Transit == nil {
		return items
	}
	for i := range items {
		if items[i].Kind != domain.KindTravel || items[i].TransportMode != domain.ModeTrain {
			continue
		}
		if i == 0 || i+1 >= len(items) {
			continue
		}
		origin, dest := items[i-1].Coord, items[i+1].Coord
		if origin == nil || dest == nil {
			continue
		}
		sum, err := e.Transit.TransitDirections(ctx, *origin, *dest)
		if err != nil {
			log.Printf("[plan] transit directions: %v", err)
			continue
		}
		items[i].TransitRoute = sum
	}
	return items
}
