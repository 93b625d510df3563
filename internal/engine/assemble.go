package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/domain"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/geo"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/hours"
)

// outOfAreaMeters is how far a custom stop must sit from the area center
// before the meeting or farewell bookend moves to the stop itself.
const outOfAreaMeters = 2500

// meetingLeadMinutes is how long before the first stop the pair meets.
const meetingLeadMinutes = 15

// customBookendLeadMinutes is the lead before a custom meeting stop.
const customBookendLeadMinutes = 10

type bookendOverride struct {
	Name   string
	Coord  domain.LatLng
	Time   string
	MapURL string
}

// finalize is the timeline pipeline: sort the visit slots, compute travel
// legs, expand into meeting / travel / visit / farewell rows, and re-check
// opening hours against the final clock times. It cannot fail; missing
// coordinates fall back to the area center and missing durations to 60.
func (e *Engine) finalize(cond domain.Conditions, area resolvedArea, items []domain.ScheduleItem, meetingOv, farewellOv *bookendOverride) []domain.ScheduleItem {
	if len(items) == 0 {
		return []domain.ScheduleItem{e.fallbackFarewell(area)}
	}

	for i := range items {
		if items[i].Coord == nil {
			center := area.Center
			items[i].Coord = &center
		}
		if items[i].DurationMinutes <= 0 {
			items[i].DurationMinutes = 60
		}
	}

	sort.SliceStable(items, func(a, b int) bool {
		return effectiveMinutes(items[a]) < effectiveMinutes(items[b])
	})

	maxLeg, prefLabel := 0, ""
	if cond.Movement != nil {
		maxLeg = cond.Movement.MaxLegMinutes
		prefLabel = cond.Movement.Label
	}

	// One leg per item, from its predecessor (the area center for the first).
	legs := make([]geo.Leg, len(items))
	dists := make([]int, len(items))
	prev := area.Center
	for i := range items {
		d := geo.Distance(prev, *items[i].Coord)
		dists[i] = int(math.Round(d))
		legs[i] = geo.ApplyLegCap(geo.ChooseMode(d, cond.TransportModes), maxLeg, prefLabel)
		prev = *items[i].Coord
	}

	// Bookend placement, possibly shifted by a far-away custom stop.
	meetingOv, farewellOv = e.shiftBookendsForCustom(area, items, meetingOv, farewellOv)

	firstNominal := items[0].Time
	meeting := e.meetingItem(area, firstNominal, meetingOv)

	out := make([]domain.ScheduleItem, 0, 2*len(items)+2)
	out = append(out, meeting)

	current := domain.ClockToMinutes(firstNominal)
	for i := range items {
		item := items[i]
		if i > 0 {
			leg := legs[i]
			start := current
			if pref := item.PreferredStartMinutes; pref > 0 && pref-leg.Minutes > current {
				start = pref - leg.Minutes
			}
			end := start + leg.Minutes
			var note string
			if leg.Mode == domain.ModeTrain {
				note = transitNote(items[i-1].PlaceName, item.PlaceName, leg.Label)
			}
			out = append(out, domain.ScheduleItem{
				Time:            domain.MinutesToClock(start),
				EndTime:         domain.MinutesToClock(end),
				Kind:            domain.KindTravel,
				PlaceName:       fmt.Sprintf("移動（%s）", leg.Label),
				DurationMinutes: leg.Minutes,
				DistanceMeters:  dists[i],
				TransportMode:   leg.Mode,
				TransportLabel:  leg.Label,
				TravelMinutes:   leg.Minutes,
				Reason:          leg.Reason,
				DirectionsURL:   geo.DirectionsLink(items[i-1].Coord, item.Coord),
				TransitNote:     note,
			})
			current = end
		}

		start := current
		if pref := item.PreferredStartMinutes; pref > current {
			start = pref
		}
		start = roundUpTo10(start)
		end := start + item.DurationMinutes
		item.Time = domain.MinutesToClock(start)
		item.EndTime = domain.MinutesToClock(end)
		out = append(out, item)
		current = end
	}

	out = append(out, e.farewellItem(area, out[len(out)-1].EndTime, farewellOv))
	e.revalidateHours(out)
	return out
}

func effectiveMinutes(item domain.ScheduleItem) int {
	if item.PreferredStartMinutes > 0 {
		return item.PreferredStartMinutes
	}
	return domain.ClockToMinutes(item.Time)
}

func roundUpTo10(min int) int {
	return (min + 9) / 10 * 10
}

// shiftBookendsForCustom moves a bookend onto a custom stop when that stop
// sits well outside the date area: meeting moves if the custom stop opens the
// day, farewell moves if it closes it. Explicit overrides are kept as-is.
func (e *Engine) shiftBookendsForCustom(area resolvedArea, items []domain.ScheduleItem, meetingOv, farewellOv *bookendOverride) (*bookendOverride, *bookendOverride) {
	if len(items) == 0 {
		return meetingOv, farewellOv
	}
	first, last := items[0], items[len(items)-1]
	if meetingOv == nil && first.IsCustom && first.Coord != nil && geo.Distance(area.Center, *first.Coord) > outOfAreaMeters {
		pref := first.PreferredStartMinutes
		if pref == 0 {
			pref = domain.ClockToMinutes(first.Time)
		}
		meetingOv = &bookendOverride{
			Name:  first.PlaceName,
			Coord: *first.Coord,
			Time:  domain.MinutesToClock(maxInt(0, pref-customBookendLeadMinutes)),
		}
	}
	if farewellOv == nil && last.IsCustom && last.Coord != nil && geo.Distance(area.Center, *last.Coord) > outOfAreaMeters {
		pref := last.PreferredStartMinutes
		if pref == 0 {
			pref = domain.ClockToMinutes(last.Time)
		}
		farewellOv = &bookendOverride{
			Name:  last.PlaceName,
			Coord: *last.Coord,
			Time:  domain.MinutesToClock(pref + last.DurationMinutes),
		}
	}
	return meetingOv, farewellOv
}

func (e *Engine) meetingItem(area resolvedArea, firstNominal string, ov *bookendOverride) domain.ScheduleItem {
	if ov != nil {
		coord := ov.Coord
		return domain.ScheduleItem{
			Time:      ov.Time,
			Kind:      domain.KindMeeting,
			PlaceName: ov.Name,
			Coord:     &coord,
			Area:      area.Key,
			Reason:    "ユーザー指定の集合場所: " + ov.Name,
			InfoURL:   ov.MapURL,
		}
	}
	center := area.Center
	at := maxInt(0, domain.ClockToMinutes(firstNominal)-meetingLeadMinutes)
	return domain.ScheduleItem{
		Time:      domain.MinutesToClock(at),
		Kind:      domain.KindMeeting,
		PlaceName: area.Station.Name + " " + area.Station.Exit,
		Coord:     &center,
		Area:      area.Key,
		Reason:    "デートのスタート地点。待ち合わせ場所は目立つ場所を選びましょう。",
	}
}

func (e *Engine) farewellItem(area resolvedArea, endTime string, ov *bookendOverride) domain.ScheduleItem {
	if ov != nil {
		coord := ov.Coord
		return domain.ScheduleItem{
			Time:      ov.Time,
			Kind:      domain.KindFarewell,
			PlaceName: ov.Name,
			Coord:     &coord,
			Area:      area.Key,
			Reason:    "ユーザー指定の解散場所: " + ov.Name,
			InfoURL:   ov.MapURL,
		}
	}
	center := area.Center
	return domain.ScheduleItem{
		Time:      endTime,
		Kind:      domain.KindFarewell,
		PlaceName: area.Station.Name + "付近",
		Coord:     &center,
		Area:      area.Key,
		Reason:    "楽しい一日の終わり。次のデートの約束もここで。",
	}
}

func (e *Engine) fallbackFarewell(area resolvedArea) domain.ScheduleItem {
	center := area.Center
	return domain.ScheduleItem{
		Time:      "18:00",
		Kind:      domain.KindFarewell,
		PlaceName: area.Station.Name + "付近",
		Coord:     &center,
		Area:      area.Key,
		Reason:    "今日はありがとうございました。また別のエリアでもデートしましょう！",
	}
}

// revalidateHours re-runs the opening-hours check against each visit's final
// clock time. A warning set for the nominal time is cleared when the shift
// moved the visit into an open window, and vice versa.
func (e *Engine) revalidateHours(items []domain.ScheduleItem) {
	day := e.now().Weekday()
	for i := range items {
		if !items[i].Kind.IsVisit() || len(items[i].OpeningHours) == 0 {
			continue
		}
		items[i].ClosedWarning = hours.WarningFor(items[i].OpeningHours, items[i].Time, day)
	}
}

func transitNote(from, to, label string) string {
	if from == "" {
		from = "出発地"
	}
	if to == "" {
		to = "目的地"
	}
	if label == "" {
		label = "電車/地下鉄"
	}
	return fmt.Sprintf("%s から %s は公共交通機関（%s）を推奨します。Googleマップのルート案内で路線と乗換を確認してください。", from, to, label)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
