package engine

import (
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/config"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/domain"
)

// slot is one unfilled position of the itinerary skeleton.
type slot struct {
	Kind            domain.ItemKind
	Nominal         string // HH:MM before travel legs shift it
	DurationMinutes int
}

// patternSlot is the declarative shape of a slot before times are resolved:
// the fallback clock time applies when neither an explicit start window nor a
// time table covers the slot. fixed pins the fallback regardless of tables.
type patternSlot struct {
	kind     domain.ItemKind
	fallback string
	duration int
	fixed    bool
}

// slotPatterns is the per-phase skeleton. first keeps the day conversational,
// second is activity-heavy, anniversary trades the cafe for a long dinner.
var slotPatterns = map[domain.Phase][]patternSlot{
	domain.PhaseFirst: {
		{kind: domain.KindLunch, fallback: "12:00", duration: 60},
		{kind: domain.KindActivity, fallback: "14:00", duration: 90},
		{kind: domain.KindCafe, fallback: "16:30", duration: 45},
		{kind: domain.KindDinner, fallback: "18:00", duration: 90},
	},
	domain.PhaseSecond: {
		{kind: domain.KindActivity, fallback: "10:00", duration: 120, fixed: true},
		{kind: domain.KindLunch, fallback: "12:00", duration: 60},
		{kind: domain.KindWalk, fallback: "14:00", duration: 60},
		{kind: domain.KindCafe, fallback: "16:30", duration: 45},
	},
	domain.PhaseAnniversary: {
		{kind: domain.KindLunch, fallback: "11:30", duration: 90},
		{kind: domain.KindActivity, fallback: "13:30", duration: 120},
		{kind: domain.KindDinner, fallback: "17:30", duration: 120},
	},
	domain.PhaseCasual: {
		{kind: domain.KindLunch, fallback: "12:00", duration: 60},
		{kind: domain.KindActivity, fallback: "14:00", duration: 90},
		{kind: domain.KindCafe, fallback: "16:30", duration: 45},
	},
}

// casualEvening replaces the casual pattern when the time context is
// evening-only: no lunch, and the day ends on dinner.
var casualEvening = []patternSlot{
	{kind: domain.KindActivity, fallback: "17:00", duration: 60},
	{kind: domain.KindCafe, fallback: "18:30", duration: 45},
	{kind: domain.KindDinner, fallback: "20:00", duration: 90},
}

// skeletonFor expands the phase pattern into concrete slots with nominal
// times. An explicit start + duration window splits proportionally (second
// slot at +30%, then +60%, +80%); otherwise the time-slot table applies.
func skeletonFor(cond domain.Conditions, cfg *config.Config) []slot {
	pattern := slotPatterns[cond.Phase]
	if pattern == nil {
		pattern = slotPatterns[domain.PhaseCasual]
	}
	if cond.Phase == domain.PhaseCasual && cond.TimeSlot == domain.SlotDinner {
		pattern = casualEvening
	}

	if cond.StartTime != "" && cond.DurationMinutes > 0 {
		return proportionalSlots(pattern, cond.StartTime, cond.DurationMinutes)
	}

	clock := tableClock(cond, cfg)
	slots := make([]slot, 0, len(pattern))
	for _, ps := range pattern {
		t := ps.fallback
		if !ps.fixed {
			t = clock(ps.kind, ps.fallback)
		}
		slots = append(slots, slot{Kind: ps.kind, Nominal: t, DurationMinutes: ps.duration})
	}
	return slots
}

var slotFractions = []float64{0, 0.3, 0.6, 0.8}

func proportionalSlots(pattern []patternSlot, start string, total int) []slot {
	base := domain.ClockToMinutes(start)
	slots := make([]slot, 0, len(pattern))
	for i, ps := range pattern {
		frac := slotFractions[len(slotFractions)-1]
		if i < len(slotFractions) {
			frac = slotFractions[i]
		}
		at := base + int(float64(total)*frac)
		slots = append(slots, slot{Kind: ps.kind, Nominal: domain.MinutesToClock(at), DurationMinutes: ps.duration})
	}
	return slots
}

// tableClock looks a slot kind up in the active time table, falling back to
// the lunch table and then the pattern's own default.
func tableClock(cond domain.Conditions, cfg *config.Config) func(domain.ItemKind, string) string {
	tt, ok := cfg.TimeTables[string(cond.TimeSlot)]
	if !ok {
		tt = cfg.TimeTables["lunch"]
	}
	base := cfg.TimeTables["lunch"]
	return func(kind domain.ItemKind, fallback string) string {
		if v := tableTime(tt, kind); v != "" {
			return v
		}
		if v := tableTime(base, kind); v != "" {
			return v
		}
		return fallback
	}
}

func tableTime(tt config.TimeTable, kind domain.ItemKind) string {
	switch kind {
	case domain.KindLunch:
		return tt.Lunch
	case domain.KindActivity, domain.KindWalk:
		return tt.Activity
	case domain.KindCafe:
		return tt.Cafe
	case domain.KindDinner:
		return tt.Dinner
	}
	return ""
}
