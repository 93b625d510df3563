package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/config"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/domain"
)

func fixedEngine() *Engine {
	return &Engine{
		Config: config.Default(),
		// A Saturday, for weekday-keyed opening hours.
		Now: func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local) },
	}
}

func coord(lat, lng float64) *domain.LatLng {
	return &domain.LatLng{Lat: lat, Lng: lng}
}

func TestFinalizeEmptySchedule(t *testing.T) {
	e := fixedEngine()
	got := e.finalize(domain.Conditions{}, testArea(), nil, nil, nil)
	if len(got) != 1 || got[0].Kind != domain.KindFarewell {
		t.Fatalf("empty input should yield a lone farewell, got %+v", got)
	}
	if got[0].Coord == nil {
		t.Error("farewell needs coordinates")
	}
}

func TestFinalizeBookends(t *testing.T) {
	e := fixedEngine()
	items := []domain.ScheduleItem{
		{Time: "12:00", Kind: domain.KindLunch, PlaceName: "a", Coord: coord(35.6595, 139.7004), DurationMinutes: 60},
		{Time: "14:00", Kind: domain.KindActivity, PlaceName: "b", Coord: coord(35.6600, 139.7010), DurationMinutes: 90},
	}
	got := e.finalize(domain.Conditions{}, testArea(), items, nil, nil)

	meeting := got[0]
	if meeting.Kind != domain.KindMeeting || meeting.Time != "11:45" {
		t.Errorf("meeting = %s at %s, want 15 minutes before 12:00", meeting.Kind, meeting.Time)
	}
	if meeting.PlaceName != "渋谷駅 ハチ公口" {
		t.Errorf("meeting place = %q", meeting.PlaceName)
	}
	farewell := got[len(got)-1]
	if farewell.Kind != domain.KindFarewell {
		t.Fatalf("last item = %s", farewell.Kind)
	}
	if farewell.PlaceName != "渋谷駅付近" {
		t.Errorf("farewell place = %q", farewell.PlaceName)
	}
	if farewell.Time != got[len(got)-2].EndTime {
		t.Errorf("farewell at %s, want the last visit's end %s", farewell.Time, got[len(got)-2].EndTime)
	}
}

func TestFinalizeTravelLegs(t *testing.T) {
	e := fixedEngine()
	// Shibuya to Tokyo Station is ~6.4km: a train leg in the 12-18min band.
	items := []domain.ScheduleItem{
		{Time: "12:00", Kind: domain.KindLunch, PlaceName: "a", Coord: coord(35.6595, 139.7004), DurationMinutes: 60},
		{Time: "14:00", Kind: domain.KindActivity, PlaceName: "b", Coord: coord(35.6812, 139.7671), DurationMinutes: 60},
	}
	got := e.finalize(domain.Conditions{}, testArea(), items, nil, nil)

	var travel *domain.ScheduleItem
	for i := range got {
		if got[i].Kind == domain.KindTravel {
			travel = &got[i]
		}
	}
	if travel == nil {
		t.Fatal("no travel leg emitted")
	}
	if travel.TransportMode != domain.ModeTrain || travel.TravelMinutes != 15 {
		t.Errorf("leg = %s %dmin, want train 15min", travel.TransportMode, travel.TravelMinutes)
	}
	if travel.DistanceMeters < 6300 || travel.DistanceMeters > 6600 {
		t.Errorf("distance = %dm, want ~6.4km", travel.DistanceMeters)
	}
	if !strings.Contains(travel.DirectionsURL, "travelmode=transit") {
		t.Errorf("directions url = %q", travel.DirectionsURL)
	}
	if travel.TransitNote == "" {
		t.Error("train legs carry a transit note")
	}
}

func TestFinalizeTravelTargetsPreferredStart(t *testing.T) {
	e := fixedEngine()
	items := []domain.ScheduleItem{
		{Time: "12:00", Kind: domain.KindLunch, PlaceName: "a", Coord: coord(35.6595, 139.7004), DurationMinutes: 60},
		{Time: "19:00", Kind: domain.KindCustom, PlaceName: "b", Coord: coord(35.6812, 139.7671),
			DurationMinutes: 60, IsCustom: true, PreferredStartMinutes: 19 * 60},
	}
	got := e.finalize(domain.Conditions{}, testArea(), items, nil, nil)

	for i := range got {
		if got[i].Kind != domain.KindTravel {
			continue
		}
		// Travel starts late enough to arrive right at the preferred time,
		// not immediately after the previous stop.
		if want := domain.MinutesToClock(19*60 - got[i].TravelMinutes); got[i].Time != want {
			t.Errorf("travel starts %s, want %s", got[i].Time, want)
		}
		if got[i+1].Time != "19:00" {
			t.Errorf("custom stop at %s, want 19:00", got[i+1].Time)
		}
	}
}

func TestFinalizeVisitStartsRoundUp(t *testing.T) {
	e := fixedEngine()
	items := []domain.ScheduleItem{
		{Time: "12:05", Kind: domain.KindLunch, PlaceName: "a", Coord: coord(35.6595, 139.7004), DurationMinutes: 60},
		{Time: "13:30", Kind: domain.KindCafe, PlaceName: "b", Coord: coord(35.6598, 139.7008), DurationMinutes: 45},
	}
	got := e.finalize(domain.Conditions{}, testArea(), items, nil, nil)
	for _, it := range got {
		if !it.Kind.IsVisit() {
			continue
		}
		if domain.ClockToMinutes(it.Time)%10 != 0 {
			t.Errorf("%s starts at %s, want a 10-minute boundary", it.Kind, it.Time)
		}
	}
}

func TestFinalizeFarBookendShift(t *testing.T) {
	e := fixedEngine()
	// The closing custom stop sits ~10km from the Shibuya center, so the
	// farewell moves to the stop itself at its computed end time.
	items := []domain.ScheduleItem{
		{Time: "12:00", Kind: domain.KindLunch, PlaceName: "a", Coord: coord(35.6595, 139.7004), DurationMinutes: 60},
		{Time: "19:00", Kind: domain.KindCustom, PlaceName: "浅草寺", Coord: coord(35.7148, 139.7967),
			DurationMinutes: 60, IsCustom: true, PreferredStartMinutes: 19 * 60},
	}
	got := e.finalize(domain.Conditions{}, testArea(), items, nil, nil)
	farewell := got[len(got)-1]
	if farewell.PlaceName != "浅草寺" {
		t.Errorf("farewell = %q, want the far custom stop", farewell.PlaceName)
	}
	if farewell.Time != "20:00" {
		t.Errorf("farewell at %s, want 20:00", farewell.Time)
	}
}

func TestFinalizeMissingDataFallbacks(t *testing.T) {
	e := fixedEngine()
	items := []domain.ScheduleItem{
		{Time: "12:00", Kind: domain.KindLunch, PlaceName: "a"},
		{Time: "14:00", Kind: domain.KindActivity, PlaceName: "b", Coord: coord(35.6600, 139.7010)},
	}
	got := e.finalize(domain.Conditions{}, testArea(), items, nil, nil)
	for _, it := range got {
		if it.Kind.IsVisit() {
			if it.Coord == nil {
				t.Errorf("%s has no coordinates", it.PlaceName)
			}
			if it.DurationMinutes != 60 {
				t.Errorf("%s duration = %d, want the 60-minute default", it.PlaceName, it.DurationMinutes)
			}
		}
	}
}

func TestFinalizeHoursRevalidation(t *testing.T) {
	e := fixedEngine() // Saturday
	hours := []string{"土曜日: 11:00～15:00"}

	// Nominally inside the window, but travel pushes the visit past close.
	items := []domain.ScheduleItem{
		{Time: "13:00", Kind: domain.KindLunch, PlaceName: "a", Coord: coord(35.6595, 139.7004), DurationMinutes: 120},
		{Time: "14:30", Kind: domain.KindCafe, PlaceName: "b", Coord: coord(35.6812, 139.7671),
			DurationMinutes: 45, OpeningHours: hours},
	}
	got := e.finalize(domain.Conditions{}, testArea(), items, nil, nil)
	var cafe *domain.ScheduleItem
	for i := range got {
		if got[i].Kind == domain.KindCafe {
			cafe = &got[i]
		}
	}
	if cafe == nil {
		t.Fatal("cafe missing")
	}
	if domain.ClockToMinutes(cafe.Time) <= 15*60 {
		t.Fatalf("test setup: cafe at %s should be after close", cafe.Time)
	}
	if cafe.ClosedWarning == "" {
		t.Error("expected a closure warning at the shifted time")
	}

	// The same venue visited within the window keeps no warning.
	items = []domain.ScheduleItem{
		{Time: "12:00", Kind: domain.KindCafe, PlaceName: "b", Coord: coord(35.6595, 139.7004),
			DurationMinutes: 45, OpeningHours: hours},
	}
	got = e.finalize(domain.Conditions{}, testArea(), items, nil, nil)
	for _, it := range got {
		if it.Kind == domain.KindCafe && it.ClosedWarning != "" {
			t.Errorf("unexpected warning at %s: %s", it.Time, it.ClosedWarning)
		}
	}
}
