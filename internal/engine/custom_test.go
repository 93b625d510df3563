package engine

import (
	"context"
	"testing"

	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/config"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/domain"
)

func testArea() resolvedArea {
	return resolvedArea{
		Key:     "shibuya",
		Label:   "渋谷",
		Center:  domain.LatLng{Lat: 35.6595, Lng: 139.7004},
		Station: config.Station{Name: "渋谷駅", Exit: "ハチ公口"},
	}
}

func TestResolveCustomRequestClassification(t *testing.T) {
	e := &Engine{Config: config.Default()}
	ctx := context.Background()
	area := testArea()

	cases := []struct {
		text string
		role CustomRole
	}{
		{"19時に浅草寺に行きたい", RoleInsertion},
		{"ハチ公前で集合したい", RoleMeeting},
		{"20時に新宿で解散したい", RoleFarewell},
		{"水族館", RoleInsertion},
	}
	for _, tc := range cases {
		res := e.resolveCustomRequest(ctx, domain.Conditions{CustomRequest: tc.text, TimeSlot: domain.SlotLunch}, area, false)
		if res.Role != tc.role {
			t.Errorf("%q classified as %v, want %v", tc.text, res.Role, tc.role)
		}
	}
}

func TestResolveCustomRequestTimeAndName(t *testing.T) {
	e := &Engine{Config: config.Default()}
	res := e.resolveCustomRequest(context.Background(), domain.Conditions{
		CustomRequest: "19時に浅草寺に行きたい", TimeSlot: domain.SlotLunch,
	}, testArea(), false)
	if res.Time != "19:00" {
		t.Errorf("time = %s, want 19:00", res.Time)
	}
	if res.Name != "浅草寺" {
		t.Errorf("name = %q, want 浅草寺", res.Name)
	}
	if res.Resolved {
		t.Error("resolved without any store or provider")
	}
	if res.Venue.Coord == nil {
		t.Error("unresolved request must still carry the area center")
	}
}

func TestParsePreferredTime(t *testing.T) {
	cfg := config.Default()
	clock := tableClock(domain.Conditions{TimeSlot: domain.SlotLunch}, cfg)
	cases := map[string]string{
		"18:45に集合":  "18:45",
		"19時でお願い":   "19:00",
		"朝イチで行きたい":  "10:00",
		"ランチの時間に":   "12:00", // lunch table
		"夜に行きたい":    "18:00", // dinner entry of the lunch table
		"特に希望なし":    "15:00",
		"99時スタートした": "23:00", // clamped
	}
	for in, want := range cases {
		if got := parsePreferredTime(in, clock, "15:00"); got != want {
			t.Errorf("parsePreferredTime(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestStrippedPlaceName(t *testing.T) {
	cases := map[string]string{
		"19時に浅草寺に行きたい":      "浅草寺",
		"11:30にスクランブル交差点で集合": "スクランブル交差点",
		"チームラボへ行きたい":        "チームラボ",
		"夜は新宿で解散":           "夜は新宿",
		"ハチ公前で集合したい":        "ハチ公前",
		"20時に新宿で解散したい":      "新宿",
		"水族館でお願いします":        "水族館",
	}
	for in, want := range cases {
		if got := strippedPlaceName(in); got != want {
			t.Errorf("strippedPlaceName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSpliceCustomItem(t *testing.T) {
	items := []domain.ScheduleItem{
		{Time: "12:00", Kind: domain.KindLunch},
		{Time: "14:00", Kind: domain.KindActivity},
		{Time: "16:30", Kind: domain.KindCafe},
	}
	custom := domain.ScheduleItem{Kind: domain.KindCustom, Time: "14:00", PreferredStartMinutes: 14 * 60, IsCustom: true}
	got := spliceCustomItem(items, custom)
	if len(got) != 4 {
		t.Fatalf("len = %d", len(got))
	}
	// A tie inserts before the existing item at that time.
	if !got[1].IsCustom || got[2].Kind != domain.KindActivity {
		t.Errorf("tie placement wrong: %v then %v", got[1].Kind, got[2].Kind)
	}

	late := domain.ScheduleItem{Kind: domain.KindCustom, PreferredStartMinutes: 20 * 60, IsCustom: true}
	got = spliceCustomItem(items, late)
	if !got[len(got)-1].IsCustom {
		t.Error("late request should append at the end")
	}
}
