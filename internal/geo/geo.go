// Package geo holds the pure geometry behind the planner: great-circle
// distances, travel-time estimates, and Google Maps deep links.
package geo

import (
	"fmt"
	"math"
	"net/url"

	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/domain"
)

const (
	earthRadiusMeters = 6371000
	walkSpeedMPerMin  = 5000.0 / 60 // ~83.3 m/min
	carSpeedMPerMin   = 30000.0 / 60
)

// Distance returns the haversine distance between two points in meters.
func Distance(a, b domain.LatLng) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

// WalkingMinutes estimates walking time for a distance, never less than 1.
func WalkingMinutes(distanceMeters float64) int {
	min := int(math.Round(distanceMeters / walkSpeedMPerMin))
	if min < 1 {
		return 1
	}
	return min
}

// DirectionsLink builds a Google Maps transit directions URL between two
// coordinates. Either side missing yields "".
func DirectionsLink(origin, dest *domain.LatLng) string {
	if origin == nil || dest == nil {
		return ""
	}
	o := fmt.Sprintf("%g,%g", origin.Lat, origin.Lng)
	d := fmt.Sprintf("%g,%g", dest.Lat, dest.Lng)
	return "https://www.google.com/maps/dir/?api=1&origin=" + url.QueryEscape(o) +
		"&destination=" + url.QueryEscape(d) + "&travelmode=transit"
}

// Leg is a travel recommendation between two consecutive stops.
type Leg struct {
	Mode     domain.TransportMode
	Label    string
	Duration string // display range, e.g. "8-12min"
	Minutes  int
	Reason   string
}

// ChooseMode picks a transport mode for a distance using the walk/train
// distance bands. When allowed is non-empty, only those modes are considered:
// car and taxi get a 30 km/h estimate with a boarding buffer, and walk-only
// falls back to the walking estimate regardless of distance.
func ChooseMode(distanceMeters float64, allowed []domain.TransportMode) Leg {
	if len(allowed) > 0 && !contains(allowed, domain.ModeTrain) {
		switch {
		case contains(allowed, domain.ModeCar):
			min := int(math.Round(distanceMeters/carSpeedMPerMin)) + 5
			return Leg{Mode: domain.ModeCar, Label: "車", Duration: fmt.Sprintf("%dmin", min), Minutes: min, Reason: "車での移動を前提にしたルートです"}
		case contains(allowed, domain.ModeTaxi):
			min := int(math.Round(distanceMeters/carSpeedMPerMin)) + 5 + 3
			return Leg{Mode: domain.ModeTaxi, Label: "タクシー", Duration: fmt.Sprintf("%dmin", min), Minutes: min, Reason: "タクシーでの移動を前提にしたルートです"}
		default:
			min := WalkingMinutes(distanceMeters)
			return Leg{Mode: domain.ModeWalk, Label: "徒歩", Duration: fmt.Sprintf("%dmin", min), Minutes: min, Reason: "徒歩のみの移動条件のため徒歩で移動します"}
		}
	}

	switch {
	case distanceMeters <= 1800:
		min := WalkingMinutes(distanceMeters)
		return Leg{Mode: domain.ModeWalk, Label: "徒歩", Duration: fmt.Sprintf("%dmin", min), Minutes: min, Reason: "近距離なので徒歩移動が最適です"}
	case distanceMeters <= 4500:
		return Leg{Mode: domain.ModeTrain, Label: "電車/地下鉄", Duration: "8-12min", Minutes: 10, Reason: "中距離なので電車/地下鉄移動が便利です"}
	case distanceMeters <= 7500:
		return Leg{Mode: domain.ModeTrain, Label: "電車/地下鉄", Duration: "12-18min", Minutes: 15, Reason: "少し距離があるため電車移動を推奨します"}
	case distanceMeters <= 12000:
		return Leg{Mode: domain.ModeTrain, Label: "電車/地下鉄", Duration: "18-28min", Minutes: 22, Reason: "長距離のため電車移動が現実的です"}
	default:
		return Leg{Mode: domain.ModeTrain, Label: "電車/地下鉄", Duration: "25-40min", Minutes: 30, Reason: "長距離のため電車移動が現実的です"}
	}
}

// ApplyLegCap clamps a leg to the movement preference's per-leg maximum and
// annotates the rationale with the preference label.
func ApplyLegCap(leg Leg, maxMinutes int, prefLabel string) Leg {
	if maxMinutes > 0 && leg.Minutes > maxMinutes {
		leg.Minutes = maxMinutes
		leg.Duration = fmt.Sprintf("%dmin以内", maxMinutes)
		leg.Reason = fmt.Sprintf("%s（移動方針: %sに合わせて上限%d分）", leg.Reason, prefLabel, maxMinutes)
		return leg
	}
	if prefLabel != "" {
		leg.Reason = fmt.Sprintf("%s（移動方針: %s）", leg.Reason, prefLabel)
	}
	return leg
}

// Centroid averages the given coordinates; ok is false for an empty input.
func Centroid(points []domain.LatLng) (domain.LatLng, bool) {
	if len(points) == 0 {
		return domain.LatLng{}, false
	}
	var lat, lng float64
	for _, p := range points {
		lat += p.Lat
		lng += p.Lng
	}
	n := float64(len(points))
	return domain.LatLng{Lat: lat / n, Lng: lng / n}, true
}

func contains(modes []domain.TransportMode, m domain.TransportMode) bool {
	for _, v := range modes {
		if v == m {
			return true
		}
	}
	return false
}
