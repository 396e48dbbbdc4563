// Package geo provides the pure distance utility used by the location gate.
package geo

import (
	"math"

	"racehub/internal/domain"
)

const earthRadiusMeters = 6371000

// Distance returns the great-circle distance in meters between two points
// using the Haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// Within reports whether the point is inside the gate radius, along with the
// measured distance. A nil gate always passes at distance zero.
func Within(coords *domain.Coordinates, lat, lon float64) (bool, float64) {
	if coords == nil {
		return true, 0
	}
	d := Distance(coords.Lat, coords.Lon, lat, lon)
	return d <= coords.RadiusMeters, d
}
