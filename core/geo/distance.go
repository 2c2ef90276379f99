// Package geo computes great-circle distances between optional coordinates.
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusMeters is the mean Earth radius used by DistanceMeters.
const EarthRadiusMeters = 6371000.0

// PointOf builds an orb.Point from optional latitude and longitude. It returns
// nil when either coordinate is missing.
func PointOf(lat, lng *float64) *orb.Point {
	if lat == nil || lng == nil {
		return nil
	}
	p := orb.Point{*lng, *lat}
	return &p
}

// Haversine returns the great-circle distance in meters between a and b.
func Haversine(a, b orb.Point) float64 {
	lat1 := deg2rad(a.Lat())
	lat2 := deg2rad(b.Lat())
	dLat := lat2 - lat1
	dLng := deg2rad(b.Lon() - a.Lon())

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// DistanceMeters returns the distance between a and b. The boolean is false
// when either point is unknown; such distances must never be used to exclude
// a spot and rank after every known distance.
func DistanceMeters(a, b *orb.Point) (float64, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	return Haversine(*a, *b), true
}

// Bounds returns the smallest bound containing every point, and false when
// points is empty.
func Bounds(points []orb.Point) (orb.Bound, bool) {
	if len(points) == 0 {
		return orb.Bound{}, false
	}
	b := points[0].Bound()
	for _, p := range points[1:] {
		b = b.Extend(p)
	}
	return b, true
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
