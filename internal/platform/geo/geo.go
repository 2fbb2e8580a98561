// Package geo holds coordinate helpers used by booking intake and matching.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by DistanceKm.
const EarthRadiusKm = 6371.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether p lies within the WGS84 latitude and longitude ranges.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// DistanceKm returns the haversine great-circle distance between a and b,
// rounded to one decimal place.
func DistanceKm(a, b Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLng/2)*math.Sin(dLng/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return math.Round(EarthRadiusKm*c*10) / 10
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

// BoundingBox is an axis-aligned lat/lng rectangle.
type BoundingBox struct {
	SouthWest Point `json:"south_west"`
	NorthEast Point `json:"north_east"`
}

// DefaultServiceArea covers the island the marketplace operates on.
var DefaultServiceArea = BoundingBox{
	SouthWest: Point{Lat: 9.65, Lng: 99.93},
	NorthEast: Point{Lat: 9.82, Lng: 100.06},
}

// Contains reports whether p lies inside b, edges included.
func (b BoundingBox) Contains(p Point) bool {
	return p.Lat >= b.SouthWest.Lat && p.Lat <= b.NorthEast.Lat &&
		p.Lng >= b.SouthWest.Lng && p.Lng <= b.NorthEast.Lng
}

// Valid reports whether both corners are valid and SouthWest is strictly
// south-west of NorthEast.
func (b BoundingBox) Valid() bool {
	return b.SouthWest.Valid() && b.NorthEast.Valid() &&
		b.SouthWest.Lat < b.NorthEast.Lat && b.SouthWest.Lng < b.NorthEast.Lng
}
