package domain

import "math"

// Point is a single WGS 84 track fix. Ele is nil when the source carried no
// usable elevation.
type Point struct {
	Lat float64  `json:"lat"`
	Lng float64  `json:"lng"`
	Ele *float64 `json:"ele,omitempty"`
}

// NewPoint returns a point without elevation.
func NewPoint(lat, lng float64) Point {
	return Point{Lat: lat, Lng: lng}
}

// NewPointWithElevation returns a point carrying an elevation in meters.
func NewPointWithElevation(lat, lng, ele float64) Point {
	return Point{Lat: lat, Lng: lng, Ele: &ele}
}

// Elevation returns the elevation and whether the point has one.
func (p Point) Elevation() (float64, bool) {
	if p.Ele == nil {
		return 0, false
	}
	return *p.Ele, true
}

// Valid reports whether the coordinates are finite and inside the WGS 84 range.
func (p Point) Valid() bool {
	return ValidLatitude(p.Lat) && ValidLongitude(p.Lng)
}

// ValidLatitude reports whether lat is a finite value in [-90, 90].
func ValidLatitude(lat float64) bool {
	return !math.IsNaN(lat) && lat >= -90 && lat <= 90
}

// ValidLongitude reports whether lng is a finite value in [-180, 180].
func ValidLongitude(lng float64) bool {
	return !math.IsNaN(lng) && lng >= -180 && lng <= 180
}

// Bounds is the minimal lat/lng rectangle around a set of points.
type Bounds struct {
	SouthWest Point `json:"southWest"`
	NorthEast Point `json:"northEast"`
}

// Contains reports whether p lies inside b, edges included.
func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.SouthWest.Lat && p.Lat <= b.NorthEast.Lat &&
		p.Lng >= b.SouthWest.Lng && p.Lng <= b.NorthEast.Lng
}

// Extend grows b so that it contains p.
func (b Bounds) Extend(p Point) Bounds {
	b.SouthWest.Lat = math.Min(b.SouthWest.Lat, p.Lat)
	b.SouthWest.Lng = math.Min(b.SouthWest.Lng, p.Lng)
	b.NorthEast.Lat = math.Max(b.NorthEast.Lat, p.Lat)
	b.NorthEast.Lng = math.Max(b.NorthEast.Lng, p.Lng)
	return b
}

// Valid reports whether both corners are valid and ordered.
func (b Bounds) Valid() bool {
	return b.SouthWest.Valid() && b.NorthEast.Valid() &&
		b.SouthWest.Lat <= b.NorthEast.Lat && b.SouthWest.Lng <= b.NorthEast.Lng
}
