package geospatial

import (
	"math"

	"github.com/samirrijal/tripsummary/internal/core/domain"
)

// SRID of the spherical Mercator coordinates produced by Forward.
const SRID = 3857

// EarthRadius is the sphere radius of EPSG:3857 in meters.
const EarthRadius = 6378137.0

// MaxLatitude is the latitude at which the projected square ends.
const MaxLatitude = 85.05112877980659

// MaxExtent is the largest absolute x or y value Forward can return.
const MaxExtent = EarthRadius * math.Pi

// ProjectedPoint is a spherical Mercator coordinate in meters.
type ProjectedPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Forward projects a WGS 84 coordinate to spherical Mercator. Latitudes beyond
// MaxLatitude, including the poles, and longitudes outside [-180, 180] yield a
// *domain.DomainError.
func Forward(lat, lng float64) (ProjectedPoint, error) {
	if math.IsNaN(lat) || math.Abs(lat) > MaxLatitude {
		return ProjectedPoint{}, &domain.DomainError{Op: "project latitude", Value: lat, Limit: MaxLatitude}
	}
	if math.IsNaN(lng) || math.Abs(lng) > 180 {
		return ProjectedPoint{}, &domain.DomainError{Op: "project longitude", Value: lng, Limit: 180}
	}

	x := EarthRadius * toRad(lng)
	y := EarthRadius * math.Log(math.Tan(math.Pi/4+toRad(lat)/2))
	return ProjectedPoint{X: x, Y: y}, nil
}

// Inverse converts spherical Mercator meters back to latitude and longitude.
func Inverse(p ProjectedPoint) (lat, lng float64, err error) {
	const limit = MaxExtent * (1 + 1e-9)
	if math.IsNaN(p.X) || math.Abs(p.X) > limit {
		return 0, 0, &domain.DomainError{Op: "unproject x", Value: p.X, Limit: MaxExtent}
	}
	if math.IsNaN(p.Y) || math.Abs(p.Y) > limit {
		return 0, 0, &domain.DomainError{Op: "unproject y", Value: p.Y, Limit: MaxExtent}
	}

	lng = toDeg(p.X / EarthRadius)
	lat = toDeg(2*math.Atan(math.Exp(p.Y/EarthRadius)) - math.Pi/2)
	return lat, lng, nil
}

// ProjectPoint projects a domain point, dropping its elevation.
func ProjectPoint(p domain.Point) (ProjectedPoint, error) {
	return Forward(p.Lat, p.Lng)
}

// ProjectBounds projects both corners of b.
func ProjectBounds(b domain.Bounds) (sw, ne ProjectedPoint, err error) {
	if sw, err = ProjectPoint(b.SouthWest); err != nil {
		return sw, ne, err
	}
	ne, err = ProjectPoint(b.NorthEast)
	return sw, ne, err
}

// UnprojectBounds rebuilds lat/lng bounds from projected corners.
func UnprojectBounds(sw, ne ProjectedPoint) (domain.Bounds, error) {
	swLat, swLng, err := Inverse(sw)
	if err != nil {
		return domain.Bounds{}, err
	}
	neLat, neLng, err := Inverse(ne)
	if err != nil {
		return domain.Bounds{}, err
	}
	return domain.Bounds{
		SouthWest: domain.NewPoint(swLat, swLng),
		NorthEast: domain.NewPoint(neLat, neLng),
	}, nil
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
