package usecases

import (
	"github.com/samirrijal/tripsummary/internal/core/domain"
	"github.com/samirrijal/tripsummary/internal/pkg/geospatial"
)

const (
	metersPerMile = 1609.344
	feetPerMeter  = 3.28083989501
)

// BuildAltitudeProfile computes cumulative distance against elevation for
// every point of doc that carries an elevation. Distance accumulates within
// segments only; the gap between two segments is not travelled.
func BuildAltitudeProfile(postID int64, doc *domain.TrackDocument, units domain.UnitSystem) *domain.AltitudeProfile {
	p := &domain.AltitudeProfile{
		PostID:     postID,
		UnitSystem: units,
		Points:     []domain.ProfilePoint{},
	}

	distance, height := 1.0/1000, 1.0
	p.DistanceUnit, p.HeightUnit = "km", "m"
	if units == domain.UnitSystemImperial {
		distance, height = 1/metersPerMile, feetPerMeter
		p.DistanceUnit, p.HeightUnit = "mi", "ft"
	}

	var travelled float64
	for _, seg := range doc.Segments() {
		for i, pt := range seg {
			if i > 0 {
				travelled += geospatial.Distance(seg[i-1], pt)
			}
			ele, ok := pt.Elevation()
			if !ok {
				continue
			}
			p.Points = append(p.Points, domain.ProfilePoint{
				Distance: travelled * distance,
				Altitude: ele * height,
				Lat:      pt.Lat,
				Lng:      pt.Lng,
			})
		}
	}
	return p
}
