package geospatial_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/tripsummary/internal/core/domain"
	"github.com/samirrijal/tripsummary/internal/pkg/geospatial"
)

func TestForward_KnownValues(t *testing.T) {
	p, err := geospatial.Forward(0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0, p.X, 1e-9)
	assert.InDelta(t, 0, p.Y, 1e-9)

	p, err = geospatial.Forward(0, 180)
	require.NoError(t, err)
	assert.InDelta(t, geospatial.MaxExtent, p.X, 1e-6)

	p, err = geospatial.Forward(geospatial.MaxLatitude, 0)
	require.NoError(t, err)
	assert.InDelta(t, geospatial.MaxExtent, p.Y, 1e-3)

	p, err = geospatial.Forward(44.4268, 26.1025)
	require.NoError(t, err)
	assert.InDelta(t, 2905717.008, p.X, 0.01)
	assert.InDelta(t, 5531729.787, p.Y, 0.01)
}

func TestRoundTrip(t *testing.T) {
	for lat := -85.0; lat <= 85.0; lat += 2.5 {
		for lng := -180.0; lng <= 180.0; lng += 7.5 {
			p, err := geospatial.Forward(lat, lng)
			require.NoError(t, err)
			gotLat, gotLng, err := geospatial.Inverse(p)
			require.NoError(t, err)
			assert.InDelta(t, lat, gotLat, 1e-6)
			assert.InDelta(t, lng, gotLng, 1e-6)
		}
	}
}

func TestForward_DomainErrors(t *testing.T) {
	cases := []struct {
		name     string
		lat, lng float64
	}{
		{"north pole", 90, 0},
		{"south pole", -90, 0},
		{"beyond square", 85.06, 10},
		{"lng too large", 10, 180.5},
		{"nan", math.NaN(), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := geospatial.Forward(tc.lat, tc.lng)
			var de *domain.DomainError
			assert.ErrorAs(t, err, &de)
		})
	}
}

func TestInverse_DomainErrors(t *testing.T) {
	_, _, err := geospatial.Inverse(geospatial.ProjectedPoint{X: 2 * geospatial.MaxExtent})
	var de *domain.DomainError
	assert.ErrorAs(t, err, &de)

	_, _, err = geospatial.Inverse(geospatial.ProjectedPoint{Y: math.Inf(1)})
	assert.ErrorAs(t, err, &de)
}

func TestBoundsRoundTrip(t *testing.T) {
	b := domain.Bounds{
		SouthWest: domain.NewPoint(45.6512, 24.0191),
		NorthEast: domain.NewPoint(45.8843, 24.4422),
	}
	sw, ne, err := geospatial.ProjectBounds(b)
	require.NoError(t, err)
	assert.Less(t, sw.X, ne.X)
	assert.Less(t, sw.Y, ne.Y)

	got, err := geospatial.UnprojectBounds(sw, ne)
	require.NoError(t, err)
	assert.InDelta(t, b.SouthWest.Lat, got.SouthWest.Lat, 1e-6)
	assert.InDelta(t, b.SouthWest.Lng, got.SouthWest.Lng, 1e-6)
	assert.InDelta(t, b.NorthEast.Lat, got.NorthEast.Lat, 1e-6)
	assert.InDelta(t, b.NorthEast.Lng, got.NorthEast.Lng, 1e-6)
}

func TestHaversine(t *testing.T) {
	// one degree of latitude
	d := geospatial.Haversine(0, 0, 1, 0)
	assert.InDelta(t, 111195, d, 1)

	assert.Zero(t, geospatial.Haversine(43.26, -2.93, 43.26, -2.93))
}

func TestPathLength(t *testing.T) {
	pts := []domain.Point{domain.NewPoint(0, 0), domain.NewPoint(1, 0), domain.NewPoint(2, 0)}
	assert.InDelta(t, 2*111195, geospatial.PathLength(pts), 2)
	assert.Zero(t, geospatial.PathLength(pts[:1]))
}
