package http

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/tripsummary/internal/core/domain"
)

// trackFeatureCollection renders a track view as GeoJSON: one MultiLineString
// feature for the route plus start and end points.
func trackFeatureCollection(view *domain.TrackView) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	route := make(orb.MultiLineString, 0, len(view.Route))
	for _, seg := range view.Route {
		line := make(orb.LineString, len(seg))
		for i, p := range seg {
			line[i] = orb.Point{p.Lng, p.Lat}
		}
		route = append(route, line)
	}

	f := geojson.NewFeature(route)
	f.Properties["kind"] = "route"
	f.Properties["post_id"] = view.PostID
	f.Properties["points"] = view.Points
	f.Properties["partial"] = view.Partial
	if view.MinAlt != nil {
		f.Properties["min_alt"] = *view.MinAlt
	}
	if view.MaxAlt != nil {
		f.Properties["max_alt"] = *view.MaxAlt
	}
	if view.Points > 0 {
		sw, ne := view.Bounds.SouthWest, view.Bounds.NorthEast
		f.BBox = geojson.BBox{sw.Lng, sw.Lat, ne.Lng, ne.Lat}
		fc.BBox = f.BBox
	}
	fc.Append(f)

	if view.Points > 0 {
		ends := []struct {
			kind string
			p    domain.Point
		}{{"start", view.Start}, {"end", view.End}}
		for _, e := range ends {
			p := e.p
			pf := geojson.NewFeature(orb.Point{p.Lng, p.Lat})
			pf.Properties["kind"] = e.kind
			if ele, ok := p.Elevation(); ok {
				pf.Properties["ele"] = ele
			}
			fc.Append(pf)
		}
	}
	return fc
}
