package domain

import "math"

// DefaultSimplifyTolerance is the tolerance, in degrees, used for viewer output.
const DefaultSimplifyTolerance = 0.01

// Simplify returns a new document whose segments were reduced with
// Douglas-Peucker at the given tolerance in degrees. The receiver is not
// modified.
//
// Simplification is lossy for the derived summary: bounds may shrink and
// altitude extremes may change, because dropped points no longer contribute.
// Callers that need exact bounds or altitudes must read them from the
// original document.
func (d *TrackDocument) Simplify(tolerance float64) *TrackDocument {
	out := &TrackDocument{}
	for _, seg := range d.Segments() {
		out.AddSegment(SimplifyPoints(seg, tolerance))
	}
	return out
}

// SimplifyPoints reduces a polyline with Douglas-Peucker using planar
// perpendicular distance on (lng, lat). The first and last points are always
// kept. Polylines with two or fewer points, and any tolerance <= 0, yield an
// unchanged copy.
func SimplifyPoints(points []Point, tolerance float64) []Point {
	n := len(points)
	if n <= 2 || !(tolerance > 0) {
		out := make([]Point, n)
		copy(out, points)
		return out
	}

	keep := make([]bool, n)
	keep[0], keep[n-1] = true, true

	type span struct{ first, last int }
	stack := []span{{0, n - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if s.last-s.first < 2 {
			continue
		}

		maxDist, index := 0.0, -1
		for i := s.first + 1; i < s.last; i++ {
			dist := perpendicularDistance(points[i], points[s.first], points[s.last])
			if dist > maxDist {
				maxDist, index = dist, i
			}
		}
		if index < 0 || maxDist <= tolerance {
			continue
		}
		keep[index] = true
		stack = append(stack, span{s.first, index}, span{index, s.last})
	}

	out := make([]Point, 0, n)
	for i, k := range keep {
		if k {
			out = append(out, points[i])
		}
	}
	return out
}

// perpendicularDistance returns the distance from p to the line through a and
// b, or to a itself when a and b coincide.
func perpendicularDistance(p, a, b Point) float64 {
	dx := b.Lng - a.Lng
	dy := b.Lat - a.Lat
	if dx == 0 && dy == 0 {
		return math.Hypot(p.Lng-a.Lng, p.Lat-a.Lat)
	}
	num := math.Abs(dy*p.Lng - dx*p.Lat + b.Lng*a.Lat - b.Lat*a.Lng)
	return num / math.Hypot(dx, dy)
}
