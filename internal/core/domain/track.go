package domain

import (
	"math"
	"sync"
)

// Segment is an ordered run of points. Order defines the path.
type Segment []Point

// TrackDocument is a parsed route made of one or more segments.
//
// Bounds, altitude extremes and start/end points are derived lazily on first
// access and invalidated by any mutation. A document with no points is valid
// and reports IsEmpty.
type TrackDocument struct {
	mu       sync.Mutex
	segments []Segment
	sum      *summary
}

type summary struct {
	points int
	bounds Bounds
	minAlt float64
	maxAlt float64
	hasAlt bool
	start  Point
	end    Point
}

// NewTrackDocument builds a document from segments. Empty segments are skipped.
func NewTrackDocument(segments ...Segment) *TrackDocument {
	d := &TrackDocument{}
	for _, s := range segments {
		d.AddSegment(s)
	}
	return d
}

// AddSegment appends a segment. Empty segments are ignored.
func (d *TrackDocument) AddSegment(s Segment) {
	if len(s) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.segments = append(d.segments, s)
	d.sum = nil
}

// Segments returns the document's segments. Callers must not modify them.
func (d *TrackDocument) Segments() []Segment {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.segments
}

// SegmentCount returns the number of non-empty segments.
func (d *TrackDocument) SegmentCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.segments)
}

// PointCount returns the total number of points across all segments.
func (d *TrackDocument) PointCount() int {
	return d.derived().points
}

// IsEmpty reports whether the document holds no points.
func (d *TrackDocument) IsEmpty() bool {
	return d.PointCount() == 0
}

// Bounds returns the bounding rectangle. ok is false for an empty document.
func (d *TrackDocument) Bounds() (b Bounds, ok bool) {
	s := d.derived()
	return s.bounds, s.points > 0
}

// MinAlt returns the lowest elevation. ok is false when no point has one.
func (d *TrackDocument) MinAlt() (float64, bool) {
	s := d.derived()
	return s.minAlt, s.hasAlt
}

// MaxAlt returns the highest elevation. ok is false when no point has one.
func (d *TrackDocument) MaxAlt() (float64, bool) {
	s := d.derived()
	return s.maxAlt, s.hasAlt
}

// Start returns the first point of the first segment.
func (d *TrackDocument) Start() (Point, bool) {
	s := d.derived()
	return s.start, s.points > 0
}

// End returns the last point of the last segment.
func (d *TrackDocument) End() (Point, bool) {
	s := d.derived()
	return s.end, s.points > 0
}

func (d *TrackDocument) derived() *summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sum == nil {
		d.sum = summarize(d.segments)
	}
	return d.sum
}

func summarize(segments []Segment) *summary {
	s := &summary{
		minAlt: math.Inf(1),
		maxAlt: math.Inf(-1),
	}
	for _, seg := range segments {
		for _, p := range seg {
			if s.points == 0 {
				s.bounds = Bounds{SouthWest: p, NorthEast: p}
				s.start = p
			} else {
				s.bounds = s.bounds.Extend(p)
			}
			s.end = p
			s.points++
			if ele, ok := p.Elevation(); ok {
				s.hasAlt = true
				s.minAlt = math.Min(s.minAlt, ele)
				s.maxAlt = math.Max(s.maxAlt, ele)
			}
		}
	}
	// corners carry no elevation
	s.bounds.SouthWest.Ele = nil
	s.bounds.NorthEast.Ele = nil
	if !s.hasAlt {
		s.minAlt, s.maxAlt = 0, 0
	}
	return s
}
