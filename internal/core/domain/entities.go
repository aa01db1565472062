package domain

import (
	"strconv"
	"time"
)

// Track is the persisted record of an uploaded route. Bounds and altitude
// extremes are taken from the full, unsimplified document at upload time.
type Track struct {
	PostID     int64     `json:"post_id"`
	File       string    `json:"file"`
	Bounds     Bounds    `json:"bounds"`
	MinAlt     *float64  `json:"min_alt,omitempty"`
	MaxAlt     *float64  `json:"max_alt,omitempty"`
	ModifiedBy int64     `json:"modified_by"`
	ModifiedAt time.Time `json:"modified_at"`
}

// NewTrack builds a track record from a parsed document.
func NewTrack(postID int64, file string, doc *TrackDocument, modifiedBy int64, at time.Time) *Track {
	t := &Track{
		PostID:     postID,
		File:       file,
		ModifiedBy: modifiedBy,
		ModifiedAt: at,
	}
	t.Bounds, _ = doc.Bounds()
	if v, ok := doc.MinAlt(); ok {
		t.MinAlt = &v
	}
	if v, ok := doc.MaxAlt(); ok {
		t.MaxAlt = &v
	}
	return t
}

// Revision identifies the stored file behind the record. A cache entry built
// from another revision is stale. ModifiedAt is taken at microsecond precision,
// which is what the database keeps.
func (t *Track) Revision() string {
	return t.File + "@" + strconv.FormatInt(t.ModifiedAt.UnixMicro(), 10)
}

// TrackStatus tells whether a post has a track attached.
type TrackStatus struct {
	PostID   int64 `json:"post_id"`
	HasTrack bool  `json:"has_track"`
}

// TrackView is what viewers receive: the simplified route plus the summary of
// the full document.
type TrackView struct {
	PostID    int64     `json:"post_id"`
	Route     []Segment `json:"route"`
	Bounds    Bounds    `json:"bounds"`
	Start     Point     `json:"start"`
	End       Point     `json:"end"`
	MinAlt    *float64  `json:"min_alt,omitempty"`
	MaxAlt    *float64  `json:"max_alt,omitempty"`
	Points    int       `json:"points"`
	Partial   bool      `json:"partial"`
	FromCache bool      `json:"-"`
}

// NewTrackView summarizes doc for display.
func NewTrackView(postID int64, doc *TrackDocument) *TrackView {
	v := &TrackView{
		PostID: postID,
		Route:  doc.Segments(),
		Points: doc.PointCount(),
	}
	if v.Route == nil {
		v.Route = []Segment{}
	}
	v.Bounds, _ = doc.Bounds()
	v.Start, _ = doc.Start()
	v.End, _ = doc.End()
	if a, ok := doc.MinAlt(); ok {
		v.MinAlt = &a
	}
	if a, ok := doc.MaxAlt(); ok {
		v.MaxAlt = &a
	}
	return v
}

// TrackEventType names a track lifecycle event.
type TrackEventType string

const (
	TrackUploaded TrackEventType = "uploaded"
	TrackDeleted  TrackEventType = "deleted"
)

// TrackEvent is published whenever a track changes so that every node can
// drop its cached copy.
type TrackEvent struct {
	Type       TrackEventType `json:"type"`
	PostID     int64          `json:"post_id"`
	ModifiedBy int64          `json:"modified_by,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// UnitSystem selects the units of an altitude profile.
type UnitSystem string

const (
	UnitSystemMetric   UnitSystem = "metric"
	UnitSystemImperial UnitSystem = "imperial"
)

// Valid reports whether u is a known unit system.
func (u UnitSystem) Valid() bool {
	return u == UnitSystemMetric || u == UnitSystemImperial
}

// ProfilePoint is one sample of an altitude profile.
type ProfilePoint struct {
	Distance float64 `json:"distance"`
	Altitude float64 `json:"altitude"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

// AltitudeProfile is cumulative distance against elevation along a track.
type AltitudeProfile struct {
	PostID       int64          `json:"post_id"`
	UnitSystem   UnitSystem     `json:"unit_system"`
	DistanceUnit string         `json:"distance_unit"`
	HeightUnit   string         `json:"height_unit"`
	Points       []ProfilePoint `json:"points"`
}
