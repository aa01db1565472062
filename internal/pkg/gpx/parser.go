// Package gpx reads GPS Exchange Format track data into a TrackDocument.
//
// Parsing is tolerant: a point with unusable coordinates is dropped and
// reported as a PointError, while the rest of the document is kept. Input
// that is not well-formed XML, or that has no track at all, fails with a
// *domain.MalformedInputError.
package gpx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/samirrijal/tripsummary/internal/core/domain"
)

// PointError describes a point that could not be read completely.
// Indexes are zero based and count every trkpt, valid or not.
type PointError struct {
	Track   int    `json:"track"`
	Segment int    `json:"segment"`
	Index   int    `json:"index"`
	Reason  string `json:"reason"`
}

func (e PointError) Error() string {
	return fmt.Sprintf("track %d segment %d point %d: %s", e.Track, e.Segment, e.Index, e.Reason)
}

// Result is the outcome of a parse.
type Result struct {
	Document *domain.TrackDocument
	Errors   []PointError
}

// HasErrors reports whether any point was dropped or partially read.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// Parse reads a GPX document from memory.
func Parse(data []byte) (*Result, error) {
	return ParseReader(bytes.NewReader(data))
}

// ParseReader reads a GPX document from r.
func ParseReader(r io.Reader) (*Result, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	p := &parser{
		res:   &Result{Document: domain.NewTrackDocument()},
		track: -1,
	}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.MalformedInputError{Reason: "invalid xml", Err: err}
		}
		if err := p.handle(tok); err != nil {
			return nil, err
		}
	}

	switch {
	case !p.sawRoot:
		return nil, &domain.MalformedInputError{Reason: "no root element"}
	case len(p.stack) > 0:
		return nil, &domain.MalformedInputError{Reason: "unexpected end of document"}
	case p.track < 0:
		return nil, &domain.MalformedInputError{Reason: "no recognizable track elements"}
	}
	return p.res, nil
}

type parser struct {
	res     *Result
	stack   []string
	sawRoot bool

	track   int
	segment int
	index   int

	seg     domain.Segment
	inPoint bool
	pt      domain.Point
	ptErr   string
	inEle   bool
	eleText strings.Builder
	sawEle  bool
}

func (p *parser) parent() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

func (p *parser) handle(tok xml.Token) error {
	switch t := tok.(type) {
	case xml.StartElement:
		name := t.Name.Local
		if !p.sawRoot {
			if name != "gpx" {
				return &domain.MalformedInputError{Reason: fmt.Sprintf("unexpected root element %q", name)}
			}
			p.sawRoot = true
		}
		switch {
		case name == "trk" && p.parent() == "gpx":
			p.track++
			p.segment = -1
		case name == "trkseg" && p.parent() == "trk":
			p.segment++
			p.index = -1
			p.seg = nil
		case name == "trkpt" && p.parent() == "trkseg":
			p.index++
			p.startPoint(t.Attr)
		case name == "ele" && p.parent() == "trkpt":
			p.inEle = true
			p.sawEle = true
			p.eleText.Reset()
		}
		p.stack = append(p.stack, name)

	case xml.EndElement:
		if len(p.stack) == 0 {
			return &domain.MalformedInputError{Reason: "unbalanced end element " + t.Name.Local}
		}
		p.stack = p.stack[:len(p.stack)-1]
		switch {
		case t.Name.Local == "ele" && p.inEle:
			p.inEle = false
		case t.Name.Local == "trkpt" && p.inPoint:
			p.endPoint()
		case t.Name.Local == "trkseg" && p.parent() == "trk":
			p.res.Document.AddSegment(p.seg)
			p.seg = nil
		}

	case xml.CharData:
		if p.inEle {
			p.eleText.Write(t)
		}
	}
	return nil
}

func (p *parser) startPoint(attrs []xml.Attr) {
	p.inPoint = true
	p.pt = domain.Point{}
	p.ptErr = ""
	p.sawEle = false

	var hasLat, hasLon bool
	for _, a := range attrs {
		switch a.Name.Local {
		case "lat":
			hasLat = true
			v, err := parseCoord(a.Value)
			if err != nil || !domain.ValidLatitude(v) {
				p.ptErr = fmt.Sprintf("invalid latitude %q", a.Value)
				continue
			}
			p.pt.Lat = v
		case "lon":
			hasLon = true
			v, err := parseCoord(a.Value)
			if err != nil || !domain.ValidLongitude(v) {
				p.ptErr = fmt.Sprintf("invalid longitude %q", a.Value)
				continue
			}
			p.pt.Lng = v
		}
	}
	switch {
	case !hasLat:
		p.ptErr = "missing latitude"
	case !hasLon:
		p.ptErr = "missing longitude"
	}
}

func (p *parser) endPoint() {
	p.inPoint = false
	if p.ptErr != "" {
		p.softError(p.ptErr)
		return
	}
	if p.sawEle {
		raw := strings.TrimSpace(p.eleText.String())
		if v, err := parseCoord(raw); err == nil {
			p.pt.Ele = &v
		} else {
			p.softError(fmt.Sprintf("invalid elevation %q", raw))
		}
	}
	p.seg = append(p.seg, p.pt)
}

func (p *parser) softError(reason string) {
	p.res.Errors = append(p.res.Errors, PointError{
		Track:   p.track,
		Segment: p.segment,
		Index:   p.index,
		Reason:  reason,
	})
}

func parseCoord(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return v, nil
}
