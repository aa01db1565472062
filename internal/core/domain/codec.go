package domain

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"google.golang.org/protobuf/encoding/protowire"
)

// Binary layout of a serialized TrackDocument:
//
//	magic "TSTD" | version byte | protobuf wire body | xxhash64(magic..body) big endian
//
// Cache entries also carry the revision of the source file they were built
// from.
// Floats are stored as fixed64 IEEE-754 bit patterns so the round trip is
// exact. The body carries the derived summary so readers never recompute it.
const (
	codecMagic   = "TSTD"
	CodecVersion = 1

	headerLen   = len(codecMagic) + 1
	checksumLen = 8
)

// document fields
const (
	fieldSegment  protowire.Number = 1
	fieldSummary  protowire.Number = 2
	fieldRevision protowire.Number = 3
)

// segment fields
const fieldPoint protowire.Number = 1

// point fields
const (
	fieldLat protowire.Number = 1
	fieldLng protowire.Number = 2
	fieldEle protowire.Number = 3
)

// summary fields
const (
	fieldPoints protowire.Number = 1
	fieldSW     protowire.Number = 2
	fieldNE     protowire.Number = 3
	fieldMinAlt protowire.Number = 4
	fieldMaxAlt protowire.Number = 5
	fieldStart  protowire.Number = 6
	fieldEnd    protowire.Number = 7
)

// MarshalBinary encodes the document in the versioned cache format.
func (d *TrackDocument) MarshalBinary() ([]byte, error) {
	return d.encode("")
}

// EncodeCacheEntry encodes doc tagged with revision.
func EncodeCacheEntry(revision string, doc *TrackDocument) ([]byte, error) {
	return doc.encode(revision)
}

// DecodeCacheEntry decodes a blob written by EncodeCacheEntry and returns the
// revision it was tagged with.
func DecodeCacheEntry(data []byte) (string, *TrackDocument, error) {
	segments, sum, revision, err := decodeDocument(data)
	if err != nil {
		return "", nil, err
	}
	return revision, &TrackDocument{segments: segments, sum: sum}, nil
}

func (d *TrackDocument) encode(revision string) ([]byte, error) {
	segments := d.Segments()
	sum := d.derived()

	b := make([]byte, 0, headerLen+sum.points*30+128)
	b = append(b, codecMagic...)
	b = append(b, CodecVersion)

	var seg []byte
	for _, s := range segments {
		seg = seg[:0]
		for _, p := range s {
			seg = protowire.AppendTag(seg, fieldPoint, protowire.BytesType)
			seg = protowire.AppendBytes(seg, appendPoint(nil, p))
		}
		b = protowire.AppendTag(b, fieldSegment, protowire.BytesType)
		b = protowire.AppendBytes(b, seg)
	}

	if sum.points > 0 {
		var sb []byte
		sb = protowire.AppendTag(sb, fieldPoints, protowire.VarintType)
		sb = protowire.AppendVarint(sb, uint64(sum.points))
		sb = appendPointField(sb, fieldSW, sum.bounds.SouthWest)
		sb = appendPointField(sb, fieldNE, sum.bounds.NorthEast)
		if sum.hasAlt {
			sb = appendFloat(sb, fieldMinAlt, sum.minAlt)
			sb = appendFloat(sb, fieldMaxAlt, sum.maxAlt)
		}
		sb = appendPointField(sb, fieldStart, sum.start)
		sb = appendPointField(sb, fieldEnd, sum.end)
		b = protowire.AppendTag(b, fieldSummary, protowire.BytesType)
		b = protowire.AppendBytes(b, sb)
	}
	if revision != "" {
		b = protowire.AppendTag(b, fieldRevision, protowire.BytesType)
		b = protowire.AppendString(b, revision)
	}

	return binary.BigEndian.AppendUint64(b, xxhash.Sum64(b)), nil
}

// UnmarshalBinary replaces the receiver's contents with the decoded document.
// Any failure is reported as a *DeserializationError and leaves the receiver
// unchanged.
func (d *TrackDocument) UnmarshalBinary(data []byte) error {
	segments, sum, _, err := decodeDocument(data)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.segments = segments
	d.sum = sum
	return nil
}

// DecodeTrackDocument decodes a blob written by MarshalBinary.
func DecodeTrackDocument(data []byte) (*TrackDocument, error) {
	d := &TrackDocument{}
	if err := d.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return d, nil
}

func decodeDocument(data []byte) ([]Segment, *summary, string, error) {
	if len(data) < headerLen+checksumLen {
		return nil, nil, "", &DeserializationError{Reason: "truncated blob"}
	}
	if !bytes.Equal(data[:len(codecMagic)], []byte(codecMagic)) {
		return nil, nil, "", &DeserializationError{Reason: "bad magic"}
	}
	if v := data[len(codecMagic)]; v != CodecVersion {
		return nil, nil, "", &DeserializationError{Reason: fmt.Sprintf("unsupported format version %d", v)}
	}

	payload := data[:len(data)-checksumLen]
	want := binary.BigEndian.Uint64(data[len(data)-checksumLen:])
	if xxhash.Sum64(payload) != want {
		return nil, nil, "", &DeserializationError{Reason: "checksum mismatch"}
	}

	var (
		segments []Segment
		sum      *summary
		revision string
	)
	err := walkFields(payload[headerLen:], func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldSegment && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			seg, err := decodeSegment(v)
			if err != nil {
				return 0, err
			}
			segments = append(segments, seg)
			return n, nil
		case num == fieldSummary && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			s, err := decodeSummary(v)
			if err != nil {
				return 0, err
			}
			sum = s
			return n, nil
		case num == fieldRevision && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return n, nil
			}
			revision = v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, nil, "", err
	}

	total := 0
	for _, s := range segments {
		total += len(s)
	}
	switch {
	case total == 0 && sum == nil:
		return nil, summarize(nil), revision, nil
	case total == 0 || sum == nil:
		return nil, nil, "", &DeserializationError{Reason: "summary does not match segments"}
	case sum.points != total:
		return nil, nil, "", &DeserializationError{Reason: "point count mismatch"}
	}
	return segments, sum, revision, nil
}

func decodeSegment(b []byte) (Segment, error) {
	var seg Segment
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldPoint || typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		p, err := decodePoint(v)
		if err != nil {
			return 0, err
		}
		seg = append(seg, p)
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	if len(seg) == 0 {
		return nil, &DeserializationError{Reason: "empty segment"}
	}
	return seg, nil
}

func decodeSummary(b []byte) (*summary, error) {
	s := &summary{}
	var hasMin, hasMax bool
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldPoints && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			s.points = int(v)
			return n, nil
		case num == fieldMinAlt && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			s.minAlt, hasMin = math.Float64frombits(v), true
			return n, nil
		case num == fieldMaxAlt && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			s.maxAlt, hasMax = math.Float64frombits(v), true
			return n, nil
		case typ == protowire.BytesType && (num == fieldSW || num == fieldNE || num == fieldStart || num == fieldEnd):
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			p, err := decodePoint(v)
			if err != nil {
				return 0, err
			}
			switch num {
			case fieldSW:
				s.bounds.SouthWest = p
			case fieldNE:
				s.bounds.NorthEast = p
			case fieldStart:
				s.start = p
			case fieldEnd:
				s.end = p
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, err
	}
	if hasMin != hasMax {
		return nil, &DeserializationError{Reason: "incomplete altitude range"}
	}
	s.hasAlt = hasMin
	return s, nil
}

func decodePoint(b []byte) (Point, error) {
	var (
		p              Point
		hasLat, hasLng bool
	)
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.Fixed64Type {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		v, n := protowire.ConsumeFixed64(b)
		f := math.Float64frombits(v)
		switch num {
		case fieldLat:
			p.Lat, hasLat = f, true
		case fieldLng:
			p.Lng, hasLng = f, true
		case fieldEle:
			p.Ele = &f
		}
		return n, nil
	})
	if err != nil {
		return Point{}, err
	}
	if !hasLat || !hasLng {
		return Point{}, &DeserializationError{Reason: "point without coordinates"}
	}
	return p, nil
}

// walkFields iterates the protobuf fields in b. fn returns the number of
// bytes consumed from the value, or a negative protowire error code.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return &DeserializationError{Reason: "bad field tag", Err: protowire.ParseError(n)}
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			var de *DeserializationError
			if errors.As(err, &de) {
				return err
			}
			return &DeserializationError{Reason: "decode field", Err: err}
		}
		if m < 0 {
			return &DeserializationError{Reason: "bad field value", Err: protowire.ParseError(m)}
		}
		b = b[m:]
	}
	return nil
}

func appendPoint(b []byte, p Point) []byte {
	b = appendFloat(b, fieldLat, p.Lat)
	b = appendFloat(b, fieldLng, p.Lng)
	if ele, ok := p.Elevation(); ok {
		b = appendFloat(b, fieldEle, ele)
	}
	return b
}

func appendPointField(b []byte, num protowire.Number, p Point) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, appendPoint(nil, p))
}

func appendFloat(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}
