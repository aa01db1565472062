package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTrackNotFound is returned when no track is stored for an ID.
	ErrTrackNotFound = errors.New("track not found")
	// ErrTrackFileNotFound is returned when the stored GPX file is missing or unreadable.
	ErrTrackFileNotFound = errors.New("track file not found or is not readable")
	// ErrInvalidTrackID is returned for non-positive track IDs.
	ErrInvalidTrackID = errors.New("invalid track id")
	// ErrEmptyUpload is returned when an upload carries no bytes.
	ErrEmptyUpload = errors.New("empty upload")
	// ErrEmptyTrack is returned when a well-formed upload has no usable points.
	ErrEmptyTrack = errors.New("track has no points")
)

// MalformedInputError reports input that could not be read as a GPX document
// at all: not well-formed XML, truncated, or missing any track element.
type MalformedInputError struct {
	Reason string
	Err    error
}

func (e *MalformedInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed input: %s: %v", e.Reason, e.Err)
	}
	return "malformed input: " + e.Reason
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// DomainError reports a coordinate outside the domain of a projection.
type DomainError struct {
	Op    string
	Value float64
	Limit float64
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: value %v outside projection domain (limit %v)", e.Op, e.Value, e.Limit)
}

// DeserializationError reports a cache blob that is corrupt, truncated or
// written by an incompatible format version.
type DeserializationError struct {
	Reason string
	Err    error
}

func (e *DeserializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deserialize track document: %s: %v", e.Reason, e.Err)
	}
	return "deserialize track document: " + e.Reason
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// TrackErrorsError is returned when an upload parsed but some points had to
// be dropped. Count is the number of soft errors.
type TrackErrorsError struct {
	Count int
}

func (e *TrackErrorsError) Error() string {
	return fmt.Sprintf("track has %d unreadable points", e.Count)
}

// IsMalformed reports whether err is or wraps a MalformedInputError.
func IsMalformed(err error) bool {
	var target *MalformedInputError
	return errors.As(err, &target)
}

// IsDeserialization reports whether err is or wraps a DeserializationError.
func IsDeserialization(err error) bool {
	var target *DeserializationError
	return errors.As(err, &target)
}
