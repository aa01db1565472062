package ports

import (
	"context"
	"io"

	"github.com/samirrijal/tripsummary/internal/core/domain"
)

// TrackRepository persists track records.
type TrackRepository interface {
	Upsert(ctx context.Context, track *domain.Track) error
	// Get returns domain.ErrTrackNotFound when no record exists.
	Get(ctx context.Context, postID int64) (*domain.Track, error)
	Delete(ctx context.Context, postID int64) error
	Exists(ctx context.Context, postID int64) (bool, error)
	StatusByIDs(ctx context.Context, postIDs []int64) ([]domain.TrackStatus, error)
	List(ctx context.Context, offset, limit int) ([]domain.Track, error)
	Count(ctx context.Context) (int, error)
}

// TrackFileStore stores the raw uploaded GPX files.
type TrackFileStore interface {
	// Save stores the upload under a new name and returns the file name to
	// record on the track. It never overwrites an existing file.
	Save(ctx context.Context, postID int64, r io.Reader) (string, error)
	// Read returns domain.ErrTrackFileNotFound when the file is missing.
	Read(ctx context.Context, file string) ([]byte, error)
	Delete(ctx context.Context, file string) error
}
