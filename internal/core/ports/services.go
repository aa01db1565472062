package ports

import (
	"context"

	"github.com/samirrijal/tripsummary/internal/core/domain"
)

// TrackCache stores simplified track documents keyed by post ID. Each entry
// is tagged with the revision (domain.Track.Revision) it was built from.
//
// Get reports a corrupt entry, or one tagged with another revision, as
// absent, never as an error. Only I/O failures are returned.
// Implementations do not retry.
type TrackCache interface {
	Get(ctx context.Context, postID int64, revision string) (*domain.TrackDocument, bool, error)
	Put(ctx context.Context, postID int64, revision string, doc *domain.TrackDocument) error
	Invalidate(ctx context.Context, postID int64) error
}

// EventPublisher publishes track events to a message broker.
type EventPublisher interface {
	PublishTrackEvent(ctx context.Context, event *domain.TrackEvent) error
}

// EventSubscriber subscribes to track events from a message broker.
type EventSubscriber interface {
	SubscribeTrackEvents(ctx context.Context, handler func(ctx context.Context, event *domain.TrackEvent) error) error
}

// CacheWarmer schedules background rebuilds of cached track documents.
type CacheWarmer interface {
	WarmTrack(ctx context.Context, postID int64) error
}
