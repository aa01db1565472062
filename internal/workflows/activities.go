package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/tripsummary/internal/core/domain"
)

// TrackRebuilder is the part of the track service the activities need.
type TrackRebuilder interface {
	RebuildByID(ctx context.Context, postID int64) (int, error)
}

// TrackActivities holds the activity implementations for the cache workflow.
type TrackActivities struct {
	Tracks TrackRebuilder
}

// RebuildTrackCache rebuilds the cache entry of postID. Errors that cannot
// go away on retry are reported as non-retryable.
func (a *TrackActivities) RebuildTrackCache(ctx context.Context, postID int64) (int, error) {
	kept, err := a.Tracks.RebuildByID(ctx, postID)
	if err == nil {
		slog.Info("track cache rebuilt", "post_id", postID, "kept", kept)
		return kept, nil
	}

	switch {
	case errors.Is(err, domain.ErrTrackNotFound),
		errors.Is(err, domain.ErrTrackFileNotFound),
		domain.IsMalformed(err):
		return 0, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("rebuild track %d", postID), "TrackUnrebuildable", err)
	}
	return 0, fmt.Errorf("rebuild track %d: %w", postID, err)
}
