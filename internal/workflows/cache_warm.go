package workflows

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// DefaultTaskQueue is the queue the cache warmer worker listens on.
const DefaultTaskQueue = "track-cache"

// RebuildTrackCacheInput is the input for the cache rebuild workflow.
type RebuildTrackCacheInput struct {
	PostID int64
}

// RebuildTrackCacheWorkflow re-parses the stored GPX file of a track and
// writes the simplified document to the track cache. It returns the number
// of points kept.
func RebuildTrackCacheWorkflow(ctx workflow.Context, input RebuildTrackCacheInput) (int, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Rebuilding track cache", "postID", input.PostID)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var kept int
	if err := workflow.ExecuteActivity(ctx, "RebuildTrackCache", input.PostID).Get(ctx, &kept); err != nil {
		logger.Warn("track cache rebuild failed", "postID", input.PostID, "error", err)
		return 0, err
	}

	logger.Info("Track cache rebuilt", "postID", input.PostID, "kept", kept)
	return kept, nil
}

// WorkflowID is the Temporal workflow ID used for rebuilding postID. One
// rebuild per track runs at a time.
func WorkflowID(postID int64) string {
	return fmt.Sprintf("rebuild-track-%d", postID)
}

// CacheWarmer starts RebuildTrackCacheWorkflow runs on a Temporal cluster.
type CacheWarmer struct {
	client    client.Client
	taskQueue string
}

// NewCacheWarmer creates a CacheWarmer on top of an existing Temporal client.
func NewCacheWarmer(c client.Client, taskQueue string) *CacheWarmer {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &CacheWarmer{client: c, taskQueue: taskQueue}
}

// WarmTrack schedules a rebuild of postID and returns without waiting for it.
func (w *CacheWarmer) WarmTrack(ctx context.Context, postID int64) error {
	opts := client.StartWorkflowOptions{
		ID:                       WorkflowID(postID),
		TaskQueue:                w.taskQueue,
		WorkflowExecutionTimeout: 5 * time.Minute,
	}
	if _, err := w.client.ExecuteWorkflow(ctx, opts, RebuildTrackCacheWorkflow, RebuildTrackCacheInput{PostID: postID}); err != nil {
		return fmt.Errorf("start rebuild workflow for track %d: %w", postID, err)
	}
	return nil
}
