package telemetry

// Span and attribute names used for instrumentation.
const (
	// Spans
	SpanTrackUpload  = "track.upload"
	SpanTrackView    = "track.view"
	SpanTrackDelete  = "track.delete"
	SpanTrackProfile = "track.profile"
	SpanTrackRebuild = "track.rebuild"

	// Attributes
	AttrPostID     = "track.post_id"
	AttrCacheHit   = "track.cache_hit"
	AttrPoints     = "track.points"
	AttrKeptPoints = "track.kept_points"
	AttrSoftErrors = "track.soft_errors"
)
