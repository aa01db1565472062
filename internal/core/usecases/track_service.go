package usecases

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/tripsummary/internal/core/domain"
	"github.com/samirrijal/tripsummary/internal/core/ports"
	"github.com/samirrijal/tripsummary/internal/pkg/geospatial"
	"github.com/samirrijal/tripsummary/internal/pkg/gpx"
	"github.com/samirrijal/tripsummary/internal/pkg/metrics"
	"github.com/samirrijal/tripsummary/internal/pkg/telemetry"
)

// TrackService handles track upload, viewing and removal.
type TrackService struct {
	tracks    ports.TrackRepository
	files     ports.TrackFileStore
	cache     ports.TrackCache
	events    ports.EventPublisher
	warmer    ports.CacheWarmer
	tolerance float64
	now       func() time.Time
	tracer    trace.Tracer
}

// TrackServiceOption customizes a TrackService.
type TrackServiceOption func(*TrackService)

// WithTrackCache enables read-through caching of simplified documents.
func WithTrackCache(c ports.TrackCache) TrackServiceOption {
	return func(s *TrackService) { s.cache = c }
}

// WithEventPublisher publishes upload and delete events.
func WithEventPublisher(p ports.EventPublisher) TrackServiceOption {
	return func(s *TrackService) { s.events = p }
}

// WithCacheWarmer schedules a cache rebuild after each upload.
func WithCacheWarmer(w ports.CacheWarmer) TrackServiceOption {
	return func(s *TrackService) { s.warmer = w }
}

// WithSimplifyTolerance overrides domain.DefaultSimplifyTolerance.
func WithSimplifyTolerance(tol float64) TrackServiceOption {
	return func(s *TrackService) { s.tolerance = tol }
}

// WithClock overrides time.Now for modification timestamps.
func WithClock(now func() time.Time) TrackServiceOption {
	return func(s *TrackService) { s.now = now }
}

// NewTrackService creates a new TrackService. Cache, publisher and warmer
// are optional.
func NewTrackService(tracks ports.TrackRepository, files ports.TrackFileStore, opts ...TrackServiceOption) *TrackService {
	s := &TrackService{
		tracks:    tracks,
		files:     files,
		tolerance: domain.DefaultSimplifyTolerance,
		now:       time.Now,
		tracer:    telemetry.Tracer("tripsummary/usecases"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tolerance returns the simplification tolerance used for viewer output.
func (s *TrackService) Tolerance() float64 { return s.tolerance }

// UploadResult describes an accepted upload.
type UploadResult struct {
	Track  *domain.Track `json:"track"`
	Points int           `json:"points"`
}

// Upload stores a GPX file for postID and records its summary. Uploads that
// are malformed, have unreadable points, or contain no points are rejected
// and leave any previous track untouched.
func (s *TrackService) Upload(ctx context.Context, postID, modifiedBy int64, r io.Reader) (*UploadResult, error) {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanTrackUpload,
		trace.WithAttributes(attribute.Int64(telemetry.AttrPostID, postID)))
	defer span.End()

	res, err := s.upload(ctx, postID, modifiedBy, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.TrackUploads.WithLabelValues(uploadOutcome(err)).Inc()
		return nil, err
	}
	metrics.TrackUploads.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Int(telemetry.AttrPoints, res.Points))
	return res, nil
}

func (s *TrackService) upload(ctx context.Context, postID, modifiedBy int64, r io.Reader) (*UploadResult, error) {
	if postID <= 0 {
		return nil, domain.ErrInvalidTrackID
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, domain.ErrEmptyUpload
	}

	res, err := parse(data)
	if err != nil {
		return nil, err
	}
	if res.HasErrors() {
		return nil, &domain.TrackErrorsError{Count: len(res.Errors)}
	}
	doc := res.Document
	if doc.IsEmpty() {
		return nil, domain.ErrEmptyTrack
	}

	track := domain.NewTrack(postID, "", doc, modifiedBy, s.now().UTC())
	// Bounds are stored projected; refuse them before anything is written.
	if _, _, err := geospatial.ProjectBounds(track.Bounds); err != nil {
		return nil, err
	}

	prev, err := s.tracks.Get(ctx, postID)
	switch {
	case errors.Is(err, domain.ErrTrackNotFound):
		prev = nil
	case err != nil:
		return nil, fmt.Errorf("load track: %w", err)
	}

	file, err := s.files.Save(ctx, postID, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("save track file: %w", err)
	}
	track.File = file

	if err := s.tracks.Upsert(ctx, track); err != nil {
		s.removeFile(ctx, postID, file)
		return nil, fmt.Errorf("save track: %w", err)
	}
	if prev != nil && prev.File != file {
		s.removeFile(ctx, postID, prev.File)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, postID); err != nil {
			return nil, fmt.Errorf("invalidate cached track: %w", err)
		}
	}

	s.publish(ctx, domain.TrackUploaded, postID, modifiedBy)

	if s.warmer != nil {
		if err := s.warmer.WarmTrack(ctx, postID); err != nil {
			slog.Warn("schedule track cache warm failed", "post_id", postID, "error", err)
		}
	}

	return &UploadResult{Track: track, Points: doc.PointCount()}, nil
}

// Document returns the simplified document for postID, reading through the
// cache. partial is true when some points of the stored file could not be
// read; such documents are not cached.
func (s *TrackService) Document(ctx context.Context, postID int64) (doc *domain.TrackDocument, track *domain.Track, partial bool, err error) {
	doc, track, partial, _, err = s.document(ctx, postID)
	return doc, track, partial, err
}

func (s *TrackService) document(ctx context.Context, postID int64) (*domain.TrackDocument, *domain.Track, bool, bool, error) {
	if postID <= 0 {
		return nil, nil, false, false, domain.ErrInvalidTrackID
	}

	track, err := s.tracks.Get(ctx, postID)
	if err != nil {
		return nil, nil, false, false, err
	}

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, postID, track.Revision())
		switch {
		case err != nil:
			slog.Warn("track cache read failed", "post_id", postID, "error", err)
		case ok:
			metrics.CacheHits.WithLabelValues("track").Inc()
			trace.SpanFromContext(ctx).SetAttributes(attribute.Bool(telemetry.AttrCacheHit, true))
			return cached, track, false, true, nil
		default:
			metrics.CacheMisses.WithLabelValues("track").Inc()
		}
	}

	doc, partial, err := s.build(ctx, track)
	if errors.Is(err, domain.ErrTrackFileNotFound) {
		// An upload may have replaced the file after the record was read.
		if fresh, ferr := s.tracks.Get(ctx, postID); ferr == nil && fresh.File != track.File {
			track = fresh
			doc, partial, err = s.build(ctx, track)
		}
	}
	if err != nil {
		return nil, nil, false, false, err
	}

	if s.cache != nil && !partial {
		if err := s.cache.Put(ctx, postID, track.Revision(), doc); err != nil {
			slog.Warn("track cache write failed", "post_id", postID, "error", err)
		}
	}
	return doc, track, partial, false, nil
}

// build parses the stored file of track and simplifies it. partial is true
// when some points could not be read.
func (s *TrackService) build(ctx context.Context, track *domain.Track) (*domain.TrackDocument, bool, error) {
	data, err := s.files.Read(ctx, track.File)
	if err != nil {
		return nil, false, err
	}

	start := time.Now()
	res, err := parse(data)
	if err != nil {
		return nil, false, err
	}
	doc := res.Document.Simplify(s.tolerance)
	metrics.ParseDuration.Observe(time.Since(start).Seconds())
	if total := res.Document.PointCount(); total > 0 {
		metrics.SimplifyRatio.Observe(float64(doc.PointCount()) / float64(total))
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int(telemetry.AttrPoints, res.Document.PointCount()),
		attribute.Int(telemetry.AttrKeptPoints, doc.PointCount()),
		attribute.Int(telemetry.AttrSoftErrors, len(res.Errors)),
	)
	return doc, res.HasErrors(), nil
}

// RebuildByID rebuilds the cache entry of postID. Unlike the read path, a
// failed cache write is returned so background callers can retry.
func (s *TrackService) RebuildByID(ctx context.Context, postID int64) (int, error) {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanTrackRebuild,
		trace.WithAttributes(attribute.Int64(telemetry.AttrPostID, postID)))
	defer span.End()

	track, err := s.tracks.Get(ctx, postID)
	if err != nil {
		return 0, err
	}
	doc, partial, err := s.build(ctx, track)
	if err != nil {
		return 0, err
	}
	if partial {
		return 0, fmt.Errorf("rebuild track %d: stored file has unreadable points", postID)
	}
	if s.cache != nil {
		if err := s.cache.Put(ctx, postID, track.Revision(), doc); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return 0, fmt.Errorf("cache track %d: %w", postID, err)
		}
	}
	return doc.PointCount(), nil
}

// View returns the viewer payload for postID. Bounds and altitudes come from
// the stored record, which was computed from the full document.
func (s *TrackService) View(ctx context.Context, postID int64) (*domain.TrackView, error) {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanTrackView,
		trace.WithAttributes(attribute.Int64(telemetry.AttrPostID, postID)))
	defer span.End()

	doc, track, partial, hit, err := s.document(ctx, postID)
	if err != nil {
		if !errors.Is(err, domain.ErrTrackNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	view := domain.NewTrackView(postID, doc)
	view.Bounds = track.Bounds
	view.MinAlt = track.MinAlt
	view.MaxAlt = track.MaxAlt
	view.Partial = partial
	view.FromCache = hit
	return view, nil
}

// Delete removes the record, the stored file and the cache entry of postID.
func (s *TrackService) Delete(ctx context.Context, postID int64) error {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanTrackDelete,
		trace.WithAttributes(attribute.Int64(telemetry.AttrPostID, postID)))
	defer span.End()

	if postID <= 0 {
		return domain.ErrInvalidTrackID
	}
	track, err := s.tracks.Get(ctx, postID)
	if err != nil {
		return err
	}

	if err := s.tracks.Delete(ctx, postID); err != nil {
		return fmt.Errorf("delete track: %w", err)
	}
	if err := s.files.Delete(ctx, track.File); err != nil {
		return fmt.Errorf("delete track file: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, postID); err != nil {
			return fmt.Errorf("invalidate cached track: %w", err)
		}
	}

	s.publish(ctx, domain.TrackDeleted, postID, 0)
	return nil
}

// Profile returns the altitude profile of postID in the given unit system.
func (s *TrackService) Profile(ctx context.Context, postID int64, units domain.UnitSystem) (*domain.AltitudeProfile, error) {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanTrackProfile,
		trace.WithAttributes(attribute.Int64(telemetry.AttrPostID, postID)))
	defer span.End()

	if !units.Valid() {
		return nil, fmt.Errorf("unknown unit system %q", units)
	}
	doc, _, _, err := s.Document(ctx, postID)
	if err != nil {
		return nil, err
	}
	return BuildAltitudeProfile(postID, doc, units), nil
}

// Status reports which of postIDs have a track.
func (s *TrackService) Status(ctx context.Context, postIDs []int64) ([]domain.TrackStatus, error) {
	if len(postIDs) > 100 {
		return nil, fmt.Errorf("too many ids: %d (max 100)", len(postIDs))
	}
	return s.tracks.StatusByIDs(ctx, postIDs)
}

// List returns a page of track records, most recently modified first, and
// the total number of records.
func (s *TrackService) List(ctx context.Context, offset, limit int) ([]domain.Track, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	total, err := s.tracks.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	tracks, err := s.tracks.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return tracks, total, nil
}

// InvalidateCached drops the cache entry of postID. Used when another node
// reports a change.
func (s *TrackService) InvalidateCached(ctx context.Context, postID int64) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, postID)
}

// removeFile deletes a stored file that no record points to. Failures only
// leave an orphan behind, so they are logged.
func (s *TrackService) removeFile(ctx context.Context, postID int64, file string) {
	if err := s.files.Delete(context.WithoutCancel(ctx), file); err != nil {
		slog.Warn("remove unused track file failed", "post_id", postID, "file", file, "error", err)
	}
}

func (s *TrackService) publish(ctx context.Context, typ domain.TrackEventType, postID, modifiedBy int64) {
	if s.events == nil {
		return
	}
	event := &domain.TrackEvent{
		Type:       typ,
		PostID:     postID,
		ModifiedBy: modifiedBy,
		Timestamp:  s.now().UTC(),
	}
	if err := s.events.PublishTrackEvent(ctx, event); err != nil {
		slog.Warn("publish track event failed", "type", typ, "post_id", postID, "error", err)
		return
	}
	metrics.TrackEvents.WithLabelValues("out", string(typ)).Inc()
}

func parse(data []byte) (*gpx.Result, error) {
	res, err := gpx.Parse(data)
	switch {
	case err != nil:
		metrics.TrackParses.WithLabelValues("malformed").Inc()
		return nil, err
	case res.HasErrors():
		metrics.TrackParses.WithLabelValues("soft_errors").Inc()
	default:
		metrics.TrackParses.WithLabelValues("ok").Inc()
	}
	return res, nil
}

func uploadOutcome(err error) string {
	var trackErrs *domain.TrackErrorsError
	switch {
	case domain.IsMalformed(err):
		return "malformed"
	case errors.As(err, &trackErrs):
		return "soft_errors"
	case errors.Is(err, domain.ErrEmptyUpload), errors.Is(err, domain.ErrEmptyTrack), errors.Is(err, domain.ErrInvalidTrackID):
		return "rejected"
	}
	return "error"
}
