package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/tripsummary/internal/core/domain"
	"github.com/samirrijal/tripsummary/internal/pkg/geospatial"
)

// TrackRepo implements ports.TrackRepository with pgx and PostGIS. Bounds
// are stored in spherical Mercator and converted back on read.
type TrackRepo struct {
	db *DB
}

// NewTrackRepo creates a new TrackRepo.
func NewTrackRepo(db *DB) *TrackRepo {
	return &TrackRepo{db: db}
}

const trackColumns = `post_id, route_track_file,
	ST_X(route_min_coord), ST_Y(route_min_coord),
	ST_X(route_max_coord), ST_Y(route_max_coord),
	route_min_alt, route_max_alt, modified_by, modified_at`

// Upsert inserts or replaces the record for track.PostID.
func (r *TrackRepo) Upsert(ctx context.Context, t *domain.Track) error {
	sw, ne, err := geospatial.ProjectBounds(t.Bounds)
	if err != nil {
		return fmt.Errorf("project bounds: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO tracks (post_id, route_track_file, route_min_coord, route_max_coord, route_bbox,
		                    route_min_alt, route_max_alt, modified_by, modified_at)
		VALUES ($1, $2,
		        ST_SetSRID(ST_MakePoint($3, $4), 3857),
		        ST_SetSRID(ST_MakePoint($5, $6), 3857),
		        ST_MakeEnvelope($3, $4, $5, $6, 3857),
		        $7, $8, $9, $10)
		ON CONFLICT (post_id) DO UPDATE
		SET route_track_file = EXCLUDED.route_track_file,
		    route_min_coord = EXCLUDED.route_min_coord,
		    route_max_coord = EXCLUDED.route_max_coord,
		    route_bbox = EXCLUDED.route_bbox,
		    route_min_alt = EXCLUDED.route_min_alt,
		    route_max_alt = EXCLUDED.route_max_alt,
		    modified_by = EXCLUDED.modified_by,
		    modified_at = EXCLUDED.modified_at
	`, t.PostID, t.File, sw.X, sw.Y, ne.X, ne.Y, t.MinAlt, t.MaxAlt, t.ModifiedBy, t.ModifiedAt)
	if err != nil {
		return fmt.Errorf("upsert track: %w", err)
	}
	return nil
}

// Get returns the record for postID.
func (r *TrackRepo) Get(ctx context.Context, postID int64) (*domain.Track, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+trackColumns+` FROM tracks WHERE post_id = $1`, postID)
	t, err := scanTrack(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get track: %w", err)
	}
	return t, nil
}

// Delete removes the record for postID. Deleting a missing record is not an error.
func (r *TrackRepo) Delete(ctx context.Context, postID int64) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM tracks WHERE post_id = $1`, postID); err != nil {
		return fmt.Errorf("delete track: %w", err)
	}
	return nil
}

// Exists reports whether a record exists for postID.
func (r *TrackRepo) Exists(ctx context.Context, postID int64) (bool, error) {
	var ok bool
	err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tracks WHERE post_id = $1)`, postID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("track exists: %w", err)
	}
	return ok, nil
}

// StatusByIDs reports, in request order, which of postIDs have a track.
func (r *TrackRepo) StatusByIDs(ctx context.Context, postIDs []int64) ([]domain.TrackStatus, error) {
	if len(postIDs) == 0 {
		return []domain.TrackStatus{}, nil
	}

	rows, err := r.db.Pool.Query(ctx, `SELECT post_id FROM tracks WHERE post_id = ANY($1)`, postIDs)
	if err != nil {
		return nil, fmt.Errorf("track status: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("track status: %w", err)
	}

	has := make(map[int64]bool, len(found))
	for _, id := range found {
		has[id] = true
	}
	out := make([]domain.TrackStatus, len(postIDs))
	for i, id := range postIDs {
		out[i] = domain.TrackStatus{PostID: id, HasTrack: has[id]}
	}
	return out, nil
}

// List returns track records, most recently modified first.
func (r *TrackRepo) List(ctx context.Context, offset, limit int) ([]domain.Track, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+trackColumns+`
		FROM tracks
		ORDER BY modified_at DESC, post_id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	tracks := []domain.Track{}
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		tracks = append(tracks, *t)
	}
	return tracks, rows.Err()
}

func scanTrack(row pgx.Row) (*domain.Track, error) {
	var (
		t      domain.Track
		sw, ne geospatial.ProjectedPoint
	)
	err := row.Scan(
		&t.PostID, &t.File,
		&sw.X, &sw.Y, &ne.X, &ne.Y,
		&t.MinAlt, &t.MaxAlt, &t.ModifiedBy, &t.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.Bounds, err = geospatial.UnprojectBounds(sw, ne); err != nil {
		return nil, fmt.Errorf("unproject bounds: %w", err)
	}
	return &t, nil
}

// Count returns the number of stored tracks.
func (r *TrackRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM tracks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tracks: %w", err)
	}
	return n, nil
}
