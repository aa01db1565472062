//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/samirrijal/tripsummary/internal/adapters/postgres"
	"github.com/samirrijal/tripsummary/internal/core/domain"
	"github.com/samirrijal/tripsummary/internal/pkg/config"
)

func setupRepo(t *testing.T) *postgres.TrackRepo {
	t.Helper()
	cfg, err := config.Load("tripsummary-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)
	return postgres.NewTrackRepo(db)
}

func TestTrackRepo_RoundTrip(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	minAlt, maxAlt := 420.5, 2544.0
	in := &domain.Track{
		PostID: 900001,
		File:   "track-900001.gpx",
		Bounds: domain.Bounds{
			SouthWest: domain.NewPoint(45.3311, 24.5012),
			NorthEast: domain.NewPoint(45.6201, 24.8833),
		},
		MinAlt:     &minAlt,
		MaxAlt:     &maxAlt,
		ModifiedBy: 3,
		ModifiedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := repo.Upsert(ctx, in); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	t.Cleanup(func() { _ = repo.Delete(ctx, in.PostID) })

	got, err := repo.Get(ctx, in.PostID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if math.Abs(got.Bounds.SouthWest.Lat-in.Bounds.SouthWest.Lat) > 1e-6 ||
		math.Abs(got.Bounds.NorthEast.Lng-in.Bounds.NorthEast.Lng) > 1e-6 {
		t.Errorf("bounds drifted: got %+v want %+v", got.Bounds, in.Bounds)
	}
	if got.MinAlt == nil || got.MaxAlt == nil || *got.MinAlt != minAlt || *got.MaxAlt != maxAlt {
		t.Errorf("altitudes not preserved independently: %v %v", got.MinAlt, got.MaxAlt)
	}

	statuses, err := repo.StatusByIDs(ctx, []int64{in.PostID, 900002})
	if err != nil {
		t.Fatalf("StatusByIDs: %v", err)
	}
	if !statuses[0].HasTrack || statuses[1].HasTrack {
		t.Errorf("unexpected statuses %+v", statuses)
	}

	if err := repo.Delete(ctx, in.PostID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(ctx, in.PostID); !errors.Is(err, domain.ErrTrackNotFound) {
		t.Errorf("expected ErrTrackNotFound, got %v", err)
	}
}
