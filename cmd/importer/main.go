package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samirrijal/tripsummary/internal/adapters/filecache"
	"github.com/samirrijal/tripsummary/internal/adapters/filestore"
	natsadapter "github.com/samirrijal/tripsummary/internal/adapters/nats"
	"github.com/samirrijal/tripsummary/internal/adapters/postgres"
	"github.com/samirrijal/tripsummary/internal/adapters/valkey"
	"github.com/samirrijal/tripsummary/internal/core/domain"
	"github.com/samirrijal/tripsummary/internal/core/usecases"
	"github.com/samirrijal/tripsummary/internal/pkg/config"
	"github.com/samirrijal/tripsummary/internal/pkg/logging"
)

// usage: importer [manifest.json | dir] [post_id,post_id,...]
func main() {
	cfg, err := config.Load("tripsummary-importer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, "text", "service", cfg.Telemetry.ServiceName)

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN(), postgres.WithMaxConns(cfg.Database.MaxConns))
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	files, err := filestore.New(cfg.Tracks.UploadDir)
	if err != nil {
		log.Fatalf("upload dir: %v", err)
	}

	source := "manifest.json"
	if len(os.Args) > 1 {
		source = os.Args[1]
	}
	manifest, err := loadManifest(source)
	if err != nil {
		log.Fatalf("load manifest: %v", err)
	}

	filter := map[int64]bool{}
	if len(os.Args) > 2 {
		for _, s := range strings.Split(os.Args[2], ",") {
			if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
				filter[id] = true
			}
		}
	}

	opts := []usecases.TrackServiceOption{usecases.WithSimplifyTolerance(cfg.Tracks.SimplifyTolerance)}
	switch cfg.Tracks.CacheBackend {
	case "file":
		if fc, err := filecache.New(cfg.Tracks.CacheDir); err == nil {
			opts = append(opts, usecases.WithTrackCache(fc))
		}
	case "valkey":
		if vc, err := valkey.New(cfg.Valkey.Addr, time.Duration(cfg.Tracks.CacheTTLSeconds)*time.Second); err == nil {
			defer vc.Close()
			opts = append(opts, usecases.WithTrackCache(vc))
		}
	}
	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats unavailable, other nodes will not see imported tracks until their cache expires", "error", err)
	} else {
		defer pub.Close()
		opts = append(opts, usecases.WithEventPublisher(pub))
	}
	svc := usecases.NewTrackService(postgres.NewTrackRepo(db), files, opts...)

	slog.Info("importing tracks", "count", len(manifest.Tracks), "source", manifest.Source)

	client := &http.Client{Timeout: 120 * time.Second}

	var (
		wg       sync.WaitGroup
		imported atomic.Int64
		failed   atomic.Int64
	)
	sem := make(chan struct{}, 4) // max 4 concurrent imports

	for _, entry := range manifest.Tracks {
		if len(filter) > 0 && !filter[entry.PostID] {
			continue
		}

		wg.Add(1)
		go func(e TrackEntry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			points, err := importTrack(ctx, svc, client, e)
			if err != nil {
				failed.Add(1)
				slog.Error("import failed", "post_id", e.PostID, "error", describe(err))
				return
			}
			imported.Add(1)
			slog.Info("track imported", "post_id", e.PostID, "points", points)
		}(entry)
	}

	wg.Wait()
	slog.Info("import complete", "imported", imported.Load(), "failed", failed.Load())
	if failed.Load() > 0 {
		os.Exit(1)
	}
}

func importTrack(ctx context.Context, svc *usecases.TrackService, client *http.Client, e TrackEntry) (int, error) {
	var r io.ReadCloser
	if e.URL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.URL, nil)
		if err != nil {
			return 0, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return 0, fmt.Errorf("download: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return 0, fmt.Errorf("HTTP %d for %s", resp.StatusCode, e.URL)
		}
		r = resp.Body
	} else {
		f, err := os.Open(e.File)
		if err != nil {
			return 0, err
		}
		r = f
	}
	defer r.Close()

	res, err := svc.Upload(ctx, e.PostID, e.ModifiedBy, r)
	if err != nil {
		return 0, err
	}
	return res.Points, nil
}

// describe turns upload errors into the short reasons shown to operators.
func describe(err error) string {
	var trackErrs *domain.TrackErrorsError
	switch {
	case domain.IsMalformed(err):
		return "track file could not be parsed: " + err.Error()
	case errors.As(err, &trackErrs):
		return fmt.Sprintf("track file has %d unreadable points", trackErrs.Count)
	}
	return err.Error()
}
