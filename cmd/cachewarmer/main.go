package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/tripsummary/internal/adapters/filecache"
	"github.com/samirrijal/tripsummary/internal/adapters/filestore"
	"github.com/samirrijal/tripsummary/internal/adapters/postgres"
	"github.com/samirrijal/tripsummary/internal/adapters/valkey"
	"github.com/samirrijal/tripsummary/internal/core/usecases"
	"github.com/samirrijal/tripsummary/internal/pkg/config"
	"github.com/samirrijal/tripsummary/internal/pkg/logging"
	"github.com/samirrijal/tripsummary/internal/workflows"
)

func main() {
	cfg, err := config.Load("tripsummary-cachewarmer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, "service", cfg.Telemetry.ServiceName)

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN(), postgres.WithMaxConns(cfg.Database.MaxConns))
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	files, err := filestore.New(cfg.Tracks.UploadDir)
	if err != nil {
		log.Fatalf("upload dir: %v", err)
	}

	opts := []usecases.TrackServiceOption{usecases.WithSimplifyTolerance(cfg.Tracks.SimplifyTolerance)}
	switch cfg.Tracks.CacheBackend {
	case "file":
		// The worker must share the API's cache directory.
		fc, err := filecache.New(cfg.Tracks.CacheDir)
		if err != nil {
			log.Fatalf("cache dir: %v", err)
		}
		opts = append(opts, usecases.WithTrackCache(fc))
	case "valkey":
		vc, err := valkey.New(cfg.Valkey.Addr, time.Duration(cfg.Tracks.CacheTTLSeconds)*time.Second)
		if err != nil {
			log.Fatalf("valkey: %v", err)
		}
		defer vc.Close()
		opts = append(opts, usecases.WithTrackCache(vc))
	default:
		log.Fatalf("cache backend %q has nothing to warm", cfg.Tracks.CacheBackend)
	}
	trackSvc := usecases.NewTrackService(postgres.NewTrackRepo(db), files, opts...)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: 8,
	})
	w.RegisterWorkflow(workflows.RebuildTrackCacheWorkflow)
	w.RegisterActivity(&workflows.TrackActivities{Tracks: trackSvc})

	slog.Info("cache warmer worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
