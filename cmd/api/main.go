package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/tripsummary/internal/adapters/filecache"
	"github.com/samirrijal/tripsummary/internal/adapters/filestore"
	"github.com/samirrijal/tripsummary/internal/adapters/http"
	natsadapter "github.com/samirrijal/tripsummary/internal/adapters/nats"
	"github.com/samirrijal/tripsummary/internal/adapters/postgres"
	"github.com/samirrijal/tripsummary/internal/adapters/valkey"
	"github.com/samirrijal/tripsummary/internal/core/domain"
	"github.com/samirrijal/tripsummary/internal/core/usecases"
	"github.com/samirrijal/tripsummary/internal/pkg/config"
	"github.com/samirrijal/tripsummary/internal/pkg/logging"
	"github.com/samirrijal/tripsummary/internal/pkg/metrics"
	"github.com/samirrijal/tripsummary/internal/pkg/telemetry"
	"github.com/samirrijal/tripsummary/internal/workflows"
)

func main() {
	cfg, err := config.Load("tripsummary-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format, "service", cfg.Telemetry.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), postgres.WithMaxConns(cfg.Database.MaxConns))
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go reportPoolMetrics(ctx, db)

	// Upload storage
	files, err := filestore.New(cfg.Tracks.UploadDir)
	if err != nil {
		log.Fatalf("upload dir: %v", err)
	}

	opts := []usecases.TrackServiceOption{
		usecases.WithSimplifyTolerance(cfg.Tracks.SimplifyTolerance),
	}

	// Track cache
	var pinger http.Pinger
	switch cfg.Tracks.CacheBackend {
	case "file":
		fc, err := filecache.New(cfg.Tracks.CacheDir)
		if err != nil {
			log.Fatalf("cache dir: %v", err)
		}
		opts = append(opts, usecases.WithTrackCache(fc))
		pinger = fc
	case "valkey":
		ttl := time.Duration(cfg.Tracks.CacheTTLSeconds) * time.Second
		vc, err := valkey.New(cfg.Valkey.Addr, ttl)
		if err != nil {
			slog.Warn("valkey unavailable, serving without track cache", "error", err)
		} else {
			defer vc.Close()
			opts = append(opts, usecases.WithTrackCache(vc))
			pinger = vc
		}
	default:
		slog.Info("track cache disabled")
	}

	// NATS
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		opts = append(opts, usecases.WithEventPublisher(pub))
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
	}

	// Temporal cache warmer
	if cfg.Temporal.Enabled {
		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			slog.Warn("temporal unavailable, cache warming disabled", "error", err)
		} else {
			defer tc.Close()
			opts = append(opts, usecases.WithCacheWarmer(workflows.NewCacheWarmer(tc, cfg.Temporal.TaskQueue)))
		}
	}

	trackSvc := usecases.NewTrackService(postgres.NewTrackRepo(db), files, opts...)

	// Drop local cache entries when another node changes a track.
	if cfg.Tracks.CacheBackend == "file" {
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL, cfg.NATS.Consumer)
		if err != nil {
			slog.Warn("nats subscriber unavailable, cache invalidation is local only", "error", err)
		} else {
			defer sub.Close()
			if err := sub.SubscribeTrackEvents(ctx, invalidateOnEvent(trackSvc)); err != nil {
				slog.Warn("subscribe track events failed", "error", err)
			}
		}
	}

	deps := &http.Dependencies{
		Tracks:         trackSvc,
		NATS:           natsConn,
		DB:             db,
		Units:          domain.UnitSystem(cfg.Tracks.UnitSystem),
		MaxUploadBytes: cfg.Tracks.MaxUploadBytes,
	}
	if pinger != nil {
		deps.Cache = pinger
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		// leave room above the upload cap so the handler can answer 413 itself
		BodyLimit: cfg.Tracks.MaxUploadBytes + 64*1024,
		AppName:   "Trip Summary API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-User-ID",
		ExposeHeaders:    "ETag, Link, X-Track-Cache",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// invalidateOnEvent drops the cached document of every track another node
// uploaded or deleted.
func invalidateOnEvent(svc *usecases.TrackService) func(ctx context.Context, event *domain.TrackEvent) error {
	return func(ctx context.Context, event *domain.TrackEvent) error {
		metrics.TrackEvents.WithLabelValues("in", string(event.Type)).Inc()
		if err := svc.InvalidateCached(ctx, event.PostID); err != nil {
			slog.Warn("invalidate cached track failed", "post_id", event.PostID, "error", err)
			return err
		}
		return nil
	}
}

func reportPoolMetrics(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	var lastEmpty int64
	for {
		select {
		case <-ticker.C:
			lastEmpty = metrics.UpdateDBPoolMetrics(db.Pool.Stat(), lastEmpty)
		case <-ctx.Done():
			return
		}
	}
}
