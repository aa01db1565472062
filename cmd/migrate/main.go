package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samirrijal/tripsummary/internal/pkg/config"
	"github.com/samirrijal/tripsummary/internal/pkg/logging"
	"github.com/samirrijal/tripsummary/migrations"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down|list>")
	}

	cfg, err := config.Load("tripsummary-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, "text", "service", cfg.Telemetry.ServiceName)

	var files []string
	switch os.Args[1] {
	case "up", "list":
		files, err = migrations.Up()
	case "down":
		files, err = migrations.Down()
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
	if err != nil {
		log.Fatalf("list migrations: %v", err)
	}

	if os.Args[1] == "list" {
		for _, f := range files {
			fmt.Println(f)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// postgres.New requires PostGIS, which the first migration installs.
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	if err := runMigrations(ctx, pool, files); err != nil {
		log.Fatal(err)
	}
	slog.Info("all migrations applied", "direction", os.Args[1], "count", len(files))
}

// runMigrations applies each file in its own transaction and stops at the
// first failure.
func runMigrations(ctx context.Context, pool *pgxpool.Pool, files []string) error {
	for _, f := range files {
		sql, err := migrations.Read(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}

		start := time.Now()
		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, sql)
			return err
		})
		if err != nil {
			return fmt.Errorf("exec %s: %w", f, err)
		}
		slog.Info("migration applied", "file", f, "duration", time.Since(start).String())
	}
	return nil
}
