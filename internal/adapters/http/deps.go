package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/tripsummary/internal/adapters/postgres"
	"github.com/samirrijal/tripsummary/internal/core/domain"
	"github.com/samirrijal/tripsummary/internal/core/usecases"
)

// Pinger is a dependency that can report its health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Tracks *usecases.TrackService
	NATS   *nats.Conn
	DB     *postgres.DB
	Cache  Pinger

	// Units is the default unit system for altitude profiles.
	Units domain.UnitSystem
	// MaxUploadBytes caps the size of an uploaded GPX file. Zero means no cap.
	MaxUploadBytes int
}
