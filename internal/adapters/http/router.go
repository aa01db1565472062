package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/tripsummary/internal/pkg/metrics"
)

const (
	readTimeout   = 15 * time.Second
	uploadTimeout = 60 * time.Second
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness, no timeout
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// REST API v1, 15s per read and 60s per upload
	v1 := app.Group("/v1")
	v1.Get("/tracks", timeout.NewWithContext(ListTracksHandler(deps), readTimeout))
	v1.Get("/tracks/status", timeout.NewWithContext(TrackStatusHandler(deps), readTimeout))
	v1.Get("/tracks/:id", timeout.NewWithContext(GetTrackHandler(deps), readTimeout))
	v1.Get("/tracks/:id/geojson", timeout.NewWithContext(TrackGeoJSONHandler(deps), readTimeout))
	v1.Get("/tracks/:id/profile", timeout.NewWithContext(TrackProfileHandler(deps), readTimeout))
	v1.Put("/tracks/:id", timeout.NewWithContext(UploadTrackHandler(deps), uploadTimeout))
	v1.Post("/tracks/:id", timeout.NewWithContext(UploadTrackHandler(deps), uploadTimeout))
	v1.Delete("/tracks/:id", timeout.NewWithContext(DeleteTrackHandler(deps), readTimeout))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI and the OpenAPI document)
	SetupDocs(app)

	// WebSocket relay of track events
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
}
