package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tripsummary",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tripsummary",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tripsummary",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Track metrics
	TrackParses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tripsummary",
		Subsystem: "tracks",
		Name:      "parses_total",
		Help:      "GPX parses by outcome (ok, soft_errors, malformed)",
	}, []string{"outcome"})

	TrackUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tripsummary",
		Subsystem: "tracks",
		Name:      "uploads_total",
		Help:      "Track uploads by outcome",
	}, []string{"outcome"})

	SimplifyRatio = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tripsummary",
		Subsystem: "tracks",
		Name:      "simplify_kept_ratio",
		Help:      "Fraction of points kept by simplification",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.2, 0.35, 0.5, 0.75, 1},
	})

	ParseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tripsummary",
		Subsystem: "tracks",
		Name:      "parse_duration_seconds",
		Help:      "Duration of GPX parsing and simplification",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	TrackEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tripsummary",
		Subsystem: "tracks",
		Name:      "events_total",
		Help:      "Track events published or received",
	}, []string{"direction", "type"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tripsummary",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tripsummary",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tripsummary",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	CacheCorrupt = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tripsummary",
		Subsystem: "cache",
		Name:      "corrupt_entries_total",
		Help:      "Cache entries discarded because they could not be decoded",
	}, []string{"backend"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tripsummary",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tripsummary",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tripsummary",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})

	DBPoolEmptyAcquires = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tripsummary",
		Subsystem: "db",
		Name:      "pool_empty_acquires_total",
		Help:      "Total times a connection had to be established when acquiring from pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// PoolStat is the subset of pgxpool.Stat reported as gauges.
type PoolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
	EmptyAcquireCount() int64
}

// UpdateDBPoolMetrics updates database pool gauges. lastEmpty is the
// previous EmptyAcquireCount; the new value is returned for the next call.
func UpdateDBPoolMetrics(s PoolStat, lastEmpty int64) int64 {
	DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
	DBPoolConnsIdle.Set(float64(s.IdleConns()))
	DBPoolConnsOpen.Set(float64(s.TotalConns()))
	empty := s.EmptyAcquireCount()
	if empty > lastEmpty {
		DBPoolEmptyAcquires.Add(float64(empty - lastEmpty))
	}
	return empty
}
