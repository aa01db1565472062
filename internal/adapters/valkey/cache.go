package valkey

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/samirrijal/tripsummary/internal/core/domain"
	"github.com/samirrijal/tripsummary/internal/pkg/metrics"
)

const keyPrefix = "tripsummary:track:"

// Cache implements ports.TrackCache using Valkey (Redis-compatible), for
// deployments where API nodes share one cache.
type Cache struct {
	client valkey.Client
	ttl    time.Duration
}

// New creates a new Valkey cache client. A zero ttl keeps entries until
// they are invalidated.
func New(addr string, ttl time.Duration) (*Cache, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return NewWithClient(client, ttl), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client valkey.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Key returns the Valkey key holding the entry for postID.
func Key(postID int64) string {
	return keyPrefix + strconv.FormatInt(postID, 10)
}

// Get retrieves the document for postID built from revision. A missing,
// undecodable or stale value is reported as absent.
func (c *Cache) Get(ctx context.Context, postID int64, revision string) (*domain.TrackDocument, bool, error) {
	cmd := c.client.Do(ctx, c.client.B().Get().Key(Key(postID)).Build())
	if err := cmd.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("valkey get: %w", err)
	}
	b, err := cmd.AsBytes()
	if err != nil {
		return nil, false, fmt.Errorf("valkey get: %w", err)
	}

	doc, ok := decodeEntry(postID, b, revision)
	return doc, ok, nil
}

// decodeEntry returns the document held in b when it decodes and was built
// from revision.
func decodeEntry(postID int64, b []byte, revision string) (*domain.TrackDocument, bool) {
	rev, doc, err := domain.DecodeCacheEntry(b)
	if err != nil {
		slog.Warn("discarding unreadable track cache entry", "post_id", postID, "backend", "valkey", "error", err)
		metrics.CacheCorrupt.WithLabelValues("valkey").Inc()
		return nil, false
	}
	if rev != revision {
		return nil, false
	}
	return doc, true
}

// Put stores the document for postID. SET replaces the value atomically.
func (c *Cache) Put(ctx context.Context, postID int64, revision string, doc *domain.TrackDocument) error {
	data, err := domain.EncodeCacheEntry(revision, doc)
	if err != nil {
		return fmt.Errorf("encode track document: %w", err)
	}

	set := c.client.B().Set().Key(Key(postID)).Value(valkey.BinaryString(data))
	var cmd valkey.Completed
	if c.ttl > 0 {
		cmd = set.Ex(c.ttl).Build()
	} else {
		cmd = set.Build()
	}
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey set: %w", err)
	}
	return nil
}

// Invalidate removes the entry for postID.
func (c *Cache) Invalidate(ctx context.Context, postID int64) error {
	if err := c.client.Do(ctx, c.client.B().Del().Key(Key(postID)).Build()).Error(); err != nil {
		return fmt.Errorf("valkey del: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}

// Close releases the client.
func (c *Cache) Close() {
	c.client.Close()
}
