// Package filecache implements ports.TrackCache on the local filesystem.
//
// Each entry lives in its own file, track-<id>.cache. Writers serialize per
// key through an in-process mutex and an advisory lock on track-<id>.cache.lock,
// then write a temporary file and rename it into place, so readers never
// see a partial entry and never need to lock.
package filecache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/samirrijal/tripsummary/internal/core/domain"
	"github.com/samirrijal/tripsummary/internal/pkg/metrics"
)

// Cache implements ports.TrackCache with one file per track.
type Cache struct {
	dir   string
	locks *keyLocks
}

// New creates the cache directory if needed.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: dir, locks: newKeyLocks()}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Ping checks that the cache directory is still there.
func (c *Cache) Ping(ctx context.Context) error {
	info, err := os.Stat(c.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", c.dir)
	}
	return nil
}

// Path returns the entry file for postID.
func (c *Cache) Path(postID int64) string {
	return filepath.Join(c.dir, fmt.Sprintf("track-%d.cache", postID))
}

// Get loads the entry for postID built from revision. Missing, corrupt and
// stale entries are reported as absent.
func (c *Cache) Get(ctx context.Context, postID int64, revision string) (*domain.TrackDocument, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(c.Path(postID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}

	rev, doc, err := domain.DecodeCacheEntry(data)
	if err != nil {
		slog.Warn("discarding unreadable track cache entry", "post_id", postID, "error", err)
		metrics.CacheCorrupt.WithLabelValues("file").Inc()
		return nil, false, nil
	}
	if rev != revision {
		slog.Debug("stale track cache entry", "post_id", postID, "cached", rev, "want", revision)
		return nil, false, nil
	}
	return doc, true, nil
}

// Put replaces the entry for postID.
func (c *Cache) Put(ctx context.Context, postID int64, revision string, doc *domain.TrackDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := domain.EncodeCacheEntry(revision, doc)
	if err != nil {
		return fmt.Errorf("encode track document: %w", err)
	}

	unlock := c.locks.lock(postID)
	defer unlock()

	final := c.Path(postID)
	release, err := lockFile(final + ".lock")
	if err != nil {
		return fmt.Errorf("lock cache entry: %w", err)
	}
	defer release()

	tmp, err := os.CreateTemp(c.dir, fmt.Sprintf("track-%d-*.tmp", postID))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close cache entry: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename cache entry: %w", err)
	}
	return nil
}

// Invalidate removes the entry for postID. A missing entry is not an error.
func (c *Cache) Invalidate(ctx context.Context, postID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := c.locks.lock(postID)
	defer unlock()

	err := os.Remove(c.Path(postID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cache entry: %w", err)
	}
	return nil
}

// keyLocks hands out one mutex per key and forgets it once unused.
type keyLocks struct {
	mu    sync.Mutex
	locks map[int64]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[int64]*keyLock)}
}

func (k *keyLocks) lock(key int64) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
