package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/samirrijal/tripsummary/internal/core/domain"
)

// Store implements ports.TrackFileStore on a local directory.
type Store struct {
	dir string
}

// New creates the upload directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// FileName returns a stored name for an upload of postID. Every upload gets
// its own file so a record keeps pointing at intact content until it is
// replaced.
func FileName(postID int64, at time.Time) string {
	return fmt.Sprintf("track-%d-%s.gpx", postID, strconv.FormatInt(at.UnixNano(), 36))
}

// Save writes the upload to a new file and returns its name. Existing files
// are never overwritten; the caller removes the previous file once the record
// points at the new one.
func (s *Store) Save(ctx context.Context, postID int64, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var (
		name string
		f    *os.File
		err  error
	)
	for at := time.Now(); ; at = at.Add(time.Nanosecond) {
		name = FileName(postID, at)
		f, err = os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if !errors.Is(err, fs.ErrExist) {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("create track file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("sync upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close upload: %w", err)
	}
	return name, nil
}

// Read returns the contents of a stored file. Only the base name of file is
// used, so records cannot point outside the store.
func (s *Store) Read(ctx context.Context, file string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(file))
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTrackFileNotFound, file)
	}
	if err != nil {
		return nil, fmt.Errorf("read track file: %w", err)
	}
	return data, nil
}

// Delete removes a stored file. A missing file is not an error.
func (s *Store) Delete(ctx context.Context, file string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(s.path(file))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove track file: %w", err)
	}
	return nil
}

func (s *Store) path(file string) string {
	return filepath.Join(s.dir, filepath.Base(file))
}
