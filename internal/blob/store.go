// Package blob stores ingested source videos so they can be re-served
// after ingestion. The production deployment archives to an S3-compatible
// store; without one configured, videos stay on local disk.
package blob

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store archives and retrieves source videos by object key.
type Store interface {
	// Put archives the file at path under key.
	Put(ctx context.Context, key, path string) error

	// Get opens the archived object for reading. The caller closes it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Presign returns a time-limited URL for direct download, or an empty
	// string when the store cannot produce one.
	Presign(ctx context.Context, key string, expiry time.Duration) (string, error)

	// Remove deletes the archived object.
	Remove(ctx context.Context, key string) error
}

// LocalStore keeps videos in a directory on disk. It is the default when no
// remote blob store is configured.
type LocalStore struct {
	dir    string
	logger *slog.Logger
}

func NewLocalStore(dir string, logger *slog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &LocalStore{dir: dir, logger: logger}, nil
}

func (s *LocalStore) Put(ctx context.Context, key, path string) error {
	dest, err := s.keyPath(key)
	if err != nil {
		return err
	}
	if dest == path {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create blob: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("copy blob: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}

	s.logger.Info("video archived", "key", key)
	return nil
}

func (s *LocalStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Presign is not supported for local storage; serving goes through the API.
func (s *LocalStore) Presign(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "", nil
}

func (s *LocalStore) Remove(ctx context.Context, key string) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Path returns the on-disk location for key, for callers that serve files
// directly with range support.
func (s *LocalStore) Path(key string) (string, error) {
	return s.keyPath(key)
}

// keyPath maps a key to a path inside the store directory and rejects keys
// that would escape it.
func (s *LocalStore) keyPath(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	path := filepath.Join(s.dir, filepath.Clean("/"+key))
	if !strings.HasPrefix(path, s.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return path, nil
}
