// Package local stores file content on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"drivestore/internal/domain"
	models "drivestore/internal/domain/models/namespace"
	nsRepo "drivestore/internal/domain/repositories/namespace"
	"drivestore/internal/metrics"
)

const backendName = "local"

// Store implements ContentStore under a root directory
type Store struct {
	root   string
	ttl    time.Duration
	logger *slog.Logger
}

// New creates the root directory if needed
func New(root string, ttl time.Duration, logger *slog.Logger) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve content dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create content dir: %w", err)
	}
	return &Store{root: abs, ttl: ttl, logger: logger}, nil
}

var _ nsRepo.ContentStore = (*Store)(nil)

// Type returns the backend name
func (s *Store) Type() string {
	return backendName
}

func (s *Store) path(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: invalid content key %q", domain.ErrValidation, key)
	}
	return filepath.Join(s.root, rel), nil
}

// Put writes to a temp file and renames it into place, so a cancelled or
// failed upload never leaves a partial blob under the final key.
func (s *Store) Put(ctx context.Context, key string, data []byte, mimeType string) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordContentOperation(backendName, "put", time.Since(start), err == nil)
	}()

	target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: put %s: %v", domain.ErrStorageUnavailable, key, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("%w: put %s: %v", domain.ErrStorageUnavailable, key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", domain.ErrStorageUnavailable, key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: put %s: %v", domain.ErrStorageUnavailable, key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: put %s: %v", domain.ErrStorageUnavailable, key, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: put %s: %v", domain.ErrStorageUnavailable, key, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("%w: put %s: %v", domain.ErrStorageUnavailable, key, err)
	}

	metrics.RecordContentUpload(int64(len(data)))
	return nil
}

// Get returns a file:// reference for an existing blob
func (s *Store) Get(ctx context.Context, key string) (*models.ContentReference, error) {
	target, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("content %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: stat %s: %v", domain.ErrStorageUnavailable, key, err)
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(target)}
	return &models.ContentReference{
		URL:       u.String(),
		ExpiresAt: time.Now().Add(s.ttl).UTC(),
	}, nil
}

// Delete removes a blob. Missing blobs are ignored and the owner directory
// is kept.
func (s *Store) Delete(ctx context.Context, key string) error {
	start := time.Now()
	target, err := s.path(key)
	if err != nil {
		return err
	}

	err = os.Remove(target)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		err = nil
	}
	metrics.RecordContentOperation(backendName, "delete", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", domain.ErrStorageUnavailable, key, err)
	}
	// Owner directories are never removed: a concurrent Put may sit between
	// MkdirAll and CreateTemp in the same directory.
	return nil
}
