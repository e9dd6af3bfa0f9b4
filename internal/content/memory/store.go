// Package memory keeps file content in process memory. It backs tests and
// single-process demos.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"drivestore/internal/domain"
	models "drivestore/internal/domain/models/namespace"
	nsRepo "drivestore/internal/domain/repositories/namespace"
)

const backendName = "memory"

type blob struct {
	data     []byte
	mimeType string
}

// Store implements ContentStore in memory
type Store struct {
	mu    sync.RWMutex
	blobs map[string]blob
	ttl   time.Duration

	// Fault injection hooks, nil in normal use
	PutHook    func(ctx context.Context, key string) error
	DeleteHook func(ctx context.Context, key string) error
}

// New creates an empty in-memory store
func New(ttl time.Duration) *Store {
	return &Store{blobs: make(map[string]blob), ttl: ttl}
}

var _ nsRepo.ContentStore = (*Store)(nil)

// Type returns the backend name
func (s *Store) Type() string {
	return backendName
}

// Put stores a copy of data
func (s *Store) Put(ctx context.Context, key string, data []byte, mimeType string) error {
	if s.PutHook != nil {
		if err := s.PutHook(ctx, key); err != nil {
			return fmt.Errorf("%w: put %s: %v", domain.ErrStorageUnavailable, key, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: put %s: %v", domain.ErrStorageUnavailable, key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = blob{data: append([]byte(nil), data...), mimeType: mimeType}
	return nil
}

// Get returns a memory:// reference for an existing key
func (s *Store) Get(ctx context.Context, key string) (*models.ContentReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.blobs[key]; !ok {
		return nil, fmt.Errorf("content %s: %w", key, domain.ErrNotFound)
	}
	return &models.ContentReference{
		URL:       "memory://" + key,
		ExpiresAt: time.Now().Add(s.ttl).UTC(),
	}, nil
}

// Delete removes a key. Missing keys are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.DeleteHook != nil {
		if err := s.DeleteHook(ctx, key); err != nil {
			return fmt.Errorf("%w: delete %s: %v", domain.ErrStorageUnavailable, key, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// Read returns the stored bytes
func (s *Store) Read(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	return b.data, ok
}

// Len returns the number of stored blobs
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
