package namespace

import (
	"context"

	"drivestore/internal/domain/models/namespace"
)

// ContentStore moves file bytes in and out of the object store.
// Implementations return errors wrapping domain.ErrStorageUnavailable for
// transport failures and domain.ErrNotFound for missing keys.
type ContentStore interface {
	Put(ctx context.Context, key string, data []byte, mimeType string) error
	Get(ctx context.Context, key string) (*namespace.ContentReference, error)
	Delete(ctx context.Context, key string) error

	// Type returns the backend name ("s3", "local", "memory")
	Type() string
}
