package namespace

import (
	"context"
	"time"

	"drivestore/internal/domain/models/namespace"
)

// ListOptions narrows ListChildren
type ListOptions struct {
	IncludeTrashed bool
	Filter         namespace.ListFilter
}

// PathUpdate rewrites one entry's materialized path during propagation
type PathUpdate struct {
	ID   string
	Path string
}

// EntryRepository defines data access operations for namespace entries.
// Every method is scoped to an owner; foreign ids behave as missing.
// It stores what it is given and does not enforce tree invariants.
type EntryRepository interface {
	// Create inserts a new entry. A non-trashed sibling with the same
	// name and kind yields a ConflictError.
	Create(ctx context.Context, entry *namespace.Entry) error

	// GetByID retrieves an entry by ID, trashed entries included
	GetByID(ctx context.Context, ownerID, id string) (*namespace.Entry, error)

	// Update writes name, parent, path, starred and trash fields if the
	// stored version still matches entry.Version, then bumps the version.
	// A stale version wraps domain.ErrConcurrentUpdate.
	Update(ctx context.Context, entry *namespace.Entry) error

	// UpdatePaths rewrites materialized paths in one batch
	UpdatePaths(ctx context.Context, ownerID string, updates []PathUpdate) error

	// MarkTrashed sets trashed state on the given entries.
	// A nil trashedAt clears it.
	MarkTrashed(ctx context.Context, ownerID string, ids []string, trashedAt *time.Time) error

	// DeleteMany removes entries. Callers pass children before parents.
	DeleteMany(ctx context.Context, ownerID string, ids []string) error

	// ListChildren lists immediate children of a folder (nil = root level)
	ListChildren(ctx context.Context, ownerID string, parentID *string, opts ListOptions) ([]namespace.Entry, error)

	// FindSibling returns the non-trashed entry with the given parent, kind
	// and name, or nil if there is none.
	FindSibling(ctx context.Context, ownerID string, parentID *string, kind namespace.EntryKind, name string) (*namespace.Entry, error)

	// SearchByPrefix finds non-trashed entries whose name starts with
	// prefix, case-insensitively
	SearchByPrefix(ctx context.Context, ownerID, prefix string, limit int) ([]namespace.Entry, error)

	// ListTrashed lists every trashed entry of an owner
	ListTrashed(ctx context.Context, ownerID string) ([]namespace.Entry, error)

	// ListAll retrieves the owner's whole namespace (flat list)
	ListAll(ctx context.Context, ownerID string) ([]namespace.Entry, error)

	// LockNamespace serializes structural changes to one owner's tree for
	// the rest of the current transaction. Outside a transaction it is a no-op.
	LockNamespace(ctx context.Context, ownerID string) error
}
