package namespace

import (
	"context"

	"drivestore/internal/domain/models/namespace"
)

// TreeService manages an owner's file/folder hierarchy.
// Every method takes the owner id resolved by the caller.
type TreeService interface {
	// ListChildren lists a folder's active children, folders first
	ListChildren(ctx context.Context, ownerID string, parentID *string, filter namespace.ListFilter) ([]namespace.Entry, error)

	// GetEntry retrieves one entry (trashed included)
	GetEntry(ctx context.Context, ownerID, id string) (*namespace.Entry, error)

	// CreateFolder creates an empty folder
	CreateFolder(ctx context.Context, req *CreateFolderRequest) (*namespace.Entry, error)

	// CreateFile reserves quota, uploads content and records the entry
	CreateFile(ctx context.Context, req *CreateFileRequest) (*namespace.Entry, error)

	// Rename changes an entry's name
	Rename(ctx context.Context, ownerID, id, newName string) (*namespace.Entry, error)

	// Move reparents an entry (nil = root level)
	Move(ctx context.Context, ownerID, id string, newParentID *string) (*namespace.Entry, error)

	// UpdateEntry applies a rename and/or move atomically
	UpdateEntry(ctx context.Context, ownerID, id string, req *UpdateEntryRequest) (*namespace.Entry, error)

	// ToggleStar flips the starred flag
	ToggleStar(ctx context.Context, ownerID, id string) (*namespace.Entry, error)

	// SetStarred sets the starred flag explicitly
	SetStarred(ctx context.Context, ownerID, id string, starred bool) (*namespace.Entry, error)

	// Trash hides an entry and its subtree, releasing their quota
	Trash(ctx context.Context, ownerID, id string) (*namespace.Entry, error)

	// Restore brings a trashed subtree back
	Restore(ctx context.Context, ownerID, id string) (*namespace.Entry, error)

	// ListTrash lists the roots of trashed subtrees
	ListTrash(ctx context.Context, ownerID string) ([]namespace.Entry, error)

	// Delete permanently removes an entry and its subtree
	Delete(ctx context.Context, ownerID, id string) error

	// Search finds active entries by name prefix
	Search(ctx context.Context, ownerID, query string, limit int) ([]namespace.Entry, error)

	// DownloadURL returns a time-limited reference to a file's content
	DownloadURL(ctx context.Context, ownerID, id string) (*namespace.ContentReference, error)

	// Usage returns the owner's quota usage
	Usage(ctx context.Context, ownerID string) (*namespace.Usage, error)
}

// ConsistencyChecker audits an owner's namespace against the tree invariants
type ConsistencyChecker interface {
	// Check reports problems without changing anything
	Check(ctx context.Context, ownerID string) (*namespace.CheckReport, error)

	// RepairUsage recounts the ledger from active files
	RepairUsage(ctx context.Context, ownerID string) (*namespace.CheckReport, error)
}

// CreateFolderRequest represents a folder creation request
type CreateFolderRequest struct {
	OwnerID  string  `json:"-"`
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id,omitempty"` // null for root
}

// CreateFileRequest represents a file upload
type CreateFileRequest struct {
	OwnerID  string
	Name     string
	ParentID *string // null for root
	Content  []byte
	MimeType string // client hint
}

// OptionalParent tracks tri-state semantics for parent updates (RFC 7396 PATCH).
// Transport-agnostic; handlers map from httputil.OptionalString.
//   - Present=false: don't move
//   - Present=true, Value=nil: move to root
//   - Present=true, Value=&id: move under id
type OptionalParent struct {
	Present bool
	Value   *string
}

// UpdateEntryRequest represents a rename and/or move
type UpdateEntryRequest struct {
	Name     *string        // rename when non-nil
	ParentID OptionalParent // move when present
}
