package namespace

import (
	"sort"
	"strings"
	"time"
)

// RootPath is the materialized path of every root-level entry.
const RootPath = "/"

// PathSeparator terminates every segment of a materialized path.
const PathSeparator = "/"

// EntryKind distinguishes files from folders
type EntryKind string

const (
	KindFile   EntryKind = "file"
	KindFolder EntryKind = "folder"
)

// Valid reports whether k is a known kind
func (k EntryKind) Valid() bool {
	return k == KindFile || k == KindFolder
}

// Entry is a file or folder in an owner's namespace.
//
// MaterializedPath encodes the parent chain only ("/Docs/Reports/"), never the
// entry's own name.
type Entry struct {
	ID               string     `json:"id" db:"id"`
	OwnerID          string     `json:"owner_id" db:"owner_id"`
	Kind             EntryKind  `json:"kind" db:"kind"`
	Name             string     `json:"name" db:"name"`
	ParentID         *string    `json:"parent_id" db:"parent_id"` // NULL = root level
	MaterializedPath string     `json:"path" db:"materialized_path"`
	ContentKey       *string    `json:"-" db:"content_key"` // files only
	MimeType         string     `json:"mime_type,omitempty" db:"mime_type"`
	Size             int64      `json:"size" db:"size"`
	Starred          bool       `json:"starred" db:"starred"`
	Trashed          bool       `json:"trashed" db:"trashed"`
	TrashedAt        *time.Time `json:"trashed_at,omitempty" db:"trashed_at"`
	Version          int64      `json:"version" db:"version"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// IsFolder reports whether the entry is a folder
func (e *Entry) IsFolder() bool {
	return e.Kind == KindFolder
}

// IsFile reports whether the entry is a file
func (e *Entry) IsFile() bool {
	return e.Kind == KindFile
}

// ChildPath is the materialized path of this entry's children.
func (e *Entry) ChildPath() string {
	return e.MaterializedPath + e.Name + PathSeparator
}

// FullPath is the display path of the entry itself.
func (e *Entry) FullPath() string {
	if e.IsFolder() {
		return e.ChildPath()
	}
	return e.MaterializedPath + e.Name
}

// Depth is the number of path segments above the entry, counting the root.
func (e *Entry) Depth() int {
	return PathDepth(e.MaterializedPath)
}

// PathDepth counts the separators in a materialized path.
func PathDepth(path string) int {
	return strings.Count(path, PathSeparator)
}

// SameParent reports whether two optional parent ids refer to the same parent
func SameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ListFilter narrows a children listing
type ListFilter struct {
	NameContains string // case-insensitive substring
	StarredOnly  bool
}

// Matches applies the filter to a single entry
func (f ListFilter) Matches(e *Entry) bool {
	if f.StarredOnly && !e.Starred {
		return false
	}
	if f.NameContains != "" &&
		!strings.Contains(strings.ToLower(e.Name), strings.ToLower(f.NameContains)) {
		return false
	}
	return true
}

// SortForListing orders entries folders first, each group newest first.
// Ties fall back to id so listings are stable.
func SortForListing(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := &entries[i], &entries[j]
		if a.IsFolder() != b.IsFolder() {
			return a.IsFolder()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
