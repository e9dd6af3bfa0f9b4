package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"drivestore/internal/domain"
	models "drivestore/internal/domain/models/namespace"
	nsRepo "drivestore/internal/domain/repositories/namespace"

	badger "github.com/dgraph-io/badger/v4"
)

// entryRecord is the stored form of an entry. It keeps fields the API
// representation hides.
type entryRecord struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"owner_id"`
	Kind             string     `json:"kind"`
	Name             string     `json:"name"`
	ParentID         *string    `json:"parent_id,omitempty"`
	MaterializedPath string     `json:"path"`
	ContentKey       *string    `json:"content_key,omitempty"`
	MimeType         string     `json:"mime_type,omitempty"`
	Size             int64      `json:"size"`
	Starred          bool       `json:"starred"`
	Trashed          bool       `json:"trashed"`
	TrashedAt        *time.Time `json:"trashed_at,omitempty"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toRecord(e *models.Entry) entryRecord {
	return entryRecord{
		ID:               e.ID,
		OwnerID:          e.OwnerID,
		Kind:             string(e.Kind),
		Name:             e.Name,
		ParentID:         e.ParentID,
		MaterializedPath: e.MaterializedPath,
		ContentKey:       e.ContentKey,
		MimeType:         e.MimeType,
		Size:             e.Size,
		Starred:          e.Starred,
		Trashed:          e.Trashed,
		TrashedAt:        e.TrashedAt,
		Version:          e.Version,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

func (r *entryRecord) toEntry() *models.Entry {
	return &models.Entry{
		ID:               r.ID,
		OwnerID:          r.OwnerID,
		Kind:             models.EntryKind(r.Kind),
		Name:             r.Name,
		ParentID:         r.ParentID,
		MaterializedPath: r.MaterializedPath,
		ContentKey:       r.ContentKey,
		MimeType:         r.MimeType,
		Size:             r.Size,
		Starred:          r.Starred,
		Trashed:          r.Trashed,
		TrashedAt:        r.TrashedAt,
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// BadgerEntryRepository implements the EntryRepository interface.
// It emulates the Postgres constraints: active sibling names are unique and
// a parent must exist.
type BadgerEntryRepository struct {
	store *Store
}

// NewEntryRepository creates a new entry repository
func NewEntryRepository(store *Store) nsRepo.EntryRepository {
	return &BadgerEntryRepository{store: store}
}

func getEntry(txn *badger.Txn, ownerID, id string) (*models.Entry, error) {
	item, err := txn.Get(keyEntry(ownerID, id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("entry %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get entry: %w", err)
	}

	var rec entryRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("decode entry %s: %w", id, err)
	}
	return rec.toEntry(), nil
}

func putEntry(txn *badger.Txn, e *models.Entry) error {
	data, err := json.Marshal(toRecord(e))
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	return txn.Set(keyEntry(e.OwnerID, e.ID), data)
}

// scanKeys collects keys under prefix. The iterator is closed before
// returning so callers may write in the same transaction.
func scanKeys(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

// scanEntries decodes every entry record under prefix
func scanEntries(txn *badger.Txn, prefix []byte, keep func(*models.Entry) bool) ([]models.Entry, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	entries := []models.Entry{}
	for it.Rewind(); it.Valid(); it.Next() {
		var rec entryRecord
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		if e := rec.toEntry(); keep == nil || keep(e) {
			entries = append(entries, *e)
		}
	}
	return entries, nil
}

func children(txn *badger.Txn, ownerID string, parentID *string) ([]*models.Entry, error) {
	prefix := keyChildPrefix(ownerID, parentID)
	keys := scanKeys(txn, prefix)

	result := make([]*models.Entry, 0, len(keys))
	for _, key := range keys {
		id := string(key[len(prefix):])
		e, err := getEntry(txn, ownerID, id)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

func findSibling(txn *badger.Txn, ownerID string, parentID *string, kind models.EntryKind, name, excludeID string) (*models.Entry, error) {
	siblings, err := children(txn, ownerID, parentID)
	if err != nil {
		return nil, err
	}
	for _, s := range siblings {
		if s.ID != excludeID && !s.Trashed && s.Kind == kind && s.Name == name {
			return s, nil
		}
	}
	return nil, nil
}

// checkPlacement enforces the parent reference and active sibling uniqueness
func checkPlacement(txn *badger.Txn, e *models.Entry) error {
	if e.ParentID != nil {
		if _, err := getEntry(txn, e.OwnerID, *e.ParentID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("parent folder: %w", domain.ErrNotFound)
			}
			return err
		}
	}
	if e.Trashed {
		return nil
	}

	existing, err := findSibling(txn, e.OwnerID, e.ParentID, e.Kind, e.Name, e.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("a %s named %q already exists in this location", e.Kind, e.Name),
			ResourceType: string(e.Kind),
			ResourceID:   existing.ID,
		}
	}
	return nil
}

// Create inserts a new entry
func (r *BadgerEntryRepository) Create(ctx context.Context, entry *models.Entry) error {
	return r.store.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(keyEntry(entry.OwnerID, entry.ID)); err == nil {
			return fmt.Errorf("entry %s: %w", entry.ID, domain.ErrConflict)
		}
		if err := checkPlacement(txn, entry); err != nil {
			return err
		}

		entry.Version = 1
		if err := putEntry(txn, entry); err != nil {
			return err
		}
		return txn.Set(keyChild(entry.OwnerID, entry.ParentID, entry.ID), nil)
	})
}

// GetByID retrieves an entry by ID
func (r *BadgerEntryRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Entry, error) {
	var entry *models.Entry
	err := r.store.view(ctx, func(txn *badger.Txn) error {
		var err error
		entry, err = getEntry(txn, ownerID, id)
		return err
	})
	return entry, err
}

// Update writes the mutable fields if the version still matches
func (r *BadgerEntryRepository) Update(ctx context.Context, entry *models.Entry) error {
	return r.store.update(ctx, func(txn *badger.Txn) error {
		current, err := getEntry(txn, entry.OwnerID, entry.ID)
		if err != nil {
			return err
		}
		if current.Version != entry.Version {
			return fmt.Errorf("entry %s version %d: %w", entry.ID, entry.Version, domain.ErrConcurrentUpdate)
		}

		placementChanged := !models.SameParent(current.ParentID, entry.ParentID) ||
			current.Name != entry.Name || current.Trashed != entry.Trashed
		if placementChanged {
			if err := checkPlacement(txn, entry); err != nil {
				return err
			}
		}

		if !models.SameParent(current.ParentID, entry.ParentID) {
			if err := txn.Delete(keyChild(entry.OwnerID, current.ParentID, entry.ID)); err != nil {
				return err
			}
			if err := txn.Set(keyChild(entry.OwnerID, entry.ParentID, entry.ID), nil); err != nil {
				return err
			}
		}

		// Immutable fields come from the stored record
		updated := *current
		updated.Name = entry.Name
		updated.ParentID = entry.ParentID
		updated.MaterializedPath = entry.MaterializedPath
		updated.Starred = entry.Starred
		updated.Trashed = entry.Trashed
		updated.TrashedAt = entry.TrashedAt
		updated.UpdatedAt = entry.UpdatedAt
		updated.Version = current.Version + 1

		if err := putEntry(txn, &updated); err != nil {
			return err
		}
		entry.Version = updated.Version
		return nil
	})
}

// UpdatePaths rewrites materialized paths
func (r *BadgerEntryRepository) UpdatePaths(ctx context.Context, ownerID string, updates []nsRepo.PathUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return r.store.update(ctx, func(txn *badger.Txn) error {
		for _, u := range updates {
			e, err := getEntry(txn, ownerID, u.ID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("entry %s: %w", u.ID, domain.ErrConcurrentUpdate)
				}
				return err
			}
			e.MaterializedPath = u.Path
			e.Version++
			if err := putEntry(txn, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkTrashed sets or clears trashed state on the given entries
func (r *BadgerEntryRepository) MarkTrashed(ctx context.Context, ownerID string, ids []string, trashedAt *time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return r.store.update(ctx, func(txn *badger.Txn) error {
		for _, id := range ids {
			e, err := getEntry(txn, ownerID, id)
			if err != nil {
				return err
			}
			wasTrashed := e.Trashed
			e.Trashed = trashedAt != nil
			e.TrashedAt = trashedAt
			e.UpdatedAt = now
			e.Version++

			// Coming back into the active set re-checks name uniqueness
			if wasTrashed && !e.Trashed {
				existing, err := findSibling(txn, ownerID, e.ParentID, e.Kind, e.Name, e.ID)
				if err != nil {
					return err
				}
				if existing != nil {
					return &domain.ConflictError{
						Message:      fmt.Sprintf("a %s named %q already exists in this location", e.Kind, e.Name),
						ResourceType: string(e.Kind),
						ResourceID:   existing.ID,
					}
				}
			}
			if err := putEntry(txn, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteMany removes entries and their child index keys
func (r *BadgerEntryRepository) DeleteMany(ctx context.Context, ownerID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.store.update(ctx, func(txn *badger.Txn) error {
		for _, id := range ids {
			e, err := getEntry(txn, ownerID, id)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					continue
				}
				return err
			}
			if err := txn.Delete(keyChild(ownerID, e.ParentID, id)); err != nil {
				return err
			}
			if err := txn.Delete(keyEntry(ownerID, id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListChildren lists immediate children of a folder
func (r *BadgerEntryRepository) ListChildren(ctx context.Context, ownerID string, parentID *string, opts nsRepo.ListOptions) ([]models.Entry, error) {
	result := []models.Entry{}
	err := r.store.view(ctx, func(txn *badger.Txn) error {
		kids, err := children(txn, ownerID, parentID)
		if err != nil {
			return err
		}
		for _, e := range kids {
			if e.Trashed && !opts.IncludeTrashed {
				continue
			}
			if !opts.Filter.Matches(e) {
				continue
			}
			result = append(result, *e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}

	models.SortForListing(result)
	return result, nil
}

// FindSibling returns the active entry with the given parent, kind and name
func (r *BadgerEntryRepository) FindSibling(ctx context.Context, ownerID string, parentID *string, kind models.EntryKind, name string) (*models.Entry, error) {
	var sibling *models.Entry
	err := r.store.view(ctx, func(txn *badger.Txn) error {
		var err error
		sibling, err = findSibling(txn, ownerID, parentID, kind, name, "")
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find sibling: %w", err)
	}
	return sibling, nil
}

// SearchByPrefix finds active entries whose name starts with prefix
func (r *BadgerEntryRepository) SearchByPrefix(ctx context.Context, ownerID, prefix string, limit int) ([]models.Entry, error) {
	lowered := strings.ToLower(prefix)

	var result []models.Entry
	err := r.store.view(ctx, func(txn *badger.Txn) error {
		var err error
		result, err = scanEntries(txn, keyOwnerEntries(ownerID), func(e *models.Entry) bool {
			return !e.Trashed && strings.HasPrefix(strings.ToLower(e.Name), lowered)
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("search entries: %w", err)
	}

	sortByName(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListTrashed lists every trashed entry of an owner, newest first
func (r *BadgerEntryRepository) ListTrashed(ctx context.Context, ownerID string) ([]models.Entry, error) {
	var result []models.Entry
	err := r.store.view(ctx, func(txn *badger.Txn) error {
		var err error
		result, err = scanEntries(txn, keyOwnerEntries(ownerID), func(e *models.Entry) bool {
			return e.Trashed
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list trashed: %w", err)
	}

	sortByTrashedAt(result)
	return result, nil
}

// ListAll retrieves the owner's whole namespace
func (r *BadgerEntryRepository) ListAll(ctx context.Context, ownerID string) ([]models.Entry, error) {
	var result []models.Entry
	err := r.store.view(ctx, func(txn *badger.Txn) error {
		var err error
		result, err = scanEntries(txn, keyOwnerEntries(ownerID), nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	sortByPath(result)
	return result, nil
}

// LockNamespace bumps the owner's lock counter. Two transactions that both
// lock the same owner conflict at commit, so one of them is retried.
func (r *BadgerEntryRepository) LockNamespace(ctx context.Context, ownerID string) error {
	txn := txnFrom(ctx)
	if txn == nil {
		return nil
	}

	var counter uint64
	item, err := txn.Get(keyLock(ownerID))
	switch {
	case err == nil:
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &counter)
		}); err != nil {
			return fmt.Errorf("decode lock: %w", err)
		}
	case !errors.Is(err, badger.ErrKeyNotFound):
		return fmt.Errorf("lock namespace: %w", err)
	}

	data, _ := json.Marshal(counter + 1)
	if err := txn.Set(keyLock(ownerID), data); err != nil {
		return fmt.Errorf("lock namespace: %w", err)
	}
	return nil
}
