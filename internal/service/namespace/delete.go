package namespace

import (
	"context"
	"fmt"
	"time"

	"drivestore/internal/domain"
	models "drivestore/internal/domain/models/namespace"
	nsRepo "drivestore/internal/domain/repositories/namespace"
)

// collectSubtree returns root and the descendants accepted by descend, in
// pre-order (parents before children). Children of rejected entries are
// not visited.
func (s *treeService) collectSubtree(ctx context.Context, root *models.Entry, descend func(*models.Entry) bool) ([]models.Entry, error) {
	result := []models.Entry{*root}
	if !root.IsFolder() {
		return result, nil
	}

	visited := map[string]bool{root.ID: true}
	stack := []string{root.ID}
	for len(stack) > 0 {
		folderID := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := s.entries.ListChildren(ctx, root.OwnerID, &folderID, nsRepo.ListOptions{IncludeTrashed: true})
		if err != nil {
			return nil, err
		}
		for i := range children {
			child := &children[i]
			if !descend(child) {
				continue
			}
			if visited[child.ID] {
				return nil, fmt.Errorf("%w: cycle detected at %s", domain.ErrInternal, child.ID)
			}
			visited[child.ID] = true

			result = append(result, *child)
			if child.IsFolder() {
				stack = append(stack, child.ID)
			}
		}
	}
	return result, nil
}

// activeBytes sums the sizes of non-trashed files
func activeBytes(entries []models.Entry) int64 {
	var total int64
	for _, e := range entries {
		if e.IsFile() && !e.Trashed {
			total += e.Size
		}
	}
	return total
}

// Delete permanently removes an entry and everything beneath it. Index
// records and the ledger change in one transaction; blobs are deleted
// after commit.
func (s *treeService) Delete(ctx context.Context, ownerID, id string) (err error) {
	start := time.Now()
	defer func() { observe("delete", start, err) }()

	var removed []models.Entry
	var freed int64
	err = s.runTx(ctx, "delete", func(ctx context.Context) error {
		if err := s.entries.LockNamespace(ctx, ownerID); err != nil {
			return err
		}

		entry, err := s.entries.GetByID(ctx, ownerID, id)
		if err != nil {
			return err
		}

		subtree, err := s.collectSubtree(ctx, entry, func(*models.Entry) bool { return true })
		if err != nil {
			return err
		}

		// Children before parents
		ids := make([]string, len(subtree))
		for i, e := range subtree {
			ids[len(subtree)-1-i] = e.ID
		}
		if err := s.entries.DeleteMany(ctx, ownerID, ids); err != nil {
			return err
		}

		freed = activeBytes(subtree)
		if err := s.ledger.Release(ctx, ownerID, freed); err != nil {
			return err
		}

		removed = subtree
		return nil
	})
	if err != nil {
		return err
	}

	var keys []string
	for _, e := range removed {
		if e.IsFile() && e.ContentKey != nil {
			keys = append(keys, *e.ContentKey)
		}
	}
	s.deleteBlobs(ctx, ownerID, keys)

	s.logger.Info("entry deleted",
		"id", id,
		"owner_id", ownerID,
		"entries_removed", len(removed),
		"bytes_freed", freed,
	)

	return nil
}

// Trash hides an entry and its active subtree under one trashedAt stamp and
// releases their quota. Descendants trashed earlier keep their own stamp.
func (s *treeService) Trash(ctx context.Context, ownerID, id string) (trashed *models.Entry, err error) {
	start := time.Now()
	defer func() { observe("trash", start, err) }()

	var count int
	var freed int64
	err = s.runTx(ctx, "trash", func(ctx context.Context) error {
		if err := s.entries.LockNamespace(ctx, ownerID); err != nil {
			return err
		}

		entry, err := s.entries.GetByID(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if entry.Trashed {
			return fmt.Errorf("%w: entry is already in the trash", domain.ErrInvalidOperation)
		}

		subtree, err := s.collectSubtree(ctx, entry, func(e *models.Entry) bool { return !e.Trashed })
		if err != nil {
			return err
		}

		ids := make([]string, len(subtree))
		for i, e := range subtree {
			ids[i] = e.ID
		}

		at := now()
		if err := s.entries.MarkTrashed(ctx, ownerID, ids, &at); err != nil {
			return err
		}

		freed = activeBytes(subtree)
		if err := s.ledger.Release(ctx, ownerID, freed); err != nil {
			return err
		}

		count = len(subtree)
		trashed, err = s.entries.GetByID(ctx, ownerID, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("entry trashed",
		"id", id,
		"owner_id", ownerID,
		"entries_trashed", count,
		"bytes_released", freed,
	)

	return trashed, nil
}

// Restore brings back the subtree trashed together with the entry. It
// returns to its original parent when that is still an active folder, and
// to the root otherwise. Quota for the restored files is reserved again.
func (s *treeService) Restore(ctx context.Context, ownerID, id string) (restored *models.Entry, err error) {
	start := time.Now()
	defer func() { observe("restore", start, err) }()

	var count int
	var reserved int64
	err = s.runTx(ctx, "restore", func(ctx context.Context) error {
		if err := s.entries.LockNamespace(ctx, ownerID); err != nil {
			return err
		}

		entry, err := s.entries.GetByID(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if !entry.Trashed || entry.TrashedAt == nil {
			return fmt.Errorf("%w: entry is not in the trash", domain.ErrInvalidOperation)
		}
		stamp := *entry.TrashedAt

		parent, err := s.resolveParent(ctx, ownerID, entry.ParentID)
		if err != nil && domain.Kind(err) != domain.KindNotFound {
			return err
		}
		var parentID *string
		if parent != nil {
			parentID = &parent.ID
		}
		path := pathUnder(parent)

		if err := s.checkSibling(ctx, ownerID, parentID, entry.Kind, entry.Name, entry.ID); err != nil {
			return err
		}

		subtree, err := s.collectSubtree(ctx, entry, func(e *models.Entry) bool {
			return e.Trashed && e.TrashedAt != nil && e.TrashedAt.Equal(stamp)
		})
		if err != nil {
			return err
		}

		reserved = 0
		for _, e := range subtree {
			if e.IsFile() {
				reserved += e.Size
			}
		}
		if reserved > 0 {
			if _, err := s.ledger.TryReserve(ctx, ownerID, reserved); err != nil {
				return err
			}
		}

		oldChildPath := entry.ChildPath()
		entry.ParentID = parentID
		entry.MaterializedPath = path
		entry.Trashed = false
		entry.TrashedAt = nil
		entry.UpdatedAt = now()
		if err := s.entries.Update(ctx, entry); err != nil {
			return err
		}

		ids := make([]string, 0, len(subtree)-1)
		for _, e := range subtree[1:] {
			ids = append(ids, e.ID)
		}
		if err := s.entries.MarkTrashed(ctx, ownerID, ids, nil); err != nil {
			return err
		}

		if entry.IsFolder() && entry.ChildPath() != oldChildPath {
			if _, err := s.propagatePaths(ctx, entry); err != nil {
				return err
			}
		}

		count = len(subtree)
		restored = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("entry restored",
		"id", id,
		"owner_id", ownerID,
		"parent_id", restored.ParentID,
		"entries_restored", count,
		"bytes_reserved", reserved,
	)

	return restored, nil
}
