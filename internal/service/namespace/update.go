package namespace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"drivestore/internal/domain"
	models "drivestore/internal/domain/models/namespace"
	nsRepo "drivestore/internal/domain/repositories/namespace"
	nsSvc "drivestore/internal/domain/services/namespace"
)

// pathBatchSize bounds a single UpdatePaths call during propagation
const pathBatchSize = 500

// Rename changes an entry's name
func (s *treeService) Rename(ctx context.Context, ownerID, id, newName string) (*models.Entry, error) {
	return s.update(ctx, "rename", ownerID, id, &nsSvc.UpdateEntryRequest{Name: &newName})
}

// Move reparents an entry (nil = root level)
func (s *treeService) Move(ctx context.Context, ownerID, id string, newParentID *string) (*models.Entry, error) {
	return s.update(ctx, "move", ownerID, id, &nsSvc.UpdateEntryRequest{
		ParentID: nsSvc.OptionalParent{Present: true, Value: newParentID},
	})
}

// UpdateEntry applies a rename and/or move atomically
func (s *treeService) UpdateEntry(ctx context.Context, ownerID, id string, req *nsSvc.UpdateEntryRequest) (*models.Entry, error) {
	if req.Name == nil && !req.ParentID.Present {
		return nil, fmt.Errorf("%w: at least one field must be provided", domain.ErrValidation)
	}
	return s.update(ctx, "update", ownerID, id, req)
}

func (s *treeService) update(ctx context.Context, op, ownerID, id string, req *nsSvc.UpdateEntryRequest) (updated *models.Entry, err error) {
	start := time.Now()
	defer func() { observe(op, start, err) }()

	var newName string
	if req.Name != nil {
		if newName, err = validateName(*req.Name); err != nil {
			return nil, err
		}
	}

	var descendants int
	err = s.runTx(ctx, op, func(ctx context.Context) error {
		if err := s.entries.LockNamespace(ctx, ownerID); err != nil {
			return err
		}

		entry, err := s.entries.GetByID(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if entry.Trashed {
			return fmt.Errorf("%w: entry is in the trash, restore it first", domain.ErrInvalidOperation)
		}

		name := entry.Name
		if req.Name != nil {
			name = newName
		}
		parentID := entry.ParentID
		path := entry.MaterializedPath

		if req.ParentID.Present {
			parent, err := s.resolveParent(ctx, ownerID, req.ParentID.Value)
			if err != nil {
				return err
			}
			if entry.IsFolder() && parent != nil {
				if err := s.checkNotDescendant(ctx, ownerID, entry.ID, parent); err != nil {
					return err
				}
			}
			parentID = req.ParentID.Value
			path = pathUnder(parent)
		}

		if name == entry.Name && models.SameParent(parentID, entry.ParentID) {
			updated = entry
			return nil
		}

		if err := s.checkSibling(ctx, ownerID, parentID, entry.Kind, name, entry.ID); err != nil {
			return err
		}
		if err := s.checkDepth(path); err != nil {
			return err
		}

		oldChildPath := entry.ChildPath()
		entry.Name = name
		entry.ParentID = parentID
		entry.MaterializedPath = path
		entry.UpdatedAt = now()
		if err := s.entries.Update(ctx, entry); err != nil {
			return err
		}

		descendants = 0
		if entry.IsFolder() && entry.ChildPath() != oldChildPath {
			if descendants, err = s.propagatePaths(ctx, entry); err != nil {
				return err
			}
		}

		updated = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("entry updated",
		"op", op,
		"id", updated.ID,
		"name", updated.Name,
		"owner_id", ownerID,
		"parent_id", updated.ParentID,
		"path", updated.MaterializedPath,
		"descendants_updated", descendants,
	)

	return updated, nil
}

// checkNotDescendant walks from target up to the root and fails if it
// passes through movingID. The walk is bounded by MaxTreeDepth, so a
// corrupted (cyclic) chain surfaces as Internal instead of looping.
func (s *treeService) checkNotDescendant(ctx context.Context, ownerID, movingID string, target *models.Entry) error {
	current := target
	for steps := 0; ; steps++ {
		if current.ID == movingID {
			return fmt.Errorf("%w: cannot move a folder into itself or one of its descendants", domain.ErrInvalidOperation)
		}
		if current.ParentID == nil {
			return nil
		}
		if steps >= s.opts.MaxTreeDepth {
			return fmt.Errorf("%w: ancestor chain of %s exceeds %d levels", domain.ErrInternal, target.ID, s.opts.MaxTreeDepth)
		}

		next, err := s.entries.GetByID(ctx, ownerID, *current.ParentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: entry %s has a dangling parent", domain.ErrInternal, current.ID)
			}
			return err
		}
		current = next
	}
}

// propagatePaths rewrites the materialized path of every descendant of
// root, trashed ones included, using an explicit worklist. Returns the
// number of entries rewritten.
func (s *treeService) propagatePaths(ctx context.Context, root *models.Entry) (int, error) {
	ownerID := root.OwnerID
	stack := []models.Entry{*root}
	visited := map[string]bool{root.ID: true}
	var batch []nsRepo.PathUpdate
	total := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.entries.UpdatePaths(ctx, ownerID, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for len(stack) > 0 {
		folder := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := s.entries.ListChildren(ctx, ownerID, &folder.ID, nsRepo.ListOptions{IncludeTrashed: true})
		if err != nil {
			return total, err
		}

		childPath := folder.ChildPath()
		for _, child := range children {
			if visited[child.ID] {
				return total, fmt.Errorf("%w: cycle detected at %s", domain.ErrInternal, child.ID)
			}
			visited[child.ID] = true

			if err := s.checkDepth(childPath); err != nil {
				return total, err
			}
			if child.MaterializedPath != childPath {
				batch = append(batch, nsRepo.PathUpdate{ID: child.ID, Path: childPath})
				if len(batch) >= pathBatchSize {
					if err := flush(); err != nil {
						return total, err
					}
				}
			}
			if child.IsFolder() {
				child.MaterializedPath = childPath
				stack = append(stack, child)
			}
		}
	}

	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

// ToggleStar flips the starred flag
func (s *treeService) ToggleStar(ctx context.Context, ownerID, id string) (*models.Entry, error) {
	return s.star(ctx, "toggle_star", ownerID, id, func(current bool) bool { return !current })
}

// SetStarred sets the starred flag; repeating the call is harmless
func (s *treeService) SetStarred(ctx context.Context, ownerID, id string, starred bool) (*models.Entry, error) {
	return s.star(ctx, "set_starred", ownerID, id, func(bool) bool { return starred })
}

func (s *treeService) star(ctx context.Context, op, ownerID, id string, next func(bool) bool) (updated *models.Entry, err error) {
	start := time.Now()
	defer func() { observe(op, start, err) }()

	// Single-record change; the version check catches concurrent writers
	err = s.runTx(ctx, op, func(ctx context.Context) error {
		entry, err := s.entries.GetByID(ctx, ownerID, id)
		if err != nil {
			return err
		}

		starred := next(entry.Starred)
		if starred != entry.Starred {
			entry.Starred = starred
			entry.UpdatedAt = now()
			if err := s.entries.Update(ctx, entry); err != nil {
				return err
			}
		}
		updated = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("entry star updated", "id", id, "owner_id", ownerID, "starred", updated.Starred)
	return updated, nil
}
