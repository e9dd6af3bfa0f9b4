package namespace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"drivestore/internal/config"
	"drivestore/internal/domain"
	models "drivestore/internal/domain/models/namespace"
	nsRepo "drivestore/internal/domain/repositories/namespace"
	"drivestore/internal/retry"
)

// ListChildren lists a folder's active children, folders first and each
// group newest first. A missing, foreign or trashed parent yields an empty list.
func (s *treeService) ListChildren(ctx context.Context, ownerID string, parentID *string, filter models.ListFilter) (entries []models.Entry, err error) {
	start := time.Now()
	defer func() { observe("list_children", start, err) }()

	if parentID != nil {
		parent, err := s.entries.GetByID(ctx, ownerID, *parentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return []models.Entry{}, nil
			}
			return nil, err
		}
		if parent.Trashed || !parent.IsFolder() {
			return []models.Entry{}, nil
		}
	}

	entries, err = s.entries.ListChildren(ctx, ownerID, parentID, nsRepo.ListOptions{Filter: filter})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.Entry{}
	}
	models.SortForListing(entries)
	return entries, nil
}

// GetEntry retrieves one entry, trashed included
func (s *treeService) GetEntry(ctx context.Context, ownerID, id string) (*models.Entry, error) {
	return s.entries.GetByID(ctx, ownerID, id)
}

// Search finds active entries whose name starts with query
func (s *treeService) Search(ctx context.Context, ownerID, query string, limit int) (entries []models.Entry, err error) {
	start := time.Now()
	defer func() { observe("search", start, err) }()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", domain.ErrValidation)
	}
	if limit <= 0 {
		limit = config.DefaultSearchLimit
	}
	if limit > config.MaxSearchLimit {
		limit = config.MaxSearchLimit
	}

	entries, err = s.entries.SearchByPrefix(ctx, ownerID, query, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.Entry{}
	}
	return entries, nil
}

// ListTrash lists the roots of trashed subtrees, newest trashed first.
// Entries whose parent is also trashed are reached through that parent.
func (s *treeService) ListTrash(ctx context.Context, ownerID string) (roots []models.Entry, err error) {
	start := time.Now()
	defer func() { observe("list_trash", start, err) }()

	trashed, err := s.entries.ListTrashed(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	trashedIDs := make(map[string]struct{}, len(trashed))
	for _, e := range trashed {
		trashedIDs[e.ID] = struct{}{}
	}

	roots = []models.Entry{}
	for _, e := range trashed {
		if e.ParentID != nil {
			if _, parentTrashed := trashedIDs[*e.ParentID]; parentTrashed {
				continue
			}
		}
		roots = append(roots, e)
	}
	return roots, nil
}

// Usage returns the owner's quota usage
func (s *treeService) Usage(ctx context.Context, ownerID string) (*models.Usage, error) {
	return s.ledger.CurrentUsage(ctx, ownerID)
}

// DownloadURL resolves a file's retrieval reference. Transient store
// failures are retried since the call has no side effects.
func (s *treeService) DownloadURL(ctx context.Context, ownerID, id string) (ref *models.ContentReference, err error) {
	start := time.Now()
	defer func() { observe("download_url", start, err) }()

	entry, err := s.entries.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if !entry.IsFile() {
		return nil, fmt.Errorf("%w: folders have no content", domain.ErrInvalidOperation)
	}
	if entry.Trashed {
		return nil, fmt.Errorf("%w: file is in the trash", domain.ErrInvalidOperation)
	}
	if entry.ContentKey == nil {
		return nil, fmt.Errorf("%w: file %s has no content key", domain.ErrInternal, id)
	}

	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 3
	cfg.InitialWait = 50 * time.Millisecond
	cfg.ShouldRetry = func(err error) bool {
		return errors.Is(err, domain.ErrStorageUnavailable)
	}

	return retry.DoWithResult(ctx, cfg, func(ctx context.Context) (*models.ContentReference, error) {
		getCtx, cancel := context.WithTimeout(ctx, s.opts.ContentTimeout)
		defer cancel()
		return s.content.Get(getCtx, *entry.ContentKey)
	})
}
