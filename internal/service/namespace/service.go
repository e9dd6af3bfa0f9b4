package namespace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"drivestore/internal/config"
	"drivestore/internal/domain"
	models "drivestore/internal/domain/models/namespace"
	"drivestore/internal/domain/repositories"
	nsRepo "drivestore/internal/domain/repositories/namespace"
	nsSvc "drivestore/internal/domain/services/namespace"
	"drivestore/internal/metrics"
	"drivestore/internal/retry"

	"github.com/google/uuid"
)

// Options tunes the tree service
type Options struct {
	MaxTreeDepth    int
	TxRetryAttempts int
	ContentTimeout  time.Duration
	MaxUploadSize   int64 // 0 = no cap beyond the quota
	RetryBackoff    time.Duration
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		MaxTreeDepth:    config.DefaultMaxTreeDepth,
		TxRetryAttempts: config.DefaultTxRetryAttempts,
		ContentTimeout:  30 * time.Second,
		MaxUploadSize:   config.DefaultMaxUploadSize,
		RetryBackoff:    10 * time.Millisecond,
	}
}

// OptionsFromConfig maps server configuration onto service options
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.MaxTreeDepth = cfg.MaxTreeDepth
	opts.TxRetryAttempts = cfg.TxRetryAttempts
	opts.ContentTimeout = cfg.ContentTimeout
	opts.MaxUploadSize = cfg.MaxUploadSize
	return opts
}

type treeService struct {
	entries   nsRepo.EntryRepository
	ledger    nsRepo.QuotaLedger
	content   nsRepo.ContentStore
	txManager repositories.TransactionManager
	opts      Options
	logger    *slog.Logger
}

// NewTreeService creates a new tree service
func NewTreeService(
	entries nsRepo.EntryRepository,
	ledger nsRepo.QuotaLedger,
	content nsRepo.ContentStore,
	txManager repositories.TransactionManager,
	opts Options,
	logger *slog.Logger,
) nsSvc.TreeService {
	return &treeService{
		entries:   entries,
		ledger:    ledger,
		content:   content,
		txManager: txManager,
		opts:      opts,
		logger:    logger,
	}
}

// now is the timestamp source; microsecond precision matches Postgres
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// observe records the outcome of a tree operation
func observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = domain.Kind(err)
	}
	metrics.RecordTreeOperation(op, result, time.Since(start))
}

// runTx runs fn in a transaction, retrying lost races. fn must reload any
// state it depends on since it may run more than once.
func (s *treeService) runTx(ctx context.Context, op string, fn repositories.TxFn) error {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = s.opts.TxRetryAttempts
	if s.opts.RetryBackoff > 0 {
		cfg.InitialWait = s.opts.RetryBackoff
	}
	cfg.ShouldRetry = func(err error) bool {
		return errors.Is(err, domain.ErrConcurrentUpdate)
	}
	cfg.OnRetry = func(attempt int, err error) {
		metrics.RecordTxRetry(op)
		s.logger.Debug("retrying transaction", "op", op, "attempt", attempt, "error", err)
	}

	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		return s.txManager.ExecTx(ctx, fn)
	})
	if errors.Is(err, domain.ErrConcurrentUpdate) {
		s.logger.Warn("transaction retries exhausted", "op", op, "error", err)
		return &domain.ConflictError{Message: "the namespace was modified concurrently, please retry"}
	}
	return err
}

// resolveParent loads a destination folder. nil means root level.
// Missing, foreign, trashed and non-folder parents are all NotFound.
func (s *treeService) resolveParent(ctx context.Context, ownerID string, parentID *string) (*models.Entry, error) {
	if parentID == nil {
		return nil, nil
	}

	parent, err := s.entries.GetByID(ctx, ownerID, *parentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("parent folder %s: %w", *parentID, domain.ErrNotFound)
		}
		return nil, err
	}
	if parent.Trashed || !parent.IsFolder() {
		return nil, fmt.Errorf("parent folder %s: %w", *parentID, domain.ErrNotFound)
	}
	return parent, nil
}

// pathUnder is the materialized path of a child of parent (nil = root)
func pathUnder(parent *models.Entry) string {
	if parent == nil {
		return models.RootPath
	}
	return parent.ChildPath()
}

func (s *treeService) checkDepth(path string) error {
	if models.PathDepth(path) > s.opts.MaxTreeDepth {
		return fmt.Errorf("%w: folders cannot be nested more than %d levels deep", domain.ErrValidation, s.opts.MaxTreeDepth)
	}
	return nil
}

// checkSibling rejects a name taken by a different active entry of the same kind
func (s *treeService) checkSibling(ctx context.Context, ownerID string, parentID *string, kind models.EntryKind, name, selfID string) error {
	existing, err := s.entries.FindSibling(ctx, ownerID, parentID, kind, name)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != selfID {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("a %s named %q already exists in this location", kind, name),
			ResourceType: string(kind),
			ResourceID:   existing.ID,
		}
	}
	return nil
}

// newContentKey builds a collision-resistant blob key scoped by owner
func newContentKey(ownerID string) string {
	return url.PathEscape(ownerID) + "/" + uuid.NewString()
}

// cleanupContext outlives a cancelled request long enough for rollback
func (s *treeService) cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.opts.ContentTimeout)
}

// deleteBlobs removes content after its entries are gone. Failures leave
// orphans that are logged and counted but never undo the index change.
func (s *treeService) deleteBlobs(ctx context.Context, ownerID string, keys []string) {
	for _, key := range keys {
		delCtx, cancel := s.cleanupContext(ctx)
		err := s.content.Delete(delCtx, key)
		cancel()
		if err != nil {
			metrics.RecordOrphanedBlob()
			s.logger.Error("failed to delete content",
				"owner_id", ownerID,
				"content_key", key,
				"error", err,
			)
		}
	}
}
