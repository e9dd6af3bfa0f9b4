package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"drivestore/internal/domain"
	"drivestore/internal/domain/repositories"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TransactionManager implements the TransactionManager interface
type TransactionManager struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(pool *pgxpool.Pool, logger *slog.Logger) repositories.TransactionManager {
	return &TransactionManager{pool: pool, logger: logger}
}

// ExecTx executes a function within a transaction.
// Serialization failures and deadlocks are reported as domain.ErrConcurrentUpdate.
func (tm *TransactionManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	tx, err := tm.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", domain.ErrStorageUnavailable, err)
	}

	// Safe even if commit succeeds
	defer func() {
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			tm.logger.Error("rollback failed", "error", err)
		}
	}()

	if err := fn(repositories.SetTx(ctx, tx)); err != nil {
		return classifyTxError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyTxError(fmt.Errorf("commit transaction: %w", err))
	}

	return nil
}

func classifyTxError(err error) error {
	if IsPgRetryableError(err) && !errors.Is(err, domain.ErrConcurrentUpdate) {
		return fmt.Errorf("%w: %v", domain.ErrConcurrentUpdate, err)
	}
	return err
}
