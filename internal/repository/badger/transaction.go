package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"drivestore/internal/domain"
	"drivestore/internal/domain/repositories"
	"drivestore/internal/retry"

	badger "github.com/dgraph-io/badger/v4"
)

type txnKey struct{}

func withTxn(ctx context.Context, txn *badger.Txn) context.Context {
	return context.WithValue(ctx, txnKey{}, txn)
}

func txnFrom(ctx context.Context) *badger.Txn {
	txn, _ := ctx.Value(txnKey{}).(*badger.Txn)
	return txn
}

// TransactionManager implements the TransactionManager interface
type TransactionManager struct {
	store *Store
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(store *Store) repositories.TransactionManager {
	return &TransactionManager{store: store}
}

// ExecTx executes a function within a read-write transaction.
// Commit conflicts are reported as domain.ErrConcurrentUpdate.
func (tm *TransactionManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	if txnFrom(ctx) != nil {
		return fn(ctx)
	}

	txn := tm.store.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(withTxn(ctx, txn)); err != nil {
		return classifyTxnError(err)
	}

	if err := txn.Commit(); err != nil {
		return classifyTxnError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func classifyTxnError(err error) error {
	if errors.Is(err, badger.ErrConflict) && !errors.Is(err, domain.ErrConcurrentUpdate) {
		return fmt.Errorf("%w: %v", domain.ErrConcurrentUpdate, err)
	}
	return err
}

// standaloneRetry retries single-call writes made outside ExecTx
var standaloneRetry = func() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 50
	cfg.InitialWait = 100 * time.Microsecond
	cfg.MaxWait = 5 * time.Millisecond
	cfg.ShouldRetry = func(err error) bool { return errors.Is(err, badger.ErrConflict) }
	return cfg
}()

// update runs fn in the caller's transaction, or in its own one that is
// retried on commit conflicts
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if txn := txnFrom(ctx); txn != nil {
		return fn(txn)
	}
	return retry.Do(ctx, standaloneRetry, func(context.Context) error {
		return s.db.Update(fn)
	})
}

// view runs fn in the caller's transaction or a read-only one
func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if txn := txnFrom(ctx); txn != nil {
		return fn(txn)
	}
	return s.db.View(fn)
}
