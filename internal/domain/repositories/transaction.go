package repositories

import "context"

// TxFn is a function that runs within a transaction
type TxFn func(ctx context.Context) error

// TransactionManager handles index transactions.
//
// Repositories called with the ctx passed to fn join the transaction.
// A commit that loses a race against a concurrent writer fails with an error
// wrapping domain.ErrConcurrentUpdate; the whole fn may then be retried.
type TransactionManager interface {
	// ExecTx executes a function within a transaction
	ExecTx(ctx context.Context, fn TxFn) error
}
