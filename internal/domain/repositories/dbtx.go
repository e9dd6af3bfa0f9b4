package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx, so a
// Postgres repository runs the same statements in or out of a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type pgTxKey struct{}

// SetTx attaches the Postgres transaction that repositories should join
func SetTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, pgTxKey{}, tx)
}

// GetTx returns the transaction attached by SetTx, or nil
func GetTx(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(pgTxKey{}).(pgx.Tx)
	return tx
}
