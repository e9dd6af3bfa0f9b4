package namespace

import (
	"context"

	"drivestore/internal/domain/models/namespace"
)

// QuotaLedger tracks bytes consumed per owner.
// Called inside a transaction it joins it; otherwise each call commits on its own.
type QuotaLedger interface {
	// CurrentUsage returns the owner's row, creating it with the default
	// limit on first use
	CurrentUsage(ctx context.Context, ownerID string) (*namespace.Usage, error)

	// TryReserve atomically adds delta to used if used + reserved + delta
	// stays within the limit. Returns a *domain.QuotaError otherwise.
	TryReserve(ctx context.Context, ownerID string, delta int64) (*namespace.Usage, error)

	// Hold sets delta aside for an upload that has no entry yet, under the
	// same limit check as TryReserve
	Hold(ctx context.Context, ownerID string, delta int64) (*namespace.Usage, error)

	// Settle moves delta from reserved to used once the entry is recorded
	Settle(ctx context.Context, ownerID string, delta int64) error

	// Unhold drops a hold whose upload was abandoned, flooring at zero
	Unhold(ctx context.Context, ownerID string, delta int64) error

	// Release subtracts delta, flooring at zero
	Release(ctx context.Context, ownerID string, delta int64) error

	// SetLimit changes the owner's limit (0 = unlimited)
	SetLimit(ctx context.Context, ownerID string, limit int64) error

	// Reset overwrites the used counter (consistency repair). Holds are kept.
	Reset(ctx context.Context, ownerID string, used int64) error
}

// LimitPolicy supplies the limit a new ledger row starts with
type LimitPolicy interface {
	LimitFor(ownerID string) int64
}

// FixedLimit applies the same limit to every owner
type FixedLimit int64

// LimitFor implements LimitPolicy
func (f FixedLimit) LimitFor(string) int64 {
	return int64(f)
}
