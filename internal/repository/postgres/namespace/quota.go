package namespace

import (
	"context"
	"fmt"

	"drivestore/internal/domain"
	models "drivestore/internal/domain/models/namespace"
	nsRepo "drivestore/internal/domain/repositories/namespace"
	"drivestore/internal/repository/postgres"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresQuotaLedger implements the QuotaLedger interface.
// Reservations are a single guarded UPDATE, so concurrent reservations for
// one owner serialize on the row lock and can never overshoot the limit.
type PostgresQuotaLedger struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	limits nsRepo.LimitPolicy
}

// NewQuotaLedger creates a new quota ledger
func NewQuotaLedger(config *postgres.RepositoryConfig, limits nsRepo.LimitPolicy) nsRepo.QuotaLedger {
	return &PostgresQuotaLedger{
		pool:   config.Pool,
		tables: config.Tables,
		limits: limits,
	}
}

const usageColumns = `owner_id, used_bytes, reserved_bytes, limit_bytes, updated_at`

func scanUsage(row pgx.Row) (*models.Usage, error) {
	var u models.Usage
	if err := row.Scan(&u.OwnerID, &u.Used, &u.Reserved, &u.Limit, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// ensureRow creates the owner's ledger row with its plan limit
func (l *PostgresQuotaLedger) ensureRow(ctx context.Context, ownerID string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (owner_id, used_bytes, limit_bytes)
		VALUES ($1, 0, $2)
		ON CONFLICT (owner_id) DO NOTHING
	`, l.tables.Quotas)

	executor := postgres.GetExecutor(ctx, l.pool)
	if _, err := executor.Exec(ctx, query, ownerID, l.limits.LimitFor(ownerID)); err != nil {
		return fmt.Errorf("create quota row: %w", err)
	}
	return nil
}

// CurrentUsage returns the owner's ledger row
func (l *PostgresQuotaLedger) CurrentUsage(ctx context.Context, ownerID string) (*models.Usage, error) {
	if err := l.ensureRow(ctx, ownerID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE owner_id = $1
	`, usageColumns, l.tables.Quotas)

	executor := postgres.GetExecutor(ctx, l.pool)
	u, err := scanUsage(executor.QueryRow(ctx, query, ownerID))
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}

	return u, nil
}

// TryReserve adds delta to used if the result stays within the limit
func (l *PostgresQuotaLedger) TryReserve(ctx context.Context, ownerID string, delta int64) (*models.Usage, error) {
	return l.reserve(ctx, ownerID, delta, "used_bytes")
}

// Hold adds delta to reserved if the result stays within the limit
func (l *PostgresQuotaLedger) Hold(ctx context.Context, ownerID string, delta int64) (*models.Usage, error) {
	return l.reserve(ctx, ownerID, delta, "reserved_bytes")
}

// reserve increments column with a guarded UPDATE; no row means over limit
func (l *PostgresQuotaLedger) reserve(ctx context.Context, ownerID string, delta int64, column string) (*models.Usage, error) {
	if delta < 0 {
		return nil, fmt.Errorf("%w: negative reservation", domain.ErrValidation)
	}
	if err := l.ensureRow(ctx, ownerID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		UPDATE %[1]s
		SET %[2]s = %[2]s + $2, updated_at = NOW()
		WHERE owner_id = $1 AND (limit_bytes = 0 OR used_bytes + reserved_bytes + $2 <= limit_bytes)
		RETURNING %[3]s
	`, l.tables.Quotas, column, usageColumns)

	executor := postgres.GetExecutor(ctx, l.pool)
	u, err := scanUsage(executor.QueryRow(ctx, query, ownerID, delta))
	if err != nil {
		if !postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("reserve quota: %w", err)
		}

		current, getErr := l.CurrentUsage(ctx, ownerID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &domain.QuotaError{Requested: delta, Used: current.Used + current.Reserved, Limit: current.Limit}
	}

	return u, nil
}

// Settle moves delta from reserved to used
func (l *PostgresQuotaLedger) Settle(ctx context.Context, ownerID string, delta int64) error {
	if delta <= 0 {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET used_bytes = used_bytes + $2, reserved_bytes = GREATEST(reserved_bytes - $2, 0), updated_at = NOW()
		WHERE owner_id = $1
	`, l.tables.Quotas)

	executor := postgres.GetExecutor(ctx, l.pool)
	if _, err := executor.Exec(ctx, query, ownerID, delta); err != nil {
		return fmt.Errorf("settle quota: %w", err)
	}
	return nil
}

// Unhold drops delta from reserved, flooring at zero
func (l *PostgresQuotaLedger) Unhold(ctx context.Context, ownerID string, delta int64) error {
	if delta <= 0 {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET reserved_bytes = GREATEST(reserved_bytes - $2, 0), updated_at = NOW()
		WHERE owner_id = $1
	`, l.tables.Quotas)

	executor := postgres.GetExecutor(ctx, l.pool)
	if _, err := executor.Exec(ctx, query, ownerID, delta); err != nil {
		return fmt.Errorf("unhold quota: %w", err)
	}
	return nil
}

// Release subtracts delta, flooring at zero
func (l *PostgresQuotaLedger) Release(ctx context.Context, ownerID string, delta int64) error {
	if delta <= 0 {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET used_bytes = GREATEST(used_bytes - $2, 0), updated_at = NOW()
		WHERE owner_id = $1
	`, l.tables.Quotas)

	executor := postgres.GetExecutor(ctx, l.pool)
	if _, err := executor.Exec(ctx, query, ownerID, delta); err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	return nil
}

// SetLimit changes the owner's limit
func (l *PostgresQuotaLedger) SetLimit(ctx context.Context, ownerID string, limit int64) error {
	if limit < 0 {
		return fmt.Errorf("%w: negative limit", domain.ErrValidation)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (owner_id, used_bytes, limit_bytes)
		VALUES ($1, 0, $2)
		ON CONFLICT (owner_id) DO UPDATE SET limit_bytes = EXCLUDED.limit_bytes, updated_at = NOW()
	`, l.tables.Quotas)

	executor := postgres.GetExecutor(ctx, l.pool)
	if _, err := executor.Exec(ctx, query, ownerID, limit); err != nil {
		return fmt.Errorf("set quota limit: %w", err)
	}
	return nil
}

// Reset overwrites the used counter
func (l *PostgresQuotaLedger) Reset(ctx context.Context, ownerID string, used int64) error {
	if used < 0 {
		used = 0
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (owner_id, used_bytes, limit_bytes)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id) DO UPDATE SET used_bytes = EXCLUDED.used_bytes, updated_at = NOW()
	`, l.tables.Quotas)

	executor := postgres.GetExecutor(ctx, l.pool)
	if _, err := executor.Exec(ctx, query, ownerID, used, l.limits.LimitFor(ownerID)); err != nil {
		return fmt.Errorf("reset quota: %w", err)
	}
	return nil
}
