package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"drivestore/internal/domain"
	models "drivestore/internal/domain/models/namespace"
	nsRepo "drivestore/internal/domain/repositories/namespace"

	badger "github.com/dgraph-io/badger/v4"
)

type quotaRecord struct {
	Used      int64     `json:"used"`
	Reserved  int64     `json:"reserved,omitempty"`
	Limit     int64     `json:"limit"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BadgerQuotaLedger implements the QuotaLedger interface.
// Each mutation is a read-modify-write of the owner's row, so concurrent
// reservations conflict at commit and are retried against fresh usage.
type BadgerQuotaLedger struct {
	store  *Store
	limits nsRepo.LimitPolicy
}

// NewQuotaLedger creates a new quota ledger
func NewQuotaLedger(store *Store, limits nsRepo.LimitPolicy) nsRepo.QuotaLedger {
	return &BadgerQuotaLedger{store: store, limits: limits}
}

func (l *BadgerQuotaLedger) load(txn *badger.Txn, ownerID string) (*quotaRecord, error) {
	item, err := txn.Get(keyQuota(ownerID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return &quotaRecord{Limit: l.limits.LimitFor(ownerID), UpdatedAt: time.Now().UTC()}, nil
		}
		return nil, fmt.Errorf("get quota: %w", err)
	}

	var rec quotaRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("decode quota: %w", err)
	}
	return &rec, nil
}

func (l *BadgerQuotaLedger) save(txn *badger.Txn, ownerID string, rec *quotaRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode quota: %w", err)
	}
	return txn.Set(keyQuota(ownerID), data)
}

func (rec *quotaRecord) usage(ownerID string) *models.Usage {
	return &models.Usage{OwnerID: ownerID, Used: rec.Used, Reserved: rec.Reserved, Limit: rec.Limit, UpdatedAt: rec.UpdatedAt}
}

// CurrentUsage returns the owner's ledger row
func (l *BadgerQuotaLedger) CurrentUsage(ctx context.Context, ownerID string) (*models.Usage, error) {
	var usage *models.Usage
	err := l.store.view(ctx, func(txn *badger.Txn) error {
		rec, err := l.load(txn, ownerID)
		if err != nil {
			return err
		}
		usage = rec.usage(ownerID)
		return nil
	})
	return usage, err
}

// TryReserve adds delta to used if the result stays within the limit
func (l *BadgerQuotaLedger) TryReserve(ctx context.Context, ownerID string, delta int64) (*models.Usage, error) {
	return l.reserve(ctx, ownerID, delta, func(rec *quotaRecord) { rec.Used += delta })
}

// Hold adds delta to reserved if the result stays within the limit
func (l *BadgerQuotaLedger) Hold(ctx context.Context, ownerID string, delta int64) (*models.Usage, error) {
	return l.reserve(ctx, ownerID, delta, func(rec *quotaRecord) { rec.Reserved += delta })
}

func (l *BadgerQuotaLedger) reserve(ctx context.Context, ownerID string, delta int64, apply func(*quotaRecord)) (*models.Usage, error) {
	if delta < 0 {
		return nil, fmt.Errorf("%w: negative reservation", domain.ErrValidation)
	}

	var usage *models.Usage
	err := l.store.update(ctx, func(txn *badger.Txn) error {
		rec, err := l.load(txn, ownerID)
		if err != nil {
			return err
		}
		if !rec.usage(ownerID).Fits(delta) {
			return &domain.QuotaError{Requested: delta, Used: rec.Used + rec.Reserved, Limit: rec.Limit}
		}

		apply(rec)
		if err := l.save(txn, ownerID, rec); err != nil {
			return err
		}
		usage = rec.usage(ownerID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return usage, nil
}

// Settle moves delta from reserved to used
func (l *BadgerQuotaLedger) Settle(ctx context.Context, ownerID string, delta int64) error {
	if delta <= 0 {
		return nil
	}
	return l.store.update(ctx, func(txn *badger.Txn) error {
		rec, err := l.load(txn, ownerID)
		if err != nil {
			return err
		}
		rec.Used += delta
		rec.Reserved = max(rec.Reserved-delta, 0)
		return l.save(txn, ownerID, rec)
	})
}

// Unhold drops delta from reserved, flooring at zero
func (l *BadgerQuotaLedger) Unhold(ctx context.Context, ownerID string, delta int64) error {
	if delta <= 0 {
		return nil
	}
	return l.store.update(ctx, func(txn *badger.Txn) error {
		rec, err := l.load(txn, ownerID)
		if err != nil {
			return err
		}
		rec.Reserved = max(rec.Reserved-delta, 0)
		return l.save(txn, ownerID, rec)
	})
}

// Release subtracts delta, flooring at zero
func (l *BadgerQuotaLedger) Release(ctx context.Context, ownerID string, delta int64) error {
	if delta <= 0 {
		return nil
	}
	return l.store.update(ctx, func(txn *badger.Txn) error {
		rec, err := l.load(txn, ownerID)
		if err != nil {
			return err
		}
		rec.Used -= delta
		if rec.Used < 0 {
			rec.Used = 0
		}
		return l.save(txn, ownerID, rec)
	})
}

// SetLimit changes the owner's limit
func (l *BadgerQuotaLedger) SetLimit(ctx context.Context, ownerID string, limit int64) error {
	if limit < 0 {
		return fmt.Errorf("%w: negative limit", domain.ErrValidation)
	}
	return l.store.update(ctx, func(txn *badger.Txn) error {
		rec, err := l.load(txn, ownerID)
		if err != nil {
			return err
		}
		rec.Limit = limit
		return l.save(txn, ownerID, rec)
	})
}

// Reset overwrites the used counter
func (l *BadgerQuotaLedger) Reset(ctx context.Context, ownerID string, used int64) error {
	if used < 0 {
		used = 0
	}
	return l.store.update(ctx, func(txn *badger.Txn) error {
		rec, err := l.load(txn, ownerID)
		if err != nil {
			return err
		}
		rec.Used = used
		return l.save(txn, ownerID, rec)
	})
}
