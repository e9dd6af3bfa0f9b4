package badger

import (
	"context"
	"sync"
	"testing"
	"time"

	"drivestore/internal/domain"
	models "drivestore/internal/domain/models/namespace"
	nsRepo "drivestore/internal/domain/repositories/namespace"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "owner-1"

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newEntry(kind models.EntryKind, name string, parent *models.Entry) *models.Entry {
	now := time.Now().UTC()
	e := &models.Entry{
		ID:               uuid.NewString(),
		OwnerID:          owner,
		Kind:             kind,
		Name:             name,
		MaterializedPath: models.RootPath,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if parent != nil {
		e.ParentID = &parent.ID
		e.MaterializedPath = parent.ChildPath()
	}
	return e
}

func TestEntryRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewEntryRepository(openTestStore(t))

	key := "owner-1/blob"
	file := newEntry(models.KindFile, "a.txt", nil)
	file.ContentKey = &key
	file.Size = 10
	require.NoError(t, repo.Create(ctx, file))
	assert.Equal(t, int64(1), file.Version)

	got, err := repo.GetByID(ctx, owner, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got.Name)
	require.NotNil(t, got.ContentKey)
	assert.Equal(t, key, *got.ContentKey)

	_, err = repo.GetByID(ctx, "someone-else", file.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEntryRepository_SiblingUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewEntryRepository(openTestStore(t))

	first := newEntry(models.KindFolder, "Docs", nil)
	require.NoError(t, repo.Create(ctx, first))

	err := repo.Create(ctx, newEntry(models.KindFolder, "Docs", nil))
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, first.ID, conflict.ResourceID)

	// Different kind with the same name is allowed
	require.NoError(t, repo.Create(ctx, newEntry(models.KindFile, "Docs", nil)))

	// Trashed entries do not block the name
	trashedAt := time.Now().UTC()
	require.NoError(t, repo.MarkTrashed(ctx, owner, []string{first.ID}, &trashedAt))
	require.NoError(t, repo.Create(ctx, newEntry(models.KindFolder, "Docs", nil)))

	// ...but restoring into the taken name does
	err = repo.MarkTrashed(ctx, owner, []string{first.ID}, nil)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestEntryRepository_MissingParent(t *testing.T) {
	ctx := context.Background()
	repo := NewEntryRepository(openTestStore(t))

	ghost := newEntry(models.KindFolder, "ghost", nil)
	err := repo.Create(ctx, newEntry(models.KindFile, "a.txt", ghost))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEntryRepository_UpdateMovesChildIndex(t *testing.T) {
	ctx := context.Background()
	repo := NewEntryRepository(openTestStore(t))

	a := newEntry(models.KindFolder, "A", nil)
	b := newEntry(models.KindFolder, "B", nil)
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))
	file := newEntry(models.KindFile, "x", a)
	require.NoError(t, repo.Create(ctx, file))

	file.ParentID = &b.ID
	file.MaterializedPath = b.ChildPath()
	require.NoError(t, repo.Update(ctx, file))
	assert.Equal(t, int64(2), file.Version)

	inA, err := repo.ListChildren(ctx, owner, &a.ID, nsRepo.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, inA)

	inB, err := repo.ListChildren(ctx, owner, &b.ID, nsRepo.ListOptions{})
	require.NoError(t, err)
	require.Len(t, inB, 1)
	assert.Equal(t, "/B/", inB[0].MaterializedPath)
}

func TestEntryRepository_StaleVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewEntryRepository(openTestStore(t))

	folder := newEntry(models.KindFolder, "A", nil)
	require.NoError(t, repo.Create(ctx, folder))

	stale := *folder
	folder.Starred = true
	require.NoError(t, repo.Update(ctx, folder))

	stale.Name = "B"
	err := repo.Update(ctx, &stale)
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
}

func TestEntryRepository_ListChildrenOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	repo := NewEntryRepository(openTestStore(t))

	base := time.Now().UTC()
	older := newEntry(models.KindFile, "older.txt", nil)
	older.CreatedAt = base.Add(-time.Hour)
	newer := newEntry(models.KindFile, "newer.txt", nil)
	newer.CreatedAt = base
	newer.Starred = true
	folder := newEntry(models.KindFolder, "Zed", nil)
	folder.CreatedAt = base.Add(-2 * time.Hour)

	for _, e := range []*models.Entry{older, newer, folder} {
		require.NoError(t, repo.Create(ctx, e))
	}

	list, err := repo.ListChildren(ctx, owner, nil, nsRepo.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"Zed", "newer.txt", "older.txt"},
		[]string{list[0].Name, list[1].Name, list[2].Name})

	starred, err := repo.ListChildren(ctx, owner, nil, nsRepo.ListOptions{Filter: models.ListFilter{StarredOnly: true}})
	require.NoError(t, err)
	require.Len(t, starred, 1)
	assert.Equal(t, "newer.txt", starred[0].Name)

	named, err := repo.ListChildren(ctx, owner, nil, nsRepo.ListOptions{Filter: models.ListFilter{NameContains: "OLD"}})
	require.NoError(t, err)
	require.Len(t, named, 1)
	assert.Equal(t, "older.txt", named[0].Name)
}

func TestEntryRepository_SearchAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewEntryRepository(openTestStore(t))

	docs := newEntry(models.KindFolder, "Docs", nil)
	require.NoError(t, repo.Create(ctx, docs))
	report := newEntry(models.KindFile, "report.pdf", docs)
	require.NoError(t, repo.Create(ctx, report))
	require.NoError(t, repo.Create(ctx, newEntry(models.KindFile, "Readme", nil)))

	found, err := repo.SearchByPrefix(ctx, owner, "re", 10)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	require.NoError(t, repo.DeleteMany(ctx, owner, []string{report.ID, docs.ID}))
	_, err = repo.GetByID(ctx, owner, docs.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	all, err := repo.ListAll(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTransactionManager_ConflictingLocks(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	repo := NewEntryRepository(store)
	tm := NewTransactionManager(store)

	// Two transactions that both lock the namespace: the one committing
	// second observes a conflict.
	inner := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- tm.ExecTx(ctx, func(ctx context.Context) error {
			if err := repo.LockNamespace(ctx, owner); err != nil {
				return err
			}
			<-inner
			return nil
		})
	}()

	require.NoError(t, tm.ExecTx(ctx, func(ctx context.Context) error {
		return repo.LockNamespace(ctx, owner)
	}))
	close(inner)

	// The goroutine's transaction may have started before or after the
	// first commit; it either conflicts or succeeds cleanly.
	if err := <-done; err != nil {
		assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
	}
}

func TestQuotaLedger_ReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	ledger := NewQuotaLedger(openTestStore(t), nsRepo.FixedLimit(100))

	usage, err := ledger.TryReserve(ctx, owner, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(60), usage.Used)

	_, err = ledger.TryReserve(ctx, owner, 60)
	var quotaErr *domain.QuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, int64(60), quotaErr.Used)
	assert.Equal(t, int64(100), quotaErr.Limit)

	require.NoError(t, ledger.Release(ctx, owner, 1000))
	usage, err = ledger.CurrentUsage(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage.Used)

	require.NoError(t, ledger.SetLimit(ctx, owner, 0))
	_, err = ledger.TryReserve(ctx, owner, 1<<40)
	assert.NoError(t, err)
}

func TestQuotaLedger_ConcurrentReservations(t *testing.T) {
	ctx := context.Background()
	ledger := NewQuotaLedger(openTestStore(t), nsRepo.FixedLimit(100))

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.TryReserve(ctx, owner, 30)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
		}
	}
	assert.Equal(t, 3, succeeded)

	usage, err := ledger.CurrentUsage(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(90), usage.Used)
}

func TestQuotaLedger_HoldSettleUnhold(t *testing.T) {
	ctx := context.Background()
	ledger := NewQuotaLedger(openTestStore(t), nsRepo.FixedLimit(100))

	usage, err := ledger.Hold(ctx, owner, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage.Used)
	assert.Equal(t, int64(60), usage.Reserved)

	// Holds count against the limit for both kinds of reservation
	_, err = ledger.Hold(ctx, owner, 50)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	_, err = ledger.TryReserve(ctx, owner, 50)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)

	// Reset repairs used and leaves holds alone
	require.NoError(t, ledger.Reset(ctx, owner, 5))
	require.NoError(t, ledger.Settle(ctx, owner, 60))
	usage, err = ledger.CurrentUsage(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(65), usage.Used)
	assert.Equal(t, int64(0), usage.Reserved)

	_, err = ledger.Hold(ctx, owner, 30)
	require.NoError(t, err)
	require.NoError(t, ledger.Unhold(ctx, owner, 1000))
	usage, err = ledger.CurrentUsage(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(65), usage.Used)
	assert.Equal(t, int64(0), usage.Reserved)
}
