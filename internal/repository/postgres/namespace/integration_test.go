package namespace_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"drivestore/internal/content/memory"
	"drivestore/internal/domain"
	models "drivestore/internal/domain/models/namespace"
	nsRepo "drivestore/internal/domain/repositories/namespace"
	nsSvc "drivestore/internal/domain/services/namespace"
	"drivestore/internal/repository/postgres"
	pgNamespace "drivestore/internal/repository/postgres/namespace"
	nsService "drivestore/internal/service/namespace"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pgTree runs the tree service against a real database. Each test gets its
// own table prefix, dropped on cleanup.
type pgTree struct {
	svc     nsSvc.TreeService
	checker nsSvc.ConsistencyChecker
	entries nsRepo.EntryRepository
	ledger  nsRepo.QuotaLedger
	owner   string
}

func newPgTree(t *testing.T, limit int64) *pgTree {
	t.Helper()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set; skipping postgres integration test")
	}

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	tables := postgres.NewTableNames(fmt.Sprintf("it%d_", time.Now().UnixNano()))
	require.NoError(t, postgres.Migrate(ctx, pool, tables))
	t.Cleanup(func() { _ = postgres.DropTables(context.Background(), pool, tables) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &postgres.RepositoryConfig{Pool: pool, Tables: tables, Logger: logger}
	entries := pgNamespace.NewEntryRepository(cfg)
	ledger := pgNamespace.NewQuotaLedger(cfg, nsRepo.FixedLimit(limit))
	txManager := postgres.NewTransactionManager(pool, logger)

	opts := nsService.DefaultOptions()
	opts.TxRetryAttempts = 50
	opts.RetryBackoff = time.Millisecond
	opts.ContentTimeout = 5 * time.Second

	return &pgTree{
		svc:     nsService.NewTreeService(entries, ledger, memory.New(time.Minute), txManager, opts, logger),
		checker: nsService.NewConsistencyChecker(entries, ledger, txManager, logger),
		entries: entries,
		ledger:  ledger,
		owner:   "owner-" + uuid.NewString(),
	}
}

func (p *pgTree) folder(t *testing.T, name string, parent *models.Entry) *models.Entry {
	t.Helper()
	req := &nsSvc.CreateFolderRequest{OwnerID: p.owner, Name: name}
	if parent != nil {
		req.ParentID = &parent.ID
	}
	f, err := p.svc.CreateFolder(context.Background(), req)
	require.NoError(t, err)
	return f
}

func (p *pgTree) file(t *testing.T, name string, parent *models.Entry, size int) *models.Entry {
	t.Helper()
	req := &nsSvc.CreateFileRequest{OwnerID: p.owner, Name: name, Content: make([]byte, size)}
	if parent != nil {
		req.ParentID = &parent.ID
	}
	f, err := p.svc.CreateFile(context.Background(), req)
	require.NoError(t, err)
	return f
}

func (p *pgTree) usage(t *testing.T) *models.Usage {
	t.Helper()
	u, err := p.svc.Usage(context.Background(), p.owner)
	require.NoError(t, err)
	return u
}

func (p *pgTree) requireConsistent(t *testing.T) {
	t.Helper()
	report, err := p.checker.Check(context.Background(), p.owner)
	require.NoError(t, err)
	require.True(t, report.OK(), "problems: %+v", report.Problems)
}

func TestPostgres_DocsReportsScenario(t *testing.T) {
	p := newPgTree(t, 15)
	ctx := context.Background()

	docs := p.folder(t, "Docs", nil)
	reports := p.folder(t, "Reports", docs)
	file := p.file(t, "a.txt", reports, 10)

	assert.Equal(t, "/", docs.MaterializedPath)
	assert.Equal(t, "/Docs/", reports.MaterializedPath)
	assert.Equal(t, "/Docs/Reports/", file.MaterializedPath)
	assert.Equal(t, int64(10), p.usage(t).Used)
	p.requireConsistent(t)

	require.NoError(t, p.svc.Delete(ctx, p.owner, docs.ID))

	_, err := p.svc.GetEntry(ctx, p.owner, file.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	roots, err := p.svc.ListChildren(ctx, p.owner, nil, models.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, roots)
	assert.Equal(t, int64(0), p.usage(t).Used)
	p.requireConsistent(t)
}

func TestPostgres_ConcurrentCreateFileQuota(t *testing.T) {
	p := newPgTree(t, 100)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.svc.CreateFile(context.Background(), &nsSvc.CreateFileRequest{
				OwnerID: p.owner,
				Name:    []string{"one.bin", "two.bin"}[i],
				Content: make([]byte, 60),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	}
	assert.Equal(t, 1, succeeded)

	usage := p.usage(t)
	assert.Equal(t, int64(60), usage.Used)
	assert.Equal(t, int64(0), usage.Reserved)
	p.requireConsistent(t)
}

func TestPostgres_RenamePropagatesPaths(t *testing.T) {
	p := newPgTree(t, 0)
	ctx := context.Background()

	a := p.folder(t, "A", nil)
	b := p.folder(t, "B", a)
	c := p.folder(t, "C", b)
	f := p.file(t, "notes.md", c, 4)

	_, err := p.svc.Rename(ctx, p.owner, a.ID, "A2")
	require.NoError(t, err)

	got, err := p.svc.GetEntry(ctx, p.owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "/A2/B/", got.MaterializedPath)
	got, err = p.svc.GetEntry(ctx, p.owner, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "/A2/B/C/", got.MaterializedPath)

	_, err = p.svc.Move(ctx, p.owner, a.ID, &c.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
	p.requireConsistent(t)
}

func TestPostgres_TrashAndRestore(t *testing.T) {
	p := newPgTree(t, 0)
	ctx := context.Background()

	docs := p.folder(t, "Docs", nil)
	p.file(t, "a.txt", docs, 7)

	_, err := p.svc.Trash(ctx, p.owner, docs.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.usage(t).Used)

	trash, err := p.svc.ListTrash(ctx, p.owner)
	require.NoError(t, err)
	require.Len(t, trash, 1)
	assert.Equal(t, docs.ID, trash[0].ID)

	// The partial unique index ignores trashed names
	replacement := p.folder(t, "Docs", nil)
	_, err = p.svc.Restore(ctx, p.owner, docs.ID)
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict), "got %v", err)
	assert.Equal(t, replacement.ID, conflict.ResourceID)

	require.NoError(t, p.svc.Delete(ctx, p.owner, replacement.ID))
	restored, err := p.svc.Restore(ctx, p.owner, docs.ID)
	require.NoError(t, err)
	assert.False(t, restored.Trashed)
	assert.Equal(t, int64(7), p.usage(t).Used)
	p.requireConsistent(t)
}

func TestPostgres_ConcurrentSiblingCreates(t *testing.T) {
	p := newPgTree(t, 0)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.svc.CreateFolder(context.Background(), &nsSvc.CreateFolderRequest{OwnerID: p.owner, Name: "Shared"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)
	p.requireConsistent(t)
}

func TestPostgres_MalformedIDs(t *testing.T) {
	p := newPgTree(t, 0)
	ctx := context.Background()
	docs := p.folder(t, "Docs", nil)
	bad := "abc"

	_, err := p.svc.GetEntry(ctx, p.owner, bad)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	children, err := p.svc.ListChildren(ctx, p.owner, &bad, models.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, children)

	_, err = p.svc.CreateFolder(ctx, &nsSvc.CreateFolderRequest{OwnerID: p.owner, Name: "x", ParentID: &bad})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = p.svc.Move(ctx, p.owner, docs.ID, &bad)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, p.svc.Delete(ctx, p.owner, bad), domain.ErrNotFound)
}

func TestPostgres_StaleVersionUpdate(t *testing.T) {
	p := newPgTree(t, 0)
	ctx := context.Background()
	docs := p.folder(t, "Docs", nil)

	first, err := p.entries.GetByID(ctx, p.owner, docs.ID)
	require.NoError(t, err)
	stale, err := p.entries.GetByID(ctx, p.owner, docs.ID)
	require.NoError(t, err)

	first.Starred = true
	require.NoError(t, p.entries.Update(ctx, first))
	assert.Equal(t, docs.Version+1, first.Version)

	stale.Name = "Other"
	assert.ErrorIs(t, p.entries.Update(ctx, stale), domain.ErrConcurrentUpdate)
}

func TestPostgres_QuotaHolds(t *testing.T) {
	p := newPgTree(t, 100)
	ctx := context.Background()

	_, err := p.ledger.Hold(ctx, p.owner, 60)
	require.NoError(t, err)
	_, err = p.ledger.TryReserve(ctx, p.owner, 50)
	var quotaErr *domain.QuotaError
	require.True(t, errors.As(err, &quotaErr))
	assert.Equal(t, int64(60), quotaErr.Used)

	require.NoError(t, p.ledger.Reset(ctx, p.owner, 5))
	require.NoError(t, p.ledger.Settle(ctx, p.owner, 60))
	usage := p.usage(t)
	assert.Equal(t, int64(65), usage.Used)
	assert.Equal(t, int64(0), usage.Reserved)

	_, err = p.ledger.Hold(ctx, p.owner, 30)
	require.NoError(t, err)
	require.NoError(t, p.ledger.Unhold(ctx, p.owner, 1000))
	require.NoError(t, p.ledger.Release(ctx, p.owner, 1000))
	usage = p.usage(t)
	assert.Equal(t, int64(0), usage.Used)
	assert.Equal(t, int64(0), usage.Reserved)
}
