package seed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"drivestore/internal/content/memory"
	models "drivestore/internal/domain/models/namespace"
	nsRepo "drivestore/internal/domain/repositories/namespace"
	"drivestore/internal/repository/badger"
	svc "drivestore/internal/service/namespace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeSeeder(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := badger.Open(badger.Config{})
	require.NoError(t, err)
	defer store.Close()

	tree := svc.NewTreeService(
		badger.NewEntryRepository(store),
		badger.NewQuotaLedger(store, nsRepo.FixedLimit(0)),
		memory.New(time.Minute),
		badger.NewTransactionManager(store),
		svc.DefaultOptions(),
		logger,
	)
	seeder := NewTreeSeeder(tree, logger)
	ctx := context.Background()

	created, err := seeder.SeedDemoTree(ctx, "demo")
	require.NoError(t, err)
	assert.Len(t, created, len(DemoFolders)+len(DemoFiles))
	assert.Equal(t, "/Documents/Reports/", created["Documents/Reports/2024"].MaterializedPath)
	assert.Equal(t, "/Documents/Reports/2024/", created["Documents/Reports/2024/annual.txt"].MaterializedPath)
	assert.Equal(t, "text/csv", created["Documents/Reports/q3-summary.csv"].MimeType)

	var total int64
	for _, f := range DemoFiles {
		total += int64(len(f.Content))
	}
	usage, err := tree.Usage(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, total, usage.Used)

	// Seeding twice collides with the existing tree
	_, err = seeder.SeedDemoTree(ctx, "demo")
	assert.Error(t, err)

	_, err = tree.Trash(ctx, "demo", created["Photos"].ID)
	require.NoError(t, err)

	removed, err := seeder.ClearOwner(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, 4, removed)

	roots, err := tree.ListChildren(ctx, "demo", nil, models.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, roots)

	usage, err = tree.Usage(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage.Used)
}
