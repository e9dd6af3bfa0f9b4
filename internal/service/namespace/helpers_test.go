package namespace

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	models "drivestore/internal/domain/models/namespace"
	nsRepo "drivestore/internal/domain/repositories/namespace"
	nsSvc "drivestore/internal/domain/services/namespace"
	"drivestore/internal/content/memory"
	"drivestore/internal/repository/badger"

	"github.com/stretchr/testify/require"
)

const owner = "owner-1"

type harness struct {
	svc     nsSvc.TreeService
	checker nsSvc.ConsistencyChecker
	entries nsRepo.EntryRepository
	ledger  nsRepo.QuotaLedger
	content *memory.Store
}

type harnessOption func(*Options)

func withMaxDepth(depth int) harnessOption {
	return func(o *Options) { o.MaxTreeDepth = depth }
}

func newHarness(t *testing.T, limit int64, opts ...harnessOption) *harness {
	t.Helper()

	store, err := badger.Open(badger.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	entries := badger.NewEntryRepository(store)
	ledger := badger.NewQuotaLedger(store, nsRepo.FixedLimit(limit))
	content := memory.New(time.Minute)
	txManager := badger.NewTransactionManager(store)

	options := DefaultOptions()
	options.TxRetryAttempts = 50
	options.RetryBackoff = time.Millisecond
	options.ContentTimeout = time.Second
	for _, opt := range opts {
		opt(&options)
	}

	return &harness{
		svc:     NewTreeService(entries, ledger, content, txManager, options, logger),
		checker: NewConsistencyChecker(entries, ledger, txManager, logger),
		entries: entries,
		ledger:  ledger,
		content: content,
	}
}

func (h *harness) folder(t *testing.T, name string, parent *models.Entry) *models.Entry {
	t.Helper()
	req := &nsSvc.CreateFolderRequest{OwnerID: owner, Name: name}
	if parent != nil {
		req.ParentID = &parent.ID
	}
	f, err := h.svc.CreateFolder(context.Background(), req)
	require.NoError(t, err)
	return f
}

func (h *harness) file(t *testing.T, name string, parent *models.Entry, size int) *models.Entry {
	t.Helper()
	req := &nsSvc.CreateFileRequest{OwnerID: owner, Name: name, Content: make([]byte, size)}
	if parent != nil {
		req.ParentID = &parent.ID
	}
	f, err := h.svc.CreateFile(context.Background(), req)
	require.NoError(t, err)
	return f
}

func (h *harness) get(t *testing.T, id string) *models.Entry {
	t.Helper()
	e, err := h.svc.GetEntry(context.Background(), owner, id)
	require.NoError(t, err)
	return e
}

func (h *harness) used(t *testing.T) int64 {
	t.Helper()
	u, err := h.svc.Usage(context.Background(), owner)
	require.NoError(t, err)
	return u.Used
}

func (h *harness) reserved(t *testing.T) int64 {
	t.Helper()
	u, err := h.svc.Usage(context.Background(), owner)
	require.NoError(t, err)
	return u.Reserved
}

// requireConsistent asserts every tree invariant holds for the owner
func (h *harness) requireConsistent(t *testing.T) {
	t.Helper()
	report, err := h.checker.Check(context.Background(), owner)
	require.NoError(t, err)
	require.True(t, report.OK(), "problems: %+v", report.Problems)
}

func strPtr(s string) *string {
	return &s
}
