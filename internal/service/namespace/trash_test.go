package namespace

import (
	"context"
	"errors"
	"testing"
	"time"

	"drivestore/internal/domain"
	models "drivestore/internal/domain/models/namespace"
	nsSvc "drivestore/internal/domain/services/namespace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeService_TrashAndRestore(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	docs := h.folder(t, "Docs", nil)
	reports := h.folder(t, "Reports", docs)
	file := h.file(t, "a.txt", reports, 30)
	h.file(t, "b.txt", docs, 20)
	assert.Equal(t, int64(50), h.used(t))

	trashed, err := h.svc.Trash(ctx, owner, docs.ID)
	require.NoError(t, err)
	assert.True(t, trashed.Trashed)
	require.NotNil(t, trashed.TrashedAt)
	assert.Equal(t, int64(0), h.used(t))

	// Descendants share the stamp of the root
	inner := h.get(t, file.ID)
	assert.True(t, inner.Trashed)
	assert.True(t, inner.TrashedAt.Equal(*trashed.TrashedAt))

	roots, err := h.svc.ListChildren(ctx, owner, nil, models.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, roots)

	trash, err := h.svc.ListTrash(ctx, owner)
	require.NoError(t, err)
	require.Len(t, trash, 1)
	assert.Equal(t, docs.ID, trash[0].ID)

	_, err = h.svc.Trash(ctx, owner, docs.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
	_, err = h.svc.Rename(ctx, owner, reports.ID, "Other")
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
	h.requireConsistent(t)

	restored, err := h.svc.Restore(ctx, owner, docs.ID)
	require.NoError(t, err)
	assert.False(t, restored.Trashed)
	assert.Nil(t, restored.TrashedAt)
	assert.Equal(t, int64(50), h.used(t))
	assert.False(t, h.get(t, file.ID).Trashed)

	_, err = h.svc.Restore(ctx, owner, docs.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
	h.requireConsistent(t)
}

func TestTreeService_RestoreNameTaken(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	old := h.folder(t, "Docs", nil)
	_, err := h.svc.Trash(ctx, owner, old.ID)
	require.NoError(t, err)

	// The name is free while the original sits in the trash
	replacement := h.folder(t, "Docs", nil)

	_, err = h.svc.Restore(ctx, owner, old.ID)
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, replacement.ID, conflict.ResourceID)

	require.NoError(t, h.svc.Delete(ctx, owner, replacement.ID))
	_, err = h.svc.Restore(ctx, owner, old.ID)
	require.NoError(t, err)
	h.requireConsistent(t)
}

func TestTreeService_RestoreOverQuota(t *testing.T) {
	h := newHarness(t, 10)
	ctx := context.Background()

	docs := h.folder(t, "Docs", nil)
	file := h.file(t, "a.bin", docs, 8)
	_, err := h.svc.Trash(ctx, owner, docs.ID)
	require.NoError(t, err)

	h.file(t, "b.bin", nil, 5)

	_, err = h.svc.Restore(ctx, owner, docs.ID)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.True(t, h.get(t, docs.ID).Trashed)
	assert.True(t, h.get(t, file.ID).Trashed)
	assert.Equal(t, int64(5), h.used(t))
	h.requireConsistent(t)
}

func TestTreeService_RestoreSeparatelyTrashedChild(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	docs := h.folder(t, "Docs", nil)
	file := h.file(t, "a.txt", docs, 4)

	_, err := h.svc.Trash(ctx, owner, file.ID)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = h.svc.Trash(ctx, owner, docs.ID)
	require.NoError(t, err)

	// Only the folder is a trash root while both are trashed
	trash, err := h.svc.ListTrash(ctx, owner)
	require.NoError(t, err)
	require.Len(t, trash, 1)
	assert.Equal(t, docs.ID, trash[0].ID)

	// The file was trashed on its own, so it stays behind
	_, err = h.svc.Restore(ctx, owner, docs.ID)
	require.NoError(t, err)
	assert.True(t, h.get(t, file.ID).Trashed)
	assert.Equal(t, int64(0), h.used(t))

	trash, err = h.svc.ListTrash(ctx, owner)
	require.NoError(t, err)
	require.Len(t, trash, 1)
	assert.Equal(t, file.ID, trash[0].ID)

	restored, err := h.svc.Restore(ctx, owner, file.ID)
	require.NoError(t, err)
	assert.Equal(t, docs.ID, *restored.ParentID)
	assert.Equal(t, "/Docs/", restored.MaterializedPath)
	assert.Equal(t, int64(4), h.used(t))
	h.requireConsistent(t)
}

func TestTreeService_RestoreToRootWhenParentTrashed(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	docs := h.folder(t, "Docs", nil)
	reports := h.folder(t, "Reports", docs)
	file := h.file(t, "a.txt", reports, 4)

	_, err := h.svc.Trash(ctx, owner, reports.ID)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = h.svc.Trash(ctx, owner, docs.ID)
	require.NoError(t, err)

	restored, err := h.svc.Restore(ctx, owner, reports.ID)
	require.NoError(t, err)
	assert.Nil(t, restored.ParentID)
	assert.Equal(t, "/", restored.MaterializedPath)
	assert.Equal(t, "/Reports/", h.get(t, file.ID).MaterializedPath)
	assert.False(t, h.get(t, file.ID).Trashed)
	assert.True(t, h.get(t, docs.ID).Trashed)
	assert.Equal(t, int64(4), h.used(t))
	h.requireConsistent(t)
}

func TestTreeService_RenameRewritesTrashedDescendants(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	docs := h.folder(t, "Docs", nil)
	reports := h.folder(t, "Reports", docs)
	_, err := h.svc.Trash(ctx, owner, reports.ID)
	require.NoError(t, err)

	_, err = h.svc.Rename(ctx, owner, docs.ID, "Papers")
	require.NoError(t, err)
	assert.Equal(t, "/Papers/", h.get(t, reports.ID).MaterializedPath)

	restored, err := h.svc.Restore(ctx, owner, reports.ID)
	require.NoError(t, err)
	assert.Equal(t, "/Papers/", restored.MaterializedPath)
	h.requireConsistent(t)
}

func TestTreeService_DeleteTrashedSubtree(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	docs := h.folder(t, "Docs", nil)
	h.file(t, "a.txt", docs, 7)
	kept := h.file(t, "kept.txt", nil, 3)
	_, err := h.svc.Trash(ctx, owner, docs.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), h.used(t))

	require.NoError(t, h.svc.Delete(ctx, owner, docs.ID))
	assert.Equal(t, int64(3), h.used(t))
	assert.Equal(t, 1, h.content.Len())

	trash, err := h.svc.ListTrash(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, trash)

	require.NoError(t, h.svc.Delete(ctx, owner, kept.ID))
	assert.Equal(t, int64(0), h.used(t))

	err = h.svc.Delete(ctx, owner, kept.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	h.requireConsistent(t)
}

func TestTreeService_DeleteKeepsIndexWhenBlobDeleteFails(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	file := h.file(t, "a.txt", nil, 6)
	h.content.DeleteHook = func(context.Context, string) error {
		return errors.New("bucket unreachable")
	}

	require.NoError(t, h.svc.Delete(ctx, owner, file.ID))
	_, err := h.svc.GetEntry(ctx, owner, file.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, int64(0), h.used(t))
	assert.Equal(t, 1, h.content.Len(), "orphaned blob is left for a later sweep")
}

func TestTreeService_ConcurrentCrossMoves(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	a := h.folder(t, "A", nil)
	b := h.folder(t, "B", nil)

	errs := make(chan error, 2)
	go func() {
		_, err := h.svc.Move(ctx, owner, a.ID, &b.ID)
		errs <- err
	}()
	go func() {
		_, err := h.svc.Move(ctx, owner, b.ID, &a.ID)
		errs <- err
	}()

	succeeded := 0
	for i := 0; i < 2; i++ {
		err := <-errs
		if err == nil {
			succeeded++
			continue
		}
		assert.Contains(t, []string{domain.KindInvalidOperation, domain.KindConflict}, domain.Kind(err))
	}
	assert.LessOrEqual(t, succeeded, 1)
	h.requireConsistent(t)
}

func TestTreeService_ConcurrentSiblingCreates(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	const workers = 8
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, err := h.svc.CreateFolder(ctx, &nsSvc.CreateFolderRequest{OwnerID: owner, Name: "Shared"})
			errs <- err
		}()
	}

	succeeded := 0
	for i := 0; i < workers; i++ {
		if err := <-errs; err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrConflict)
		}
	}
	assert.Equal(t, 1, succeeded)
	h.requireConsistent(t)
}
