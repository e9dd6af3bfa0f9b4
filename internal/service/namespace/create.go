package namespace

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"drivestore/internal/domain"
	models "drivestore/internal/domain/models/namespace"
	nsSvc "drivestore/internal/domain/services/namespace"
	"drivestore/internal/metrics"

	"github.com/google/uuid"
)

// CreateFolder creates an empty folder
func (s *treeService) CreateFolder(ctx context.Context, req *nsSvc.CreateFolderRequest) (folder *models.Entry, err error) {
	start := time.Now()
	defer func() { observe("create_folder", start, err) }()

	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}

	err = s.runTx(ctx, "create_folder", func(ctx context.Context) error {
		if err := s.entries.LockNamespace(ctx, req.OwnerID); err != nil {
			return err
		}

		parent, err := s.resolveParent(ctx, req.OwnerID, req.ParentID)
		if err != nil {
			return err
		}
		path := pathUnder(parent)
		if err := s.checkDepth(path); err != nil {
			return err
		}
		if err := s.checkSibling(ctx, req.OwnerID, req.ParentID, models.KindFolder, name, ""); err != nil {
			return err
		}

		ts := now()
		entry := &models.Entry{
			ID:               uuid.NewString(),
			OwnerID:          req.OwnerID,
			Kind:             models.KindFolder,
			Name:             name,
			ParentID:         req.ParentID,
			MaterializedPath: path,
			CreatedAt:        ts,
			UpdatedAt:        ts,
		}
		if err := s.entries.Create(ctx, entry); err != nil {
			return err
		}
		folder = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("folder created",
		"id", folder.ID,
		"name", folder.Name,
		"owner_id", folder.OwnerID,
		"parent_id", folder.ParentID,
		"path", folder.MaterializedPath,
	)

	return folder, nil
}

// CreateFile stores a new file. Quota is held before any byte is uploaded
// and settled in the transaction that records the entry; every failure in
// between drops the hold and removes the blob so nothing is left dangling.
func (s *treeService) CreateFile(ctx context.Context, req *nsSvc.CreateFileRequest) (file *models.Entry, err error) {
	start := time.Now()
	defer func() { observe("create_file", start, err) }()

	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}
	size := int64(len(req.Content))
	if s.opts.MaxUploadSize > 0 && size > s.opts.MaxUploadSize {
		return nil, fmt.Errorf("%w: file exceeds the %d byte upload limit", domain.ErrValidation, s.opts.MaxUploadSize)
	}
	mimeType := detectMimeType(name, req.MimeType, req.Content)

	// Cheap rejections before reserving quota; repeated under the lock below
	parent, err := s.resolveParent(ctx, req.OwnerID, req.ParentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkDepth(pathUnder(parent)); err != nil {
		return nil, err
	}
	if err := s.checkSibling(ctx, req.OwnerID, req.ParentID, models.KindFile, name, ""); err != nil {
		return nil, err
	}

	// Held bytes count against the limit but stay out of used until the
	// entry exists, so a usage repair mid-upload cannot drop them
	if _, err := s.ledger.Hold(ctx, req.OwnerID, size); err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			metrics.RecordQuotaRejection()
		}
		return nil, err
	}

	key := newContentKey(req.OwnerID)
	if err := s.upload(ctx, key, req.Content, mimeType); err != nil {
		if rollbackErr := s.rollbackUpload(ctx, req.OwnerID, key, size); rollbackErr != nil {
			return nil, rollbackErr
		}
		return nil, err
	}

	err = s.runTx(ctx, "create_file", func(ctx context.Context) error {
		if err := s.entries.LockNamespace(ctx, req.OwnerID); err != nil {
			return err
		}

		parent, err := s.resolveParent(ctx, req.OwnerID, req.ParentID)
		if err != nil {
			return err
		}
		path := pathUnder(parent)
		if err := s.checkDepth(path); err != nil {
			return err
		}
		if err := s.checkSibling(ctx, req.OwnerID, req.ParentID, models.KindFile, name, ""); err != nil {
			return err
		}

		ts := now()
		entry := &models.Entry{
			ID:               uuid.NewString(),
			OwnerID:          req.OwnerID,
			Kind:             models.KindFile,
			Name:             name,
			ParentID:         req.ParentID,
			MaterializedPath: path,
			ContentKey:       &key,
			MimeType:         mimeType,
			Size:             size,
			CreatedAt:        ts,
			UpdatedAt:        ts,
		}
		if err := s.entries.Create(ctx, entry); err != nil {
			return err
		}
		if err := s.ledger.Settle(ctx, req.OwnerID, size); err != nil {
			return err
		}
		file = entry
		return nil
	})
	if err != nil {
		if rollbackErr := s.rollbackUpload(ctx, req.OwnerID, key, size); rollbackErr != nil {
			return nil, rollbackErr
		}
		switch domain.Kind(err) {
		case domain.KindConflict, domain.KindNotFound, domain.KindValidation:
			return nil, err
		}
		return nil, fmt.Errorf("%w: record file: %v", domain.ErrInternal, err)
	}

	s.logger.Info("file created",
		"id", file.ID,
		"name", file.Name,
		"owner_id", file.OwnerID,
		"parent_id", file.ParentID,
		"path", file.MaterializedPath,
		"size", file.Size,
		"mime_type", file.MimeType,
	)

	return file, nil
}

// upload writes content with the configured timeout
func (s *treeService) upload(ctx context.Context, key string, data []byte, mimeType string) error {
	putCtx, cancel := context.WithTimeout(ctx, s.opts.ContentTimeout)
	defer cancel()

	if err := s.content.Put(putCtx, key, data, mimeType); err != nil {
		if errors.Is(err, domain.ErrStorageUnavailable) {
			return err
		}
		return fmt.Errorf("%w: upload content: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

// rollbackUpload deletes a blob that never got an entry and drops its
// hold. Failing to do either is Internal: the ledger or the store
// no longer matches the index.
func (s *treeService) rollbackUpload(ctx context.Context, ownerID, key string, size int64) error {
	cleanupCtx, cancel := s.cleanupContext(ctx)
	defer cancel()

	deleteErr := s.content.Delete(cleanupCtx, key)
	if deleteErr != nil {
		metrics.RecordOrphanedBlob()
	}
	releaseErr := s.ledger.Unhold(cleanupCtx, ownerID, size)

	if err := errors.Join(deleteErr, releaseErr); err != nil {
		s.logger.Error("rollback after failed upload",
			"owner_id", ownerID,
			"content_key", key,
			"size", size,
			"error", err,
		)
		return fmt.Errorf("%w: rollback failed upload: %v", domain.ErrInternal, err)
	}
	return nil
}

// detectMimeType prefers the client's hint, then the extension, then sniffing
func detectMimeType(name, hint string, content []byte) string {
	if hint != "" {
		return hint
	}
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		return byExt
	}
	return http.DetectContentType(content)
}
