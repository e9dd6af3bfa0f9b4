package namespace

import (
	"context"
	"fmt"
	"log/slog"

	models "drivestore/internal/domain/models/namespace"
	"drivestore/internal/domain/repositories"
	nsRepo "drivestore/internal/domain/repositories/namespace"
	nsSvc "drivestore/internal/domain/services/namespace"
)

type consistencyChecker struct {
	entries   nsRepo.EntryRepository
	ledger    nsRepo.QuotaLedger
	txManager repositories.TransactionManager
	logger    *slog.Logger
}

// NewConsistencyChecker creates a checker over the same index and ledger
// the tree service uses
func NewConsistencyChecker(
	entries nsRepo.EntryRepository,
	ledger nsRepo.QuotaLedger,
	txManager repositories.TransactionManager,
	logger *slog.Logger,
) nsSvc.ConsistencyChecker {
	return &consistencyChecker{
		entries:   entries,
		ledger:    ledger,
		txManager: txManager,
		logger:    logger,
	}
}

// Check audits the owner's namespace without modifying it
func (c *consistencyChecker) Check(ctx context.Context, ownerID string) (*models.CheckReport, error) {
	var report *models.CheckReport
	err := c.txManager.ExecTx(ctx, func(ctx context.Context) error {
		entries, err := c.entries.ListAll(ctx, ownerID)
		if err != nil {
			return err
		}
		usage, err := c.ledger.CurrentUsage(ctx, ownerID)
		if err != nil {
			return err
		}
		report = inspect(ownerID, entries, usage.Used)
		report.LedgerHeld = usage.Reserved
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("namespace checked",
		"owner_id", ownerID,
		"entries", report.Entries,
		"problems", len(report.Problems),
	)
	return report, nil
}

// RepairUsage recounts the used counter from the active files
func (c *consistencyChecker) RepairUsage(ctx context.Context, ownerID string) (*models.CheckReport, error) {
	var report *models.CheckReport
	err := c.txManager.ExecTx(ctx, func(ctx context.Context) error {
		if err := c.entries.LockNamespace(ctx, ownerID); err != nil {
			return err
		}
		entries, err := c.entries.ListAll(ctx, ownerID)
		if err != nil {
			return err
		}

		// Holds belong to uploads still in flight and are left alone
		active := activeBytes(entries)
		if err := c.ledger.Reset(ctx, ownerID, active); err != nil {
			return err
		}
		usage, err := c.ledger.CurrentUsage(ctx, ownerID)
		if err != nil {
			return err
		}
		report = inspect(ownerID, entries, usage.Used)
		report.LedgerHeld = usage.Reserved
		report.UsageRepaired = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("namespace usage repaired", "owner_id", ownerID, "used", report.LedgerUsed)
	return report, nil
}

// inspect evaluates the tree invariants over a flat listing
func inspect(ownerID string, entries []models.Entry, ledgerUsed int64) *models.CheckReport {
	report := &models.CheckReport{
		OwnerID:    ownerID,
		Entries:    len(entries),
		LedgerUsed: ledgerUsed,
		Problems:   []models.Problem{},
	}

	byID := make(map[string]*models.Entry, len(entries))
	for i := range entries {
		byID[entries[i].ID] = &entries[i]
	}

	type siblingKey struct {
		parent string
		kind   models.EntryKind
		name   string
	}
	seen := make(map[siblingKey]string)

	for i := range entries {
		e := &entries[i]
		if depth := e.Depth(); depth > report.MaxDepth {
			report.MaxDepth = depth
		}

		if !e.Trashed {
			if e.IsFile() {
				report.ActiveFiles++
				report.ActiveBytes += e.Size
			}

			key := siblingKey{kind: e.Kind, name: e.Name}
			if e.ParentID != nil {
				key.parent = *e.ParentID
			}
			if other, dup := seen[key]; dup {
				report.Problems = append(report.Problems, models.Problem{
					Code:    models.ProblemDuplicateName,
					EntryID: e.ID,
					Detail:  fmt.Sprintf("%s %q duplicates %s", e.Kind, e.Name, other),
				})
			} else {
				seen[key] = e.ID
			}
		}

		if e.ParentID != nil {
			parent, ok := byID[*e.ParentID]
			switch {
			case !ok:
				report.Problems = append(report.Problems, models.Problem{
					Code: models.ProblemDanglingParent, EntryID: e.ID,
					Detail: fmt.Sprintf("parent %s does not exist", *e.ParentID),
				})
				continue
			case !parent.IsFolder():
				report.Problems = append(report.Problems, models.Problem{
					Code: models.ProblemDanglingParent, EntryID: e.ID,
					Detail: fmt.Sprintf("parent %s is not a folder", parent.ID),
				})
				continue
			case parent.Trashed && !e.Trashed:
				report.Problems = append(report.Problems, models.Problem{
					Code: models.ProblemDanglingParent, EntryID: e.ID,
					Detail: fmt.Sprintf("active entry under trashed parent %s", parent.ID),
				})
			}
		}

		expected, ok := expectedPath(e, byID)
		if !ok {
			report.Problems = append(report.Problems, models.Problem{
				Code: models.ProblemCycle, EntryID: e.ID,
				Detail: "ancestor chain does not reach the root",
			})
			continue
		}
		if expected != e.MaterializedPath {
			report.Problems = append(report.Problems, models.Problem{
				Code: models.ProblemPathDrift, EntryID: e.ID,
				Detail: fmt.Sprintf("path is %q, ancestors give %q", e.MaterializedPath, expected),
			})
		}
	}

	if report.ActiveBytes != ledgerUsed {
		report.Problems = append(report.Problems, models.Problem{
			Code:   models.ProblemUsageDrift,
			Detail: fmt.Sprintf("ledger records %d bytes, active files hold %d", ledgerUsed, report.ActiveBytes),
		})
	}

	return report
}

// expectedPath rebuilds an entry's path from its ancestors' names. ok is
// false when the chain loops or leaves the listing.
func expectedPath(e *models.Entry, byID map[string]*models.Entry) (string, bool) {
	var names []string
	visited := map[string]bool{e.ID: true}

	current := e
	for current.ParentID != nil {
		parent, found := byID[*current.ParentID]
		if !found || visited[parent.ID] {
			return "", false
		}
		visited[parent.ID] = true
		names = append(names, parent.Name)
		current = parent
	}

	path := models.RootPath
	for i := len(names) - 1; i >= 0; i-- {
		path += names[i] + models.PathSeparator
	}
	return path, true
}
