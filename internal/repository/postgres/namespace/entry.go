package namespace

import (
	"context"
	"fmt"
	"strings"
	"time"

	"drivestore/internal/domain"
	models "drivestore/internal/domain/models/namespace"
	"drivestore/internal/domain/repositories"
	nsRepo "drivestore/internal/domain/repositories/namespace"
	"drivestore/internal/repository/postgres"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const entryColumns = `id, owner_id, kind, name, parent_id, materialized_path, content_key,
	mime_type, size, starred, trashed, trashed_at, version, created_at, updated_at`

// PostgresEntryRepository implements the EntryRepository interface
type PostgresEntryRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
}

// NewEntryRepository creates a new entry repository
func NewEntryRepository(config *postgres.RepositoryConfig) nsRepo.EntryRepository {
	return &PostgresEntryRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.Entry, error) {
	var e models.Entry
	err := row.Scan(
		&e.ID,
		&e.OwnerID,
		&e.Kind,
		&e.Name,
		&e.ParentID,
		&e.MaterializedPath,
		&e.ContentKey,
		&e.MimeType,
		&e.Size,
		&e.Starred,
		&e.Trashed,
		&e.TrashedAt,
		&e.Version,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectEntries(rows pgx.Rows) ([]models.Entry, error) {
	defer rows.Close()

	entries := []models.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// validID reports whether id can name a row; the id columns are UUID, so
// anything else would fail the cast instead of matching nothing
func validID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// parentCondition builds the parent_id predicate; NULL needs IS NULL
func parentCondition(parentID *string, args []any) (string, []any) {
	if parentID == nil {
		return "parent_id IS NULL", args
	}
	args = append(args, *parentID)
	return fmt.Sprintf("parent_id = $%d", len(args)), args
}

func conflictError(entry *models.Entry) *domain.ConflictError {
	return &domain.ConflictError{
		Message:      fmt.Sprintf("a %s named %q already exists in this location", entry.Kind, entry.Name),
		ResourceType: string(entry.Kind),
	}
}

// Create inserts a new entry
func (r *PostgresEntryRepository) Create(ctx context.Context, entry *models.Entry) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, owner_id, kind, name, parent_id, materialized_path, content_key,
			mime_type, size, starred, trashed, trashed_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13, $14)
		RETURNING version
	`, r.tables.Entries)

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		entry.ID,
		entry.OwnerID,
		entry.Kind,
		entry.Name,
		entry.ParentID,
		entry.MaterializedPath,
		entry.ContentKey,
		entry.MimeType,
		entry.Size,
		entry.Starred,
		entry.Trashed,
		entry.TrashedAt,
		entry.CreatedAt,
		entry.UpdatedAt,
	).Scan(&entry.Version)

	if err != nil {
		if postgres.IsPgDuplicateError(err) {
			return conflictError(entry)
		}
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("parent folder: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("create entry: %w", err)
	}

	return nil
}

// GetByID retrieves an entry by ID
func (r *PostgresEntryRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Entry, error) {
	if !validID(id) {
		return nil, fmt.Errorf("entry %s: %w", id, domain.ErrNotFound)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = $1 AND owner_id = $2
	`, entryColumns, r.tables.Entries)

	executor := postgres.GetExecutor(ctx, r.pool)
	entry, err := scanEntry(executor.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("entry %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get entry: %w", err)
	}

	return entry, nil
}

// Update writes the mutable fields if the version still matches
func (r *PostgresEntryRepository) Update(ctx context.Context, entry *models.Entry) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET name = $1, parent_id = $2, materialized_path = $3, starred = $4,
			trashed = $5, trashed_at = $6, updated_at = $7, version = version + 1
		WHERE id = $8 AND owner_id = $9 AND version = $10
		RETURNING version
	`, r.tables.Entries)

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		entry.Name,
		entry.ParentID,
		entry.MaterializedPath,
		entry.Starred,
		entry.Trashed,
		entry.TrashedAt,
		entry.UpdatedAt,
		entry.ID,
		entry.OwnerID,
		entry.Version,
	).Scan(&entry.Version)

	if err != nil {
		if postgres.IsPgDuplicateError(err) {
			return conflictError(entry)
		}
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("parent folder: %w", domain.ErrNotFound)
		}
		if !postgres.IsPgNoRowsError(err) {
			return fmt.Errorf("update entry: %w", err)
		}

		// No row: either gone or the version moved on
		if _, getErr := r.GetByID(ctx, entry.OwnerID, entry.ID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("entry %s version %d: %w", entry.ID, entry.Version, domain.ErrConcurrentUpdate)
	}

	return nil
}

// UpdatePaths rewrites materialized paths in one batch
func (r *PostgresEntryRepository) UpdatePaths(ctx context.Context, ownerID string, updates []nsRepo.PathUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET materialized_path = $1, version = version + 1
		WHERE id = $2 AND owner_id = $3
	`, r.tables.Entries)

	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(query, u.Path, u.ID, ownerID)
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	results := executor.SendBatch(ctx, batch)
	defer results.Close()

	for _, u := range updates {
		tag, err := results.Exec()
		if err != nil {
			return fmt.Errorf("update path of %s: %w", u.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("entry %s: %w", u.ID, domain.ErrConcurrentUpdate)
		}
	}

	return nil
}

// MarkTrashed sets or clears trashed state on the given entries
func (r *PostgresEntryRepository) MarkTrashed(ctx context.Context, ownerID string, ids []string, trashedAt *time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET trashed = $3, trashed_at = $4, updated_at = NOW(), version = version + 1
		WHERE owner_id = $1 AND id = ANY($2::uuid[])
	`, r.tables.Entries)

	executor := postgres.GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query, ownerID, ids, trashedAt != nil, trashedAt)
	if err != nil {
		if postgres.IsPgDuplicateError(err) {
			return &domain.ConflictError{Message: "an entry with the same name already exists in this location"}
		}
		return fmt.Errorf("mark trashed: %w", err)
	}

	return nil
}

// DeleteMany removes entries in a single statement
func (r *PostgresEntryRepository) DeleteMany(ctx context.Context, ownerID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE owner_id = $1 AND id = ANY($2::uuid[])
	`, r.tables.Entries)

	executor := postgres.GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, ownerID, ids); err != nil {
		if postgres.IsPgForeignKeyError(err) {
			// A child appeared outside the collected subtree
			return fmt.Errorf("delete entries: %w", domain.ErrConcurrentUpdate)
		}
		return fmt.Errorf("delete entries: %w", err)
	}

	return nil
}

// ListChildren lists immediate children of a folder
func (r *PostgresEntryRepository) ListChildren(ctx context.Context, ownerID string, parentID *string, opts nsRepo.ListOptions) ([]models.Entry, error) {
	if parentID != nil && !validID(*parentID) {
		return []models.Entry{}, nil
	}

	args := []any{ownerID}
	conditions := []string{"owner_id = $1"}

	var cond string
	cond, args = parentCondition(parentID, args)
	conditions = append(conditions, cond)

	if !opts.IncludeTrashed {
		conditions = append(conditions, "NOT trashed")
	}
	if opts.Filter.StarredOnly {
		conditions = append(conditions, "starred")
	}
	if opts.Filter.NameContains != "" {
		args = append(args, opts.Filter.NameContains)
		conditions = append(conditions, fmt.Sprintf("strpos(lower(name), lower($%d)) > 0", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s
		ORDER BY (kind = 'folder') DESC, created_at DESC, id ASC
	`, entryColumns, r.tables.Entries, strings.Join(conditions, " AND "))

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}

	return collectEntries(rows)
}

// FindSibling returns the active entry with the given parent, kind and name
func (r *PostgresEntryRepository) FindSibling(ctx context.Context, ownerID string, parentID *string, kind models.EntryKind, name string) (*models.Entry, error) {
	if parentID != nil && !validID(*parentID) {
		return nil, nil
	}

	args := []any{ownerID, kind, name}
	cond, args := parentCondition(parentID, args)

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE owner_id = $1 AND kind = $2 AND name = $3 AND %s AND NOT trashed
		LIMIT 1
	`, entryColumns, r.tables.Entries, cond)

	executor := postgres.GetExecutor(ctx, r.pool)
	entry, err := scanEntry(executor.QueryRow(ctx, query, args...))
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find sibling: %w", err)
	}

	return entry, nil
}

// SearchByPrefix finds active entries whose name starts with prefix
func (r *PostgresEntryRepository) SearchByPrefix(ctx context.Context, ownerID, prefix string, limit int) ([]models.Entry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE owner_id = $1 AND NOT trashed AND starts_with(lower(name), lower($2))
		ORDER BY lower(name) ASC, id ASC
		LIMIT $3
	`, entryColumns, r.tables.Entries)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, ownerID, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("search entries: %w", err)
	}

	return collectEntries(rows)
}

// ListTrashed lists every trashed entry of an owner
func (r *PostgresEntryRepository) ListTrashed(ctx context.Context, ownerID string) ([]models.Entry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE owner_id = $1 AND trashed
		ORDER BY trashed_at DESC, id ASC
	`, entryColumns, r.tables.Entries)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list trashed: %w", err)
	}

	return collectEntries(rows)
}

// ListAll retrieves the owner's whole namespace
func (r *PostgresEntryRepository) ListAll(ctx context.Context, ownerID string) ([]models.Entry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE owner_id = $1
		ORDER BY materialized_path ASC, name ASC
	`, entryColumns, r.tables.Entries)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	return collectEntries(rows)
}

// LockNamespace takes a transaction-scoped advisory lock on the owner
func (r *PostgresEntryRepository) LockNamespace(ctx context.Context, ownerID string) error {
	tx := repositories.GetTx(ctx)
	if tx == nil {
		return nil
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ownerID); err != nil {
		return fmt.Errorf("lock namespace: %w", err)
	}
	return nil
}
