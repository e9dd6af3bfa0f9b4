package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements returns the DDL for the namespace index and quota ledger.
// Every statement is idempotent so Migrate can run at each startup.
func schemaStatements(t *TableNames) []string {
	return []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id                UUID PRIMARY KEY,
			owner_id          TEXT NOT NULL,
			kind              TEXT NOT NULL CHECK (kind IN ('file', 'folder')),
			name              TEXT NOT NULL CHECK (length(name) > 0),
			parent_id         UUID REFERENCES %[1]s (id),
			materialized_path TEXT NOT NULL DEFAULT '/',
			content_key       TEXT,
			mime_type         TEXT NOT NULL DEFAULT '',
			size              BIGINT NOT NULL DEFAULT 0 CHECK (size >= 0),
			starred           BOOLEAN NOT NULL DEFAULT FALSE,
			trashed           BOOLEAN NOT NULL DEFAULT FALSE,
			trashed_at        TIMESTAMPTZ,
			version           BIGINT NOT NULL DEFAULT 1,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, t.Entries),

		// Sibling names are unique among active entries; root-level entries
		// share the all-zero parent.
		fmt.Sprintf(`
		CREATE UNIQUE INDEX IF NOT EXISTS %[1]sentries_active_sibling_idx
			ON %[2]s (owner_id, COALESCE(parent_id, '00000000-0000-0000-0000-000000000000'::uuid), kind, name)
			WHERE NOT trashed`, t.Prefix, t.Entries),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]sentries_parent_idx ON %[2]s (owner_id, parent_id)`, t.Prefix, t.Entries),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]sentries_trashed_idx ON %[2]s (owner_id, trashed)`, t.Prefix, t.Entries),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]sentries_path_idx ON %[2]s (owner_id, materialized_path)`, t.Prefix, t.Entries),

		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			owner_id    TEXT PRIMARY KEY,
			used_bytes     BIGINT NOT NULL DEFAULT 0 CHECK (used_bytes >= 0),
			reserved_bytes BIGINT NOT NULL DEFAULT 0 CHECK (reserved_bytes >= 0),
			limit_bytes    BIGINT NOT NULL DEFAULT 0 CHECK (limit_bytes >= 0),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, t.Quotas),
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS reserved_bytes BIGINT NOT NULL DEFAULT 0 CHECK (reserved_bytes >= 0)`, t.Quotas),
	}
}

// Migrate creates the tables and indexes if they do not exist
func Migrate(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	for _, stmt := range schemaStatements(tables) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// DropTables removes the namespace tables (dev and test only)
func DropTables(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	for _, table := range []string{tables.Entries, tables.Quotas} {
		if _, err := pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, table)); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	return nil
}
