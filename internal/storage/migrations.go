package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.1.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
	{
		Version: "1.1.0",
		Up:      migrationV11Up,
		Down:    migrationV11Down,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS indexes (
    name TEXT PRIMARY KEY,
    dimension INTEGER NOT NULL DEFAULT 0,
    metric TEXT NOT NULL DEFAULT 'cosine',
    chunk_count INTEGER NOT NULL DEFAULT 0,
    batch_count INTEGER NOT NULL DEFAULT 0,
    batch_size INTEGER NOT NULL DEFAULT 0,
    format_version TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS paths (
    index_name TEXT NOT NULL,
    path_id TEXT NOT NULL,
    path TEXT NOT NULL,
    PRIMARY KEY (index_name, path_id),
    UNIQUE (index_name, path),
    FOREIGN KEY (index_name) REFERENCES indexes(name) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS chunks (
    index_name TEXT NOT NULL,
    id TEXT NOT NULL,
    batch INTEGER NOT NULL,
    ordinal INTEGER NOT NULL,
    path_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    name TEXT NOT NULL,
    code TEXT NOT NULL,
    vector BLOB NOT NULL,
    PRIMARY KEY (index_name, id),
    FOREIGN KEY (index_name) REFERENCES indexes(name) ON DELETE CASCADE,
    FOREIGN KEY (index_name, path_id) REFERENCES paths(index_name, path_id)
);

CREATE INDEX IF NOT EXISTS idx_chunks_order ON chunks(index_name, batch, ordinal);
`

const migrationV1Down = `
DROP INDEX IF EXISTS idx_chunks_order;
DROP TABLE IF EXISTS chunks;
DROP TABLE IF EXISTS paths;
DROP TABLE IF EXISTS indexes;
DROP TABLE IF EXISTS schema_version;
`

// 1.1.0 records which provider produced an index
const migrationV11Up = `
ALTER TABLE indexes ADD COLUMN provider TEXT NOT NULL DEFAULT '';
ALTER TABLE indexes ADD COLUMN model TEXT NOT NULL DEFAULT '';
`

const migrationV11Down = `
ALTER TABLE indexes DROP COLUMN model;
ALTER TABLE indexes DROP COLUMN provider;
`

// currentVersion reads the applied schema version, 0.0.0 for a fresh database
func currentVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	var tableName string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if errors.Is(err, sql.ErrNoRows) {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	current := semver.MustParse("0.0.0")
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		v, err := semver.NewVersion(s)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", s, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, rows.Err()
}

// ApplyMigrations runs all pending migrations
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}

	latest := semver.MustParse(CurrentSchemaVersion)
	if current.Major() > latest.Major() {
		return fmt.Errorf("%w: database schema %s is newer than %s", ErrUnsupportedFormat, current, latest)
	}

	for _, migration := range AllMigrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}
		if !current.LessThan(migrationVersion) {
			continue
		}

		if _, err := db.ExecContext(ctx, migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
		if _, err := db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}
		current = migrationVersion
	}

	return nil
}

// RollbackMigration rolls back the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}

	var migration *Migration
	for i := range AllMigrations {
		if semver.MustParse(AllMigrations[i].Version).Equal(current) {
			migration = &AllMigrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("no migration to roll back from %s", current)
	}

	if _, err := db.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", migration.Version, err)
	}

	// the first migration drops schema_version itself
	if migration.Version == AllMigrations[0].Version {
		return nil
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", migration.Version); err != nil {
		return fmt.Errorf("failed to remove migration record %s: %w", migration.Version, err)
	}
	return nil
}
