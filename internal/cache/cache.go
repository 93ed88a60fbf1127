// Package cache implements the derived SQLite projection described in
// spec.md §4.2: a rebuildable, process-local view of the event log, opened
// with WAL journaling and schema migrations applied on open.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the highest migration version this build knows
// how to apply.
const CurrentSchemaVersion = 3

// DefaultHotWindowDays is the fallback hot_window_days meta value used
// when the cache is first created.
const DefaultHotWindowDays = 7

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "baseline_cache_schema_v1",
		sql: `
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS knot_hot (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	state TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	body TEXT,
	workflow_etag TEXT,
	created_at TEXT,
	metadata_json TEXT
);

CREATE TABLE IF NOT EXISTS knot_warm (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS edge (
	src TEXT NOT NULL,
	kind TEXT NOT NULL,
	dst TEXT NOT NULL,
	PRIMARY KEY (src, kind, dst)
);

CREATE TABLE IF NOT EXISTS review_stats (
	id TEXT PRIMARY KEY,
	rework_count INTEGER NOT NULL DEFAULT 0,
	last_decision_at TEXT,
	last_outcome TEXT
);

CREATE TABLE IF NOT EXISTS cold_catalog (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	state TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_knot_hot_updated_at ON knot_hot(updated_at);
CREATE INDEX IF NOT EXISTS idx_knot_hot_state ON knot_hot(state);
CREATE INDEX IF NOT EXISTS idx_edge_dst_kind ON edge(dst, kind);
CREATE INDEX IF NOT EXISTS idx_cold_catalog_updated_at ON cold_catalog(updated_at);
`,
	},
	{
		version: 2,
		name:    "import_tracking_v1",
		sql: `
CREATE TABLE IF NOT EXISTS import_state (
	source_key TEXT PRIMARY KEY,
	source_type TEXT NOT NULL,
	source_ref TEXT NOT NULL,
	last_run_at TEXT NOT NULL,
	last_status TEXT NOT NULL,
	processed_count INTEGER NOT NULL DEFAULT 0,
	imported_count INTEGER NOT NULL DEFAULT 0,
	skipped_count INTEGER NOT NULL DEFAULT 0,
	error_count INTEGER NOT NULL DEFAULT 0,
	checkpoint TEXT,
	last_error TEXT
);

CREATE TABLE IF NOT EXISTS import_fingerprints (
	fingerprint TEXT PRIMARY KEY,
	source_key TEXT NOT NULL,
	knot_id TEXT NOT NULL,
	occurred_at TEXT NOT NULL,
	action TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_import_fingerprints_source_key
	ON import_fingerprints(source_key);
`,
	},
	{
		version: 3,
		name:    "knot_field_parity_v1",
		sql: `
ALTER TABLE knot_hot ADD COLUMN description TEXT;
ALTER TABLE knot_hot ADD COLUMN priority INTEGER;
ALTER TABLE knot_hot ADD COLUMN knot_type TEXT;
ALTER TABLE knot_hot ADD COLUMN tags_json TEXT NOT NULL DEFAULT '[]';
ALTER TABLE knot_hot ADD COLUMN notes_json TEXT NOT NULL DEFAULT '[]';
ALTER TABLE knot_hot ADD COLUMN handoff_capsules_json TEXT NOT NULL DEFAULT '[]';
ALTER TABLE knot_hot ADD COLUMN profile_id TEXT;

UPDATE knot_hot
SET description = COALESCE(description, body)
WHERE description IS NULL;
`,
	},
}

// Cache wraps the opened *sql.DB together with the path it was opened
// from, exactly as passed to Open.
type Cache struct {
	DB   *sql.DB
	Path string
}

// Open opens (creating if necessary) the SQLite cache at path, applies
// pragmas for speed and correctness, and runs any pending migrations.
func Open(ctx context.Context, path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := configureForSpeed(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applyMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Cache{DB: db, Path: path}, nil
}

func (c *Cache) Close() error {
	return c.DB.Close()
}

func configureForSpeed(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("cache: %s: %w", p, err)
		}
	}
	return nil
}

func applyMigrations(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: begin migration tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TEXT NOT NULL
);`); err != nil {
		return fmt.Errorf("cache: create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var alreadyApplied int
		err := tx.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = ?", m.version).Scan(&alreadyApplied)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("cache: check migration %d: %w", m.version, err)
		}

		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("cache: apply migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.version, m.name, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("cache: record migration %d: %w", m.version, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO meta (key, value) VALUES ('schema_version', ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, fmt.Sprintf("%d", CurrentSchemaVersion)); err != nil {
		return fmt.Errorf("cache: set schema_version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO meta (key, value) VALUES ('hot_window_days', ?)
ON CONFLICT(key) DO NOTHING`, fmt.Sprintf("%d", DefaultHotWindowDays)); err != nil {
		return fmt.Errorf("cache: set hot_window_days: %w", err)
	}

	return tx.Commit()
}
