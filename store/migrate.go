package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates every table SQLStore needs if it does not already exist.
// Statements are written so re-running them against an already-migrated
// database is a no-op.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		text TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS phase_results (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(run_id, phase)
	)`,
	`CREATE TABLE IF NOT EXISTS edits (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		sheet TEXT NOT NULL,
		cell TEXT NOT NULL,
		old_value TEXT,
		new_value TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		run_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL,
		result_data TEXT,
		error TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS prompt_versions (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL,
		project_id TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_records (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		run_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		action TEXT NOT NULL,
		detail TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
}

// columnMigrations adds columns later spec revisions introduced, keyed by
// table, so an existing database created before those columns existed
// still upgrades cleanly. Each entry is applied only if the column is
// absent, discovered via PRAGMA table_info rather than a migration-version
// table — the schema is small enough that introspection is simpler than a
// versioned migration runner.
var columnMigrations = map[string][]string{
	"projects": {
		"memo TEXT NOT NULL DEFAULT ''",
		"llm_provider TEXT NOT NULL DEFAULT ''",
		"llm_model TEXT NOT NULL DEFAULT ''",
	},
}

// Migrate creates any missing tables and adds any missing columns. It is
// safe to call on every process startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS system_settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		default_llm_provider TEXT NOT NULL DEFAULT '',
		default_llm_model TEXT NOT NULL DEFAULT ''
	)`); err != nil {
		return fmt.Errorf("migrate system_settings: %w", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO system_settings (id) VALUES (1)`); err != nil {
		return fmt.Errorf("migrate system_settings seed: %w", err)
	}

	for table, columns := range columnMigrations {
		existing, err := existingColumns(ctx, db, table)
		if err != nil {
			return fmt.Errorf("migrate: inspect %s: %w", table, err)
		}
		for _, col := range columns {
			name := col[:indexOfSpace(col)]
			if existing[name] {
				continue
			}
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, col)
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate: add column %s.%s: %w", table, name, err)
			}
		}
	}

	return nil
}

func existingColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func indexOfSpace(s string) int {
	for i, c := range s {
		if c == ' ' {
			return i
		}
	}
	return len(s)
}
