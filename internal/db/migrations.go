package db

import (
	"fmt"
)

// Migrate runs all database migrations
func (db *DB) Migrate() error {
	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	// Run migrations
	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001},
		{2, migration002},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

const migration001 = `
-- Scan runs (history)
CREATE TABLE scan_runs (
    id INTEGER PRIMARY KEY,
    scheduled_job_id INTEGER,
    paths TEXT NOT NULL DEFAULT '[]',
    status TEXT NOT NULL DEFAULT 'running',
    started_at DATETIME NOT NULL,
    completed_at DATETIME,
    files_scanned INTEGER DEFAULT 0,
    bytes_scanned INTEGER DEFAULT 0,
    duplicate_groups INTEGER DEFAULT 0,
    duplicate_files INTEGER DEFAULT 0,
    wasted_bytes INTEGER DEFAULT 0,
    error_message TEXT
);

CREATE INDEX idx_scan_runs_status ON scan_runs(status);
CREATE INDEX idx_scan_runs_started_at ON scan_runs(started_at);

-- Duplicate groups (stored for review before deletion)
CREATE TABLE duplicate_groups (
    id INTEGER PRIMARY KEY,
    scan_run_id INTEGER,
    file_hash TEXT NOT NULL,
    file_size INTEGER NOT NULL,
    file_count INTEGER NOT NULL,
    wasted_bytes INTEGER NOT NULL,
    status TEXT DEFAULT 'pending',
    files TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX idx_duplicate_groups_scan_run_id ON duplicate_groups(scan_run_id);
CREATE INDEX idx_duplicate_groups_status ON duplicate_groups(status);

-- Per-file scan errors (permission denied, vanished mid-read, ...)
CREATE TABLE scan_errors (
    id INTEGER PRIMARY KEY,
    scan_run_id INTEGER NOT NULL,
    path TEXT NOT NULL,
    kind TEXT NOT NULL,
    message TEXT NOT NULL
);

CREATE INDEX idx_scan_errors_scan_run_id ON scan_errors(scan_run_id);

-- Scheduled jobs (recurring scans)
CREATE TABLE scheduled_jobs (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    paths TEXT NOT NULL DEFAULT '[]',
    min_size INTEGER DEFAULT 0,
    max_size INTEGER,
    include_patterns TEXT DEFAULT '[]',
    exclude_patterns TEXT DEFAULT '[]',
    include_hidden BOOLEAN DEFAULT 0,
    cron_expression TEXT NOT NULL,
    enabled BOOLEAN DEFAULT 1,
    last_run_at DATETIME,
    next_run_at DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Deletion audit log (one row per validated deletion request)
CREATE TABLE deletions (
    id INTEGER PRIMARY KEY,
    group_id INTEGER NOT NULL,
    scan_run_id INTEGER NOT NULL,
    files_requested INTEGER DEFAULT 0,
    files_deleted INTEGER DEFAULT 0,
    files_failed INTEGER DEFAULT 0,
    bytes_freed INTEGER DEFAULT 0,
    results TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX idx_deletions_group_id ON deletions(group_id);

-- App settings (key-value store)
CREATE TABLE settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

INSERT INTO settings (key, value) VALUES ('retention_days', '30');
`

const migration002 = `
-- Fingerprint cache: a hit requires path, size and mtime to all match.
CREATE TABLE fingerprint_cache (
    path TEXT PRIMARY KEY,
    size INTEGER NOT NULL,
    mtime_ns INTEGER NOT NULL,
    hash TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`
