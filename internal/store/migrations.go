package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for the run journal.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		state       TEXT NOT NULL DEFAULT 'RUNNING',
		config_path TEXT NOT NULL DEFAULT '',
		workers     INTEGER NOT NULL,
		samples     INTEGER NOT NULL,
		tally       TEXT NOT NULL DEFAULT '{}',
		error       TEXT NOT NULL DEFAULT '',
		started_at  TEXT NOT NULL,
		finished_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,

	`CREATE TABLE IF NOT EXISTS results (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		status      INTEGER NOT NULL,
		process     TEXT NOT NULL,
		slot        INTEGER NOT NULL,
		runner      TEXT NOT NULL DEFAULT '',
		message     TEXT NOT NULL DEFAULT '',
		error       TEXT NOT NULL DEFAULT '',
		recorded_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_results_run_id ON results(run_id)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
