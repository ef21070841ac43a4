package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/arc/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// One connection: SQLite has a single writer and every ":memory:"
	// connection would otherwise be a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	tallyJSON, err := json.Marshal(run.Tally)
	if err != nil {
		return fmt.Errorf("marshal tally: %w", err)
	}
	state := run.State
	if state == "" {
		state = model.RunStateRunning
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, state, config_path, workers, samples, tally, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(state), run.ConfigPath, run.Workers, run.Samples, string(tallyJSON), run.Error,
		run.StartedAt.Format(time.RFC3339Nano), formatTimePtr(run.FinishedAt),
	)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT id, state, config_path, workers, samples, tally, error, started_at, finished_at
		 FROM runs WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	where := ""
	var args []any
	if opts.State != "" {
		where = " WHERE state = ?"
		args = append(args, string(opts.State))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, state, config_path, workers, samples, tally, error, started_at, finished_at
		 FROM runs`+where+` ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

// FinishRun stores the final state, tally and error of a run. A run that
// already reached a final state cannot be finished again.
func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", run.ID, "state", run.State)

	if !run.State.IsTerminal() {
		return fmt.Errorf("finish run %s: state %s is not final", run.ID, run.State)
	}
	current, err := s.GetRun(ctx, run.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return model.NewNotFoundError("Run", run.ID)
	}
	if current.State.IsTerminal() {
		return &model.InvalidTransitionError{ID: run.ID, From: current.State, To: run.State}
	}

	tallyJSON, err := json.Marshal(run.Tally)
	if err != nil {
		return fmt.Errorf("marshal tally: %w", err)
	}
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, tally = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(run.State), string(tallyJSON), run.Error, formatTimePtr(run.FinishedAt), run.ID,
	)
	return err
}

// --- Status records ---

func (s *SQLiteStore) RecordResult(ctx context.Context, runID string, rec model.StatusRecord) error {
	s.logger.Debug("sql", "op", "insert", "table", "results", "run_id", runID, "status", rec.Status)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results (run_id, status, process, slot, runner, message, error, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, int(rec.Status), rec.Process, rec.Slot, string(rec.Runner), rec.Message, rec.Error,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) ListResults(ctx context.Context, runID string) ([]*model.ResultEntry, error) {
	s.logger.Debug("sql", "op", "list", "table", "results", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, status, process, slot, runner, message, error, recorded_at
		 FROM results WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*model.ResultEntry
	for rows.Next() {
		var e model.ResultEntry
		var status int
		var runner, recordedAt string
		if err := rows.Scan(&e.ID, &e.RunID, &status, &e.Record.Process, &e.Record.Slot, &runner,
			&e.Record.Message, &e.Record.Error, &recordedAt); err != nil {
			return nil, err
		}
		e.Record.Status = model.Status(status)
		e.Record.Runner = model.RunnerKind(runner)
		e.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// --- helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.Run, error) {
	var run model.Run
	var state, tallyJSON, startedAt string
	var finishedAt sql.NullString

	if err := row.Scan(&run.ID, &state, &run.ConfigPath, &run.Workers, &run.Samples, &tallyJSON,
		&run.Error, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	run.State = model.RunState(state)
	if err := json.Unmarshal([]byte(tallyJSON), &run.Tally); err != nil {
		return nil, fmt.Errorf("unmarshal tally: %w", err)
	}
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	run.FinishedAt = parseTimePtr(finishedAt)
	return &run, nil
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
