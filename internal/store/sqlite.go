package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sightline/sightline-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS batch_runs (
	id            TEXT PRIMARY KEY,
	object_name   TEXT NOT NULL,
	mode          TEXT NOT NULL,
	total_inputs  INTEGER NOT NULL,
	success_count INTEGER NOT NULL,
	failure_count INTEGER NOT NULL,
	records       TEXT NOT NULL,
	started_at    DATETIME NOT NULL,
	finished_at   DATETIME NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_batch_runs_object_name ON batch_runs(object_name);
CREATE INDEX IF NOT EXISTS idx_batch_runs_created_at ON batch_runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveBatch persists a completed batch invocation and returns the stored run.
func (s *SQLiteStore) SaveBatch(ctx context.Context, mode string, result model.BatchResult) (*model.BatchRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	recordsJSON, err := json.Marshal(result.Records)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal records")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO batch_runs (id, object_name, mode, total_inputs, success_count, failure_count, records, started_at, finished_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, result.ObjectName, mode, result.TotalInputs, result.SuccessCount, result.FailureCount,
		string(recordsJSON), result.StartTime, result.EndTime, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert batch run")
	}

	return &model.BatchRun{
		ID:           id,
		ObjectName:   result.ObjectName,
		Mode:         mode,
		TotalInputs:  result.TotalInputs,
		SuccessCount: result.SuccessCount,
		FailureCount: result.FailureCount,
		Records:      result.Records,
		StartedAt:    result.StartTime,
		FinishedAt:   result.EndTime,
		CreatedAt:    now,
	}, nil
}

// GetRun fetches a single run by ID, including its record set.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.BatchRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, object_name, mode, total_inputs, success_count, failure_count, records, started_at, finished_at, created_at
		 FROM batch_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: run %s not found", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", id)
	}
	return run, nil
}

// ListRuns returns runs matching the filter, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.BatchRun, error) {
	query := `SELECT id, object_name, mode, total_inputs, success_count, failure_count, records, started_at, finished_at, created_at
		 FROM batch_runs WHERE 1=1`
	var args []any

	if filter.ObjectName != "" {
		query += " AND object_name = ?"
		args = append(args, filter.ObjectName)
	}
	if !filter.CreatedAfter.IsZero() {
		query += " AND created_at > ?"
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.BatchRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.BatchRun, error) {
	var run model.BatchRun
	var recordsJSON string
	err := row.Scan(&run.ID, &run.ObjectName, &run.Mode, &run.TotalInputs,
		&run.SuccessCount, &run.FailureCount, &recordsJSON,
		&run.StartedAt, &run.FinishedAt, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(recordsJSON), &run.Records); err != nil {
		return nil, eris.Wrap(err, "unmarshal records")
	}
	return &run, nil
}
