// Package runlog keeps the history of pipeline executions in sqlite. Every
// stage of every run gets a row: when it started, when it finished, how many
// rows went in and out, and the cleaner's quality counters. The status
// command reads it back; nothing in the pipeline ever depends on it for
// correctness.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/paddock-labs/tracker-cli/internal/model"
)

// Stage execution statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Entry represents a row in stage_runs.
type Entry struct {
	ID         int64                `json:"id"`
	RunID      string               `json:"run_id"`
	Stage      string               `json:"stage"`
	Status     string               `json:"status"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
	RowsIn     int                  `json:"rows_in"`
	RowsOut    int                  `json:"rows_out"`
	Counters   *model.QualityReport `json:"counters,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// Store provides read/write access to the run history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the run-log database at path and configures WAL
// mode.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "runlog: create %s", dir)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "runlog: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS stage_runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	stage       TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	rows_in     INTEGER NOT NULL DEFAULT 0,
	rows_out    INTEGER NOT NULL DEFAULT 0,
	counters    TEXT,
	error       TEXT
);

CREATE INDEX IF NOT EXISTS idx_stage_runs_run_id ON stage_runs(run_id);
CREATE INDEX IF NOT EXISTS idx_stage_runs_started_at ON stage_runs(started_at);
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "runlog: migrate")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Start records the beginning of a stage execution and returns its entry ID.
func (s *Store) Start(ctx context.Context, runID, stage string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_runs (run_id, stage, status, started_at) VALUES (?, ?, ?, ?)`,
		runID, stage, StatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "runlog: start %s", stage)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "runlog: last insert id")
	}
	return id, nil
}

// Complete marks a stage execution as successfully finished.
func (s *Store) Complete(ctx context.Context, entryID int64, rowsIn, rowsOut int, report *model.QualityReport) error {
	var countersJSON []byte
	if report != nil {
		var err error
		countersJSON, err = json.Marshal(report)
		if err != nil {
			return eris.Wrap(err, "runlog: marshal counters")
		}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE stage_runs
		 SET status = ?, finished_at = ?, rows_in = ?, rows_out = ?, counters = ?
		 WHERE id = ?`,
		StatusComplete, time.Now().UTC(), rowsIn, rowsOut, countersJSON, entryID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete entry %d", entryID)
	}
	return checkRowsAffected(res, entryID)
}

// Fail marks a stage execution as failed with the cause's message.
func (s *Store) Fail(ctx context.Context, entryID int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE stage_runs SET status = ?, finished_at = ?, error = ? WHERE id = ?`,
		StatusFailed, time.Now().UTC(), msg, entryID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail entry %d", entryID)
	}
	return checkRowsAffected(res, entryID)
}

// Recent returns the latest stage executions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, stage, status, started_at, finished_at, rows_in, rows_out, counters, error
		 FROM stage_runs ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: recent")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var finishedAt sql.NullTime
		var countersJSON, errText sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Stage, &e.Status, &e.StartedAt,
			&finishedAt, &e.RowsIn, &e.RowsOut, &countersJSON, &errText); err != nil {
			return nil, eris.Wrap(err, "runlog: scan entry")
		}
		if finishedAt.Valid {
			t := finishedAt.Time
			e.FinishedAt = &t
		}
		if countersJSON.Valid && countersJSON.String != "" {
			e.Counters = &model.QualityReport{}
			if err := json.Unmarshal([]byte(countersJSON.String), e.Counters); err != nil {
				return nil, eris.Wrap(err, "runlog: unmarshal counters")
			}
		}
		if errText.Valid {
			e.Error = errText.String
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "runlog: recent iterate")
}

func checkRowsAffected(res sql.Result, entryID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "runlog: rows affected")
	}
	if n == 0 {
		return eris.Errorf("runlog: entry %d not found", entryID)
	}
	return nil
}
