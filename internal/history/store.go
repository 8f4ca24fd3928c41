// Package history keeps a SQLite log of pipeline runs and of every feature
// ever ingested, with the time it was first and last seen. The monthly
// report reads "first seen in month" from here.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"feature-monitor/internal/feature"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	command     TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	status      TEXT NOT NULL DEFAULT 'running',
	error       TEXT
);

CREATE TABLE IF NOT EXISTS steps (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	name        TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS features (
	id           TEXT PRIMARY KEY,
	source_type  TEXT NOT NULL,
	product_area TEXT NOT NULL,
	first_seen   TEXT NOT NULL,
	last_seen    TEXT NOT NULL,
	payload      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_features_first_seen ON features(first_seen);
`

// Run statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// Run is one recorded invocation.
type Run struct {
	ID         string `json:"id"`
	Command    string `json:"command"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Steps      []Step `json:"steps,omitempty"`
}

// Step is one stage of a run.
type Step struct {
	Name       string `json:"name"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// Store wraps the history database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create dir: %w", err)
		}
	}
	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) stamp() string { return s.now().UTC().Format(time.RFC3339) }

// StartRun records a new run and returns its id.
func (s *Store) StartRun(ctx context.Context, command string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, started_at, status) VALUES (?, ?, ?, ?)`,
		id, command, s.stamp(), StatusRunning)
	if err != nil {
		return "", fmt.Errorf("history: start run: %w", err)
	}
	return id, nil
}

// RecordStep appends a finished step to a run. stepErr nil means success.
func (s *Store) RecordStep(ctx context.Context, runID, name string, started time.Time, stepErr error) error {
	status, msg := outcome(stepErr)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO steps (run_id, seq, name, started_at, finished_at, status, error)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM steps WHERE run_id = ?), ?, ?, ?, ?, ?)`,
		runID, runID, name, started.UTC().Format(time.RFC3339), s.stamp(), status, msg)
	if err != nil {
		return fmt.Errorf("history: record step: %w", err)
	}
	return nil
}

// FinishRun closes a run with the final outcome.
func (s *Store) FinishRun(ctx context.Context, runID string, runErr error) error {
	status, msg := outcome(runErr)
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		s.stamp(), status, msg, runID)
	if err != nil {
		return fmt.Errorf("history: finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("history: finish run: unknown run %q", runID)
	}
	return nil
}

// Runs returns the most recent runs with their steps, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, command, started_at, COALESCE(finished_at, ''), status, COALESCE(error, '')
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Command, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Error); err != nil {
			rows.Close()
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range runs {
		steps, err := s.steps(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Steps = steps
	}
	return runs, nil
}

func (s *Store) steps(ctx context.Context, runID string) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, started_at, finished_at, status, COALESCE(error, '')
		FROM steps WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: list steps: %w", err)
	}
	defer rows.Close()
	var out []Step
	for rows.Next() {
		var st Step
		if err := rows.Scan(&st.Name, &st.StartedAt, &st.FinishedAt, &st.Status, &st.Error); err != nil {
			return nil, fmt.Errorf("history: scan step: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// UpsertFeatures records features as seen at seenAt. New ids get
// first_seen = seenAt; known ids only move last_seen and refresh the
// payload. It returns how many ids were new.
func (s *Store) UpsertFeatures(ctx context.Context, list []feature.Feature, seenAt time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	seen := seenAt.UTC().Format(time.RFC3339)
	inserted := 0
	for _, f := range list {
		f.Embedding = nil
		payload, err := json.Marshal(f)
		if err != nil {
			return 0, fmt.Errorf("history: encode %s: %w", f.ID, err)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO features (id, source_type, product_area, first_seen, last_seen, payload)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			f.ID, f.SourceType, f.Area(), seen, seen, string(payload))
		if err != nil {
			return 0, fmt.Errorf("history: insert %s: %w", f.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE features SET last_seen = ?, payload = ? WHERE id = ?`,
			seen, string(payload), f.ID); err != nil {
			return 0, fmt.Errorf("history: update %s: %w", f.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("history: commit: %w", err)
	}
	return inserted, nil
}

// FirstSeenIn returns features first seen during the given month, ordered by
// first_seen then id.
func (s *Store) FirstSeenIn(ctx context.Context, month time.Time) ([]feature.Feature, error) {
	prefix := month.Format("2006-01") + "-%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM features WHERE first_seen LIKE ? ORDER BY first_seen, id`, prefix)
	if err != nil {
		return nil, fmt.Errorf("history: query month: %w", err)
	}
	defer rows.Close()
	out := make([]feature.Feature, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("history: scan feature: %w", err)
		}
		var f feature.Feature
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			return nil, fmt.Errorf("history: decode feature: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func outcome(err error) (status string, msg any) {
	if err == nil {
		return StatusOK, nil
	}
	return StatusFailed, err.Error()
}
