// Package sqlite persists resolution results in a SQLite database.
//
// One database holds many runs. Each run gets a UUID; frame ids handed out
// by a run's [Sink] are row ids, deduplicated within that run.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/matzehuels/stackmap/pkg/results"
	"github.com/matzehuels/stackmap/pkg/stack"
)

// Store is the SQLite data access layer.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS runs (
  id          TEXT PRIMARY KEY,
  base_url    TEXT NOT NULL,
  created_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS frames (
  id              INTEGER PRIMARY KEY,
  run_id          TEXT NOT NULL REFERENCES runs(id),
  function_name   TEXT NOT NULL DEFAULT '',
  file_name       TEXT NOT NULL DEFAULT '',
  line_number     INTEGER NOT NULL DEFAULT 0,
  column_number   INTEGER NOT NULL DEFAULT 0,
  original_source TEXT NOT NULL DEFAULT '',
  mapped          BOOLEAN NOT NULL DEFAULT FALSE,
  UNIQUE (run_id, function_name, file_name, line_number, column_number, original_source)
);

CREATE TABLE IF NOT EXISTS source_files (
  run_id     TEXT NOT NULL REFERENCES runs(id),
  url        TEXT NOT NULL,
  source     TEXT NOT NULL DEFAULT '',
  mime_type  TEXT NOT NULL,
  text       TEXT NOT NULL,
  PRIMARY KEY (run_id, url, source)
);

CREATE TABLE IF NOT EXISTS stacks (
  run_id       TEXT NOT NULL REFERENCES runs(id),
  observation  INTEGER NOT NULL,
  position     INTEGER NOT NULL,
  frame_ids    TEXT NOT NULL,
  PRIMARY KEY (run_id, observation, position)
);

CREATE INDEX IF NOT EXISTS idx_frames_run ON frames(run_id);
`

// Run describes one stored resolution run.
type Run struct {
	ID        string
	BaseURL   string
	CreatedAt time.Time
}

// NewRun registers a run and returns a sink writing into it.
func (s *Store) NewRun(ctx context.Context, baseURL string) (*Sink, error) {
	run := Run{ID: uuid.NewString(), BaseURL: baseURL, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, base_url, created_at) VALUES (?, ?, ?)`,
		run.ID, run.BaseURL, run.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Sink{store: s, run: run, ids: make(map[string]results.FrameID)}, nil
}

// Runs lists stored runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, base_url, created_at FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.BaseURL, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Frame loads one frame by id.
func (s *Store) Frame(ctx context.Context, id results.FrameID) (stack.ResolvedFrame, error) {
	var f stack.ResolvedFrame
	err := s.db.QueryRowContext(ctx,
		`SELECT function_name, file_name, line_number, column_number, original_source, mapped
		 FROM frames WHERE id = ?`, id).
		Scan(&f.Function, &f.File, &f.Line, &f.Column, &f.Source, &f.Mapped)
	if err != nil {
		return f, fmt.Errorf("query frame %d: %w", id, err)
	}
	return f, nil
}

// Stacks loads the stacks saved for runID.
func (s *Store) Stacks(ctx context.Context, runID string) (results.GrowthStacks, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT observation, frame_ids FROM stacks WHERE run_id = ? ORDER BY observation, position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query stacks: %w", err)
	}
	defer rows.Close()

	out := make(results.GrowthStacks)
	for rows.Next() {
		var obs int
		var raw string
		if err := rows.Scan(&obs, &raw); err != nil {
			return nil, fmt.Errorf("scan stack: %w", err)
		}
		var st results.Stack
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return nil, fmt.Errorf("decode stack: %w", err)
		}
		out[obs] = append(out[obs], st)
	}
	return out, rows.Err()
}

// SourceFiles loads the source files recorded for runID.
func (s *Store) SourceFiles(ctx context.Context, runID string) ([]results.SourceFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, source, mime_type, text FROM source_files WHERE run_id = ? ORDER BY url, source`, runID)
	if err != nil {
		return nil, fmt.Errorf("query source files: %w", err)
	}
	defer rows.Close()

	var files []results.SourceFile
	for rows.Next() {
		var f results.SourceFile
		if err := rows.Scan(&f.URL, &f.Source, &f.MIMEType, &f.Text); err != nil {
			return nil, fmt.Errorf("scan source file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Sink writes one run's frames and source files. It is safe for
// concurrent use.
type Sink struct {
	store *Store
	run   Run

	mu  sync.Mutex
	ids map[string]results.FrameID
}

// RunID returns the run's UUID.
func (k *Sink) RunID() string { return k.run.ID }

// AddSourceFile stores f, replacing an earlier file with the same URL and
// source name.
func (k *Sink) AddSourceFile(ctx context.Context, f results.SourceFile) error {
	_, err := k.store.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO source_files (run_id, url, source, mime_type, text) VALUES (?, ?, ?, ?, ?)`,
		k.run.ID, f.URL, f.Source, f.MIMEType, f.Text)
	if err != nil {
		return fmt.Errorf("insert source file %s: %w", f.URL, err)
	}
	return nil
}

// AddFrame stores f once per run and returns its row id.
func (k *Sink) AddFrame(ctx context.Context, f stack.ResolvedFrame) (results.FrameID, error) {
	key := f.Key()

	k.mu.Lock()
	defer k.mu.Unlock()
	if id, ok := k.ids[key]; ok {
		return id, nil
	}

	_, err := k.store.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO frames
		 (run_id, function_name, file_name, line_number, column_number, original_source, mapped)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		k.run.ID, f.Function, f.File, f.Line, f.Column, f.Source, f.Mapped)
	if err != nil {
		return 0, fmt.Errorf("insert frame: %w", err)
	}

	var id int64
	err = k.store.db.QueryRowContext(ctx,
		`SELECT id FROM frames WHERE run_id = ? AND function_name = ? AND file_name = ?
		 AND line_number = ? AND column_number = ? AND original_source = ?`,
		k.run.ID, f.Function, f.File, f.Line, f.Column, f.Source).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("select frame: %w", err)
	}

	k.ids[key] = results.FrameID(id)
	return results.FrameID(id), nil
}

// SaveStacks stores the run's resolved stacks in one transaction.
func (k *Sink) SaveStacks(ctx context.Context, stacks results.GrowthStacks) error {
	tx, err := k.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO stacks (run_id, observation, position, frame_ids) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for obs, list := range stacks {
		for pos, st := range list {
			if st == nil {
				st = results.Stack{}
			}
			data, err := json.Marshal(st)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, k.run.ID, obs, pos, string(data)); err != nil {
				return fmt.Errorf("insert stack %d/%d: %w", obs, pos, err)
			}
		}
	}
	return tx.Commit()
}

var _ results.Sink = (*Sink)(nil)
