// Package history keeps a local record of finished synthesis jobs in
// a SQLite database. History is advisory: failures here never fail a
// job.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Job statuses recorded per row.
const (
	StatusDone     = "done"
	StatusFailed   = "failed"
	StatusDegraded = "degraded"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	input       TEXT NOT NULL,
	output_path TEXT NOT NULL,
	model       TEXT NOT NULL,
	voice       TEXT NOT NULL,
	format      TEXT NOT NULL,
	speed       REAL NOT NULL,
	chunks      INTEGER NOT NULL,
	attempts    INTEGER NOT NULL,
	bytes       INTEGER NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS jobs_finished_at ON jobs (finished_at DESC);
`

// Row is one finished job.
type Row struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	// Input is a short human-readable description of the source, a
	// file name or "stdin", never the text itself.
	Input      string
	OutputPath string
	Model      string
	Voice      string
	Format     string
	Speed      float64
	Chunks     int
	Attempts   int
	Bytes      int64
	Status     string
	Error      string
}

// Store is a SQLite-backed job history.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at path, applying the
// schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Add records one finished job.
func (s *Store) Add(ctx context.Context, r Row) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs
			(id, started_at, finished_at, input, output_path,
			 model, voice, format, speed, chunks, attempts, bytes, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.Input, r.OutputPath,
		r.Model, r.Voice, r.Format, r.Speed, r.Chunks, r.Attempts, r.Bytes,
		r.Status, r.Error,
	)
	if err != nil {
		return fmt.Errorf("record job: %w", err)
	}
	return nil
}

// Recent returns up to limit jobs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, input, output_path,
		       model, voice, format, speed, chunks, attempts, bytes, status, error
		FROM jobs ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(
			&r.ID, &r.StartedAt, &r.FinishedAt, &r.Input, &r.OutputPath,
			&r.Model, &r.Voice, &r.Format, &r.Speed, &r.Chunks, &r.Attempts,
			&r.Bytes, &r.Status, &r.Error,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
