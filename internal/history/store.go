package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_history (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id         TEXT NOT NULL UNIQUE,
    job_type       TEXT NOT NULL,
    worker_id      TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL,
    error_type     TEXT NOT NULL DEFAULT '',
    error_message  TEXT NOT NULL DEFAULT '',
    artifact       TEXT NOT NULL DEFAULT '',
    started_at     TEXT NOT NULL,
    completed_at   TEXT NOT NULL,
    duration_ms    INTEGER NOT NULL,
    services       INTEGER NOT NULL DEFAULT 0,
    usages         INTEGER NOT NULL DEFAULT 0,
    unmatched      INTEGER NOT NULL DEFAULT 0,
    created_at     TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_job_history_completed ON job_history(completed_at);
`

// Store provides SQLite-backed storage for job records.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the history database at dbPath and runs migrations.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	// WAL lets the CLI read while a worker writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Insert stores a record. Duplicate job_id inserts are silently ignored.
func (s *Store) Insert(r Record) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO job_history (
			job_id, job_type, worker_id, status,
			error_type, error_message, artifact,
			started_at, completed_at, duration_ms,
			services, usages, unmatched
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.JobID, r.JobType, r.WorkerID, r.Status,
		r.ErrorType, r.ErrorMessage, r.Artifact,
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.CompletedAt.UTC().Format(time.RFC3339Nano), r.DurationMs,
		r.Services, r.Usages, r.Unmatched,
	)
	if err != nil {
		return fmt.Errorf("insert job record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, most recently completed first.
func (s *Store) Recent(limit int) ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT id, job_id, job_type, worker_id, status,
		       error_type, error_message, artifact,
		       started_at, completed_at, duration_ms,
		       services, usages, unmatched
		FROM job_history
		ORDER BY completed_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var startedAt, completedAt string
		if err := rows.Scan(
			&r.ID, &r.JobID, &r.JobType, &r.WorkerID, &r.Status,
			&r.ErrorType, &r.ErrorMessage, &r.Artifact,
			&startedAt, &completedAt, &r.DurationMs,
			&r.Services, &r.Usages, &r.Unmatched,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			r.StartedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, completedAt); err == nil {
			r.CompletedAt = t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
