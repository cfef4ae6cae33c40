// Package audit records the terminal outcome of every request in a local
// SQLite access log. Recording is best-effort: failures are logged and
// never surfaced to callers.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one access-log row.
type Entry struct {
	CorrelationID string
	CallerKey     string
	Code          string
	Status        int
	Duration      time.Duration
}

// Recorder accepts access-log entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	Close() error
}

// Store is a SQLite-backed Recorder.
type Store struct {
	db *sql.DB
}

var _ Recorder = (*Store)(nil)

// NewStore opens (or creates) the access log at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open access log: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS access_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		correlation_id TEXT NOT NULL,
		caller_key TEXT NOT NULL,
		code TEXT NOT NULL,
		status INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_log (correlation_id, caller_key, code, status, duration_ns, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.CorrelationID, e.CallerKey, e.Code, e.Status, e.Duration.Nanoseconds(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record access-log entry: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// NopRecorder discards entries. Used when audit recording is disabled.
type NopRecorder struct{}

var _ Recorder = NopRecorder{}

func (NopRecorder) Record(context.Context, Entry) error { return nil }
func (NopRecorder) Close() error                        { return nil }
