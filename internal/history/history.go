// Package history keeps an audit trail of fill and email operations.
// Only counts, filenames and outcomes are stored; record values, recipients
// and full session ids never are.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Event kinds
const (
	KindFill  = "fill"
	KindEmail = "email"
)

// sessionPrefixLen is how much of a session id is kept for correlation
const sessionPrefixLen = 8

// Event is one audited operation
type Event struct {
	ID            int64     `json:"id"`
	RequestID     string    `json:"request_id"`
	Kind          string    `json:"kind"`
	At            time.Time `json:"at"`
	SessionPrefix string    `json:"session_prefix,omitempty"`
	Filename      string    `json:"filename,omitempty"`
	FieldsTotal   int       `json:"fields_total"`
	FieldsFilled  int       `json:"fields_filled"`
	Outcome       string    `json:"outcome"`
}

// Recorder stores events
type Recorder interface {
	Record(ctx context.Context, e Event) error
	Recent(ctx context.Context, limit int) ([]Event, error)
	Close() error
}

// Nop discards events
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

func (Nop) Recent(context.Context, int) ([]Event, error) { return nil, nil }

func (Nop) Close() error { return nil }

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	at TEXT NOT NULL,
	session_prefix TEXT,
	filename TEXT,
	fields_total INTEGER NOT NULL DEFAULT 0,
	fields_filled INTEGER NOT NULL DEFAULT 0,
	outcome TEXT NOT NULL
)`

// SQLite records events in a SQLite database
type SQLite struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path; ":memory:" works
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Record inserts an event. The session id is truncated before storage.
func (s *SQLite) Record(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if len(e.SessionPrefix) > sessionPrefixLen {
		e.SessionPrefix = e.SessionPrefix[:sessionPrefixLen]
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (request_id, kind, at, session_prefix, filename, fields_total, fields_filled, outcome)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.Kind, e.At.UTC().Format(time.RFC3339Nano), e.SessionPrefix,
		e.Filename, e.FieldsTotal, e.FieldsFilled, e.Outcome)
	if err != nil {
		return fmt.Errorf("insert failed: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first
func (s *SQLite) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, kind, at, session_prefix, filename, fields_total, fields_filled, outcome
		 FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e        Event
			at       string
			prefix   sql.NullString
			filename sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Kind, &at, &prefix, &filename,
			&e.FieldsTotal, &e.FieldsFilled, &e.Outcome); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			e.At = t
		}
		e.SessionPrefix = prefix.String
		e.Filename = filename.String
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return events, nil
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}
