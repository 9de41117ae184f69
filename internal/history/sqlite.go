// Package history persists decided alerts in SQLite.
//
// DESIGN: An operator convenience journal, off by default. Detection
// state (window, pool, cooldowns) is never persisted; a restart always
// begins with a cold engine. The journal only answers "what did we
// alert on, and did it reach Slack" after the fact.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/backendim/poolwatch/internal/monitor"
)

const schema = `
CREATE TABLE IF NOT EXISTS alert_events (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	message      TEXT NOT NULL,
	prev_pool    TEXT,
	current_pool TEXT,
	pool         TEXT,
	error_count  INTEGER,
	error_rate   REAL,
	window_size  INTEGER,
	decided_at   TIMESTAMP NOT NULL,
	delivered    INTEGER NOT NULL,
	attempts     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_events_decided_at ON alert_events (decided_at);
`

// Entry is one journaled alert with its delivery outcome.
type Entry struct {
	Alert     monitor.Alert
	Delivered bool
	Attempts  int
}

// Store is a SQLite-backed alert journal.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the journal database and ensures schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("history db path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record stores one decided alert and its delivery outcome.
func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_events (
			id, kind, message, prev_pool, current_pool, pool,
			error_count, error_rate, window_size, decided_at, delivered, attempts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.Alert.ID,
		string(e.Alert.Kind),
		e.Alert.Message,
		e.Alert.PreviousPool,
		e.Alert.CurrentPool,
		e.Alert.Pool,
		e.Alert.ErrorCount,
		e.Alert.ErrorRate,
		e.Alert.WindowSize,
		e.Alert.Timestamp.UTC(),
		boolToInt(e.Delivered),
		e.Attempts,
	)
	return err
}

// Recent returns up to limit journaled alerts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, message, prev_pool, current_pool, pool,
		       error_count, error_rate, window_size, decided_at, delivered, attempts
		FROM alert_events
		ORDER BY decided_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind string
		var delivered int
		var decidedAt time.Time
		if err := rows.Scan(
			&e.Alert.ID, &kind, &e.Alert.Message,
			&e.Alert.PreviousPool, &e.Alert.CurrentPool, &e.Alert.Pool,
			&e.Alert.ErrorCount, &e.Alert.ErrorRate, &e.Alert.WindowSize,
			&decidedAt, &delivered, &e.Attempts,
		); err != nil {
			return nil, err
		}
		e.Alert.Kind = monitor.AlertKind(kind)
		e.Alert.Timestamp = decidedAt
		e.Delivered = delivered != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
