package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"
)

// LibSQLSink persists events to an append-only libSQL (embedded SQLite
// fork) table with a monotonically increasing per-run sequence.
type LibSQLSink struct {
	db *sql.DB
}

// NewLibSQLSink opens a libSQL database at the given path and ensures the
// event table exists. The path should be a file URI, e.g. "file:/path/to/db".
func NewLibSQLSink(dbPath string) (*LibSQLSink, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS chain_events (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		chain TEXT,
		step TEXT,
		attempt INTEGER,
		event_type TEXT NOT NULL,
		status TEXT,
		duration_ms INTEGER,
		summary TEXT,
		payload TEXT,
		timestamp TIMESTAMP NOT NULL,
		sequence INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create chain_events table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_chain_events_run
		ON chain_events (run_id, sequence)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create chain_events index: %w", err)
	}

	return &LibSQLSink{db: db}, nil
}

// Emit appends an event inside a transaction so sequence reads and writes
// cannot interleave under concurrency.
func (s *LibSQLSink) Emit(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM chain_events WHERE run_id = ?`, event.RunID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	event.Sequence = seq

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var payload any
	if len(event.Payload) > 0 {
		data, marshalErr := json.Marshal(event.Payload)
		if marshalErr != nil {
			return fmt.Errorf("marshal payload: %w", marshalErr)
		}
		payload = string(data)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chain_events
			(id, run_id, chain, step, attempt, event_type, status, duration_ms, summary, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.RunID, nullStr(event.Chain), nullStr(event.Step), event.Attempt,
		event.Type, nullStr(event.Status), event.Duration.Milliseconds(),
		nullStr(event.Summary), payload, event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// Events returns all events for a run in sequence order.
func (s *LibSQLSink) Events(ctx context.Context, runID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, chain, step, attempt, event_type, status, duration_ms, summary, payload, timestamp, sequence
		 FROM chain_events WHERE run_id = ? ORDER BY sequence ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var chain, step, status, summary, payload sql.NullString
		var durationMs int64
		if err := rows.Scan(&e.ID, &e.RunID, &chain, &step, &e.Attempt, &e.Type,
			&status, &durationMs, &summary, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Chain = chain.String
		e.Step = step.String
		e.Status = status.String
		e.Summary = summary.String
		e.Duration = time.Duration(durationMs) * time.Millisecond
		if payload.Valid && payload.String != "" {
			_ = json.Unmarshal([]byte(payload.String), &e.Payload)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close closes the database.
func (s *LibSQLSink) Close() error { return s.db.Close() }

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
