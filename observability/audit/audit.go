// Package audit persists every emitted chain event into a local sqlite
// file. The sink sits behind the event fan-out: a write failure is logged
// and dropped, never surfaced to the engine that emitted the event.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"vaultchain/core/events"
	"vaultchain/core/types"
)

const writeTimeout = 2 * time.Second

// Store appends events to the audit_log table.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Entry is one persisted audit row.
type Entry struct {
	ID         int64             `json:"id"`
	OccurredAt time.Time         `json:"occurredAt"`
	EventType  string            `json:"eventType"`
	Attributes map[string]string `json:"attributes"`
}

// NewStore opens (creating if needed) the audit database at path.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	store := &Store{db: db, logger: logger.With("component", "audit")}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	schema := `CREATE TABLE IF NOT EXISTS audit_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        occurred_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
        event_type TEXT NOT NULL,
        attributes TEXT NOT NULL
    );`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("audit: init schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type attributed interface {
	Event() *types.Event
}

// Emit implements events.Emitter. Failures are logged at error level and
// swallowed; the audit trail is best-effort by contract.
func (s *Store) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	attrs := map[string]string{}
	if conv, ok := evt.(attributed); ok {
		if payload := conv.Event(); payload != nil {
			attrs = payload.Attributes
		}
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		s.logger.Error("encode audit attributes", "event", evt.EventType(), "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (event_type, attributes) VALUES (?, ?)`,
		evt.EventType(), string(encoded),
	); err != nil {
		s.logger.Error("append audit log", "event", evt.EventType(), "error", err)
	}
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, occurred_at, event_type, attributes FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry   Entry
			rawAttr string
		)
		if err := rows.Scan(&entry.ID, &entry.OccurredAt, &entry.EventType, &rawAttr); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(rawAttr), &entry.Attributes); err != nil {
			entry.Attributes = map[string]string{"raw": rawAttr}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
