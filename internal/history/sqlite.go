package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	kind       TEXT NOT NULL,
	lobby_code TEXT NOT NULL DEFAULT '',
	hand_id    TEXT NOT NULL DEFAULT '',
	client_id  TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '{}',
	at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS events_lobby_idx ON events (lobby_code, id);
CREATE INDEX IF NOT EXISTS events_hand_idx ON events (hand_id);
`

// SQLiteSink persists events to a local sqlite database. The database is a
// single-writer WAL store, which is all a one-process service needs.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (creating if needed) the database at path. ":memory:"
// is accepted for tests.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("history: empty sqlite path")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("history: create dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Record inserts one event.
func (s *SQLiteSink) Record(ev Event) error {
	detail := "{}"
	if ev.Detail != nil {
		raw, err := json.Marshal(ev.Detail)
		if err != nil {
			return fmt.Errorf("history: marshal detail: %w", err)
		}
		detail = string(raw)
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO events (kind, lobby_code, hand_id, client_id, detail, at) VALUES (?, ?, ?, ?, ?, ?)`,
		string(ev.Kind), ev.LobbyCode, ev.HandID, ev.ClientID, detail, at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// CountByKind reports how many events of a kind exist, optionally scoped to
// a lobby. Used by tests and the admin surface.
func (s *SQLiteSink) CountByKind(kind EventKind, lobbyCode string) (int, error) {
	query := `SELECT COUNT(*) FROM events WHERE kind = ?`
	args := []any{string(kind)}
	if lobbyCode != "" {
		query += ` AND lobby_code = ?`
		args = append(args, lobbyCode)
	}
	var n int
	if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	return n, nil
}

// Close flushes and closes the database.
func (s *SQLiteSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
