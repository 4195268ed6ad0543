// Package archive persists annotated events to a sqlite database so
// battles can be queried after the fact.
package archive

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"battlepipe/internal/annotate"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS events (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    ts      TEXT NOT NULL,
    turn    INTEGER,
    player  TEXT NOT NULL DEFAULT '',
    message TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS events_turn ON events(turn);
`

// DB is an open battle archive.
type DB struct {
	db *sql.DB
}

// Open creates the archive file (and its parent directory) if needed and
// initializes the schema.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init archive schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Append stores one event. Events arrive in stream order and keep it via
// the autoincrement id.
func (d *DB) Append(ev annotate.Event) error {
	var turn any
	if ev.Turn != nil {
		turn = *ev.Turn
	}
	_, err := d.db.Exec(
		"INSERT INTO events (ts, turn, player, message) VALUES (?, ?, ?, ?)",
		ev.Timestamp.UTC().Format(time.RFC3339Nano), turn, ev.Player, ev.Message,
	)
	if err != nil {
		return fmt.Errorf("archive event: %w", err)
	}
	return nil
}

// Count returns the number of stored events.
func (d *DB) Count() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&n)
	return n, err
}

// Events returns all stored events in insertion order.
func (d *DB) Events() ([]annotate.Event, error) {
	rows, err := d.db.Query("SELECT ts, turn, player, message FROM events ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []annotate.Event
	for rows.Next() {
		var (
			ts   string
			turn sql.NullInt64
			ev   annotate.Event
		)
		if err := rows.Scan(&ts, &turn, &ev.Player, &ev.Message); err != nil {
			return nil, err
		}
		stamp, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("archived timestamp %q: %w", ts, err)
		}
		ev.Timestamp = stamp
		if turn.Valid {
			n := int(turn.Int64)
			ev.Turn = &n
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close closes the archive.
func (d *DB) Close() error {
	return d.db.Close()
}
