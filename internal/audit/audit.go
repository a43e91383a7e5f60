// Package audit records connection lifecycle events (connect, disconnect,
// evict, spill) to SQLite for operator introspection. It never stores
// message payloads — the router itself remains stateless across restarts,
// per spec's Non-goals; this is metadata about connections, not messages.
package audit

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	_ "modernc.org/sqlite"
)

var log = logging.Logger("audit")

// Event is one recorded lifecycle occurrence. ID is a v4 UUID minted at
// record time, letting an operator correlate one row here against the same
// occurrence in an external log-aggregation pipeline.
type Event struct {
	ID        string    `json:"id"`
	Group     string    `json:"group"`
	PeerID    string    `json:"peer_id"`
	Kind      string    `json:"kind"` // connect, disconnect, evict, spill
	At        time.Time `json:"at"`
	Detail    string    `json:"detail,omitempty"`
}

const (
	KindConnect    = "connect"
	KindDisconnect = "disconnect"
	KindEvict      = "evict"
	KindSpill      = "spill"
)

// Log wraps a SQLite database holding the audit trail. A nil *Log is a
// valid no-op logger (audit is optional).
type Log struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if needed) a SQLite database at path. Pass ":memory:"
// for an ephemeral, process-lifetime-only log.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: configure database: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id   TEXT NOT NULL,
			group_name TEXT NOT NULL,
			peer_id    TEXT NOT NULL,
			kind       TEXT NOT NULL,
			detail     TEXT,
			at         DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_events_group ON events(group_name, seq DESC);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Record appends an event. Failures are logged, not returned — audit is a
// best-effort sideband, never load-bearing for message delivery.
func (l *Log) Record(group, peerID, kind, detail string) {
	if l == nil {
		return
	}
	id := uuid.NewString()
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.db.Exec(
		`INSERT INTO events (event_id, group_name, peer_id, kind, detail) VALUES (?, ?, ?, ?, ?)`,
		id, group, peerID, kind, detail,
	); err != nil {
		log.Warnf("record event failed: %v", err)
	}
}

// Recent returns the most recent events for group, newest first, bounded by
// limit.
func (l *Log) Recent(group string, limit int) ([]Event, error) {
	if l == nil {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(
		`SELECT event_id, group_name, peer_id, kind, detail, at FROM events
		 WHERE group_name = ? ORDER BY seq DESC LIMIT ?`,
		group, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Group, &e.PeerID, &e.Kind, &detail, &e.At); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Detail = detail.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}
