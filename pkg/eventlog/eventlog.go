// Package eventlog manages the hive runtime SQLite database: opening it
// with the schema applied, mirroring bus events into the events table for
// display, and read-only querying for hive logs and hive-dash.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hive/pkg/protocol"

	_ "modernc.org/sqlite" // SQLite driver
)

// Open opens (creating if needed) the runtime database at dbPath with WAL
// journaling and the schema applied.
func Open(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir for %s: %w", dbPath, err)
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(protocol.SchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return db, nil
}

// DefaultDBPath returns the runtime database path under the project's
// .hive directory.
func DefaultDBPath(root string) string {
	return filepath.Join(root, protocol.HiveDir, protocol.RuntimeDBFile)
}

// Recorder mirrors published events into the events table. It is wired to
// the bus as an unfiltered subscriber; the table is a display convenience,
// not the delivery path.
type Recorder struct {
	db *sql.DB
}

// NewRecorder creates a recorder writing to db.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// Record inserts one event row. It satisfies bus.Handler.
func (r *Recorder) Record(ev protocol.StateChangeEvent) error {
	var issue any
	if ev.IssueNumber != 0 {
		issue = ev.IssueNumber
	}
	_, err := r.db.Exec(
		`INSERT INTO events (type, project_number, issue_number, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(ev.Type), ev.ProjectNumber, issue, string(ev.Data),
		ev.Timestamp.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// timeLayout is the SQLite datetime text format used throughout the
// runtime database.
const timeLayout = "2006-01-02 15:04:05"

// Event is one row from the events table.
type Event struct {
	ID            int64
	Type          string
	ProjectNumber int
	IssueNumber   int
	Data          string
	CreatedAt     time.Time
}

// QueryOpts specifies filter criteria for querying recorded events.
type QueryOpts struct {
	// ProjectNumber filters to one project (0 = all).
	ProjectNumber int

	// EventType filters to one event type (empty = all).
	EventType string

	// Limit restricts the number of results, newest first (0 = no limit).
	Limit int
}

// Query retrieves recorded events matching opts, newest first.
func Query(ctx context.Context, db *sql.DB, opts QueryOpts) ([]Event, error) {
	query := `SELECT id, type, project_number, COALESCE(issue_number, 0), COALESCE(data, ''), created_at FROM events WHERE 1=1`
	var args []any
	if opts.ProjectNumber != 0 {
		query += " AND project_number = ?"
		args = append(args, opts.ProjectNumber)
	}
	if opts.EventType != "" {
		query += " AND type = ?"
		args = append(args, opts.EventType)
	}
	query += " ORDER BY id DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var e Event
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Type, &e.ProjectNumber, &e.IssueNumber, &e.Data, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.CreatedAt, err = ParseTime(createdAt)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ParseTime parses a SQLite datetime text value, accepting both the plain
// layout and RFC 3339.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at %q: %w", s, err)
	}
	return t, nil
}

// FormatTime renders t in the runtime database's datetime text format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
