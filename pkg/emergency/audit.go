// Package emergency implements the operator recovery surface: stop-all,
// restart-one, reset-one, stale-claim recovery, and queue purge, each
// fully recorded to a size-bounded audit log in the runtime database.
package emergency

import (
	"context"
	"database/sql"
	"fmt"

	"hive/pkg/eventlog"
	"hive/pkg/protocol"
)

// AuditLog is the append-only emergency action log. Every write trims
// the table to the most recent protocol.EmergencyLogCap rows; older
// entries are discarded by design.
type AuditLog struct {
	db *sql.DB
}

// NewAuditLog creates an audit log writing to the runtime database.
func NewAuditLog(db *sql.DB) *AuditLog {
	return &AuditLog{db: db}
}

// Record appends one entry and trims the log to its cap.
func (l *AuditLog) Record(a protocol.EmergencyAction) error {
	_, err := l.db.Exec(
		`INSERT INTO emergency_actions (action, user_id, details, result, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.Action, a.UserID, a.Details, a.Result, eventlog.FormatTime(a.Timestamp))
	if err != nil {
		return fmt.Errorf("record emergency action: %w", err)
	}
	_, err = l.db.Exec(
		`DELETE FROM emergency_actions WHERE id NOT IN
			(SELECT id FROM emergency_actions ORDER BY id DESC LIMIT ?)`,
		protocol.EmergencyLogCap)
	if err != nil {
		return fmt.Errorf("trim emergency log: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first (0 = all surviving).
func (l *AuditLog) List(ctx context.Context, limit int) ([]protocol.EmergencyAction, error) {
	query := `SELECT action, user_id, COALESCE(details, ''), result, created_at
		FROM emergency_actions ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query emergency log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []protocol.EmergencyAction
	for rows.Next() {
		var a protocol.EmergencyAction
		var createdAt string
		if err := rows.Scan(&a.Action, &a.UserID, &a.Details, &a.Result, &createdAt); err != nil {
			return nil, fmt.Errorf("scan emergency action: %w", err)
		}
		a.Timestamp, err = eventlog.ParseTime(createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate emergency log: %w", err)
	}
	return out, nil
}

// Count returns the number of surviving entries.
func (l *AuditLog) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM emergency_actions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count emergency log: %w", err)
	}
	return n, nil
}
