package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// insertKeyLog appends an audit entry inside the transaction that performs
// the state change it documents. There is no exported way to write a log
// entry outside a transition, and no way to update or delete one.
func insertKeyLog(ctx context.Context, tx *sql.Tx, accessKeyID, action string, userID *string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO key_logs (id, access_key_id, action, user_id, timestamp) VALUES (?, ?, ?, ?, ?)",
		uuid.New().String(), accessKeyID, action, userID, dbTime(at))
	if err != nil {
		return fmt.Errorf("failed to insert key log: %w", err)
	}
	return nil
}

// ListKeyLogs returns the audit trail for one key, newest first.
// Returns empty slice if no entries exist.
func (s *SQLiteStorage) ListKeyLogs(ctx context.Context, accessKeyID string) ([]*KeyLog, error) {
	return s.queryKeyLogs(ctx,
		`SELECT id, access_key_id, action, user_id, timestamp
		 FROM key_logs WHERE access_key_id = ?
		 ORDER BY timestamp DESC, id`, accessKeyID)
}

// ListKeyLogsBySchool returns the audit trail across all of a school's keys,
// newest first.
func (s *SQLiteStorage) ListKeyLogsBySchool(ctx context.Context, schoolID string) ([]*KeyLog, error) {
	return s.queryKeyLogs(ctx,
		`SELECT l.id, l.access_key_id, l.action, l.user_id, l.timestamp
		 FROM key_logs l
		 JOIN access_keys k ON k.id = l.access_key_id
		 WHERE k.school_id = ?
		 ORDER BY l.timestamp DESC, l.id`, schoolID)
}

// CountKeyLogs returns the number of audit entries for a key.
func (s *SQLiteStorage) CountKeyLogs(ctx context.Context, accessKeyID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM key_logs WHERE access_key_id = ?", accessKeyID).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count key logs: %w", err)
	}
	return count, nil
}

func (s *SQLiteStorage) queryKeyLogs(ctx context.Context, query string, args ...any) ([]*KeyLog, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query key logs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var logs []*KeyLog
	for rows.Next() {
		var l KeyLog
		if err := rows.Scan(&l.ID, &l.AccessKeyID, &l.Action, &l.UserID, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan key log row: %w", err)
		}
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating key logs: %w", err)
	}

	// Return empty slice instead of nil
	if logs == nil {
		logs = make([]*KeyLog, 0)
	}
	return logs, nil
}
