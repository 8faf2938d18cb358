package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateKeyParams carries everything needed to issue a key. The caller
// generates the ID and token; the store owns the invariant check and the
// audit entry.
type CreateKeyParams struct {
	ID              string
	Token           string
	SchoolID        string
	AssignedTo      string
	ProcurementDate time.Time
	ExpiryDate      time.Time
	PriceCents      int64
}

// CreateKey inserts a new active access key and its purchase audit entry in
// a single transaction.
//
// The single-active-key invariant is checked inside the transaction, and the
// partial unique index idx_access_keys_one_active backs it up against races
// the in-process check cannot see. Both paths surface as ErrActiveKeyExists.
// Returns ErrNotFound if the school does not exist, ErrDuplicate if the token
// collides with an existing key.
func (s *SQLiteStorage) CreateKey(ctx context.Context, p CreateKeyParams) (*AccessKey, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck

	// Resolve the school name for the audit action. Also serves as the
	// existence check.
	var schoolName string
	err = tx.QueryRowContext(ctx, "SELECT name FROM schools WHERE id = ?", p.SchoolID).
		Scan(&schoolName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up school: %w", err)
	}

	// Invariant check: at most one active key per school.
	var active int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM access_keys WHERE school_id = ? AND status = ?",
		p.SchoolID, StatusActive).
		Scan(&active)
	if err != nil {
		return nil, fmt.Errorf("failed to count active keys: %w", err)
	}
	if active > 0 {
		return nil, ErrActiveKeyExists
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO access_keys
			(id, key, school_id, status, assigned_to, procurement_date, expiry_date, price_cents)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Token, p.SchoolID, StatusActive, p.AssignedTo,
		dbTime(p.ProcurementDate), dbTime(p.ExpiryDate), p.PriceCents)
	if err != nil {
		if isConstraintErr(err) {
			// Two racing issuances hit the partial unique index; a token
			// collision hits the key column constraint.
			if constraintMentions(err, "idx_access_keys_one_active") ||
				constraintMentions(err, "school_id") {
				return nil, ErrActiveKeyExists
			}
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to insert access key: %w", err)
	}

	action := fmt.Sprintf("Access key %s purchased for school %s", p.Token, schoolName)
	if err := insertKeyLog(ctx, tx, p.ID, action, &p.AssignedTo, p.ProcurementDate); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit key creation: %w", err)
	}

	return &AccessKey{
		ID:              p.ID,
		Key:             p.Token,
		SchoolID:        p.SchoolID,
		Status:          StatusActive,
		AssignedTo:      p.AssignedTo,
		ProcurementDate: dbTime(p.ProcurementDate),
		ExpiryDate:      dbTime(p.ExpiryDate),
		PriceCents:      p.PriceCents,
	}, nil
}

// RevokeKey transitions an active key to revoked, stamps the revocation
// metadata, and records the audit entry, all in one transaction.
//
// Returns ErrNotFound if the key does not exist and ErrKeyTerminal if it is
// already expired or revoked. A second revocation attempt is an error, not a
// no-op: the original revocation actor and timestamp are never overwritten.
func (s *SQLiteStorage) RevokeKey(ctx context.Context, keyID, revokedBy string, now time.Time) (*AccessKey, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck

	// Re-read inside the transaction so a concurrent expiry sweep or revoke
	// that committed first is detected here.
	key, schoolName, err := getKeyForUpdate(ctx, tx, keyID)
	if err != nil {
		return nil, err
	}
	if key.Status.Terminal() {
		return nil, ErrKeyTerminal
	}

	now = dbTime(now)
	_, err = tx.ExecContext(ctx,
		"UPDATE access_keys SET status = ?, revoked_by = ?, revoked_on = ? WHERE id = ?",
		StatusRevoked, revokedBy, now, keyID)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke access key: %w", err)
	}

	action := fmt.Sprintf("Access key %s revoked for school %s", key.Key, schoolName)
	if err := insertKeyLog(ctx, tx, keyID, action, &revokedBy, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit revocation: %w", err)
	}

	key.Status = StatusRevoked
	key.RevokedBy = &revokedBy
	key.RevokedOn = &now
	return key, nil
}

// ExpireKeys transitions every active key with expiry_date <= asOf to
// expired and returns the transitioned set. Each key gets its own audit
// entry; all transitions and entries commit in one transaction.
//
// systemActorID attributes the audit entries; pass the empty string to record
// them without an actor (the caller is expected to warn about this).
// Running the sweep twice with the same asOf is idempotent - the second run
// finds nothing due and returns an empty slice.
func (s *SQLiteStorage) ExpireKeys(ctx context.Context, asOf time.Time, systemActorID string) ([]*AccessKey, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck

	asOf = dbTime(asOf)
	rows, err := tx.QueryContext(ctx,
		`SELECT k.id, k.key, k.school_id, k.status, k.assigned_to,
			k.procurement_date, k.expiry_date, k.revoked_by, k.revoked_on,
			k.price_cents, s.name
		 FROM access_keys k
		 JOIN schools s ON s.id = k.school_id
		 WHERE k.status = ? AND k.expiry_date <= ?
		 ORDER BY k.expiry_date ASC`,
		StatusActive, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query due keys: %w", err)
	}

	type dueKey struct {
		key        *AccessKey
		schoolName string
	}
	var due []dueKey
	for rows.Next() {
		var k AccessKey
		var schoolName string
		if err := rows.Scan(&k.ID, &k.Key, &k.SchoolID, &k.Status, &k.AssignedTo,
			&k.ProcurementDate, &k.ExpiryDate, &k.RevokedBy, &k.RevokedOn,
			&k.PriceCents, &schoolName); err != nil {
			_ = rows.Close() //nolint:errcheck
			return nil, fmt.Errorf("failed to scan due key: %w", err)
		}
		due = append(due, dueKey{key: &k, schoolName: schoolName})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close() //nolint:errcheck
		return nil, fmt.Errorf("error iterating due keys: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("failed to close due keys cursor: %w", err)
	}

	var actor *string
	if systemActorID != "" {
		actor = &systemActorID
	}

	expired := make([]*AccessKey, 0, len(due))
	for _, d := range due {
		// Key-by-key rather than a blind bulk update, so every transition
		// carries its own audit entry.
		res, err := tx.ExecContext(ctx,
			"UPDATE access_keys SET status = ? WHERE id = ? AND status = ?",
			StatusExpired, d.key.ID, StatusActive)
		if err != nil {
			return nil, fmt.Errorf("failed to expire key %s: %w", d.key.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			continue
		}

		action := fmt.Sprintf("Access key %s expired for school %s", d.key.Key, d.schoolName)
		if err := insertKeyLog(ctx, tx, d.key.ID, action, actor, asOf); err != nil {
			return nil, err
		}

		d.key.Status = StatusExpired
		expired = append(expired, d.key)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit expiry sweep: %w", err)
	}

	return expired, nil
}

// GetKey retrieves an access key by ID.
// Returns ErrNotFound if the key doesn't exist.
func (s *SQLiteStorage) GetKey(ctx context.Context, id string) (*AccessKey, error) {
	return s.queryOneKey(ctx, "WHERE id = ?", id)
}

// GetActiveKey returns the school's active key, or ErrNotFound if the school
// holds none.
func (s *SQLiteStorage) GetActiveKey(ctx context.Context, schoolID string) (*AccessKey, error) {
	return s.queryOneKey(ctx, "WHERE school_id = ? AND status = ?", schoolID, StatusActive)
}

// ListKeys returns all access keys, newest first (for the admin dashboard).
// Returns empty slice if no keys exist.
func (s *SQLiteStorage) ListKeys(ctx context.Context) ([]*AccessKey, error) {
	return s.queryKeys(ctx, "ORDER BY procurement_date DESC")
}

// ListKeysBySchool returns all of a school's keys, newest first.
func (s *SQLiteStorage) ListKeysBySchool(ctx context.Context, schoolID string) ([]*AccessKey, error) {
	return s.queryKeys(ctx, "WHERE school_id = ? ORDER BY procurement_date DESC", schoolID)
}

// TokenExists reports whether any key already uses the given token string.
// The token generator calls this to re-draw on collision.
func (s *SQLiteStorage) TokenExists(ctx context.Context, token string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM access_keys WHERE key = ?", token).
		Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check token existence: %w", err)
	}
	return count > 0, nil
}

// NextExpiry returns the earliest expiry date among active keys that expire
// strictly after the given instant. Returns (nil, nil) when no such key
// exists; the scheduler then falls back to its fixed interval.
func (s *SQLiteStorage) NextExpiry(ctx context.Context, after time.Time) (*time.Time, error) {
	var next time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT expiry_date FROM access_keys
		 WHERE status = ? AND expiry_date > ?
		 ORDER BY expiry_date ASC LIMIT 1`,
		StatusActive, dbTime(after)).
		Scan(&next)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query next expiry: %w", err)
	}
	return &next, nil
}

const keyColumns = `id, key, school_id, status, assigned_to,
	procurement_date, expiry_date, revoked_by, revoked_on, price_cents`

func (s *SQLiteStorage) queryOneKey(ctx context.Context, where string, args ...any) (*AccessKey, error) {
	var k AccessKey
	err := s.db.QueryRowContext(ctx,
		"SELECT "+keyColumns+" FROM access_keys "+where, args...).
		Scan(&k.ID, &k.Key, &k.SchoolID, &k.Status, &k.AssignedTo,
			&k.ProcurementDate, &k.ExpiryDate, &k.RevokedBy, &k.RevokedOn, &k.PriceCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get access key: %w", err)
	}
	return &k, nil
}

func (s *SQLiteStorage) queryKeys(ctx context.Context, tail string, args ...any) ([]*AccessKey, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+keyColumns+" FROM access_keys "+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query access keys: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var keys []*AccessKey
	for rows.Next() {
		var k AccessKey
		if err := rows.Scan(&k.ID, &k.Key, &k.SchoolID, &k.Status, &k.AssignedTo,
			&k.ProcurementDate, &k.ExpiryDate, &k.RevokedBy, &k.RevokedOn, &k.PriceCents); err != nil {
			return nil, fmt.Errorf("failed to scan access key row: %w", err)
		}
		keys = append(keys, &k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating access keys: %w", err)
	}

	// Return empty slice instead of nil
	if keys == nil {
		keys = make([]*AccessKey, 0)
	}
	return keys, nil
}

// getKeyForUpdate reads a key and its school name inside a transaction.
func getKeyForUpdate(ctx context.Context, tx *sql.Tx, keyID string) (*AccessKey, string, error) {
	var k AccessKey
	var schoolName string
	err := tx.QueryRowContext(ctx,
		`SELECT k.id, k.key, k.school_id, k.status, k.assigned_to,
			k.procurement_date, k.expiry_date, k.revoked_by, k.revoked_on,
			k.price_cents, s.name
		 FROM access_keys k
		 JOIN schools s ON s.id = k.school_id
		 WHERE k.id = ?`, keyID).
		Scan(&k.ID, &k.Key, &k.SchoolID, &k.Status, &k.AssignedTo,
			&k.ProcurementDate, &k.ExpiryDate, &k.RevokedBy, &k.RevokedOn,
			&k.PriceCents, &schoolName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to get access key: %w", err)
	}
	return &k, schoolName, nil
}
