// Package storage handles all database operations for the access key manager.
package storage

import (
	"database/sql"
	"fmt"
)

// InitSchema creates all required tables and indexes.
// This is idempotent - safe to call multiple times.
func InitSchema(db *sql.DB) error {
	// Enable foreign key constraints
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Execute all DDL statements
	ddlStatements := []string{
		// schools table: key owners
		`CREATE TABLE IF NOT EXISTS schools (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		// users table: actors (school personnel, admins, system accounts)
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			role TEXT NOT NULL CHECK (role IN ('school_personnel', 'admin', 'system')),
			school_id TEXT REFERENCES schools(id) ON DELETE CASCADE,
			token_hash TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		// access_keys table: the lifecycle entities
		`CREATE TABLE IF NOT EXISTS access_keys (
			id TEXT PRIMARY KEY,
			key TEXT NOT NULL UNIQUE,
			school_id TEXT NOT NULL REFERENCES schools(id) ON DELETE CASCADE,
			status TEXT NOT NULL CHECK (status IN ('active', 'expired', 'revoked')),
			assigned_to TEXT NOT NULL REFERENCES users(id),
			procurement_date TIMESTAMP NOT NULL,
			expiry_date TIMESTAMP NOT NULL,
			revoked_by TEXT REFERENCES users(id),
			revoked_on TIMESTAMP,
			price_cents INTEGER NOT NULL
		)`,

		// At most one active key per school. The partial unique index is the
		// database-level backstop for the invariant; the store also checks it
		// inside the creating transaction.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_access_keys_one_active
			ON access_keys(school_id) WHERE status = 'active'`,

		`CREATE INDEX IF NOT EXISTS idx_access_keys_school ON access_keys(school_id)`,

		// Index for the expiry sweep and next-wake-up queries
		`CREATE INDEX IF NOT EXISTS idx_access_keys_due
			ON access_keys(expiry_date) WHERE status = 'active'`,

		// key_logs table: append-only audit trail, one row per transition
		`CREATE TABLE IF NOT EXISTS key_logs (
			id TEXT PRIMARY KEY,
			access_key_id TEXT NOT NULL REFERENCES access_keys(id) ON DELETE CASCADE,
			action TEXT NOT NULL,
			user_id TEXT REFERENCES users(id),
			timestamp TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_key_logs_key ON key_logs(access_key_id)`,
	}

	// Execute each DDL statement
	for _, stmt := range ddlStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}

	return nil
}
