package storage

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicate is returned when attempting to create a resource that already exists.
	ErrDuplicate = errors.New("resource already exists")

	// ErrActiveKeyExists is returned when creating a key for a school that
	// already holds an active one.
	ErrActiveKeyExists = errors.New("school already has an active access key")

	// ErrKeyTerminal is returned when attempting to transition a key that is
	// already expired or revoked.
	ErrKeyTerminal = errors.New("access key is already expired or revoked")
)

// isConstraintErr reports whether err is a sqlite UNIQUE constraint violation.
// The extended error code for UNIQUE constraint is 2067; the base constraint
// code is 19.
func isConstraintErr(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == 2067 || (sqliteErr.Code()&0xFF) == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

// constraintMentions reports whether a constraint error names the given
// index or column. Used to distinguish the single-active-key index from the
// key token uniqueness constraint, which both surface as code 2067.
func constraintMentions(err error, name string) bool {
	return err != nil && strings.Contains(err.Error(), name)
}

// IsTransient reports whether err is a transient sqlite failure (locked or
// busy database) that callers may retry with backoff.
func IsTransient(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xFF
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}
