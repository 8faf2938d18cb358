package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// New opens a SQLite database at dbPath, initializes the schema, and returns
// a ready-to-use storage instance. Use ":memory:" for tests.
func New(dbPath string) (*SQLiteStorage, error) {
	// Open database connection
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Initialize schema
	if err := InitSchema(db); err != nil {
		_ = db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Enable WAL mode for better concurrent access support
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	// Set busy timeout to wait for locks instead of failing immediately (5 seconds)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Configure connection pool for concurrent access
	// modernc.org/sqlite requires single connection for in-process file databases
	// to avoid "database is locked" errors
	db.SetMaxOpenConns(1)

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// dbTime normalizes a timestamp before it is written. Times are stored as
// text, so every stored value must use the same zone and precision for SQL
// comparisons on timestamp columns to order correctly.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
