package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CreateUserParams describes a new actor. TokenHash is the bcrypt hash of
// the user's bearer token; leave it empty for actors that never authenticate
// (e.g. the system account).
type CreateUserParams struct {
	Email     string
	Role      string
	SchoolID  *string
	TokenHash string
}

// CreateUser registers a new actor.
// Returns ErrDuplicate if the email is already taken.
func (s *SQLiteStorage) CreateUser(ctx context.Context, p CreateUserParams) (*User, error) {
	id := uuid.New().String()

	var tokenHash *string
	if p.TokenHash != "" {
		tokenHash = &p.TokenHash
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, email, role, school_id, token_hash) VALUES (?, ?, ?, ?, ?)",
		id, p.Email, p.Role, p.SchoolID, tokenHash)
	if err != nil {
		if isConstraintErr(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.GetUser(ctx, id)
}

// GetUser retrieves a user by ID.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (*User, error) {
	return s.queryOneUser(ctx, "WHERE id = ?", id)
}

// GetUserByEmail retrieves a user by email.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStorage) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.queryOneUser(ctx, "WHERE email = ?", email)
}

// ListUsersWithTokens returns every user that carries a token hash.
// Authentication iterates these - bcrypt hashes are not comparable directly,
// so there is no lookup by hash.
func (s *SQLiteStorage) ListUsersWithTokens(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, role, school_id, token_hash, created_at
		 FROM users WHERE token_hash IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Role, &u.SchoolID, &u.TokenHash, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	if users == nil {
		users = make([]*User, 0)
	}
	return users, nil
}

// HasAnyAdmin reports whether at least one admin user exists. Used at
// startup to decide whether the bootstrap admin must be created.
func (s *SQLiteStorage) HasAnyAdmin(ctx context.Context) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE role = ?", RoleAdmin).
		Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count admin users: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStorage) queryOneUser(ctx context.Context, where string, args ...any) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, role, school_id, token_hash, created_at FROM users "+where, args...).
		Scan(&u.ID, &u.Email, &u.Role, &u.SchoolID, &u.TokenHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}
