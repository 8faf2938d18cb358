package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CreateSchool registers a new school.
// Returns ErrDuplicate if the email is already taken.
func (s *SQLiteStorage) CreateSchool(ctx context.Context, name, email string) (*School, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO schools (id, name, email) VALUES (?, ?, ?)",
		id, name, email)
	if err != nil {
		if isConstraintErr(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create school: %w", err)
	}

	return s.GetSchool(ctx, id)
}

// GetSchool retrieves a school by ID.
// Returns ErrNotFound if the school doesn't exist.
func (s *SQLiteStorage) GetSchool(ctx context.Context, id string) (*School, error) {
	return s.queryOneSchool(ctx, "WHERE id = ?", id)
}

// GetSchoolByEmail retrieves a school by its contact email. Used by the
// public active-key status endpoint.
func (s *SQLiteStorage) GetSchoolByEmail(ctx context.Context, email string) (*School, error) {
	return s.queryOneSchool(ctx, "WHERE email = ?", email)
}

// ListSchools returns all schools ordered by name.
// Returns empty slice if no schools exist.
func (s *SQLiteStorage) ListSchools(ctx context.Context) ([]*School, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, email, created_at FROM schools ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query schools: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var schools []*School
	for rows.Next() {
		var sc School
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.Email, &sc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan school row: %w", err)
		}
		schools = append(schools, &sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schools: %w", err)
	}

	if schools == nil {
		schools = make([]*School, 0)
	}
	return schools, nil
}

func (s *SQLiteStorage) queryOneSchool(ctx context.Context, where string, args ...any) (*School, error) {
	var sc School
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, created_at FROM schools "+where, args...).
		Scan(&sc.ID, &sc.Name, &sc.Email, &sc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get school: %w", err)
	}
	return &sc, nil
}
