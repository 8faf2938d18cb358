// Package storage provides types and interfaces for SQLite persistence operations.
package storage

import (
	"context"
	"time"
)

// Storage defines the interface for SQLite persistence operations.
type Storage interface {
	// Access key lifecycle
	CreateKey(ctx context.Context, p CreateKeyParams) (*AccessKey, error)
	RevokeKey(ctx context.Context, keyID, revokedBy string, now time.Time) (*AccessKey, error)
	ExpireKeys(ctx context.Context, asOf time.Time, systemActorID string) ([]*AccessKey, error)

	// Access key queries
	GetKey(ctx context.Context, id string) (*AccessKey, error)
	GetActiveKey(ctx context.Context, schoolID string) (*AccessKey, error)
	ListKeys(ctx context.Context) ([]*AccessKey, error)
	ListKeysBySchool(ctx context.Context, schoolID string) ([]*AccessKey, error)
	TokenExists(ctx context.Context, token string) (bool, error)
	NextExpiry(ctx context.Context, after time.Time) (*time.Time, error)

	// Audit trail
	ListKeyLogs(ctx context.Context, accessKeyID string) ([]*KeyLog, error)
	ListKeyLogsBySchool(ctx context.Context, schoolID string) ([]*KeyLog, error)

	// Schools
	CreateSchool(ctx context.Context, name, email string) (*School, error)
	GetSchool(ctx context.Context, id string) (*School, error)
	GetSchoolByEmail(ctx context.Context, email string) (*School, error)
	ListSchools(ctx context.Context) ([]*School, error)

	// Users
	CreateUser(ctx context.Context, p CreateUserParams) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsersWithTokens(ctx context.Context) ([]*User, error)
	HasAnyAdmin(ctx context.Context) (bool, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
