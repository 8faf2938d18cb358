// Package auth handles bearer token validation and actor resolution.
package auth

import (
	"context"
	"errors"

	"github.com/schoolkey/access-key-manager/internal/authz"
	"github.com/schoolkey/access-key-manager/internal/storage"
)

// Errors for authentication failures.
var (
	// ErrMissingToken indicates no bearer token was provided.
	ErrMissingToken = errors.New("auth: missing bearer token")
	// ErrInvalidToken indicates the bearer token is not valid.
	ErrInvalidToken = errors.New("auth: invalid bearer token")
)

// Storage interface for dependency injection.
type Storage interface {
	ListUsersWithTokens(ctx context.Context) ([]*storage.User, error)
}

// Validator resolves bearer tokens to actors.
type Validator struct {
	storage Storage
}

// NewValidator creates a new Validator.
func NewValidator(s Storage) *Validator {
	return &Validator{storage: s}
}

// ValidateToken checks the bearer token against every stored user token.
// Returns the resolved actor if valid, error if invalid.
func (v *Validator) ValidateToken(ctx context.Context, token string) (*authz.Actor, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	users, err := v.storage.ListUsersWithTokens(ctx)
	if err != nil {
		return nil, err
	}

	// Must iterate all users - bcrypt hashes are not comparable directly
	for _, u := range users {
		if u.TokenHash == nil {
			continue
		}
		if storage.VerifyToken(token, *u.TokenHash) == nil {
			actor := &authz.Actor{
				ID:   u.ID,
				Role: authz.Role(u.Role),
			}
			if u.SchoolID != nil {
				actor.SchoolID = *u.SchoolID
			}
			return actor, nil
		}
	}

	return nil, ErrInvalidToken
}
