package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// BootstrapState represents the system configuration state
type BootstrapState int

const (
	// StateUnconfigured means no admin users exist yet
	// Bootstrap token authentication is allowed in this state
	StateUnconfigured BootstrapState = iota

	// StateConfigured means at least one admin user exists
	// Bootstrap token authentication is locked out in this state
	StateConfigured
)

// String returns the string representation of the bootstrap state
func (s BootstrapState) String() string {
	switch s {
	case StateUnconfigured:
		return "UNCONFIGURED"
	case StateConfigured:
		return "CONFIGURED"
	default:
		return "UNKNOWN"
	}
}

// AdminChecker reports whether any admin user exists.
type AdminChecker interface {
	HasAnyAdmin(ctx context.Context) (bool, error)
}

// BootstrapService manages the bootstrap state machine
type BootstrapService struct {
	users            AdminChecker
	bootstrapKeyHash string // SHA-256 hash of ADMIN_BOOTSTRAP_TOKEN
}

// NewBootstrapService creates a new bootstrap service
// bootstrapToken is the raw ADMIN_BOOTSTRAP_TOKEN value
func NewBootstrapService(users AdminChecker, bootstrapToken string) *BootstrapService {
	hash := sha256.Sum256([]byte(bootstrapToken))
	return &BootstrapService{
		users:            users,
		bootstrapKeyHash: hex.EncodeToString(hash[:]),
	}
}

// GetState returns the current bootstrap state
// Returns StateUnconfigured if no admin users exist
// Returns StateConfigured if at least one admin user exists
func (b *BootstrapService) GetState(ctx context.Context) (BootstrapState, error) {
	hasAdmin, err := b.users.HasAnyAdmin(ctx)
	if err != nil {
		return StateUnconfigured, err
	}
	if hasAdmin {
		return StateConfigured, nil
	}
	return StateUnconfigured, nil
}

// IsBootstrapToken checks if the provided token matches the configured
// bootstrap token.
//
// SECURITY: This function MUST use constant-time comparison to prevent timing
// side-channel attacks. While SHA-256 hashing before comparison significantly
// mitigates practical timing attacks (the hash computation dominates timing),
// defense-in-depth requires using subtle.ConstantTimeCompare for the final
// hash comparison.
func (b *BootstrapService) IsBootstrapToken(token string) bool {
	hash := sha256.Sum256([]byte(token))
	tokenHash := hex.EncodeToString(hash[:])
	// SECURITY-CRITICAL: Must use constant-time comparison (see function comment)
	return subtle.ConstantTimeCompare([]byte(tokenHash), []byte(b.bootstrapKeyHash)) == 1
}

// CanUseBootstrapToken returns true only during UNCONFIGURED state
// Once an admin user exists, the bootstrap token is locked out
func (b *BootstrapService) CanUseBootstrapToken(ctx context.Context) (bool, error) {
	state, err := b.GetState(ctx)
	if err != nil {
		return false, err
	}
	return state == StateUnconfigured, nil
}

// ValidateBootstrapToken checks if the token is valid AND can be used
// Returns true only if: token matches AND system is UNCONFIGURED
func (b *BootstrapService) ValidateBootstrapToken(ctx context.Context, token string) (bool, error) {
	if !b.IsBootstrapToken(token) {
		return false, nil
	}
	return b.CanUseBootstrapToken(ctx)
}
