package storage

import "time"

// KeyStatus is the lifecycle state of an access key.
type KeyStatus string

const (
	// StatusActive marks a key that currently grants access.
	StatusActive KeyStatus = "active"
	// StatusExpired marks a key whose expiry date has passed. Terminal.
	StatusExpired KeyStatus = "expired"
	// StatusRevoked marks a key that was revoked by an admin. Terminal.
	StatusRevoked KeyStatus = "revoked"
)

// Terminal reports whether the status is final. Expired and revoked keys
// never transition again.
func (s KeyStatus) Terminal() bool {
	return s == StatusExpired || s == StatusRevoked
}

// AccessKey is a time-bound entitlement token sold to a school.
// At most one key per school may be active at any instant.
type AccessKey struct {
	ID              string
	Key             string
	SchoolID        string
	Status          KeyStatus
	AssignedTo      string
	ProcurementDate time.Time
	ExpiryDate      time.Time
	RevokedBy       *string
	RevokedOn       *time.Time
	PriceCents      int64
}

// KeyLog is an append-only audit entry for an action taken on a key.
// UserID is nil only for automated transitions with no configured
// system actor.
type KeyLog struct {
	ID          string
	AccessKeyID string
	Action      string
	UserID      *string
	Timestamp   time.Time
}

// School owns access keys. Email identifies the school for status lookups.
type School struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

// User is an actor: school personnel purchasing keys, an admin revoking
// them, or the system account attributed on automated expiry.
type User struct {
	ID        string
	Email     string
	Role      string
	SchoolID  *string
	TokenHash *string
	CreatedAt time.Time
}

// Roles assignable to users.
const (
	RoleSchoolPersonnel = "school_personnel"
	RoleAdmin           = "admin"
	RoleSystem          = "system"
)
