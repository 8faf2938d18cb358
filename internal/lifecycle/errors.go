package lifecycle

import "errors"

// Sentinel errors surfaced to callers. These are expected business outcomes,
// never swallowed: handlers translate them into user-facing responses.
var (
	// ErrSchoolAlreadyHasActiveKey is returned by IssueKey when the school
	// already holds an active key.
	ErrSchoolAlreadyHasActiveKey = errors.New("school already has an active access key")

	// ErrSchoolNotFound is returned when the named school does not exist.
	ErrSchoolNotFound = errors.New("school not found")

	// ErrKeyNotFound is returned when the named access key does not exist.
	ErrKeyNotFound = errors.New("access key not found")

	// ErrKeyAlreadyTerminal is returned when revoking a key that is already
	// expired or revoked. The original revocation metadata is preserved.
	ErrKeyAlreadyTerminal = errors.New("access key is already expired or revoked")

	// ErrPermissionDenied is returned when the acting user's role does not
	// allow the requested operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrStoreUnavailable is returned when the store kept failing with
	// transient errors after the bounded retries were exhausted.
	ErrStoreUnavailable = errors.New("store unavailable")
)
