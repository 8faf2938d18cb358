// Package lifecycle orchestrates access key issuance, revocation, and the
// expiry sweep over the store, with permission checks at the boundary.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/google/uuid"

	"github.com/schoolkey/access-key-manager/internal/authz"
	"github.com/schoolkey/access-key-manager/internal/metrics"
	"github.com/schoolkey/access-key-manager/internal/storage"
	"github.com/schoolkey/access-key-manager/internal/token"
)

// Store is the persistence the engine needs. *storage.SQLiteStorage
// satisfies it.
type Store interface {
	CreateKey(ctx context.Context, p storage.CreateKeyParams) (*storage.AccessKey, error)
	RevokeKey(ctx context.Context, keyID, revokedBy string, now time.Time) (*storage.AccessKey, error)
	ExpireKeys(ctx context.Context, asOf time.Time, systemActorID string) ([]*storage.AccessKey, error)
	GetKey(ctx context.Context, id string) (*storage.AccessKey, error)
	GetActiveKey(ctx context.Context, schoolID string) (*storage.AccessKey, error)
	TokenExists(ctx context.Context, tok string) (bool, error)
	NextExpiry(ctx context.Context, after time.Time) (*time.Time, error)
	ListKeyLogs(ctx context.Context, accessKeyID string) ([]*storage.KeyLog, error)
	ListKeyLogsBySchool(ctx context.Context, schoolID string) ([]*storage.KeyLog, error)
}

// Config holds the engine's tunables.
type Config struct {
	// ValidityPeriod is how long an issued key stays valid. Short periods
	// are intentional for frequent-renewal pricing.
	ValidityPeriod time.Duration

	// KeyLength is the generated token length.
	KeyLength int

	// SystemActorID attributes automated expiry transitions in the audit
	// log. Empty means expiries are recorded without an actor, with a
	// warning logged each sweep.
	SystemActorID string
}

// Engine implements the key lifecycle operations. All operations check the
// actor's permission before touching the store, and every state change
// commits atomically with its audit entry (the store guarantees the latter).
type Engine struct {
	store   Store
	cfg     Config
	tokens  *token.Generator
	clock   Clock
	retrier *retry.Retrier
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source. Tests use this to control "now".
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithRandom sets the random source backing token generation.
func WithRandom(r io.Reader) Option {
	return func(e *Engine) {
		e.tokens = token.NewGenerator(e.cfg.KeyLength, e.store.TokenExists, token.WithRandom(r))
	}
}

// NewEngine creates a lifecycle engine over the given store.
func NewEngine(store Store, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ValidityPeriod <= 0 {
		cfg.ValidityPeriod = 24 * time.Hour
	}

	e := &Engine{
		store:  store,
		cfg:    cfg,
		clock:  SystemClock{},
		logger: logger,
	}
	e.tokens = token.NewGenerator(cfg.KeyLength, store.TokenExists)

	// Transient store failures (lock contention) get a few retries with
	// backoff before the caller sees a fatal error.
	e.retrier = retry.New(
		retry.RetryIf(storage.IsTransient),
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.MaxDelay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IssueKey creates a new active key for the school, valid for the configured
// period from now, and records the purchase in the audit log with the actor
// as purchaser.
//
// School personnel may only issue for their own school. Fails with
// ErrSchoolAlreadyHasActiveKey while a previous key is still active.
func (e *Engine) IssueKey(ctx context.Context, actor authz.Actor, schoolID string, priceCents int64) (*storage.AccessKey, error) {
	if err := e.allow(actor, authz.ActionIssueKey); err != nil {
		return nil, err
	}
	if actor.Role == authz.RoleSchoolPersonnel && actor.SchoolID != schoolID {
		return nil, fmt.Errorf("%w: may only issue keys for own school", ErrPermissionDenied)
	}

	tok, err := e.tokens.Generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key token: %w", err)
	}

	now := e.clock.Now()
	params := storage.CreateKeyParams{
		ID:              uuid.New().String(),
		Token:           tok,
		SchoolID:        schoolID,
		AssignedTo:      actor.ID,
		ProcurementDate: now,
		ExpiryDate:      now.Add(e.cfg.ValidityPeriod),
		PriceCents:      priceCents,
	}

	var key *storage.AccessKey
	err = e.retrier.Do(func() error {
		var err error
		key, err = e.store.CreateKey(ctx, params)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrActiveKeyExists):
			return nil, ErrSchoolAlreadyHasActiveKey
		case errors.Is(err, storage.ErrNotFound):
			return nil, ErrSchoolNotFound
		case storage.IsTransient(err):
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil, fmt.Errorf("failed to issue key: %w", err)
	}

	metrics.RecordKeyTransition("issued")
	e.logger.Info("access key issued",
		"key_id", key.ID,
		"school_id", schoolID,
		"assigned_to", actor.ID,
		"expiry_date", key.ExpiryDate)
	return key, nil
}

// RevokeKey transitions the key to revoked and stamps the actor and time.
// Revoking an already terminal key is an error; the original revocation
// metadata is never overwritten.
func (e *Engine) RevokeKey(ctx context.Context, actor authz.Actor, keyID string) (*storage.AccessKey, error) {
	if err := e.allow(actor, authz.ActionRevokeKey); err != nil {
		return nil, err
	}

	var key *storage.AccessKey
	err := e.retrier.Do(func() error {
		var err error
		key, err = e.store.RevokeKey(ctx, keyID, actor.ID, e.clock.Now())
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, ErrKeyNotFound
		case errors.Is(err, storage.ErrKeyTerminal):
			return nil, ErrKeyAlreadyTerminal
		case storage.IsTransient(err):
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil, fmt.Errorf("failed to revoke key: %w", err)
	}

	metrics.RecordKeyTransition("revoked")
	e.logger.Info("access key revoked",
		"key_id", keyID,
		"revoked_by", actor.ID)
	return key, nil
}

// RunExpirySweep transitions every active key with expiry_date <= asOf to
// expired and returns the transitioned set. Invoked by the reconciliation
// scheduler; admins may also trigger it manually.
//
// A missing system actor never blocks the sweep: transitions proceed with a
// null audit actor and a warning.
func (e *Engine) RunExpirySweep(ctx context.Context, actor authz.Actor, asOf time.Time) ([]*storage.AccessKey, error) {
	if err := e.allow(actor, authz.ActionExpireKeys); err != nil {
		return nil, err
	}

	systemActor := e.cfg.SystemActorID
	if systemActor == "" {
		e.logger.Warn("no system actor configured, recording expiry audit entries without an actor")
	}

	start := time.Now()
	var expired []*storage.AccessKey
	err := e.retrier.Do(func() error {
		var err error
		expired, err = e.store.ExpireKeys(ctx, asOf, systemActor)
		return err
	})
	if err != nil {
		metrics.RecordSweepFailure()
		if storage.IsTransient(err) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil, fmt.Errorf("failed to run expiry sweep: %w", err)
	}
	metrics.RecordSweepDuration(time.Since(start).Seconds())

	for _, key := range expired {
		metrics.RecordKeyTransition("expired")
		e.logger.Info("access key expired",
			"key_id", key.ID,
			"school_id", key.SchoolID,
			"expiry_date", key.ExpiryDate)
	}
	return expired, nil
}

// GetActiveKey returns the school's currently active key, or ErrKeyNotFound
// if it holds none. School personnel may only query their own school.
func (e *Engine) GetActiveKey(ctx context.Context, actor authz.Actor, schoolID string) (*storage.AccessKey, error) {
	if err := e.allow(actor, authz.ActionViewKey); err != nil {
		return nil, err
	}
	if actor.Role == authz.RoleSchoolPersonnel && actor.SchoolID != schoolID {
		return nil, fmt.Errorf("%w: may only view own school's keys", ErrPermissionDenied)
	}

	key, err := e.store.GetActiveKey(ctx, schoolID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get active key: %w", err)
	}
	return key, nil
}

// GetKey returns one key by id. School personnel may only see keys belonging
// to their own school.
func (e *Engine) GetKey(ctx context.Context, actor authz.Actor, keyID string) (*storage.AccessKey, error) {
	if err := e.allow(actor, authz.ActionViewKey); err != nil {
		return nil, err
	}

	key, err := e.store.GetKey(ctx, keyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	if actor.Role == authz.RoleSchoolPersonnel && actor.SchoolID != key.SchoolID {
		return nil, fmt.Errorf("%w: may only view own school's keys", ErrPermissionDenied)
	}
	return key, nil
}

// AuditLog returns the audit trail for one key, newest first.
func (e *Engine) AuditLog(ctx context.Context, actor authz.Actor, keyID string) ([]*storage.KeyLog, error) {
	if err := e.allow(actor, authz.ActionViewLogs); err != nil {
		return nil, err
	}

	key, err := e.store.GetKey(ctx, keyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	if actor.Role == authz.RoleSchoolPersonnel && actor.SchoolID != key.SchoolID {
		return nil, fmt.Errorf("%w: may only view own school's audit log", ErrPermissionDenied)
	}

	return e.store.ListKeyLogs(ctx, keyID)
}

// AuditLogBySchool returns the audit trail across all of a school's keys,
// newest first.
func (e *Engine) AuditLogBySchool(ctx context.Context, actor authz.Actor, schoolID string) ([]*storage.KeyLog, error) {
	if err := e.allow(actor, authz.ActionViewLogs); err != nil {
		return nil, err
	}
	if actor.Role == authz.RoleSchoolPersonnel && actor.SchoolID != schoolID {
		return nil, fmt.Errorf("%w: may only view own school's audit log", ErrPermissionDenied)
	}

	return e.store.ListKeyLogsBySchool(ctx, schoolID)
}

// NextExpiry returns the earliest expiry among active keys expiring strictly
// after the given instant, or nil when none exists. The scheduler uses this
// to pick its next wake-up.
func (e *Engine) NextExpiry(ctx context.Context, after time.Time) (*time.Time, error) {
	return e.store.NextExpiry(ctx, after)
}

// ValidityPeriod exposes the configured key validity.
func (e *Engine) ValidityPeriod() time.Duration {
	return e.cfg.ValidityPeriod
}

func (e *Engine) allow(actor authz.Actor, action authz.Action) error {
	d := authz.Check(actor, action)
	if !d.Allowed {
		metrics.RecordAuthFailure("permission_denied")
		return fmt.Errorf("%w: %s", ErrPermissionDenied, d.Reason)
	}
	return nil
}
