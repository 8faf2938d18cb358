package auth

import (
	"context"

	"github.com/schoolkey/access-key-manager/internal/authz"
)

// ctxKey is a private type for context keys to prevent collisions.
type ctxKey int

const (
	// Context keys for authentication data.
	actorKey     ctxKey = iota // stores *authz.Actor
	bootstrapKey               // stores bool (is bootstrap token auth)
)

// ActorFromContext retrieves the authenticated actor from context.
// Returns nil if no actor is set.
func ActorFromContext(ctx context.Context) *authz.Actor {
	if v := ctx.Value(actorKey); v != nil {
		if actor, ok := v.(*authz.Actor); ok {
			return actor
		}
	}
	return nil
}

// IsBootstrapFromContext returns true if the request was authenticated with
// the bootstrap token.
func IsBootstrapFromContext(ctx context.Context) bool {
	if v := ctx.Value(bootstrapKey); v != nil {
		if isBootstrap, ok := v.(bool); ok {
			return isBootstrap
		}
	}
	return false
}

// WithActor adds an actor to the context.
func WithActor(ctx context.Context, actor *authz.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// WithBootstrap marks the context as authenticated with the bootstrap token.
func WithBootstrap(ctx context.Context, isBootstrap bool) context.Context {
	return context.WithValue(ctx, bootstrapKey, isBootstrap)
}
