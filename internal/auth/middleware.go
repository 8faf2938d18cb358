package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/schoolkey/access-key-manager/internal/authz"
	"github.com/schoolkey/access-key-manager/internal/metrics"
)

// BootstrapActorID is the actor id recorded for requests authenticated with
// the bootstrap token before any real admin user exists.
const BootstrapActorID = "bootstrap"

// Middleware returns Chi-compatible middleware that resolves the bearer
// token to an actor and attaches it to the request context.
//
// The bootstrap service may be nil when no bootstrap token is configured;
// in that case only stored user tokens authenticate.
func Middleware(v *Validator, bootstrap *BootstrapService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				metrics.RecordAuthFailure("missing_token")
				writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			actor, err := v.ValidateToken(r.Context(), token)
			if err != nil {
				if !errors.Is(err, ErrInvalidToken) {
					writeJSONError(w, http.StatusInternalServerError, "internal error")
					return
				}

				// Not a user token; the bootstrap token is accepted only
				// while no admin user exists.
				if bootstrap != nil {
					ok, berr := bootstrap.ValidateBootstrapToken(r.Context(), token)
					if berr != nil {
						writeJSONError(w, http.StatusInternalServerError, "internal error")
						return
					}
					if ok {
						ctx := WithActor(r.Context(), &authz.Actor{
							ID:   BootstrapActorID,
							Role: authz.RoleAdmin,
						})
						ctx = WithBootstrap(ctx, true)
						next.ServeHTTP(w, r.WithContext(ctx))
						return
					}
				}

				metrics.RecordAuthFailure("invalid_token")
				writeJSONError(w, http.StatusUnauthorized, "invalid bearer token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// extractBearerToken gets token from "Authorization: Bearer <token>" header
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// writeJSONError writes a JSON error response
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(map[string]string{"error": message})
	if err != nil {
		// Encoding errors are not critical for error responses
		_ = err
	}
}
