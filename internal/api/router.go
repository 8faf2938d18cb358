package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/schoolkey/access-key-manager/internal/metrics"
	"github.com/schoolkey/access-key-manager/internal/middleware"
)

// NewRouter creates a Chi router with all key manager endpoints.
// The authMiddleware parameter should be auth.Middleware(validator, bootstrap).
// The logger parameter is used for debug logging of HTTP requests/responses.
func NewRouter(h *Handler, authMiddleware func(http.Handler) http.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Apply middlewares in order
	r.Use(middleware.RequestID)                // Add request ID first
	r.Use(metrics.Middleware)                  // Metrics before logging so failures are counted
	r.Use(middleware.HTTPLogging(logger, nil)) // Log with no allowlist (tokens are masked)
	r.Use(middleware.MaxBodySize(1 << 20))     // Request bodies are small JSON documents
	r.Use(chimiddleware.Recoverer)

	// Public endpoints (no auth)
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)
	r.Get("/schools/active-key", h.HandleActiveKeyStatus)
	r.Get("/payments/callback", h.HandlePaymentCallback)

	// Authenticated endpoints (bearer token)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)

		r.Post("/keys", h.HandleIssueKey)
		r.Get("/keys/active", h.HandleMyActiveKey)
		r.Get("/keys/{id}", h.HandleGetKey)
		r.Post("/keys/{id}/revoke", h.HandleRevokeKey)
		r.Get("/keys/{id}/logs", h.HandleKeyLogs)
		r.Get("/schools/logs", h.HandleMySchoolLogs)
		r.Get("/schools/{id}/logs", h.HandleSchoolLogs)

		// Admin API (admin role required)
		r.Route("/admin/api", func(r chi.Router) {
			r.Use(requireAdmin)

			r.Get("/keys", h.HandleListKeys)
			r.Post("/sweep", h.HandleSweep)
			r.Get("/schools", h.HandleListSchools)
			r.Post("/schools", h.HandleCreateSchool)
			r.Post("/users", h.HandleCreateUser)
			r.Post("/loglevel", h.HandleSetLogLevel)
		})
	})

	return r
}
