package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/schoolkey/access-key-manager/internal/auth"
	"github.com/schoolkey/access-key-manager/internal/authz"
	"github.com/schoolkey/access-key-manager/internal/logging"
)

// IssueKeyRequest is the request body for POST /keys
type IssueKeyRequest struct {
	SchoolID string `json:"school_id"`
}

// HandleIssueKey issues a new access key for a school
// POST /keys
// Body: {"school_id": "..."}
func (h *Handler) HandleIssueKey(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFromContext(r.Context())
	if actor == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req IssueKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	schoolID := req.SchoolID
	if schoolID == "" {
		// School personnel default to their own school.
		schoolID = actor.SchoolID
	}
	if schoolID == "" {
		writeError(w, http.StatusBadRequest, "school_id required")
		return
	}

	key, err := h.engine.IssueKey(r.Context(), *actor, schoolID, h.keyPrice)
	if err != nil {
		handleLifecycleError(w, err)
		return
	}

	h.logger.Info("key issued via API",
		"key", logging.MaskToken(key.Key),
		"school_id", schoolID)
	writeJSON(w, http.StatusCreated, toKeyResponse(key))
}

// HandleGetKey returns a single access key
// GET /keys/{id}
func (h *Handler) HandleGetKey(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFromContext(r.Context())
	if actor == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	key, err := h.engine.GetKey(r.Context(), *actor, chi.URLParam(r, "id"))
	if err != nil {
		handleLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toKeyResponse(key))
}

// HandleRevokeKey revokes an access key
// POST /keys/{id}/revoke
func (h *Handler) HandleRevokeKey(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFromContext(r.Context())
	if actor == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	key, err := h.engine.RevokeKey(r.Context(), *actor, chi.URLParam(r, "id"))
	if err != nil {
		handleLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toKeyResponse(key))
}

// HandleKeyLogs returns the audit trail for a key, newest first
// GET /keys/{id}/logs
func (h *Handler) HandleKeyLogs(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFromContext(r.Context())
	if actor == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	logs, err := h.engine.AuditLog(r.Context(), *actor, chi.URLParam(r, "id"))
	if err != nil {
		handleLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLogResponses(logs))
}

// HandleSchoolLogs returns the audit trail across a school's keys
// GET /schools/{id}/logs
func (h *Handler) HandleSchoolLogs(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFromContext(r.Context())
	if actor == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	logs, err := h.engine.AuditLogBySchool(r.Context(), *actor, chi.URLParam(r, "id"))
	if err != nil {
		handleLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLogResponses(logs))
}

// HandleListKeys returns all access keys, newest first
// GET /admin/api/keys
func (h *Handler) HandleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.storage.ListKeys(r.Context())
	if err != nil {
		h.logger.Error("failed to list keys", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]keyResponse, len(keys))
	for i, k := range keys {
		response[i] = toKeyResponse(k)
	}
	writeJSON(w, http.StatusOK, response)
}

// SweepResponse is the response body for POST /admin/api/sweep
type SweepResponse struct {
	Expired []keyResponse `json:"expired"`
	AsOf    string        `json:"as_of"`
}

// HandleSweep triggers an expiry sweep immediately
// POST /admin/api/sweep
// The scheduler runs sweeps automatically; this endpoint exists for
// operational/manual runs.
func (h *Handler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFromContext(r.Context())
	if actor == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	now := time.Now().UTC()
	expired, err := h.engine.RunExpirySweep(r.Context(), *actor, now)
	if err != nil {
		handleLifecycleError(w, err)
		return
	}

	resp := SweepResponse{
		Expired: make([]keyResponse, len(expired)),
		AsOf:    now.Format(time.RFC3339),
	}
	for i, k := range expired {
		resp.Expired[i] = toKeyResponse(k)
	}
	writeJSON(w, http.StatusOK, resp)
}

// requireAdmin is middleware that restricts access to admin actors only.
// Returns 403 with a JSON error for non-admin requests.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := auth.ActorFromContext(r.Context())
		if actor == nil || actor.Role != authz.RoleAdmin {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			//nolint:errcheck
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "admin_required",
				"message": "This endpoint requires an admin user.",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
