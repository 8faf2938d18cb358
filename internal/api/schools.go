package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/schoolkey/access-key-manager/internal/auth"
	"github.com/schoolkey/access-key-manager/internal/lifecycle"
	"github.com/schoolkey/access-key-manager/internal/storage"
)

// schoolResponse is the JSON shape of a school.
type schoolResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

func toSchoolResponse(s *storage.School) schoolResponse {
	return schoolResponse{
		ID:        s.ID,
		Name:      s.Name,
		Email:     s.Email,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
}

// CreateSchoolRequest is the request body for POST /admin/api/schools
type CreateSchoolRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// HandleCreateSchool registers a new school
// POST /admin/api/schools
// Body: {"name": "...", "email": "..."}
func (h *Handler) HandleCreateSchool(w http.ResponseWriter, r *http.Request) {
	var req CreateSchoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "name and email required")
		return
	}

	school, err := h.storage.CreateSchool(r.Context(), req.Name, req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "school email already registered")
			return
		}
		h.logger.Error("failed to create school", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("school created", "school_id", school.ID, "name", school.Name)
	writeJSON(w, http.StatusCreated, toSchoolResponse(school))
}

// HandleListSchools returns all schools ordered by name
// GET /admin/api/schools
func (h *Handler) HandleListSchools(w http.ResponseWriter, r *http.Request) {
	schools, err := h.storage.ListSchools(r.Context())
	if err != nil {
		h.logger.Error("failed to list schools", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]schoolResponse, len(schools))
	for i, s := range schools {
		response[i] = toSchoolResponse(s)
	}
	writeJSON(w, http.StatusOK, response)
}

// ActiveKeyStatusResponse is the response body for the public active-key
// status check. The token itself is never exposed here.
type ActiveKeyStatusResponse struct {
	SchoolID   string `json:"school_id"`
	SchoolName string `json:"school_name"`
	HasActive  bool   `json:"has_active_key"`
	ExpiryDate string `json:"expiry_date,omitempty"`
}

// HandleActiveKeyStatus reports whether a school currently holds an active
// key. Unauthenticated: checkers only learn validity and expiry, never the
// token.
// GET /schools/active-key?school_email=...
func (h *Handler) HandleActiveKeyStatus(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("school_email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "school_email required")
		return
	}

	school, err := h.storage.GetSchoolByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "school not found")
			return
		}
		h.logger.Error("failed to look up school", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := ActiveKeyStatusResponse{
		SchoolID:   school.ID,
		SchoolName: school.Name,
	}

	// The status check runs with a system-level read; it bypasses the
	// actor gate because it discloses nothing beyond validity.
	key, err := h.storage.ListKeysBySchool(r.Context(), school.ID)
	if err != nil {
		h.logger.Error("failed to list school keys", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	for _, k := range key {
		if k.Status == storage.StatusActive {
			resp.HasActive = true
			resp.ExpiryDate = k.ExpiryDate.Format(time.RFC3339)
			break
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleMySchoolLogs returns the calling school personnel's own audit trail
// GET /schools/logs
func (h *Handler) HandleMySchoolLogs(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFromContext(r.Context())
	if actor == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if actor.SchoolID == "" {
		writeError(w, http.StatusBadRequest, "actor is not school personnel")
		return
	}

	logs, err := h.engine.AuditLogBySchool(r.Context(), *actor, actor.SchoolID)
	if err != nil {
		handleLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLogResponses(logs))
}

// HandleMyActiveKey returns the calling school personnel's active key
// GET /keys/active
func (h *Handler) HandleMyActiveKey(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFromContext(r.Context())
	if actor == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if actor.SchoolID == "" {
		writeError(w, http.StatusBadRequest, "actor is not school personnel")
		return
	}

	key, err := h.engine.GetActiveKey(r.Context(), *actor, actor.SchoolID)
	if err != nil {
		if errors.Is(err, lifecycle.ErrKeyNotFound) {
			writeError(w, http.StatusNotFound, "no active access key")
			return
		}
		handleLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toKeyResponse(key))
}
