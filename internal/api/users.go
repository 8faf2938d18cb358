package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/schoolkey/access-key-manager/internal/storage"
)

// CreateUserRequest is the request body for POST /admin/api/users
type CreateUserRequest struct {
	Email    string `json:"email"`
	Role     string `json:"role"`
	SchoolID string `json:"school_id,omitempty"`
}

// CreateUserResponse includes the bearer token (shown only once)
type CreateUserResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	SchoolID string `json:"school_id,omitempty"`
	Token    string `json:"token"` // Plain token, shown once
}

// HandleCreateUser registers a new actor and returns its bearer token
// POST /admin/api/users
// Body: {"email": "...", "role": "school_personnel|admin|system", "school_id": "..."}
func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email required")
		return
	}

	switch req.Role {
	case storage.RoleSchoolPersonnel:
		if req.SchoolID == "" {
			writeError(w, http.StatusBadRequest, "school_id required for school personnel")
			return
		}
		if _, err := h.storage.GetSchool(r.Context(), req.SchoolID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, "school not found")
				return
			}
			h.logger.Error("failed to look up school", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	case storage.RoleAdmin, storage.RoleSystem:
		// No school binding.
	default:
		writeError(w, http.StatusBadRequest, "role must be school_personnel, admin, or system")
		return
	}

	// The system role never authenticates; everyone else gets a bearer
	// token returned exactly once.
	var token, tokenHash string
	if req.Role != storage.RoleSystem {
		token = generateBearerToken(32)
		var err error
		tokenHash, err = storage.HashToken(token)
		if err != nil {
			h.logger.Error("failed to hash token", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	params := storage.CreateUserParams{
		Email:     req.Email,
		Role:      req.Role,
		TokenHash: tokenHash,
	}
	if req.SchoolID != "" {
		params.SchoolID = &req.SchoolID
	}

	user, err := h.storage.CreateUser(r.Context(), params)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		h.logger.Error("failed to create user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("user created", "user_id", user.ID, "role", user.Role)

	resp := CreateUserResponse{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role,
		Token: token,
	}
	if user.SchoolID != nil {
		resp.SchoolID = *user.SchoolID
	}
	writeJSON(w, http.StatusCreated, resp)
}

// SetLogLevelRequest is the request body for POST /admin/api/loglevel
type SetLogLevelRequest struct {
	Level string `json:"level"`
}

// HandleSetLogLevel changes runtime log level
// POST /admin/api/loglevel
// Body: {"level": "debug|info|warn|error"}
func (h *Handler) HandleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req SetLogLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var level slog.Level
	switch req.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		writeError(w, http.StatusBadRequest, "invalid level (must be: debug, info, warn, error)")
		return
	}

	h.logLevel.Set(level)
	h.logger.Info("log level changed", "new_level", req.Level)
	writeJSON(w, http.StatusOK, map[string]string{"level": req.Level})
}

// generateBearerToken generates a random hex string of the given byte length
func generateBearerToken(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}
