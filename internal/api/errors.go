package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/schoolkey/access-key-manager/internal/lifecycle"
	"github.com/schoolkey/access-key-manager/internal/storage"
)

// handleLifecycleError maps engine and store errors to HTTP responses.
// Business outcomes get specific statuses; everything else is a 500.
func handleLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrKeyNotFound),
		errors.Is(err, lifecycle.ErrSchoolNotFound),
		errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, lifecycle.ErrSchoolAlreadyHasActiveKey),
		errors.Is(err, lifecycle.ErrKeyAlreadyTerminal),
		errors.Is(err, storage.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, lifecycle.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "permission denied")
	case errors.Is(err, lifecycle.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		slog.Default().Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
