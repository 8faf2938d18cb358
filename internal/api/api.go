// Package api provides the HTTP endpoints for the access key manager.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/schoolkey/access-key-manager/internal/lifecycle"
	"github.com/schoolkey/access-key-manager/internal/paystack"
	"github.com/schoolkey/access-key-manager/internal/storage"
)

// Storage interface for the handler's direct store access. Lifecycle
// operations go through the engine; plain reads and school/user management
// go straight to the store.
type Storage interface {
	Ping(ctx context.Context) error

	CreateSchool(ctx context.Context, name, email string) (*storage.School, error)
	GetSchool(ctx context.Context, id string) (*storage.School, error)
	GetSchoolByEmail(ctx context.Context, email string) (*storage.School, error)
	ListSchools(ctx context.Context) ([]*storage.School, error)

	CreateUser(ctx context.Context, p storage.CreateUserParams) (*storage.User, error)
	GetUserByEmail(ctx context.Context, email string) (*storage.User, error)

	ListKeys(ctx context.Context) ([]*storage.AccessKey, error)
	ListKeysBySchool(ctx context.Context, schoolID string) ([]*storage.AccessKey, error)
}

// PaymentVerifier verifies payment transactions before key issuance.
type PaymentVerifier interface {
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Transaction, error)
}

// Handler provides the HTTP endpoints.
type Handler struct {
	engine   *lifecycle.Engine
	storage  Storage
	payments PaymentVerifier
	logger   *slog.Logger
	logLevel *slog.LevelVar
	keyPrice int64
}

// NewHandler creates an API handler. payments may be nil when no payment
// gateway is configured; the payment callback endpoint then returns 503.
func NewHandler(engine *lifecycle.Engine, st Storage, payments PaymentVerifier, keyPrice int64, logLevel *slog.LevelVar, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if logLevel == nil {
		logLevel = new(slog.LevelVar)
	}

	return &Handler{
		engine:   engine,
		storage:  st,
		payments: payments,
		keyPrice: keyPrice,
		logLevel: logLevel,
		logger:   logger,
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log encoding errors but don't fail the response
		slog.Default().Error("failed to encode JSON response", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// keyResponse is the JSON shape of an access key.
type keyResponse struct {
	ID              string  `json:"id"`
	Key             string  `json:"key"`
	SchoolID        string  `json:"school_id"`
	Status          string  `json:"status"`
	AssignedTo      string  `json:"assigned_to"`
	ProcurementDate string  `json:"procurement_date"`
	ExpiryDate      string  `json:"expiry_date"`
	RevokedBy       *string `json:"revoked_by,omitempty"`
	RevokedOn       *string `json:"revoked_on,omitempty"`
	PriceCents      int64   `json:"price_cents"`
}

func toKeyResponse(k *storage.AccessKey) keyResponse {
	resp := keyResponse{
		ID:              k.ID,
		Key:             k.Key,
		SchoolID:        k.SchoolID,
		Status:          string(k.Status),
		AssignedTo:      k.AssignedTo,
		ProcurementDate: k.ProcurementDate.Format(time.RFC3339),
		ExpiryDate:      k.ExpiryDate.Format(time.RFC3339),
		PriceCents:      k.PriceCents,
	}
	if k.RevokedBy != nil {
		resp.RevokedBy = k.RevokedBy
	}
	if k.RevokedOn != nil {
		s := k.RevokedOn.Format(time.RFC3339)
		resp.RevokedOn = &s
	}
	return resp
}

// logResponse is the JSON shape of an audit entry.
type logResponse struct {
	ID          string  `json:"id"`
	AccessKeyID string  `json:"access_key_id"`
	Action      string  `json:"action"`
	UserID      *string `json:"user_id,omitempty"`
	Timestamp   string  `json:"timestamp"`
}

func toLogResponses(logs []*storage.KeyLog) []logResponse {
	out := make([]logResponse, len(logs))
	for i, l := range logs {
		out[i] = logResponse{
			ID:          l.ID,
			AccessKeyID: l.AccessKeyID,
			Action:      l.Action,
			UserID:      l.UserID,
			Timestamp:   l.Timestamp.Format(time.RFC3339),
		}
	}
	return out
}
