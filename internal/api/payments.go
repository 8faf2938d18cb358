package api

import (
	"errors"
	"net/http"

	"github.com/schoolkey/access-key-manager/internal/authz"
	"github.com/schoolkey/access-key-manager/internal/paystack"
	"github.com/schoolkey/access-key-manager/internal/storage"
)

// PaymentCallbackResponse is the response body for the payment callback.
type PaymentCallbackResponse struct {
	Reference string      `json:"reference"`
	Key       keyResponse `json:"key"`
}

// HandlePaymentCallback completes a key purchase after the payment gateway
// redirects back with a transaction reference.
// GET /payments/callback?reference=...
//
// The transaction is verified against Paystack; the purchaser is resolved
// from the transaction's customer email, and a key is issued for their
// school priced at the amount actually paid.
func (h *Handler) HandlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writeError(w, http.StatusServiceUnavailable, "payments not configured")
		return
	}

	reference := r.URL.Query().Get("reference")
	if reference == "" {
		writeError(w, http.StatusBadRequest, "reference required")
		return
	}

	tx, err := h.payments.VerifyTransaction(r.Context(), reference)
	if err != nil {
		if errors.Is(err, paystack.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		h.logger.Error("payment verification failed", "reference", reference, "error", err)
		writeError(w, http.StatusBadGateway, "payment verification failed")
		return
	}
	if !tx.Successful() {
		writeError(w, http.StatusPaymentRequired, "payment not successful")
		return
	}
	if tx.Amount < h.keyPrice {
		h.logger.Warn("underpaid transaction rejected",
			"reference", reference,
			"amount", tx.Amount,
			"price", h.keyPrice)
		writeError(w, http.StatusPaymentRequired, "payment amount below key price")
		return
	}

	// Resolve the purchaser from the paying customer's email.
	user, err := h.storage.GetUserByEmail(r.Context(), tx.CustomerEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no user registered for paying customer")
			return
		}
		h.logger.Error("failed to resolve purchaser", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if user.SchoolID == nil {
		writeError(w, http.StatusBadRequest, "paying user is not school personnel")
		return
	}

	actor := authz.Actor{
		ID:       user.ID,
		Role:     authz.Role(user.Role),
		SchoolID: *user.SchoolID,
	}

	key, err := h.engine.IssueKey(r.Context(), actor, *user.SchoolID, tx.Amount)
	if err != nil {
		handleLifecycleError(w, err)
		return
	}

	h.logger.Info("key issued via payment callback",
		"reference", reference,
		"school_id", *user.SchoolID)
	writeJSON(w, http.StatusCreated, PaymentCallbackResponse{
		Reference: reference,
		Key:       toKeyResponse(key),
	})
}
