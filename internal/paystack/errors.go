package paystack

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError represents a structured error from the Paystack API.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	return fmt.Sprintf("paystack: status %d: %s", e.StatusCode, e.Message)
}

// Sentinel errors for common API error cases.
var (
	ErrUnauthorized = errors.New("paystack: unauthorized (invalid secret key)")
	ErrNotFound     = errors.New("paystack: transaction not found")
)

// parseError maps an error response to a sentinel or structured error.
func parseError(statusCode int, body []byte) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	}

	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Message == "" {
		envelope.Message = "unexpected error"
	}
	return &APIError{StatusCode: statusCode, Message: envelope.Message}
}
