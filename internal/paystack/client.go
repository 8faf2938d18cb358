// Package paystack provides a client for verifying Paystack transactions.
package paystack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	// DefaultBaseURL is the default base URL for the Paystack API.
	DefaultBaseURL = "https://api.paystack.co"
)

// Client is an HTTP client for the Paystack API.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (useful for testing with mock server).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a new Paystack API client.
func NewClient(secretKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		secretKey:  secretKey,
		httpClient: http.DefaultClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Transaction is the verified transaction data returned by Paystack.
type Transaction struct {
	Status        string `json:"status"`
	Reference     string `json:"reference"`
	Amount        int64  `json:"amount"` // minor currency units
	CustomerEmail string
}

// Successful reports whether the transaction completed successfully.
func (t *Transaction) Successful() bool {
	return t.Status == "success"
}

// verifyResponse mirrors the Paystack verify endpoint envelope.
type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Customer  struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

// VerifyTransaction checks a transaction reference against the Paystack API.
// Returns the transaction data; callers must still check Successful() and
// the amount before treating the payment as settled.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	if reference == "" {
		return nil, fmt.Errorf("paystack: reference must not be empty")
	}

	endpoint := c.baseURL + "/transaction/verify/" + url.PathEscape(reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	// Set authentication header
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	// Execute request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		//nolint:errcheck
		resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp.StatusCode, body)
	}

	var result verifyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.Status {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: result.Message}
	}

	return &Transaction{
		Status:        result.Data.Status,
		Reference:     result.Data.Reference,
		Amount:        result.Data.Amount,
		CustomerEmail: result.Data.Customer.Email,
	}, nil
}
