// Package testenv boots an in-process access key manager stack for
// end-to-end tests: real storage, real engine, real bearer-token auth,
// served over an httptest server.
package testenv

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/schoolkey/access-key-manager/internal/api"
	"github.com/schoolkey/access-key-manager/internal/auth"
	"github.com/schoolkey/access-key-manager/internal/lifecycle"
	"github.com/schoolkey/access-key-manager/internal/storage"
)

// BootstrapToken authenticates as a temporary admin until a real admin
// user exists.
const BootstrapToken = "e2e-bootstrap-token"

// Env is a running key manager instance.
type Env struct {
	Server *httptest.Server
	Store  *storage.SQLiteStorage
	Engine *lifecycle.Engine

	// BaseURL is the server's address, without trailing slash.
	BaseURL string
}

// Option configures the environment.
type Option func(*settings)

type settings struct {
	validity time.Duration
	payments api.PaymentVerifier
	price    int64
}

// WithValidity sets the key validity period. Short periods let expiry
// tests run in real time.
func WithValidity(d time.Duration) Option {
	return func(s *settings) {
		s.validity = d
	}
}

// WithPayments wires a payment verifier into the callback endpoint.
func WithPayments(p api.PaymentVerifier) Option {
	return func(s *settings) {
		s.payments = p
	}
}

// WithKeyPrice sets the price charged per key, in minor units.
func WithKeyPrice(cents int64) Option {
	return func(s *settings) {
		s.price = cents
	}
}

// Setup starts a full stack over an in-memory database. Everything is torn
// down when the test finishes.
func Setup(t *testing.T, opts ...Option) *Env {
	t.Helper()

	s := settings{
		validity: 24 * time.Hour,
		price:    10000,
	}
	for _, opt := range opts {
		opt(&s)
	}

	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine := lifecycle.NewEngine(store, lifecycle.Config{
		ValidityPeriod: s.validity,
		KeyLength:      20,
	}, logger)

	validator := auth.NewValidator(store)
	bootstrap := auth.NewBootstrapService(store, BootstrapToken)

	handler := api.NewHandler(engine, store, s.payments, s.price, new(slog.LevelVar), logger)
	router := api.NewRouter(handler, auth.Middleware(validator, bootstrap), logger)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &Env{
		Server:  server,
		Store:   store,
		Engine:  engine,
		BaseURL: server.URL,
	}
}
