// Package main provides the entry point for the access key manager server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/schoolkey/access-key-manager/internal/api"
	"github.com/schoolkey/access-key-manager/internal/auth"
	"github.com/schoolkey/access-key-manager/internal/authz"
	"github.com/schoolkey/access-key-manager/internal/config"
	"github.com/schoolkey/access-key-manager/internal/lifecycle"
	"github.com/schoolkey/access-key-manager/internal/metrics"
	"github.com/schoolkey/access-key-manager/internal/paystack"
	"github.com/schoolkey/access-key-manager/internal/scheduler"
	"github.com/schoolkey/access-key-manager/internal/storage"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(parseLogLevel(cfg.LogLevel))
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("access key manager starting",
		"version", version,
		"listen_addr", cfg.ListenAddr,
		"database", cfg.DatabasePath)

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		//nolint:errcheck
		store.Close()
	}()

	if err := metrics.Init(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	systemActor, err := resolveSystemActor(ctx, store, cfg.SystemActorEmail, logger)
	if err != nil {
		return err
	}

	engine := lifecycle.NewEngine(store, lifecycle.Config{
		ValidityPeriod: cfg.KeyValidity,
		KeyLength:      cfg.KeyLength,
		SystemActorID:  systemActor.ID,
	}, logger)

	validator := auth.NewValidator(store)
	bootstrap := auth.NewBootstrapService(store, cfg.BootstrapToken)
	if cfg.BootstrapToken != "" {
		logger.Info("admin bootstrap token configured; it stops working once an admin user exists")
	}

	var payments api.PaymentVerifier
	if cfg.PaystackSecretKey != "" {
		opts := []paystack.Option{}
		if cfg.PaystackBaseURL != "" {
			opts = append(opts, paystack.WithBaseURL(cfg.PaystackBaseURL))
		}
		payments = paystack.NewClient(cfg.PaystackSecretKey, opts...)
		logger.Info("paystack payment verification enabled")
	} else {
		logger.Info("no paystack secret key; payment callback disabled")
	}

	handler := api.NewHandler(engine, store, payments, cfg.KeyPriceCents, logLevel, logger)
	router := api.NewRouter(handler, auth.Middleware(validator, bootstrap), logger)

	// Expiry scheduler wakes at the earliest future expiry, or after the
	// fallback interval when no key is due.
	sched := scheduler.New(engine, systemActor, cfg.SweepFallback, logger)
	go sched.Run(ctx)

	metricsServer := startMetricsServer(cfg.MetricsListenAddr, logger)
	defer shutdownServer(metricsServer, logger)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownServer(server, logger)
	}

	return nil
}

// resolveSystemActor finds or creates the user attributed with automated
// expiry transitions. With no email configured, sweeps run under an
// anonymous system actor and audit entries carry no user.
func resolveSystemActor(ctx context.Context, store *storage.SQLiteStorage, email string, logger *slog.Logger) (authz.Actor, error) {
	if email == "" {
		logger.Warn("SYSTEM_ACTOR_EMAIL not set; expiry audit entries will not be attributed")
		return authz.Actor{Role: authz.RoleSystem}, nil
	}

	u, err := store.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		u, err = store.CreateUser(ctx, storage.CreateUserParams{
			Email: email,
			Role:  storage.RoleSystem,
		})
		if err == nil {
			logger.Info("created system actor", "user_id", u.ID, "email", email)
		}
	}
	if err != nil {
		return authz.Actor{}, fmt.Errorf("failed to resolve system actor: %w", err)
	}
	if u.Role != storage.RoleSystem {
		return authz.Actor{}, fmt.Errorf("SYSTEM_ACTOR_EMAIL %s belongs to a %s user, want system", email, u.Role)
	}

	return authz.Actor{ID: u.ID, Role: authz.RoleSystem}, nil
}

// startMetricsServer serves Prometheus metrics on a separate listener so the
// public API never exposes them.
func startMetricsServer(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return server
}

func shutdownServer(server *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// parseLogLevel converts a config string into a slog level, defaulting to info.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
