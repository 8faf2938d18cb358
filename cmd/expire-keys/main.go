// Package main provides a one-shot expiry sweep, for cron-style deployments
// where the in-process scheduler is not wanted.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schoolkey/access-key-manager/internal/authz"
	"github.com/schoolkey/access-key-manager/internal/config"
	"github.com/schoolkey/access-key-manager/internal/lifecycle"
	"github.com/schoolkey/access-key-manager/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("sweep failed", "error", err)
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

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		//nolint:errcheck
		store.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	actor := authz.Actor{Role: authz.RoleSystem}
	systemActorID := ""
	if cfg.SystemActorEmail != "" {
		u, err := store.GetUserByEmail(ctx, cfg.SystemActorEmail)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("failed to resolve system actor: %w", err)
			}
			logger.Warn("system actor not found, sweeping unattributed", "email", cfg.SystemActorEmail)
		} else {
			actor.ID = u.ID
			systemActorID = u.ID
		}
	}

	engine := lifecycle.NewEngine(store, lifecycle.Config{
		ValidityPeriod: cfg.KeyValidity,
		KeyLength:      cfg.KeyLength,
		SystemActorID:  systemActorID,
	}, logger)

	expired, err := engine.RunExpirySweep(ctx, actor, time.Now().UTC())
	if err != nil {
		return err
	}

	logger.Info("sweep complete", "expired", len(expired))
	for _, k := range expired {
		logger.Info("key expired", "key_id", k.ID, "school_id", k.SchoolID, "expiry_date", k.ExpiryDate)
	}
	return nil
}
