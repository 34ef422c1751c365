// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

// tripsyncd runs a sync session for one authenticated user until
// interrupted. It is the headless counterpart of the app's sync
// engine, useful for soak testing and for keeping a desktop replica
// warm.
//
// Configuration (environment):
//
//	TRIPSYNC_SQLITE_PATH   local database path (default "travel.db")
//	TRIPSYNC_DATABASE_URL  Postgres URL of the cloud store; empty runs
//	                       against an in-memory store (offline mode)
//	TRIPSYNC_TOKEN         session JWT; its sub claim is the user id
//	TRIPSYNC_JWT_SECRET    shared secret to validate TRIPSYNC_TOKEN
//	TRIPSYNC_USER_ID       user id override when no token is supplied
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hersouls/Travel-v4.0-sub000/internal/auth"
	"github.com/hersouls/Travel-v4.0-sub000/tripcloud"
	"github.com/hersouls/Travel-v4.0-sub000/tripstore"
	"github.com/hersouls/Travel-v4.0-sub000/tripsync"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("tripsyncd failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userID, deviceID, err := resolveIdentity()
	if err != nil {
		return err
	}

	sqlitePath := envOr("TRIPSYNC_SQLITE_PATH", "travel.db")
	local, err := tripstore.Open(sqlitePath, logger)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	defer local.Close()

	var remote tripcloud.Provider
	if databaseURL := os.Getenv("TRIPSYNC_DATABASE_URL"); databaseURL != "" {
		pool, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to cloud store: %w", err)
		}
		defer pool.Close()
		remote, err = tripcloud.NewPostgresProvider(ctx, pool, logger)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("TRIPSYNC_DATABASE_URL not set, running against an in-memory cloud store")
		remote = tripcloud.NewMemoryProvider()
	}

	engine := tripsync.New(local, remote, tripsync.DefaultConfig(), logger)
	defer engine.Stop()

	engine.OnSyncStatus(func(st tripsync.Status) {
		if st.Err != nil {
			logger.Warn("sync status", "phase", string(st.Phase), "collection", st.Collection, "error", st.Err)
			return
		}
		logger.Info("sync status", "phase", string(st.Phase), "collection", st.Collection)
	})
	engine.OnSyncUpdate(func(collection string) {
		logger.Info("local store updated from remote", "collection", collection)
	})
	engine.OnActiveChange(func(active bool) {
		logger.Info("session active changed", "active", active)
	})

	sessionCtx := auth.WithUserID(ctx, userID)
	if deviceID != "" {
		sessionCtx = auth.WithDeviceID(sessionCtx, deviceID)
	}
	if err := engine.Start(sessionCtx, userID); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func resolveIdentity() (userID, deviceID string, err error) {
	token := os.Getenv("TRIPSYNC_TOKEN")
	if token == "" {
		if userID := os.Getenv("TRIPSYNC_USER_ID"); userID != "" {
			return userID, "", nil
		}
		return "", "", fmt.Errorf("TRIPSYNC_TOKEN or TRIPSYNC_USER_ID must be set")
	}
	secret := os.Getenv("TRIPSYNC_JWT_SECRET")
	if secret == "" {
		return "", "", fmt.Errorf("TRIPSYNC_JWT_SECRET must be set to validate TRIPSYNC_TOKEN")
	}
	claims, err := auth.NewTokenAuth(secret).ValidateToken(token)
	if err != nil {
		return "", "", fmt.Errorf("invalid session token: %w", err)
	}
	return claims.Subject, claims.DeviceID, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
