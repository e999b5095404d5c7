// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

// Package main is the entry point for the Rewardloop server.
//
// The server hosts one bandit engine and keeps its learning loop running:
// expired attributions are swept on the flush interval, Beta evidence decays
// on the decay interval and the bandit state is snapshotted to BadgerDB. An
// ops HTTP server exposes /metrics, /healthz and read-only state views.
//
// # Startup
//
//  1. Configuration: koanf layers (defaults, YAML file, environment)
//  2. Logging: zerolog from the logging section
//  3. Engine: bandit selector and attribution tracker
//  4. Snapshot store: BadgerDB, restoring the latest snapshot if present
//  5. Supervisor tree: sweep, decay, snapshot and ops HTTP services
//
// # Signal Handling
//
// On SIGINT or SIGTERM the tree is stopped. The sweep service performs a
// final sweep and buffer flush, then one last snapshot is written before the
// store is closed.
//
// # Example Usage
//
//	export BANDIT_MODE=ucb
//	export REWARD_WINDOW=15m
//	export SNAPSHOT_PATH=/var/lib/rewardloop
//	./rewardloop
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/tomtom215/rewardloop/internal/config"
	"github.com/tomtom215/rewardloop/internal/logging"
	"github.com/tomtom215/rewardloop/internal/ops"
	"github.com/tomtom215/rewardloop/internal/recommend/engine"
	"github.com/tomtom215/rewardloop/internal/snapshot"
	"github.com/tomtom215/rewardloop/internal/supervisor"
	"github.com/tomtom215/rewardloop/internal/supervisor/services"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logging.Logger()); err != nil {
		logging.Error().Err(err).Msg("Server exited with error")
		stop()
		os.Exit(1) //nolint:gocritic // exitAfterDefer: stop is called explicitly above
	}
	logging.Info().Msg("Application stopped gracefully")
}

// run wires the engine, snapshot store and supervisor tree and blocks until
// ctx is canceled.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	eng, err := engine.New(cfg.Recommend(), logger)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	var store *snapshot.Store
	if cfg.Snapshot.Enabled {
		store, err = snapshot.Open(cfg.SnapshotStore(), logger)
		if err != nil {
			return fmt.Errorf("failed to open snapshot store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error().Err(err).Msg("Error closing snapshot store")
			}
		}()
		if err := restoreLatest(ctx, store, eng, logger); err != nil {
			return err
		}
	} else {
		logger.Warn().Msg("Snapshots disabled, bandit state will not survive a restart")
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(logger), supervisor.DefaultTreeConfig())
	if err != nil {
		return fmt.Errorf("failed to create supervisor tree: %w", err)
	}

	if store != nil {
		tree.AddDataService(services.NewSnapshotService(store, eng, services.SnapshotServiceConfig{
			Interval: cfg.Snapshot.Interval,
		}, logger))
	}
	tree.AddLearningService(services.NewSweepService(eng, cfg.Attribution.FlushInterval, logger))
	if cfg.Decay.Interval > 0 {
		tree.AddLearningService(services.NewDecayService(eng, cfg.Decay.Interval, logger))
	}

	server := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: ops.NewRouter(eng, ops.RouterConfig{
			RateLimitReqs:   cfg.Server.RateLimitReqs,
			RateLimitWindow: cfg.Server.RateLimitWindow,
		}, logger),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout, logger))

	logger.Info().
		Str("ops_addr", server.Addr).
		Bool("snapshots", store != nil).
		Dur("sweep_interval", cfg.Attribution.FlushInterval).
		Dur("decay_interval", cfg.Decay.Interval).
		Msg("Starting supervisor tree")

	errCh := tree.ServeBackground(ctx)
	var treeErr error
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			treeErr = err
			logger.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logger.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}

	// The sweep service has drained the buffer by now, so this snapshot
	// includes every reward delivered before shutdown.
	if store != nil {
		if key, err := store.SaveEngine(context.WithoutCancel(ctx), eng); err != nil {
			logger.Error().Err(err).Msg("Final snapshot failed")
		} else {
			logger.Info().Str("key", key).Msg("Final snapshot saved")
		}
	}
	return treeErr
}

// restoreLatest imports the newest snapshot into eng. An empty store is not
// an error; a snapshot that cannot be imported is.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func restoreLatest(ctx context.Context, store *snapshot.Store, eng *engine.Engine, logger zerolog.Logger) error {
	snap, err := store.Latest(ctx)
	if errors.Is(err, snapshot.ErrNotFound) {
		logger.Info().Msg("No snapshot found, starting with fresh bandit state")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read latest snapshot: %w", err)
	}
	if err := eng.ImportState(snap); err != nil {
		return fmt.Errorf("failed to restore snapshot from %s: %w", snap.CapturedAt, err)
	}
	return nil
}
