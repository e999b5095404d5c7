// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/rewardloop/internal/recommend/engine"
)

// SnapshotStore persists engine state. Satisfied by *snapshot.Store.
type SnapshotStore interface {
	SaveEngine(ctx context.Context, e *engine.Engine) (string, error)
}

// SnapshotServiceConfig holds configuration for the snapshot service.
type SnapshotServiceConfig struct {
	// Interval between saves.
	Interval time.Duration

	// SaveOnStop writes one last snapshot when the service is stopped. Hosts
	// that save after the whole tree has stopped leave this off.
	SaveOnStop bool
}

// SnapshotService periodically saves the bandit state.
// Save failures are logged and retried on the next tick.
type SnapshotService struct {
	store  SnapshotStore
	engine *engine.Engine
	config SnapshotServiceConfig
	logger zerolog.Logger
	name   string
}

// NewSnapshotService creates a snapshot service. A non-positive interval defaults to 5m.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewSnapshotService(store SnapshotStore, e *engine.Engine, cfg SnapshotServiceConfig, logger zerolog.Logger) *SnapshotService {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &SnapshotService{
		store:  store,
		engine: e,
		config: cfg,
		logger: logger.With().Str("service", "snapshot").Logger(),
		name:   "snapshot-service",
	}
}

// Serve implements suture.Service.
func (s *SnapshotService) Serve(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.config.Interval).
		Bool("save_on_stop", s.config.SaveOnStop).
		Msg("snapshot service starting")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.config.SaveOnStop {
				s.save(context.WithoutCancel(ctx))
			}
			s.logger.Info().Msg("snapshot service shutting down")
			return ctx.Err()

		case <-ticker.C:
			s.save(ctx)
		}
	}
}

func (s *SnapshotService) save(ctx context.Context) {
	key, err := s.store.SaveEngine(ctx, s.engine)
	if err != nil {
		s.logger.Error().Err(err).Msg("snapshot save failed")
		return
	}
	s.logger.Debug().Str("key", key).Msg("snapshot saved")
}

// String returns the service name for logging.
func (s *SnapshotService) String() string {
	return s.name
}
