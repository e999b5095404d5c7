// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Decayer pulls Beta evidence back toward the prior.
type Decayer interface {
	ApplyDecay()
}

// DecayService applies Beta decay on a fixed interval so old evidence loses
// weight against recent rewards.
type DecayService struct {
	decayer  Decayer
	interval time.Duration
	logger   zerolog.Logger
	name     string
}

// NewDecayService creates a decay service. A non-positive interval defaults to 1h.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewDecayService(decayer Decayer, interval time.Duration, logger zerolog.Logger) *DecayService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &DecayService{
		decayer:  decayer,
		interval: interval,
		logger:   logger.With().Str("service", "decay").Logger(),
		name:     "bandit-decay",
	}
}

// Serve implements suture.Service.
func (s *DecayService) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("decay service starting")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("decay service shutting down")
			return ctx.Err()

		case <-ticker.C:
			s.decayer.ApplyDecay()
			s.logger.Debug().Msg("beta decay applied")
		}
	}
}

// String returns the service name for logging.
func (s *DecayService) String() string {
	return s.name
}
