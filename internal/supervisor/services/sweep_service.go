// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/rewardloop/internal/metrics"
	"github.com/tomtom215/rewardloop/internal/recommend/attribution"
)

// Sweeper finalizes expired attributions and drains buffered rewards.
// Satisfied by *engine.Engine and *attribution.Tracker.
type Sweeper interface {
	FlushExpired(ctx context.Context) []attribution.PendingAttribution
	Flush(ctx context.Context) int
}

// SweepService runs the attribution expiry sweep on a fixed interval.
//
// A failed or panicking sweep is logged and retried on the next tick. On
// shutdown the service performs one final sweep and drains the event buffer
// so no attributed reward is left undelivered.
type SweepService struct {
	sweeper  Sweeper
	interval time.Duration
	logger   zerolog.Logger
	name     string
}

// NewSweepService creates a sweep service. A non-positive interval defaults to 60s.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewSweepService(sweeper Sweeper, interval time.Duration, logger zerolog.Logger) *SweepService {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &SweepService{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger.With().Str("service", "sweep").Logger(),
		name:     "attribution-sweep",
	}
}

// Serve implements suture.Service.
func (s *SweepService) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("sweep service starting")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown(context.WithoutCancel(ctx))
			return ctx.Err()

		case <-ticker.C:
			n, err := s.sweep(ctx)
			if err != nil {
				s.logger.Error().Err(err).Msg("expiry sweep failed, retrying next tick")
				continue
			}
			if n > 0 {
				s.logger.Debug().Int("expired", n).Msg("expiry sweep complete")
			}
		}
	}
}

// shutdown runs the final sweep and buffer drain.
func (s *SweepService) shutdown(ctx context.Context) {
	n, err := s.sweep(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("final expiry sweep failed")
	}
	flushed := s.flush(ctx)
	s.logger.Info().
		Int("expired", n).
		Int("flushed", flushed).
		Msg("sweep service stopped")
}

// sweep runs one FlushExpired, converting a panic into an error.
func (s *SweepService) sweep(ctx context.Context) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panic: %v", r)
			metrics.RecordSweep(0, err)
		}
	}()
	return len(s.sweeper.FlushExpired(ctx)), nil
}

func (s *SweepService) flush(ctx context.Context) (n int) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("final buffer flush panicked")
		}
	}()
	return s.sweeper.Flush(ctx)
}

// String returns the service name for logging.
func (s *SweepService) String() string {
	return s.name
}
