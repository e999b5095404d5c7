// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package attribution

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/rewardloop/internal/metrics"
	"github.com/tomtom215/rewardloop/internal/recommend"
)

// BreakerConsumer wraps a Consumer with circuit breaker protection.
// Once the wrapped consumer fails ConsecutiveFailures times in a row, batches
// are rejected without calling it until OpenTimeout has passed.
//
// The breaker uses real time (via sony/gobreaker) for its timeout. Tests should
// use short timeouts rather than try to control the clock.
type BreakerConsumer struct {
	name   string
	next   recommend.Consumer
	cb     *gobreaker.CircuitBreaker[struct{}]
	logger zerolog.Logger
}

// NewBreakerConsumer wraps next in a circuit breaker named name.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewBreakerConsumer(name string, next recommend.Consumer, cfg recommend.BreakerConfig, logger zerolog.Logger) *BreakerConsumer {
	logger = logger.With().Str("component", "consumer-breaker").Str("consumer", name).Logger()
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 1
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // a single probe batch in half-open state
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("consumer circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &BreakerConsumer{
		name:   name,
		next:   next,
		cb:     cb,
		logger: logger,
	}
}

// Consume forwards rewards to the wrapped consumer unless the circuit is open.
func (b *BreakerConsumer) Consume(ctx context.Context, rewards recommend.ArmRewards) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Consume(ctx, rewards)
	})
	return err
}

// Name returns the breaker name.
func (b *BreakerConsumer) Name() string {
	return b.name
}

// State returns the current breaker state.
func (b *BreakerConsumer) State() gobreaker.State {
	return b.cb.State()
}

// IsRejected reports whether err means a breaker refused the call.
func IsRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

var _ recommend.Consumer = (*BreakerConsumer)(nil)
