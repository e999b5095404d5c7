// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package recommend

import (
	"fmt"
	"math"
	"time"
)

// Mode selects how the contextual bandit turns its confidence bound into a score.
type Mode string

const (
	// ModeUCB scores an arm as expected reward plus the exploration bonus.
	ModeUCB Mode = "ucb"

	// ModeThompson scores an arm as expected reward plus Gaussian noise
	// whose standard deviation is the exploration bonus.
	ModeThompson Mode = "thompson"
)

// Standard context feature names.
const (
	FeatureTimeOfDay    = "time_of_day"
	FeatureDayOfWeek    = "day_of_week"
	FeatureSessionDepth = "session_depth"
)

// Config contains all configuration for the bandit engine.
type Config struct {
	// Bandit contains parameters for both arm pools.
	Bandit BanditConfig `json:"bandit"`

	// Attribution contains reward weighting and batching parameters.
	Attribution AttributionConfig `json:"attribution"`

	// Seed is the random seed for the default sampler.
	// If zero, a fixed default seed is used.
	Seed int64 `json:"seed"`
}

// BanditConfig contains parameters for the Beta and linear arm pools.
type BanditConfig struct {
	// FeatureNames is the ordered list of context features to encode.
	// time_of_day and day_of_week expand to two dimensions each.
	FeatureNames []string `json:"feature_names"`

	// Alpha scales the LinUCB exploration bonus. Must be positive.
	Alpha float64 `json:"alpha"`

	// Mode is "ucb" or "thompson".
	Mode Mode `json:"mode"`

	// PriorAlpha and PriorBeta seed every new Beta arm.
	PriorAlpha float64 `json:"prior_alpha"`
	PriorBeta  float64 `json:"prior_beta"`

	// DecayFactor pulls Beta parameters back toward the prior on ApplyDecay.
	// 1.0 disables decay. Typical: 0.99-0.999.
	DecayFactor float64 `json:"decay_factor"`

	// ColdStartPulls is the pull count below which the linear pool defers
	// to a Beta sample for an arm.
	ColdStartPulls int `json:"cold_start_pulls"`
}

// AttributionConfig contains parameters for the reward attribution tracker.
type AttributionConfig struct {
	// Weights maps each reward kind to its multiplier.
	// Kinds missing from the table get weight 0.
	Weights map[RewardKind]float64 `json:"weights"`

	// Window is how long an impression stays open for attribution.
	Window time.Duration `json:"window"`

	// BatchSize is the buffered event count that triggers a flush.
	BatchSize int `json:"batch_size"`

	// FlushInterval is how often the expiry sweep runs.
	FlushInterval time.Duration `json:"flush_interval"`

	// TombstoneCapacity bounds the set of swept recommendation ids kept
	// for late-event accounting.
	TombstoneCapacity int `json:"tombstone_capacity"`

	// Breaker guards each registered consumer.
	Breaker BreakerConfig `json:"breaker"`
}

// BreakerConfig configures the circuit breaker placed around consumers.
type BreakerConfig struct {
	// Enabled wraps consumers in a circuit breaker.
	Enabled bool `json:"enabled"`

	// ConsecutiveFailures opens the breaker after this many failures in a row.
	ConsecutiveFailures uint32 `json:"consecutive_failures"`

	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration `json:"open_timeout"`
}

// DefaultWeights returns the default reward weight table.
func DefaultWeights() map[RewardKind]float64 {
	return map[RewardKind]float64{
		KindImpression: 0.0,
		KindClick:      0.2,
		KindAddToCart:  0.5,
		KindPurchase:   1.0,
		KindBid:        0.8,
		KindWishlist:   0.3,
		KindShare:      0.4,
		KindDwellTime:  0.1,
	}
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		Bandit: BanditConfig{
			FeatureNames:   []string{FeatureTimeOfDay, FeatureDayOfWeek, FeatureSessionDepth},
			Alpha:          1.0,
			Mode:           ModeThompson,
			PriorAlpha:     1.0,
			PriorBeta:      1.0,
			DecayFactor:    0.999,
			ColdStartPulls: 5,
		},
		Attribution: AttributionConfig{
			Weights:           DefaultWeights(),
			Window:            30 * time.Minute,
			BatchSize:         100,
			FlushInterval:     60 * time.Second,
			TombstoneCapacity: 10000,
			Breaker: BreakerConfig{
				Enabled:             true,
				ConsecutiveFailures: 5,
				OpenTimeout:         30 * time.Second,
			},
		},
		Seed: 42,
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if err := c.Bandit.Validate(); err != nil {
		return err
	}
	return c.Attribution.Validate()
}

// Validate checks the bandit parameters.
func (b *BanditConfig) Validate() error {
	if !(b.Alpha > 0) || math.IsInf(b.Alpha, 0) {
		return fmt.Errorf("%w: bandit.alpha must be positive, got %f", ErrInvalidConfig, b.Alpha)
	}
	switch b.Mode {
	case ModeUCB, ModeThompson:
	default:
		return fmt.Errorf("%w: bandit.mode must be %q or %q, got %q", ErrInvalidConfig, ModeUCB, ModeThompson, b.Mode)
	}
	if !(b.PriorAlpha > 0) || !(b.PriorBeta > 0) {
		return fmt.Errorf("%w: bandit priors must be positive, got alpha=%f beta=%f", ErrInvalidConfig, b.PriorAlpha, b.PriorBeta)
	}
	if !(b.DecayFactor > 0) || b.DecayFactor > 1 {
		return fmt.Errorf("%w: bandit.decay_factor must be in (0, 1], got %f", ErrInvalidConfig, b.DecayFactor)
	}
	if b.ColdStartPulls < 0 {
		return fmt.Errorf("%w: bandit.cold_start_pulls must be non-negative, got %d", ErrInvalidConfig, b.ColdStartPulls)
	}
	seen := make(map[string]struct{}, len(b.FeatureNames))
	for _, name := range b.FeatureNames {
		if name == "" {
			return fmt.Errorf("%w: bandit.feature_names contains an empty name", ErrInvalidConfig)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: bandit.feature_names contains duplicate %q", ErrInvalidConfig, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Validate checks the attribution parameters.
func (a *AttributionConfig) Validate() error {
	if a.Window <= 0 {
		return fmt.Errorf("%w: attribution.window must be positive, got %v", ErrInvalidConfig, a.Window)
	}
	if a.BatchSize < 1 {
		return fmt.Errorf("%w: attribution.batch_size must be at least 1, got %d", ErrInvalidConfig, a.BatchSize)
	}
	if a.FlushInterval <= 0 {
		return fmt.Errorf("%w: attribution.flush_interval must be positive, got %v", ErrInvalidConfig, a.FlushInterval)
	}
	if a.TombstoneCapacity < 1 {
		return fmt.Errorf("%w: attribution.tombstone_capacity must be at least 1, got %d", ErrInvalidConfig, a.TombstoneCapacity)
	}
	for kind, w := range a.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: attribution weight for %q must be finite", ErrInvalidConfig, kind)
		}
	}
	if a.Breaker.Enabled && a.Breaker.ConsecutiveFailures == 0 {
		return fmt.Errorf("%w: attribution.breaker.consecutive_failures must be positive when enabled", ErrInvalidConfig)
	}
	return nil
}
