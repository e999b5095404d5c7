// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/rewardloop/internal/recommend"
	"github.com/tomtom215/rewardloop/internal/snapshot"
)

// Config holds all process configuration.
type Config struct {
	Bandit      BanditConfig      `koanf:"bandit"`
	Attribution AttributionConfig `koanf:"attribution"`
	Snapshot    SnapshotConfig    `koanf:"snapshot"`
	Decay       DecayConfig       `koanf:"decay"`
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`

	// Seed seeds the default sampler.
	Seed int64 `koanf:"seed"`
}

// BanditConfig holds the selection parameters.
type BanditConfig struct {
	FeatureNames   []string `koanf:"feature_names"`
	Alpha          float64  `koanf:"alpha"`
	Mode           string   `koanf:"mode"`
	PriorAlpha     float64  `koanf:"prior_alpha"`
	PriorBeta      float64  `koanf:"prior_beta"`
	DecayFactor    float64  `koanf:"decay_factor"`
	ColdStartPulls int      `koanf:"cold_start_pulls"`
}

// WeightsConfig is the reward weight table, one field per event kind.
type WeightsConfig struct {
	Impression float64 `koanf:"impression"`
	Click      float64 `koanf:"click"`
	AddToCart  float64 `koanf:"add_to_cart"`
	Purchase   float64 `koanf:"purchase"`
	Bid        float64 `koanf:"bid"`
	Wishlist   float64 `koanf:"wishlist"`
	Share      float64 `koanf:"share"`
	DwellTime  float64 `koanf:"dwell_time"`
}

// AttributionConfig holds reward attribution parameters.
type AttributionConfig struct {
	Weights           WeightsConfig `koanf:"weights"`
	Window            time.Duration `koanf:"window"`
	BatchSize         int           `koanf:"batch_size"`
	FlushInterval     time.Duration `koanf:"flush_interval"`
	TombstoneCapacity int           `koanf:"tombstone_capacity"`

	BreakerEnabled             bool          `koanf:"breaker_enabled"`
	BreakerConsecutiveFailures uint32        `koanf:"breaker_consecutive_failures"`
	BreakerOpenTimeout         time.Duration `koanf:"breaker_open_timeout"`
}

// SnapshotConfig holds bandit state persistence parameters.
type SnapshotConfig struct {
	// Enabled turns on periodic snapshots and restore on startup.
	Enabled bool `koanf:"enabled"`

	// Path is the BadgerDB directory.
	Path string `koanf:"path"`

	// Interval between periodic saves.
	Interval time.Duration `koanf:"interval"`

	// Retain is how many snapshots are kept. 0 keeps all.
	Retain int `koanf:"retain"`

	SyncWrites bool `koanf:"sync_writes"`
}

// DecayConfig controls the periodic Beta decay. A zero interval disables it.
type DecayConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// ServerConfig holds the ops HTTP server settings (/metrics, /healthz).
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// RateLimitReqs is the per-IP request budget per RateLimitWindow. 0 disables limiting.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Recommend converts the loaded configuration into the engine configuration.
func (c *Config) Recommend() *recommend.Config {
	w := c.Attribution.Weights
	return &recommend.Config{
		Bandit: recommend.BanditConfig{
			FeatureNames:   append([]string(nil), c.Bandit.FeatureNames...),
			Alpha:          c.Bandit.Alpha,
			Mode:           recommend.Mode(c.Bandit.Mode),
			PriorAlpha:     c.Bandit.PriorAlpha,
			PriorBeta:      c.Bandit.PriorBeta,
			DecayFactor:    c.Bandit.DecayFactor,
			ColdStartPulls: c.Bandit.ColdStartPulls,
		},
		Attribution: recommend.AttributionConfig{
			Weights: map[recommend.RewardKind]float64{
				recommend.KindImpression: w.Impression,
				recommend.KindClick:      w.Click,
				recommend.KindAddToCart:  w.AddToCart,
				recommend.KindPurchase:   w.Purchase,
				recommend.KindBid:        w.Bid,
				recommend.KindWishlist:   w.Wishlist,
				recommend.KindShare:      w.Share,
				recommend.KindDwellTime:  w.DwellTime,
			},
			Window:            c.Attribution.Window,
			BatchSize:         c.Attribution.BatchSize,
			FlushInterval:     c.Attribution.FlushInterval,
			TombstoneCapacity: c.Attribution.TombstoneCapacity,
			Breaker: recommend.BreakerConfig{
				Enabled:             c.Attribution.BreakerEnabled,
				ConsecutiveFailures: c.Attribution.BreakerConsecutiveFailures,
				OpenTimeout:         c.Attribution.BreakerOpenTimeout,
			},
		},
		Seed: c.Seed,
	}
}

// SnapshotStore converts the snapshot section into store configuration.
func (c *Config) SnapshotStore() snapshot.Config {
	return snapshot.Config{
		Path:       c.Snapshot.Path,
		Retain:     c.Snapshot.Retain,
		SyncWrites: c.Snapshot.SyncWrites,
	}
}

// Validate checks the configuration. Engine parameters are validated by the
// engine's own rules so the two never disagree.
func (c *Config) Validate() error {
	if err := c.Recommend().Validate(); err != nil {
		return err
	}
	if c.Snapshot.Enabled {
		if c.Snapshot.Path == "" {
			return fmt.Errorf("%w: snapshot.path is required when snapshots are enabled", recommend.ErrInvalidConfig)
		}
		if c.Snapshot.Interval <= 0 {
			return fmt.Errorf("%w: snapshot.interval must be positive, got %v", recommend.ErrInvalidConfig, c.Snapshot.Interval)
		}
		if c.Snapshot.Retain < 0 {
			return fmt.Errorf("%w: snapshot.retain must be non-negative, got %d", recommend.ErrInvalidConfig, c.Snapshot.Retain)
		}
	}
	if c.Decay.Interval < 0 {
		return fmt.Errorf("%w: decay.interval must be non-negative, got %v", recommend.ErrInvalidConfig, c.Decay.Interval)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required", recommend.ErrInvalidConfig)
	}
	if c.Server.RateLimitReqs < 0 {
		return fmt.Errorf("%w: server.rate_limit_reqs must be non-negative, got %d", recommend.ErrInvalidConfig, c.Server.RateLimitReqs)
	}
	if c.Server.RateLimitReqs > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("%w: server.rate_limit_window must be positive when rate limiting", recommend.ErrInvalidConfig)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logging.format must be json or console, got %q", recommend.ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}
