// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package config

import (
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/rewardloop/internal/recommend"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero alpha", func(c *Config) { c.Bandit.Alpha = 0 }, true},
		{"bad mode", func(c *Config) { c.Bandit.Mode = "eps" }, true},
		{"zero window", func(c *Config) { c.Attribution.Window = 0 }, true},
		{"snapshot without path", func(c *Config) { c.Snapshot.Path = "" }, true},
		{"snapshot disabled without path", func(c *Config) {
			c.Snapshot.Enabled = false
			c.Snapshot.Path = ""
		}, false},
		{"zero snapshot interval", func(c *Config) { c.Snapshot.Interval = 0 }, true},
		{"negative decay interval", func(c *Config) { c.Decay.Interval = -time.Second }, true},
		{"decay disabled", func(c *Config) { c.Decay.Interval = 0 }, false},
		{"no ops addr", func(c *Config) { c.Server.Addr = "" }, true},
		{"rate limit without window", func(c *Config) { c.Server.RateLimitWindow = 0 }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, recommend.ErrInvalidConfig) {
				t.Errorf("error %v should wrap ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfig_Recommend(t *testing.T) {
	cfg := defaultConfig()
	cfg.Attribution.Weights.Bid = 0.6
	cfg.Attribution.BreakerConsecutiveFailures = 7

	rc := cfg.Recommend()
	if rc.Attribution.Weights[recommend.KindBid] != 0.6 {
		t.Errorf("bid weight = %v, want 0.6", rc.Attribution.Weights[recommend.KindBid])
	}
	if rc.Attribution.Breaker.ConsecutiveFailures != 7 {
		t.Errorf("breaker failures = %d, want 7", rc.Attribution.Breaker.ConsecutiveFailures)
	}
	if rc.Bandit.Mode != recommend.ModeThompson {
		t.Errorf("mode = %q", rc.Bandit.Mode)
	}

	// The converted feature list must not alias the loaded one.
	rc.Bandit.FeatureNames[0] = "changed"
	if cfg.Bandit.FeatureNames[0] == "changed" {
		t.Error("Recommend() should copy feature names")
	}

	if got := cfg.SnapshotStore(); got.Path != cfg.Snapshot.Path || got.Retain != cfg.Snapshot.Retain {
		t.Errorf("SnapshotStore() = %+v", got)
	}
}
