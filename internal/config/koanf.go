// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/rewardloop/internal/recommend"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/rewardloop/config.yaml",
	"/etc/rewardloop/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values. The engine
// defaults come from recommend.DefaultConfig so both layers agree.
func defaultConfig() *Config {
	rc := recommend.DefaultConfig()
	w := rc.Attribution.Weights
	return &Config{
		Bandit: BanditConfig{
			FeatureNames:   rc.Bandit.FeatureNames,
			Alpha:          rc.Bandit.Alpha,
			Mode:           string(rc.Bandit.Mode),
			PriorAlpha:     rc.Bandit.PriorAlpha,
			PriorBeta:      rc.Bandit.PriorBeta,
			DecayFactor:    rc.Bandit.DecayFactor,
			ColdStartPulls: rc.Bandit.ColdStartPulls,
		},
		Attribution: AttributionConfig{
			Weights: WeightsConfig{
				Impression: w[recommend.KindImpression],
				Click:      w[recommend.KindClick],
				AddToCart:  w[recommend.KindAddToCart],
				Purchase:   w[recommend.KindPurchase],
				Bid:        w[recommend.KindBid],
				Wishlist:   w[recommend.KindWishlist],
				Share:      w[recommend.KindShare],
				DwellTime:  w[recommend.KindDwellTime],
			},
			Window:                     rc.Attribution.Window,
			BatchSize:                  rc.Attribution.BatchSize,
			FlushInterval:              rc.Attribution.FlushInterval,
			TombstoneCapacity:          rc.Attribution.TombstoneCapacity,
			BreakerEnabled:             rc.Attribution.Breaker.Enabled,
			BreakerConsecutiveFailures: rc.Attribution.Breaker.ConsecutiveFailures,
			BreakerOpenTimeout:         rc.Attribution.Breaker.OpenTimeout,
		},
		Snapshot: SnapshotConfig{
			Enabled:    true,
			Path:       "/data/rewardloop/snapshots",
			Interval:   5 * time.Minute,
			Retain:     24,
			SyncWrites: false,
		},
		Decay: DecayConfig{
			Interval: time.Hour,
		},
		Server: ServerConfig{
			Addr:            ":9464",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Seed: rc.Seed,
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any mapped setting
//
// The merged result is validated before it is returned.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"bandit.feature_names",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars arrive as strings while the YAML file and defaults already carry slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	// Bandit
	"bandit_features":         "bandit.feature_names",
	"bandit_alpha":            "bandit.alpha",
	"bandit_mode":             "bandit.mode",
	"bandit_prior_alpha":      "bandit.prior_alpha",
	"bandit_prior_beta":       "bandit.prior_beta",
	"bandit_decay_factor":     "bandit.decay_factor",
	"bandit_cold_start_pulls": "bandit.cold_start_pulls",
	"bandit_seed":             "seed",

	// Reward attribution
	"reward_window":             "attribution.window",
	"reward_batch_size":         "attribution.batch_size",
	"reward_flush_interval":     "attribution.flush_interval",
	"reward_tombstone_capacity": "attribution.tombstone_capacity",
	"reward_weight_impression":  "attribution.weights.impression",
	"reward_weight_click":       "attribution.weights.click",
	"reward_weight_add_to_cart": "attribution.weights.add_to_cart",
	"reward_weight_purchase":    "attribution.weights.purchase",
	"reward_weight_bid":         "attribution.weights.bid",
	"reward_weight_wishlist":    "attribution.weights.wishlist",
	"reward_weight_share":       "attribution.weights.share",
	"reward_weight_dwell_time":  "attribution.weights.dwell_time",

	// Consumer circuit breaker
	"consumer_breaker_enabled":      "attribution.breaker_enabled",
	"consumer_breaker_failures":     "attribution.breaker_consecutive_failures",
	"consumer_breaker_open_timeout": "attribution.breaker_open_timeout",

	// Snapshots
	"snapshot_enabled":     "snapshot.enabled",
	"snapshot_path":        "snapshot.path",
	"snapshot_interval":    "snapshot.interval",
	"snapshot_retain":      "snapshot.retain",
	"snapshot_sync_writes": "snapshot.sync_writes",

	// Decay
	"decay_interval": "decay.interval",

	// Ops server
	"ops_addr":              "server.addr",
	"ops_read_timeout":      "server.read_timeout",
	"ops_write_timeout":     "server.write_timeout",
	"ops_shutdown_timeout":  "server.shutdown_timeout",
	"ops_rate_limit_reqs":   "server.rate_limit_reqs",
	"ops_rate_limit_window": "server.rate_limit_window",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - BANDIT_ALPHA -> bandit.alpha
//   - REWARD_WINDOW -> attribution.window
//   - BANDIT_FEATURES -> bandit.feature_names
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
