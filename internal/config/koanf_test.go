// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/rewardloop/internal/recommend"
)

// isolate runs the test from an empty directory with no config file selected.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(ConfigPathEnvVar, "")
	return dir
}

// TestDefaultConfig verifies that defaultConfig() returns proper defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Bandit.Alpha != 1.0 {
		t.Errorf("Bandit.Alpha = %v, want 1.0", cfg.Bandit.Alpha)
	}
	if cfg.Bandit.Mode != "thompson" {
		t.Errorf("Bandit.Mode = %q, want thompson", cfg.Bandit.Mode)
	}
	if len(cfg.Bandit.FeatureNames) != 3 {
		t.Errorf("Bandit.FeatureNames = %v, want 3 names", cfg.Bandit.FeatureNames)
	}
	if cfg.Attribution.Window != 30*time.Minute {
		t.Errorf("Attribution.Window = %v, want 30m", cfg.Attribution.Window)
	}
	if cfg.Attribution.Weights.Purchase != 1.0 {
		t.Errorf("Attribution.Weights.Purchase = %v, want 1.0", cfg.Attribution.Weights.Purchase)
	}
	if cfg.Server.Addr != ":9464" {
		t.Errorf("Server.Addr = %q, want :9464", cfg.Server.Addr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"BANDIT_ALPHA", "bandit.alpha"},
		{"BANDIT_FEATURES", "bandit.feature_names"},
		{"BANDIT_SEED", "seed"},
		{"REWARD_WINDOW", "attribution.window"},
		{"REWARD_WEIGHT_PURCHASE", "attribution.weights.purchase"},
		{"CONSUMER_BREAKER_FAILURES", "attribution.breaker_consecutive_failures"},
		{"SNAPSHOT_PATH", "snapshot.path"},
		{"OPS_ADDR", "server.addr"},
		{"LOG_LEVEL", "logging.level"},

		// Unknown (should return empty)
		{"RANDOM_VAR", ""},
		{"PATH", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := envTransformFunc(tt.input); got != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLoadWithKoanf_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Attribution.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.Attribution.BatchSize)
	}
	if cfg.Snapshot.Interval != 5*time.Minute {
		t.Errorf("Snapshot.Interval = %v, want 5m", cfg.Snapshot.Interval)
	}
	if !cfg.Attribution.BreakerEnabled {
		t.Error("breaker should be enabled by default")
	}
}

func TestLoadWithKoanf_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("BANDIT_ALPHA", "0.5")
	t.Setenv("BANDIT_MODE", "ucb")
	t.Setenv("BANDIT_FEATURES", "session_depth, device ,")
	t.Setenv("REWARD_WINDOW", "10m")
	t.Setenv("REWARD_WEIGHT_CLICK", "0.25")
	t.Setenv("SNAPSHOT_RETAIN", "3")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Bandit.Alpha != 0.5 {
		t.Errorf("Alpha = %v, want 0.5", cfg.Bandit.Alpha)
	}
	if cfg.Bandit.Mode != "ucb" {
		t.Errorf("Mode = %q, want ucb", cfg.Bandit.Mode)
	}
	if got := cfg.Bandit.FeatureNames; len(got) != 2 || got[0] != "session_depth" || got[1] != "device" {
		t.Errorf("FeatureNames = %v, want [session_depth device]", got)
	}
	if cfg.Attribution.Window != 10*time.Minute {
		t.Errorf("Window = %v, want 10m", cfg.Attribution.Window)
	}
	if cfg.Attribution.Weights.Click != 0.25 {
		t.Errorf("Weights.Click = %v, want 0.25", cfg.Attribution.Weights.Click)
	}
	// Untouched weights keep their defaults.
	if cfg.Attribution.Weights.Purchase != 1.0 {
		t.Errorf("Weights.Purchase = %v, want 1.0", cfg.Attribution.Weights.Purchase)
	}
	if cfg.Snapshot.Retain != 3 {
		t.Errorf("Snapshot.Retain = %d, want 3", cfg.Snapshot.Retain)
	}
}

func TestLoadWithKoanf_FileThenEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "rewardloop.yaml")
	content := `
bandit:
  alpha: 2.5
  feature_names: [time_of_day]
attribution:
  batch_size: 10
  weights:
    share: 0.9
server:
  addr: "127.0.0.1:9000"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("REWARD_BATCH_SIZE", "20")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Bandit.Alpha != 2.5 {
		t.Errorf("Alpha = %v, want 2.5 from file", cfg.Bandit.Alpha)
	}
	if len(cfg.Bandit.FeatureNames) != 1 || cfg.Bandit.FeatureNames[0] != "time_of_day" {
		t.Errorf("FeatureNames = %v, want [time_of_day]", cfg.Bandit.FeatureNames)
	}
	if cfg.Attribution.BatchSize != 20 {
		t.Errorf("BatchSize = %d, want env value 20", cfg.Attribution.BatchSize)
	}
	if cfg.Attribution.Weights.Share != 0.9 {
		t.Errorf("Weights.Share = %v, want 0.9", cfg.Attribution.Weights.Share)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
}

func TestLoadWithKoanf_Invalid(t *testing.T) {
	isolate(t)
	t.Setenv("BANDIT_MODE", "greedy")

	_, err := LoadWithKoanf()
	if !errors.Is(err, recommend.ErrInvalidConfig) {
		t.Fatalf("LoadWithKoanf() error = %v, want ErrInvalidConfig", err)
	}
}

func TestFindConfigFile(t *testing.T) {
	dir := isolate(t)

	if got := findConfigFile(); got != "" {
		t.Errorf("findConfigFile() = %q, want empty", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := findConfigFile(); got != "config.yaml" {
		t.Errorf("findConfigFile() = %q, want config.yaml", got)
	}

	t.Setenv(ConfigPathEnvVar, filepath.Join(dir, "missing.yaml"))
	if got := findConfigFile(); got != "config.yaml" {
		t.Errorf("missing CONFIG_PATH should fall back, got %q", got)
	}
}
