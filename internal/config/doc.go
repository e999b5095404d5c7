// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

/*
Package config loads process configuration for the Rewardloop server.

Configuration is layered with koanf, lowest priority first:

 1. Built-in defaults (engine defaults from recommend.DefaultConfig)
 2. An optional YAML file: $CONFIG_PATH, ./config.yaml or /etc/rewardloop/config.yaml
 3. Environment variables

# Environment Variables

Bandit:
  - BANDIT_FEATURES: Comma-separated feature names (default: time_of_day,day_of_week,session_depth)
  - BANDIT_ALPHA: LinUCB exploration scale (default: 1.0)
  - BANDIT_MODE: ucb or thompson (default: thompson)
  - BANDIT_PRIOR_ALPHA, BANDIT_PRIOR_BETA: Beta prior (default: 1, 1)
  - BANDIT_DECAY_FACTOR: Decay toward the prior (default: 0.999)
  - BANDIT_COLD_START_PULLS: Pulls before the linear model is trusted (default: 5)
  - BANDIT_SEED: Sampler seed (default: 42)

Attribution:
  - REWARD_WINDOW: Attribution window (default: 30m)
  - REWARD_BATCH_SIZE: Buffered events per flush (default: 100)
  - REWARD_FLUSH_INTERVAL: Expiry sweep interval (default: 60s)
  - REWARD_TOMBSTONE_CAPACITY: Remembered swept impressions (default: 10000)
  - REWARD_WEIGHT_<KIND>: Weight for one event kind, e.g. REWARD_WEIGHT_PURCHASE
  - CONSUMER_BREAKER_ENABLED, CONSUMER_BREAKER_FAILURES, CONSUMER_BREAKER_OPEN_TIMEOUT

Persistence and maintenance:
  - SNAPSHOT_ENABLED, SNAPSHOT_PATH, SNAPSHOT_INTERVAL, SNAPSHOT_RETAIN, SNAPSHOT_SYNC_WRITES
  - DECAY_INTERVAL: Periodic decay interval, 0 disables (default: 1h)

Ops server and logging:
  - OPS_ADDR: Listen address for /metrics and /healthz (default: :9464)
  - OPS_READ_TIMEOUT, OPS_WRITE_TIMEOUT, OPS_SHUTDOWN_TIMEOUT
  - OPS_RATE_LIMIT_REQS, OPS_RATE_LIMIT_WINDOW: Per-IP limit, 0 disables (default: 120 per 1m)
  - LOG_LEVEL, LOG_FORMAT, LOG_CALLER

# Usage

	cfg, err := config.LoadWithKoanf()
	if err != nil {
	    log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	eng, err := engine.New(cfg.Recommend(), logger)
*/
package config
