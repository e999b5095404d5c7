// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

/*
Package metrics provides Prometheus metrics collection and export for observability.

All collectors are registered with the default registry through promauto and
exposed by the ops HTTP server.

# Overview

The package provides metrics for:
  - Arm selection latency, path and candidate counts
  - Reward updates and decay passes
  - Reward events by kind and attribution outcomes
  - Buffer and pending gauges for the attribution tracker
  - Consumer failures and circuit breaker state
  - Snapshot save duration and size

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:9464/metrics

# Usage

Prefer the Record helpers over touching collectors directly:

	metrics.RecordBanditSelection("linear", len(candidates), time.Since(start), err)
	metrics.RecordRewardFlush(metrics.FlushTriggerBatch, time.Since(start))
*/
package metrics
