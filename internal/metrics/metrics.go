// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Flush triggers reported by RecordRewardFlush.
const (
	FlushTriggerBatch  = "batch"
	FlushTriggerSweep  = "sweep"
	FlushTriggerManual = "manual"
)

// Attribution outcomes reported by RecordAttribution.
const (
	AttributionMatched   = "matched"
	AttributionUnmatched = "unmatched"
	AttributionExpired   = "expired"
	AttributionLate      = "late"
)

var (
	// Bandit Metrics
	BanditSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandit_selections_total",
			Help: "Total number of arm selections by pool path",
		},
		[]string{"path", "result"}, // path: "beta", "linear"; result: "ok", "error"
	)

	BanditSelectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bandit_selection_duration_seconds",
			Help:    "Duration of arm selection in seconds",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
		[]string{"path"},
	)

	BanditCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bandit_selection_candidates",
			Help:    "Number of candidate arms per selection",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 to 512
		},
	)

	BanditUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandit_updates_total",
			Help: "Total number of reward updates applied to arm statistics",
		},
		[]string{"path", "result"},
	)

	BanditArms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bandit_arms",
			Help: "Current number of registered arms",
		},
	)

	BanditDecayRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bandit_decay_runs_total",
			Help: "Total number of decay passes over the Beta pool",
		},
	)

	// Reward Attribution Metrics
	RewardEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_events_total",
			Help: "Total number of reward events tracked by kind",
		},
		[]string{"kind"},
	)

	RewardValue = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_value_total",
			Help: "Sum of computed reward values by kind",
		},
		[]string{"kind"},
	)

	RewardUnknownKinds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reward_unknown_kind_total",
			Help: "Total number of events whose kind had no configured weight",
		},
	)

	AttributionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_attribution_total",
			Help: "Outcome of matching events to pending recommendations",
		},
		[]string{"outcome"}, // "matched", "unmatched", "expired", "late"
	)

	PendingAttributions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reward_pending_attributions",
			Help: "Current number of open pending attributions",
		},
	)

	RewardBufferSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reward_buffer_size",
			Help: "Current number of buffered reward events awaiting flush",
		},
	)

	RewardFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_flushes_total",
			Help: "Total number of reward batches delivered to consumers",
		},
		[]string{"trigger"}, // "batch", "sweep", "manual"
	)

	RewardFlushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reward_flush_duration_seconds",
			Help:    "Time spent delivering a batch to all consumers",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"trigger"},
	)

	SweepExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reward_sweep_expired_total",
			Help: "Total number of pending attributions finalized by the expiry sweep",
		},
	)

	SweepErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reward_sweep_errors_total",
			Help: "Total number of expiry sweeps that failed or panicked",
		},
	)

	ConsumerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_consumer_failures_total",
			Help: "Total number of consumer invocations that failed",
		},
		[]string{"consumer", "reason"}, // reason: "error", "panic", "rejected"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Snapshot Metrics
	SnapshotSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandit_snapshot_saves_total",
			Help: "Total number of engine snapshot saves",
		},
		[]string{"result"},
	)

	SnapshotDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bandit_snapshot_duration_seconds",
			Help:    "Duration of engine snapshot export and save",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bandit_snapshot_bytes",
			Help: "Size of the most recent engine snapshot in bytes",
		},
	)

	// Ops HTTP Metrics
	OpsRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ops_http_requests_total",
			Help: "Total number of ops HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	OpsRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ops_http_request_duration_seconds",
			Help:    "Duration of ops HTTP requests",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"method", "route"},
	)

	OpsActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ops_http_active_requests",
			Help: "Number of ops HTTP requests in flight",
		},
	)
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordBanditSelection records an arm selection.
func RecordBanditSelection(path string, candidates int, duration time.Duration, err error) {
	BanditSelections.WithLabelValues(path, result(err)).Inc()
	BanditSelectionDuration.WithLabelValues(path).Observe(duration.Seconds())
	BanditCandidates.Observe(float64(candidates))
}

// RecordBanditUpdate records a reward update.
func RecordBanditUpdate(path string, err error) {
	BanditUpdates.WithLabelValues(path, result(err)).Inc()
}

// RecordRewardEvent records a tracked event and its computed reward.
func RecordRewardEvent(kind string, reward float64, known bool) {
	RewardEvents.WithLabelValues(kind).Inc()
	if reward > 0 {
		RewardValue.WithLabelValues(kind).Add(reward)
	}
	if !known {
		RewardUnknownKinds.Inc()
	}
}

// InitRewardKinds creates the per-kind reward series at zero so dashboards
// see every kind before its first event.
func InitRewardKinds(kinds ...string) {
	for _, kind := range kinds {
		RewardEvents.WithLabelValues(kind)
		RewardValue.WithLabelValues(kind)
	}
}

// RecordAttribution records the outcome of matching an event to a recommendation.
func RecordAttribution(outcome string) {
	AttributionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordRewardFlush records a batch delivered to consumers.
func RecordRewardFlush(trigger string, duration time.Duration) {
	RewardFlushes.WithLabelValues(trigger).Inc()
	RewardFlushDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// RecordSweep records an expiry sweep.
func RecordSweep(expired int, err error) {
	SweepExpired.Add(float64(expired))
	if err != nil {
		SweepErrors.Inc()
	}
}

// RecordConsumerFailure records a failed consumer invocation.
func RecordConsumerFailure(consumer, reason string) {
	ConsumerFailures.WithLabelValues(consumer, reason).Inc()
}

// UpdateAttributionGauges sets the pending and buffer gauges.
func UpdateAttributionGauges(pending, buffered int) {
	PendingAttributions.Set(float64(pending))
	RewardBufferSize.Set(float64(buffered))
}

// RecordSnapshot records a snapshot save.
func RecordSnapshot(duration time.Duration, size int, err error) {
	SnapshotSaves.WithLabelValues(result(err)).Inc()
	SnapshotDuration.Observe(duration.Seconds())
	if err == nil {
		SnapshotBytes.Set(float64(size))
	}
}

// TrackActiveOpsRequest increments or decrements the in-flight gauge.
func TrackActiveOpsRequest(active bool) {
	if active {
		OpsActiveRequests.Inc()
	} else {
		OpsActiveRequests.Dec()
	}
}

// RecordOpsRequest records a completed ops HTTP request.
func RecordOpsRequest(method, route, status string, duration time.Duration) {
	OpsRequests.WithLabelValues(method, route, status).Inc()
	OpsRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
