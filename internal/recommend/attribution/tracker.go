// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package attribution

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/rewardloop/internal/metrics"
	"github.com/tomtom215/rewardloop/internal/recommend"
	"github.com/tomtom215/rewardloop/internal/validation"
)

// PendingAttribution is an impression still open for reward attribution.
type PendingAttribution struct {
	RecommendationID  string                  `json:"recommendation_id"`
	UserID            string                  `json:"user_id"`
	ArmID             string                  `json:"arm_id"`
	Context           *recommend.Context      `json:"context,omitempty"`
	ShownAt           time.Time               `json:"shown_at"`
	ExpiresAt         time.Time               `json:"expires_at"`
	AccumulatedReward float64                 `json:"accumulated_reward"`
	Events            []recommend.RewardEvent `json:"events,omitempty"`
}

// bufferedEvent is a tracked event with its computed reward.
type bufferedEvent struct {
	event  recommend.RewardEvent
	reward float64
}

type namedConsumer struct {
	name     string
	consumer recommend.Consumer
}

// impression is the validated input of TrackImpression.
type impression struct {
	RecommendationID string `validate:"required"`
	UserID           string `validate:"required"`
	ArmID            string `validate:"required"`
}

// Stats is a point-in-time view of tracker counters.
type Stats struct {
	TotalEvents      int64                          `json:"total_events"`
	TotalReward      float64                        `json:"total_reward"`
	EventsByKind     map[recommend.RewardKind]int64 `json:"events_by_kind"`
	PendingCount     int                            `json:"pending_count"`
	BufferSize       int                            `json:"buffer_size"`
	LateEvents       int64                          `json:"late_events"`
	Flushes          int64                          `json:"flushes"`
	ConsumerFailures int64                          `json:"consumer_failures"`
}

// ArmPerformance summarises the buffered events of a single arm.
type ArmPerformance struct {
	ArmID        string                         `json:"arm_id"`
	TotalEvents  int                            `json:"total_events"`
	EventsByKind map[recommend.RewardKind]int64 `json:"events_by_kind"`
	TotalReward  float64                        `json:"total_reward"`
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now. Tests use it to simulate expiry.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// Tracker turns interaction events into weighted rewards, attributes them to
// open impressions, and delivers batches to registered consumers.
//
// The pending map and the event buffer have separate locks. Consumers are
// always invoked with no lock held, in the goroutine that triggered delivery.
type Tracker struct {
	weights   Weights
	window    time.Duration
	batchSize int
	logger    zerolog.Logger
	now       func() time.Time

	// mu guards pending, tombstones and lateEvents.
	mu         sync.Mutex
	pending    map[string]*PendingAttribution
	tombstones *lru.Cache[string, struct{}]
	lateEvents int64

	// bufMu guards buffer and the event counters.
	bufMu        sync.Mutex
	buffer       []bufferedEvent
	totalEvents  int64
	totalReward  float64
	eventsByKind map[recommend.RewardKind]int64
	flushes      int64

	consumersMu sync.RWMutex
	consumers   []namedConsumer

	consumerFailures atomic.Int64

	lateLog rate.Sometimes
}

// NewTracker creates a tracker from attribution configuration.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewTracker(cfg recommend.AttributionConfig, logger zerolog.Logger, opts ...Option) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tombstones, err := lru.New[string, struct{}](cfg.TombstoneCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create tombstone cache: %w", err)
	}

	t := &Tracker{
		weights:      NewWeights(cfg.Weights),
		window:       cfg.Window,
		batchSize:    cfg.BatchSize,
		logger:       logger.With().Str("component", "attribution").Logger(),
		now:          time.Now,
		pending:      make(map[string]*PendingAttribution),
		tombstones:   tombstones,
		buffer:       make([]bufferedEvent, 0, cfg.BatchSize),
		eventsByKind: make(map[recommend.RewardKind]int64),
		lateLog:      rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}

	kinds := make([]string, 0, len(recommend.AllKinds)+len(t.weights))
	for _, kind := range recommend.AllKinds {
		kinds = append(kinds, string(kind))
	}
	for kind := range t.weights {
		kinds = append(kinds, string(kind))
	}
	metrics.InitRewardKinds(kinds...)
	return t, nil
}

// RegisterConsumer adds a consumer that receives every delivered batch.
// The name labels logs and metrics.
func (t *Tracker) RegisterConsumer(name string, c recommend.Consumer) {
	t.consumersMu.Lock()
	t.consumers = append(t.consumers, namedConsumer{name: name, consumer: c})
	t.consumersMu.Unlock()
}

// TrackImpression opens a pending attribution for an arm shown under a
// recommendation and buffers a zero-reward impression event.
func (t *Tracker) TrackImpression(ctx context.Context, recommendationID, userID, armID string, c *recommend.Context) error {
	in := impression{RecommendationID: recommendationID, UserID: userID, ArmID: armID}
	if verr := validation.ValidateStruct(&in); verr != nil {
		return fmt.Errorf("%w: %v", recommend.ErrInvalidEvent, verr)
	}

	now := t.now()
	record := &PendingAttribution{
		RecommendationID: recommendationID,
		UserID:           userID,
		ArmID:            armID,
		Context:          c.Clone(),
		ShownAt:          now,
		ExpiresAt:        now.Add(t.window),
	}

	t.mu.Lock()
	prev, replaced := t.pending[recommendationID]
	t.pending[recommendationID] = record
	t.tombstones.Remove(recommendationID)
	t.mu.Unlock()

	if replaced {
		t.logger.Warn().
			Str("recommendation_id", recommendationID).
			Str("arm_id", armID).
			Str("replaced_arm_id", prev.ArmID).
			Msg("impression replaced an open pending attribution")
	}

	event := recommend.RewardEvent{
		UserID:           userID,
		ArmID:            armID,
		Kind:             recommend.KindImpression,
		Value:            1.0,
		Context:          c.Clone(),
		Timestamp:        now,
		RecommendationID: recommendationID,
	}
	metrics.RecordRewardEvent(string(recommend.KindImpression), 0, true)
	t.addEvent(ctx, event, 0)
	return nil
}

// TrackEvent computes the reward for an event, buffers it, and attributes it
// to the matching pending impression when one is still open.
//
// The computed reward is returned whether or not the event attributes, so
// callers may apply an immediate update of their own.
func (t *Tracker) TrackEvent(ctx context.Context, event recommend.RewardEvent) (float64, error) {
	if verr := validation.ValidateStruct(&event); verr != nil {
		return 0, fmt.Errorf("%w: %v", recommend.ErrInvalidEvent, verr)
	}

	now := t.now()
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	event.Context = event.Context.Clone()

	reward, known := t.weights.Reward(event.Kind, event.Value)
	if !known {
		t.logger.Warn().
			Str("kind", string(event.Kind)).
			Str("arm_id", event.ArmID).
			Msg("unknown reward kind, using weight 0")
	}
	metrics.RecordRewardEvent(string(event.Kind), reward, known)

	if event.RecommendationID != "" {
		metrics.RecordAttribution(t.attribute(event, reward, now))
	}

	t.addEvent(ctx, event, reward)
	return reward, nil
}

// attribute credits reward to the open pending record for the event's
// recommendation id and returns the attribution outcome. The reward goes to
// the record's arm even when the event names another one.
func (t *Tracker) attribute(event recommend.RewardEvent, reward float64, now time.Time) string {
	t.mu.Lock()
	record, ok := t.pending[event.RecommendationID]
	switch {
	case ok && now.Before(record.ExpiresAt):
		record.AccumulatedReward += reward
		record.Events = append(record.Events, event)
		t.mu.Unlock()
		return metrics.AttributionMatched
	case ok:
		t.mu.Unlock()
		return metrics.AttributionExpired
	case t.tombstones.Contains(event.RecommendationID):
		t.lateEvents++
		t.mu.Unlock()
		t.lateLog.Do(func() {
			t.logger.Debug().
				Str("recommendation_id", event.RecommendationID).
				Str("arm_id", event.ArmID).
				Msg("event arrived after its attribution was finalized")
		})
		return metrics.AttributionLate
	default:
		t.mu.Unlock()
		return metrics.AttributionUnmatched
	}
}

// addEvent appends to the buffer and flushes inline once it reaches the batch size.
func (t *Tracker) addEvent(ctx context.Context, event recommend.RewardEvent, reward float64) {
	var batch []bufferedEvent

	t.bufMu.Lock()
	t.buffer = append(t.buffer, bufferedEvent{event: event, reward: reward})
	t.totalEvents++
	t.eventsByKind[event.Kind]++
	if len(t.buffer) >= t.batchSize {
		batch = t.takeBufferLocked()
	}
	buffered := len(t.buffer)
	t.bufMu.Unlock()

	metrics.UpdateAttributionGauges(t.PendingCount(), buffered)

	if batch != nil {
		t.deliverBatch(ctx, batch, metrics.FlushTriggerBatch)
	}
}

// takeBufferLocked swaps the buffer out and accounts its rewards. bufMu must be held.
func (t *Tracker) takeBufferLocked() []bufferedEvent {
	if len(t.buffer) == 0 {
		return nil
	}
	batch := t.buffer
	t.buffer = make([]bufferedEvent, 0, t.batchSize)
	for i := range batch {
		t.totalReward += batch[i].reward
	}
	t.flushes++
	return batch
}

// Flush delivers all buffered events immediately and returns how many were flushed.
func (t *Tracker) Flush(ctx context.Context) int {
	t.bufMu.Lock()
	batch := t.takeBufferLocked()
	t.bufMu.Unlock()

	if batch == nil {
		return 0
	}
	metrics.UpdateAttributionGauges(t.PendingCount(), 0)
	t.deliverBatch(ctx, batch, metrics.FlushTriggerManual)
	return len(batch)
}

func (t *Tracker) deliverBatch(ctx context.Context, batch []bufferedEvent, trigger string) {
	rewards := make(recommend.ArmRewards)
	for i := range batch {
		armID := batch[i].event.ArmID
		rewards[armID] = append(rewards[armID], batch[i].reward)
	}

	start := time.Now()
	t.deliver(ctx, rewards)
	metrics.RecordRewardFlush(trigger, time.Since(start))

	t.logger.Debug().
		Int("events", len(batch)).
		Int("arms", len(rewards)).
		Str("trigger", trigger).
		Msg("reward batch delivered")
}

// FlushExpired finalizes every pending attribution whose window has closed.
// Each record is removed exactly once and delivered to consumers as
// {arm: [accumulated reward]}. Later events for a finalized record never
// attribute. The finalized records are returned in ShownAt order.
func (t *Tracker) FlushExpired(ctx context.Context) []PendingAttribution {
	now := t.now()

	t.mu.Lock()
	var expired []PendingAttribution
	for id, record := range t.pending {
		if record.ExpiresAt.After(now) {
			continue
		}
		delete(t.pending, id)
		t.tombstones.Add(id, struct{}{})
		expired = append(expired, *record)
	}
	pending := len(t.pending)
	t.mu.Unlock()

	if len(expired) == 0 {
		return nil
	}

	sort.Slice(expired, func(i, j int) bool {
		if !expired[i].ShownAt.Equal(expired[j].ShownAt) {
			return expired[i].ShownAt.Before(expired[j].ShownAt)
		}
		return expired[i].RecommendationID < expired[j].RecommendationID
	})

	start := time.Now()
	for i := range expired {
		t.deliver(ctx, recommend.ArmRewards{expired[i].ArmID: {expired[i].AccumulatedReward}})
	}
	metrics.RecordRewardFlush(metrics.FlushTriggerSweep, time.Since(start))
	metrics.UpdateAttributionGauges(pending, t.BufferSize())
	metrics.RecordSweep(len(expired), nil)

	t.logger.Info().Int("expired", len(expired)).Int("pending", pending).Msg("finalized expired attributions")
	return expired
}

// deliver hands rewards to every consumer. Each consumer gets its own copy,
// and a failing or panicking consumer never affects the others.
func (t *Tracker) deliver(ctx context.Context, rewards recommend.ArmRewards) {
	t.consumersMu.RLock()
	consumers := make([]namedConsumer, len(t.consumers))
	copy(consumers, t.consumers)
	t.consumersMu.RUnlock()

	for _, nc := range consumers {
		t.consume(ctx, nc, rewards.Clone())
	}
}

func (t *Tracker) consume(ctx context.Context, nc namedConsumer, rewards recommend.ArmRewards) {
	defer func() {
		if r := recover(); r != nil {
			t.consumerFailures.Add(1)
			metrics.RecordConsumerFailure(nc.name, "panic")
			t.logger.Error().Str("consumer", nc.name).Interface("panic", r).Msg("reward consumer panicked")
		}
	}()

	if err := nc.consumer.Consume(ctx, rewards); err != nil {
		t.consumerFailures.Add(1)
		reason := "error"
		if IsRejected(err) {
			reason = "rejected"
		}
		metrics.RecordConsumerFailure(nc.name, reason)
		t.logger.Error().Err(err).Str("consumer", nc.name).Str("reason", reason).Msg("reward consumer failed")
	}
}

// PendingCount returns the number of open pending attributions.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// BufferSize returns the number of buffered events.
func (t *Tracker) BufferSize() int {
	t.bufMu.Lock()
	defer t.bufMu.Unlock()
	return len(t.buffer)
}

// Pending returns a copy of the open pending attribution for a recommendation.
func (t *Tracker) Pending(recommendationID string) (PendingAttribution, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	record, ok := t.pending[recommendationID]
	if !ok {
		return PendingAttribution{}, false
	}
	out := *record
	out.Events = append([]recommend.RewardEvent(nil), record.Events...)
	return out, true
}

// Stats returns current tracker counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	pending := len(t.pending)
	late := t.lateEvents
	t.mu.Unlock()

	t.bufMu.Lock()
	defer t.bufMu.Unlock()

	byKind := make(map[recommend.RewardKind]int64, len(t.eventsByKind))
	for kind, n := range t.eventsByKind {
		byKind[kind] = n
	}
	return Stats{
		TotalEvents:      t.totalEvents,
		TotalReward:      t.totalReward,
		EventsByKind:     byKind,
		PendingCount:     pending,
		BufferSize:       len(t.buffer),
		LateEvents:       late,
		Flushes:          t.flushes,
		ConsumerFailures: t.consumerFailures.Load(),
	}
}

// ArmPerformance summarises the events still buffered for armID.
func (t *Tracker) ArmPerformance(armID string) ArmPerformance {
	perf := ArmPerformance{
		ArmID:        armID,
		EventsByKind: make(map[recommend.RewardKind]int64),
	}

	t.bufMu.Lock()
	defer t.bufMu.Unlock()
	for i := range t.buffer {
		if t.buffer[i].event.ArmID != armID {
			continue
		}
		perf.TotalEvents++
		perf.EventsByKind[t.buffer[i].event.Kind]++
		perf.TotalReward += t.buffer[i].reward
	}
	return perf
}
