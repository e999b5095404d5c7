// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/rewardloop/internal/recommend"
	"github.com/tomtom215/rewardloop/internal/recommend/attribution"
	"github.com/tomtom215/rewardloop/internal/recommend/bandit"
	"github.com/tomtom215/rewardloop/internal/validation"
)

// SnapshotVersion is the current snapshot format version.
const SnapshotVersion = 1

// banditConsumerName labels the selector's attribution consumer.
const banditConsumerName = "bandit"

// Request asks the engine to rank candidate arms for a user.
type Request struct {
	UserID     string             `json:"user_id" validate:"required"`
	Candidates []string           `json:"candidates" validate:"dive,required"`
	K          int                `json:"k" validate:"gte=0"`
	Context    *recommend.Context `json:"context,omitempty"`
}

// RankedArm is one entry of a recommendation. RecommendationID is the id
// events for this arm must carry to be attributed.
type RankedArm struct {
	RecommendationID string  `json:"recommendation_id"`
	ArmID            string  `json:"arm_id"`
	Score            float64 `json:"score"`
	Rank             int     `json:"rank"`
}

// Response is the result of Recommend. RecommendationID identifies the slate
// as a whole; attribution uses the per-arm ids.
type Response struct {
	RecommendationID string      `json:"recommendation_id"`
	UserID           string      `json:"user_id"`
	Arms             []RankedArm `json:"arms"`
	Timestamp        time.Time   `json:"timestamp"`
}

// Snapshot is the portable engine state. It holds only JSON-compatible values.
type Snapshot struct {
	Version    int                    `json:"version"`
	CapturedAt time.Time              `json:"captured_at"`
	Bandit     bandit.LinearPoolState `json:"bandit"`
}

// ArmStats combines everything the engine knows about one arm.
type ArmStats struct {
	ArmID       string                     `json:"arm_id"`
	Thompson    *bandit.BetaArmStats       `json:"thompson_sampling,omitempty"`
	Contextual  *bandit.LinearArmStats     `json:"contextual,omitempty"`
	Performance attribution.ArmPerformance `json:"performance"`
}

// Stats is a summary of bandit and tracker state.
type Stats struct {
	TotalArms int                            `json:"total_arms"`
	Arms      map[string]bandit.BetaArmStats `json:"arm_stats"`
	Tracker   attribution.Stats              `json:"tracker_stats"`
}

type options struct {
	sampler bandit.Sampler
	now     func() time.Time
	newID   func() string
}

// Option configures an Engine.
type Option func(*options)

// WithSampler replaces the seeded default sampler.
func WithSampler(s bandit.Sampler) Option {
	return func(o *options) {
		o.sampler = s
	}
}

// WithClock replaces time.Now for attribution windows and snapshots.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithIDGenerator replaces the UUID recommendation id generator.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) {
		o.newID = newID
	}
}

// Engine owns one bandit selector and one attribution tracker and closes the
// learning loop between them. It is constructed once by the host and shared
// by handle; all methods are safe for concurrent use.
type Engine struct {
	cfg      recommend.Config
	selector *bandit.Selector
	tracker  *attribution.Tracker
	logger   zerolog.Logger
	now      func() time.Time
	newID    func() string
}

// New creates an engine. A nil cfg uses recommend.DefaultConfig().
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(cfg *recommend.Config, logger zerolog.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = recommend.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sampler == nil {
		o.sampler = bandit.NewRandSampler(cfg.Seed)
	}

	tracker, err := attribution.NewTracker(cfg.Attribution, logger, attribution.WithClock(o.now))
	if err != nil {
		return nil, fmt.Errorf("failed to create attribution tracker: %w", err)
	}

	e := &Engine{
		cfg:      *cfg,
		selector: bandit.NewSelector(cfg.Bandit, o.sampler, logger),
		tracker:  tracker,
		logger:   logger.With().Str("component", "engine").Logger(),
		now:      o.now,
		newID:    o.newID,
	}
	e.RegisterConsumer(banditConsumerName, e.selector)

	e.logger.Info().
		Strs("features", cfg.Bandit.FeatureNames).
		Str("mode", string(cfg.Bandit.Mode)).
		Float64("alpha", cfg.Bandit.Alpha).
		Dur("window", cfg.Attribution.Window).
		Int("batch_size", cfg.Attribution.BatchSize).
		Msg("bandit engine initialized")
	return e, nil
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() recommend.Config {
	return e.cfg
}

// Selector exposes the underlying selector.
func (e *Engine) Selector() *bandit.Selector {
	return e.selector
}

// Tracker exposes the underlying attribution tracker.
func (e *Engine) Tracker() *attribution.Tracker {
	return e.tracker
}

// RegisterConsumer adds a consumer of attributed rewards. When the consumer
// circuit breaker is enabled the consumer is wrapped in one.
func (e *Engine) RegisterConsumer(name string, c recommend.Consumer) {
	if e.cfg.Attribution.Breaker.Enabled {
		c = attribution.NewBreakerConsumer(name, c, e.cfg.Attribution.Breaker, e.logger)
	}
	e.tracker.RegisterConsumer(name, c)
}

// Recommend ranks the candidates and opens a pending attribution under a
// fresh recommendation id for every returned arm. A request context routes
// through the contextual bandit; without one Thompson Sampling alone is used.
func (e *Engine) Recommend(ctx context.Context, req Request) (*Response, error) {
	if verr := validation.ValidateStruct(&req); verr != nil {
		return nil, fmt.Errorf("invalid recommendation request: %w", verr)
	}
	if len(req.Candidates) == 0 {
		return nil, recommend.ErrNoArmsAvailable
	}

	scored, err := e.selector.SelectTopK(req.Context, req.Candidates, req.K)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		RecommendationID: e.newID(),
		UserID:           req.UserID,
		Arms:             make([]RankedArm, len(scored)),
		Timestamp:        e.now(),
	}
	for i, arm := range scored {
		ranked := RankedArm{RecommendationID: e.newID(), ArmID: arm.ArmID, Score: arm.Score, Rank: i + 1}
		resp.Arms[i] = ranked
		if err := e.tracker.TrackImpression(ctx, ranked.RecommendationID, req.UserID, arm.ArmID, req.Context); err != nil {
			return nil, fmt.Errorf("track impression for %s: %w", arm.ArmID, err)
		}
	}

	e.logger.Debug().
		Str("recommendation_id", resp.RecommendationID).
		Str("user_id", req.UserID).
		Int("candidates", len(req.Candidates)).
		Int("selected", len(resp.Arms)).
		Bool("contextual", req.Context != nil).
		Msg("recommendation served")
	return resp, nil
}

// ReportEvent tracks an interaction and returns its computed reward. When the
// event carries a context, the contextual model also learns from it
// immediately; the Beta pool learns when the reward is flushed.
func (e *Engine) ReportEvent(ctx context.Context, event recommend.RewardEvent) (float64, error) {
	reward, err := e.tracker.TrackEvent(ctx, event)
	if err != nil {
		return 0, err
	}
	if event.Context != nil {
		if err := e.selector.UpdateContextual(event.ArmID, event.Context, reward); err != nil {
			return reward, fmt.Errorf("contextual update for %s: %w", event.ArmID, err)
		}
	}
	return reward, nil
}

// AddArm registers an arm with both pools.
func (e *Engine) AddArm(armID string) {
	e.selector.AddArm(armID)
}

// SelectArm picks one arm without tracking an impression.
func (e *Engine) SelectArm(c *recommend.Context, candidates []string) (recommend.ScoredArm, error) {
	return e.selector.Select(c, candidates)
}

// SelectTopK ranks candidates without tracking impressions.
func (e *Engine) SelectTopK(c *recommend.Context, candidates []string, k int) ([]recommend.ScoredArm, error) {
	return e.selector.SelectTopK(c, candidates, k)
}

// Update applies a reward directly, bypassing attribution.
func (e *Engine) Update(armID string, c *recommend.Context, reward float64) error {
	return e.selector.Update(armID, c, reward)
}

// TrackImpression opens a pending attribution.
func (e *Engine) TrackImpression(ctx context.Context, recommendationID, userID, armID string, c *recommend.Context) error {
	return e.tracker.TrackImpression(ctx, recommendationID, userID, armID, c)
}

// TrackEvent records an event without the immediate contextual update.
func (e *Engine) TrackEvent(ctx context.Context, event recommend.RewardEvent) (float64, error) {
	return e.tracker.TrackEvent(ctx, event)
}

// FlushExpired finalizes pending attributions whose window has closed.
func (e *Engine) FlushExpired(ctx context.Context) []attribution.PendingAttribution {
	return e.tracker.FlushExpired(ctx)
}

// Flush delivers all buffered events.
func (e *Engine) Flush(ctx context.Context) int {
	return e.tracker.Flush(ctx)
}

// ApplyDecay shrinks Beta evidence toward the prior.
func (e *Engine) ApplyDecay() {
	e.selector.ApplyDecay()
}

// Ranking returns arms by posterior mean, best first.
func (e *Engine) Ranking(limit int) []recommend.ScoredArm {
	return e.selector.Ranking(limit)
}

// ArmStats returns the state of one arm. The second value is false when
// neither pool knows the arm.
func (e *Engine) ArmStats(armID string) (ArmStats, bool) {
	out := ArmStats{ArmID: armID, Performance: e.tracker.ArmPerformance(armID)}
	if st, ok := e.selector.Beta().Stats(armID); ok {
		out.Thompson = &st
	}
	if st, ok := e.selector.Linear().Stats(armID); ok {
		out.Contextual = &st
	}
	return out, out.Thompson != nil || out.Contextual != nil
}

// Stats returns bandit and tracker statistics.
func (e *Engine) Stats() Stats {
	arms := e.selector.Beta().AllStats()
	return Stats{
		TotalArms: len(arms),
		Arms:      arms,
		Tracker:   e.tracker.Stats(),
	}
}

// ExportState captures the bandit state as a snapshot.
func (e *Engine) ExportState() Snapshot {
	return Snapshot{
		Version:    SnapshotVersion,
		CapturedAt: e.now().UTC(),
		Bandit:     e.selector.ExportState(),
	}
}

// ImportState replaces the bandit state. Pending attributions and the event
// buffer are not part of a snapshot and are left as they are.
func (e *Engine) ImportState(s Snapshot) error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", recommend.ErrInvalidSnapshot, s.Version)
	}
	if err := e.selector.ImportState(s.Bandit); err != nil {
		return err
	}
	e.logger.Info().
		Time("captured_at", s.CapturedAt).
		Int("arms", e.selector.Beta().Len()).
		Msg("bandit state imported")
	return nil
}
