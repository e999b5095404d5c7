// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package bandit

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/rewardloop/internal/metrics"
	"github.com/tomtom215/rewardloop/internal/recommend"
)

// Selection paths reported to metrics.
const (
	pathBeta   = "beta"
	pathLinear = "linear"
)

// Selector is the single entry point for choosing arms and learning from rewards.
//
// Requests without a context are served by the Beta pool alone. Requests with
// a context go through the LinUCB pool, which itself falls back to the Beta
// pool for arms still in cold start.
//
// Selector implements recommend.Consumer: batched rewards from the attribution
// tracker are applied to the Beta pool, since batches carry no context.
type Selector struct {
	linear *LinearArmPool
	logger zerolog.Logger
}

// NewSelector creates a selector from bandit configuration.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewSelector(cfg recommend.BanditConfig, sampler Sampler, logger zerolog.Logger) *Selector {
	logger = logger.With().Str("component", "bandit").Logger()
	linear := NewLinearArmPool(LinearPoolConfig{
		FeatureNames:   cfg.FeatureNames,
		Alpha:          cfg.Alpha,
		Mode:           cfg.Mode,
		ColdStartPulls: cfg.ColdStartPulls,
		Beta: BetaPoolConfig{
			PriorAlpha:  cfg.PriorAlpha,
			PriorBeta:   cfg.PriorBeta,
			DecayFactor: cfg.DecayFactor,
		},
	}, sampler, logger)

	return &Selector{linear: linear, logger: logger}
}

// Linear returns the contextual pool.
func (s *Selector) Linear() *LinearArmPool {
	return s.linear
}

// Beta returns the context-free pool.
func (s *Selector) Beta() *BetaArmPool {
	return s.linear.Beta()
}

// AddArm registers an arm in both pools.
func (s *Selector) AddArm(armID string) {
	s.linear.AddArm(armID)
	metrics.BanditArms.Set(float64(s.Beta().Len()))
}

// Select picks one arm. A nil context selects by Thompson Sampling alone.
func (s *Selector) Select(c *recommend.Context, candidates []string) (recommend.ScoredArm, error) {
	start := time.Now()

	var (
		arm  recommend.ScoredArm
		err  error
		path = pathLinear
	)
	if c == nil {
		path = pathBeta
		var top []recommend.ScoredArm
		if top, err = s.Beta().SelectTopK(candidates, 1); err == nil {
			arm = top[0]
		}
	} else {
		arm, err = s.linear.SelectArm(c, candidates)
	}

	s.observeSelection(path, len(candidates), start, err)
	return arm, err
}

// SelectTopK ranks candidates and returns the best k. A nil context ranks by
// Thompson samples alone.
func (s *Selector) SelectTopK(c *recommend.Context, candidates []string, k int) ([]recommend.ScoredArm, error) {
	start := time.Now()

	var (
		arms []recommend.ScoredArm
		err  error
		path = pathLinear
	)
	if c == nil {
		path = pathBeta
		arms, err = s.Beta().SelectTopK(candidates, k)
	} else {
		arms, err = s.linear.SelectTopK(c, candidates, k)
	}

	s.observeSelection(path, len(candidates), start, err)
	return arms, err
}

func (s *Selector) observeSelection(path string, candidates int, start time.Time, err error) {
	metrics.RecordBanditSelection(path, candidates, time.Since(start), err)
	metrics.BanditArms.Set(float64(s.Beta().Len()))
	if err != nil && !errors.Is(err, recommend.ErrNoArmsAvailable) {
		s.logger.Error().Err(err).Str("path", path).Int("candidates", candidates).Msg("arm selection failed")
	}
}

// Update applies one reward. With a context both pools learn; without one
// only the Beta pool does.
func (s *Selector) Update(armID string, c *recommend.Context, reward float64) error {
	var err error
	path := pathLinear
	if c == nil {
		path = pathBeta
		err = s.Beta().Update(armID, reward)
	} else {
		err = s.linear.Update(armID, c, reward)
	}

	metrics.RecordBanditUpdate(path, err)
	if err != nil {
		s.logger.Error().Err(err).Str("arm_id", armID).Str("path", path).Msg("bandit update failed")
		return err
	}
	s.logger.Debug().Str("arm_id", armID).Float64("reward", reward).Str("path", path).Msg("bandit updated")
	return nil
}

// UpdateContextual applies a contextual reward to the linear model only.
// The engine uses it for immediate updates whose reward also enters the
// attribution buffer, which feeds the Beta pool through Consume.
func (s *Selector) UpdateContextual(armID string, c *recommend.Context, reward float64) error {
	if c == nil {
		return s.Update(armID, nil, reward)
	}
	err := s.linear.UpdateModel(armID, c, reward)
	metrics.RecordBanditUpdate(pathLinear, err)
	if err != nil {
		s.logger.Error().Err(err).Str("arm_id", armID).Msg("contextual update failed")
	}
	return err
}

// Consume applies a batch of attributed rewards to the Beta pool.
// Invalid rewards are skipped and reported together.
func (s *Selector) Consume(_ context.Context, rewards recommend.ArmRewards) error {
	var errs []error
	for armID, values := range rewards {
		for _, r := range values {
			err := s.Beta().Update(armID, r)
			metrics.RecordBanditUpdate(pathBeta, err)
			if err != nil {
				errs = append(errs, err)
			}
		}
	}
	metrics.BanditArms.Set(float64(s.Beta().Len()))
	return errors.Join(errs...)
}

// ApplyDecay shrinks Beta evidence toward the prior.
func (s *Selector) ApplyDecay() {
	s.Beta().ApplyDecay()
	metrics.BanditDecayRuns.Inc()
}

// Ranking returns arms by posterior mean. A limit of zero or less returns all arms.
func (s *Selector) Ranking(limit int) []recommend.ScoredArm {
	ranking := s.Beta().ExploitationRanking()
	if limit > 0 && limit < len(ranking) {
		ranking = ranking[:limit]
	}
	return ranking
}

// ExportState returns the serializable state of both pools.
func (s *Selector) ExportState() LinearPoolState {
	return s.linear.ExportState()
}

// ImportState replaces the state of both pools.
func (s *Selector) ImportState(state LinearPoolState) error {
	if err := s.linear.ImportState(state); err != nil {
		return err
	}
	metrics.BanditArms.Set(float64(s.Beta().Len()))
	return nil
}

var _ recommend.Consumer = (*Selector)(nil)
