// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package bandit

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/rewardloop/internal/recommend"
)

// BetaPoolConfig contains configuration for the Thompson Sampling pool.
type BetaPoolConfig struct {
	// PriorAlpha is the prior success count. Values above 1 are optimistic.
	PriorAlpha float64

	// PriorBeta is the prior failure count.
	PriorBeta float64

	// DecayFactor scales evidence on ApplyDecay. 1.0 disables decay.
	DecayFactor float64
}

// DefaultBetaPoolConfig returns default Thompson Sampling configuration.
func DefaultBetaPoolConfig() BetaPoolConfig {
	return BetaPoolConfig{
		PriorAlpha:  1.0,
		PriorBeta:   1.0,
		DecayFactor: 0.999,
	}
}

// BetaArmStats is a point-in-time copy of one arm's Beta posterior.
type BetaArmStats struct {
	ArmID       string    `json:"arm_id"`
	Alpha       float64   `json:"alpha"`
	Beta        float64   `json:"beta"`
	MeanReward  float64   `json:"mean_reward"`
	Variance    float64   `json:"variance"`
	TotalPulls  int64     `json:"total_pulls"`
	TotalReward float64   `json:"total_reward"`
	LastUpdated time.Time `json:"last_updated"`
}

type betaArm struct {
	mu          sync.Mutex
	alpha       float64
	beta        float64
	totalPulls  int64
	totalReward float64
	lastUpdated time.Time
}

func (a *betaArm) statsLocked(id string) BetaArmStats {
	return BetaArmStats{
		ArmID:       id,
		Alpha:       a.alpha,
		Beta:        a.beta,
		MeanReward:  betaMean(a.alpha, a.beta),
		Variance:    betaVariance(a.alpha, a.beta),
		TotalPulls:  a.totalPulls,
		TotalReward: a.totalReward,
		LastUpdated: a.lastUpdated,
	}
}

// BetaArmPool implements Beta-Bernoulli Thompson Sampling over a set of arms.
//
// Each arm keeps a Beta(alpha, beta) posterior over its success probability.
// Selection draws one sample per candidate and picks the largest, so arms with
// little evidence are explored in proportion to their uncertainty.
//
// The arm map is guarded by an RWMutex that is held only for lookup and
// insert. Each arm carries its own mutex, so updates to different arms
// proceed in parallel.
type BetaArmPool struct {
	mu   sync.RWMutex
	arms map[string]*betaArm

	paramMu     sync.RWMutex
	priorAlpha  float64
	priorBeta   float64
	decayFactor float64

	sampler Sampler
	now     func() time.Time
}

// NewBetaArmPool creates a Thompson Sampling pool. A nil sampler uses a
// RandSampler with DefaultSeed.
func NewBetaArmPool(cfg BetaPoolConfig, sampler Sampler) *BetaArmPool {
	defaults := DefaultBetaPoolConfig()
	if !(cfg.PriorAlpha > 0) {
		cfg.PriorAlpha = defaults.PriorAlpha
	}
	if !(cfg.PriorBeta > 0) {
		cfg.PriorBeta = defaults.PriorBeta
	}
	if !(cfg.DecayFactor > 0) || cfg.DecayFactor > 1 {
		cfg.DecayFactor = defaults.DecayFactor
	}
	if sampler == nil {
		sampler = NewRandSampler(DefaultSeed)
	}

	return &BetaArmPool{
		arms:        make(map[string]*betaArm),
		priorAlpha:  cfg.PriorAlpha,
		priorBeta:   cfg.PriorBeta,
		decayFactor: cfg.DecayFactor,
		sampler:     sampler,
		now:         time.Now,
	}
}

// AddArm registers an arm with the prior parameters. Existing arms are untouched.
func (p *BetaArmPool) AddArm(armID string) {
	p.arm(armID)
}

// arm returns the arm entry, creating it with the prior if needed.
func (p *BetaArmPool) arm(armID string) *betaArm {
	p.mu.RLock()
	a, ok := p.arms[armID]
	p.mu.RUnlock()
	if ok {
		return a
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok = p.arms[armID]; ok {
		return a
	}
	p.paramMu.RLock()
	a = &betaArm{alpha: p.priorAlpha, beta: p.priorBeta, lastUpdated: p.now()}
	p.paramMu.RUnlock()
	p.arms[armID] = a
	return a
}

func (p *BetaArmPool) lookup(armID string) (*betaArm, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.arms[armID]
	return a, ok
}

// Sample draws once from the arm's posterior, registering the arm if unknown.
func (p *BetaArmPool) Sample(armID string) float64 {
	a := p.arm(armID)
	a.mu.Lock()
	alpha, beta := a.alpha, a.beta
	a.mu.Unlock()
	return p.sampler.Beta(alpha, beta)
}

// SelectArm returns the candidate with the largest posterior sample.
// Ties resolve to the earliest candidate.
func (p *BetaArmPool) SelectArm(candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", recommend.ErrNoArmsAvailable
	}

	best := ""
	bestScore := math.Inf(-1)
	for _, id := range candidates {
		if s := p.Sample(id); s > bestScore {
			best, bestScore = id, s
		}
	}
	return best, nil
}

// SelectTopK samples every candidate once and returns the k highest,
// sorted descending with ties in input order.
// A k outside [1, len(candidates)] is clamped to len(candidates).
func (p *BetaArmPool) SelectTopK(candidates []string, k int) ([]recommend.ScoredArm, error) {
	if len(candidates) == 0 {
		return nil, recommend.ErrNoArmsAvailable
	}

	scored := make([]recommend.ScoredArm, len(candidates))
	for i, id := range candidates {
		scored[i] = recommend.ScoredArm{ArmID: id, Score: p.Sample(id)}
	}
	return topK(scored, k), nil
}

// Update records a reward for the arm, registering it if unknown.
// A positive reward adds to alpha; otherwise beta grows by 1 - reward.
func (p *BetaArmPool) Update(armID string, reward float64) error {
	if math.IsNaN(reward) || math.IsInf(reward, 0) {
		return fmt.Errorf("update arm %s: reward must be finite, got %v", armID, reward)
	}

	a := p.arm(armID)
	now := p.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalPulls++
	a.totalReward += reward
	if reward > 0 {
		a.alpha += reward
	} else {
		a.beta += 1 - reward
	}
	a.lastUpdated = now
	return nil
}

// BatchUpdate applies each reward in order. It stops at the first invalid reward.
func (p *BetaArmPool) BatchUpdate(updates []recommend.ArmReward) error {
	for _, u := range updates {
		if err := p.Update(u.ArmID, u.Reward); err != nil {
			return err
		}
	}
	return nil
}

// ApplyDecay shrinks every arm's evidence toward the prior by the decay factor.
func (p *BetaArmPool) ApplyDecay() {
	p.paramMu.RLock()
	priorAlpha, priorBeta, decay := p.priorAlpha, p.priorBeta, p.decayFactor
	p.paramMu.RUnlock()

	for _, a := range p.snapshotArms() {
		a.mu.Lock()
		a.alpha = priorAlpha + (a.alpha-priorAlpha)*decay
		a.beta = priorBeta + (a.beta-priorBeta)*decay
		a.mu.Unlock()
	}
}

// MeanReward returns alpha/(alpha+beta) for a known arm.
func (p *BetaArmPool) MeanReward(armID string) (float64, bool) {
	st, ok := p.Stats(armID)
	return st.MeanReward, ok
}

// Variance returns the posterior variance for a known arm.
func (p *BetaArmPool) Variance(armID string) (float64, bool) {
	st, ok := p.Stats(armID)
	return st.Variance, ok
}

// Stats returns a copy of one arm's statistics.
func (p *BetaArmPool) Stats(armID string) (BetaArmStats, bool) {
	a, ok := p.lookup(armID)
	if !ok {
		return BetaArmStats{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statsLocked(armID), true
}

// AllStats returns statistics for every arm.
func (p *BetaArmPool) AllStats() map[string]BetaArmStats {
	out := make(map[string]BetaArmStats)
	for id, a := range p.snapshotArms() {
		a.mu.Lock()
		out[id] = a.statsLocked(id)
		a.mu.Unlock()
	}
	return out
}

// Len returns the number of registered arms.
func (p *BetaArmPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.arms)
}

// ExploitationRanking returns all arms ordered by posterior mean, highest first.
// Equal means are ordered by arm id.
func (p *BetaArmPool) ExploitationRanking() []recommend.ScoredArm {
	stats := p.AllStats()
	ranking := make([]recommend.ScoredArm, 0, len(stats))
	for id, st := range stats {
		ranking = append(ranking, recommend.ScoredArm{ArmID: id, Score: st.MeanReward})
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].Score != ranking[j].Score {
			return ranking[i].Score > ranking[j].Score
		}
		return ranking[i].ArmID < ranking[j].ArmID
	})
	return ranking
}

// ExportState returns a serializable copy of the pool.
func (p *BetaArmPool) ExportState() BetaPoolState {
	p.paramMu.RLock()
	state := BetaPoolState{
		PriorAlpha:  p.priorAlpha,
		PriorBeta:   p.priorBeta,
		DecayFactor: p.decayFactor,
	}
	p.paramMu.RUnlock()

	arms := p.snapshotArms()
	state.Arms = make(map[string]BetaArmState, len(arms))
	for id, a := range arms {
		a.mu.Lock()
		state.Arms[id] = BetaArmState{
			Alpha:       a.alpha,
			Beta:        a.beta,
			TotalPulls:  a.totalPulls,
			TotalReward: a.totalReward,
		}
		a.mu.Unlock()
	}
	return state
}

// ImportState replaces the pool contents with state.
// Missing prior parameters fall back to the defaults. On error the pool is unchanged.
func (p *BetaArmPool) ImportState(state BetaPoolState) error {
	defaults := DefaultBetaPoolConfig()
	priorAlpha, priorBeta, decay := state.PriorAlpha, state.PriorBeta, state.DecayFactor
	if priorAlpha == 0 {
		priorAlpha = defaults.PriorAlpha
	}
	if priorBeta == 0 {
		priorBeta = defaults.PriorBeta
	}
	if decay == 0 {
		decay = defaults.DecayFactor
	}
	if !positiveFinite(priorAlpha) || !positiveFinite(priorBeta) {
		return fmt.Errorf("%w: beta priors must be positive", recommend.ErrInvalidSnapshot)
	}
	if !(decay > 0) || decay > 1 {
		return fmt.Errorf("%w: decay factor %v outside (0, 1]", recommend.ErrInvalidSnapshot, decay)
	}

	now := p.now()
	arms := make(map[string]*betaArm, len(state.Arms))
	for id, st := range state.Arms {
		if !positiveFinite(st.Alpha) || !positiveFinite(st.Beta) {
			return fmt.Errorf("%w: arm %s has non-positive beta parameters", recommend.ErrInvalidSnapshot, id)
		}
		if st.TotalPulls < 0 || math.IsNaN(st.TotalReward) || math.IsInf(st.TotalReward, 0) {
			return fmt.Errorf("%w: arm %s has invalid counters", recommend.ErrInvalidSnapshot, id)
		}
		arms[id] = &betaArm{
			alpha:       st.Alpha,
			beta:        st.Beta,
			totalPulls:  st.TotalPulls,
			totalReward: st.TotalReward,
			lastUpdated: now,
		}
	}

	p.mu.Lock()
	p.paramMu.Lock()
	p.priorAlpha, p.priorBeta, p.decayFactor = priorAlpha, priorBeta, decay
	p.arms = arms
	p.paramMu.Unlock()
	p.mu.Unlock()
	return nil
}

func (p *BetaArmPool) snapshotArms() map[string]*betaArm {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]*betaArm, len(p.arms))
	for id, a := range p.arms {
		out[id] = a
	}
	return out
}

func betaMean(alpha, beta float64) float64 {
	return alpha / (alpha + beta)
}

func betaVariance(alpha, beta float64) float64 {
	ab := alpha + beta
	return (alpha * beta) / (ab * ab * (ab + 1))
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// topK sorts scored descending, stable for ties, and truncates to k.
func topK(scored []recommend.ScoredArm, k int) []recommend.ScoredArm {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if k <= 0 || k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}
