// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package bandit

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/tomtom215/rewardloop/internal/recommend"
)

// symmetryTolerance is the largest |A[i][j] - A[j][i]| accepted on import.
const symmetryTolerance = 1e-9

// LinearPoolConfig contains configuration for the LinUCB pool.
type LinearPoolConfig struct {
	// FeatureNames is the ordered context feature list.
	FeatureNames []string

	// Alpha controls exploration vs exploitation.
	// Higher values = more exploration. Typical range: 0.1-2.0.
	Alpha float64

	// Mode chooses between the pure UCB score and Gaussian noise scaled by the bonus.
	Mode recommend.Mode

	// ColdStartPulls is the minimum pull count before the linear model is trusted.
	// Below this, the arm is scored by its Beta posterior instead.
	ColdStartPulls int

	// Beta configures the paired Thompson Sampling pool.
	Beta BetaPoolConfig
}

// DefaultLinearPoolConfig returns default LinUCB configuration.
func DefaultLinearPoolConfig() LinearPoolConfig {
	return LinearPoolConfig{
		FeatureNames: []string{
			recommend.FeatureTimeOfDay,
			recommend.FeatureDayOfWeek,
			recommend.FeatureSessionDepth,
		},
		Alpha:          1.0,
		Mode:           recommend.ModeThompson,
		ColdStartPulls: 5,
		Beta:           DefaultBetaPoolConfig(),
	}
}

// LinearArmStats summarizes one linear arm.
type LinearArmStats struct {
	ArmID       string    `json:"arm_id"`
	TotalPulls  int64     `json:"total_pulls"`
	TotalReward float64   `json:"total_reward"`
	MeanReward  float64   `json:"mean_reward"`
	Theta       []float64 `json:"theta"`
}

type linearArm struct {
	mu          sync.Mutex
	a           *mat.SymDense
	b           *mat.VecDense
	theta       *mat.VecDense
	totalPulls  int64
	totalReward float64
}

func newLinearArm(d int) *linearArm {
	return &linearArm{
		a:     identity(d),
		b:     mat.NewVecDense(d, nil),
		theta: mat.NewVecDense(d, nil),
	}
}

// LinearArmPool implements disjoint LinUCB with a Beta cold-start fallback.
// Reference: "A Contextual-Bandit Approach to Personalized News Article Recommendation" (Li et al., 2010)
//
// For each arm we maintain:
//   - A: the regularized design matrix I + sum(x x'), symmetric positive definite
//   - b: the reward-weighted context sum
//   - theta = A^(-1) b: the estimated weight vector
//
// The score for an arm given context x is
//
//	expected = x' theta
//	bonus    = alpha * sqrt(x' A^(-1) x)
//
// combined as expected + bonus (ucb) or expected + N(0, bonus) (thompson).
// Solves use a Cholesky factorization of A rather than an explicit inverse.
// Arms with fewer than ColdStartPulls observations are scored by a sample
// from the paired BetaArmPool.
type LinearArmPool struct {
	mu   sync.RWMutex
	arms map[string]*linearArm

	paramMu   sync.RWMutex
	encoder   *ContextEncoder
	alpha     float64
	mode      recommend.Mode
	coldStart int

	beta    *BetaArmPool
	sampler Sampler
	logger  zerolog.Logger
}

// NewLinearArmPool creates a LinUCB pool. A nil sampler uses a RandSampler
// with DefaultSeed; the same sampler feeds the paired Beta pool.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewLinearArmPool(cfg LinearPoolConfig, sampler Sampler, logger zerolog.Logger) *LinearArmPool {
	defaults := DefaultLinearPoolConfig()
	if !(cfg.Alpha > 0) {
		cfg.Alpha = defaults.Alpha
	}
	if cfg.Mode != recommend.ModeUCB && cfg.Mode != recommend.ModeThompson {
		cfg.Mode = defaults.Mode
	}
	if cfg.ColdStartPulls < 0 {
		cfg.ColdStartPulls = defaults.ColdStartPulls
	}
	if sampler == nil {
		sampler = NewRandSampler(DefaultSeed)
	}

	return &LinearArmPool{
		arms:      make(map[string]*linearArm),
		encoder:   NewContextEncoder(cfg.FeatureNames),
		alpha:     cfg.Alpha,
		mode:      cfg.Mode,
		coldStart: cfg.ColdStartPulls,
		beta:      NewBetaArmPool(cfg.Beta, sampler),
		sampler:   sampler,
		logger:    logger.With().Str("component", "linucb").Logger(),
	}
}

// Beta returns the paired Thompson Sampling pool.
func (p *LinearArmPool) Beta() *BetaArmPool {
	return p.beta
}

// Encoder returns the active context encoder.
func (p *LinearArmPool) Encoder() *ContextEncoder {
	p.paramMu.RLock()
	defer p.paramMu.RUnlock()
	return p.encoder
}

// AddArm registers an arm with A = I and b = 0, and mirrors it into the Beta pool.
func (p *LinearArmPool) AddArm(armID string) {
	p.arm(armID)
}

func (p *LinearArmPool) arm(armID string) *linearArm {
	p.mu.RLock()
	a, ok := p.arms[armID]
	p.mu.RUnlock()
	if ok {
		return a
	}

	p.mu.Lock()
	if a, ok = p.arms[armID]; !ok {
		a = newLinearArm(p.Encoder().Dimension())
		p.arms[armID] = a
	}
	p.mu.Unlock()

	p.beta.AddArm(armID)
	return a
}

type scoringParams struct {
	x         *mat.VecDense
	alpha     float64
	mode      recommend.Mode
	coldStart int
}

func (p *LinearArmPool) params(c *recommend.Context) scoringParams {
	p.paramMu.RLock()
	defer p.paramMu.RUnlock()
	return scoringParams{
		x:         mat.NewVecDense(p.encoder.Dimension(), p.encoder.Encode(c)),
		alpha:     p.alpha,
		mode:      p.mode,
		coldStart: p.coldStart,
	}
}

// SelectArm returns the best candidate for the context and its score.
// Ties resolve to the earliest candidate.
func (p *LinearArmPool) SelectArm(c *recommend.Context, candidates []string) (recommend.ScoredArm, error) {
	if len(candidates) == 0 {
		return recommend.ScoredArm{}, recommend.ErrNoArmsAvailable
	}

	params := p.params(c)
	best := recommend.ScoredArm{Score: math.Inf(-1)}
	for i, id := range candidates {
		score, err := p.score(id, params)
		if err != nil {
			return recommend.ScoredArm{}, err
		}
		if i == 0 || score > best.Score {
			best = recommend.ScoredArm{ArmID: id, Score: score}
		}
	}
	return best, nil
}

// SelectTopK scores every candidate once and returns the k best, descending,
// with ties in input order. A k outside [1, len(candidates)] is clamped.
func (p *LinearArmPool) SelectTopK(c *recommend.Context, candidates []string, k int) ([]recommend.ScoredArm, error) {
	if len(candidates) == 0 {
		return nil, recommend.ErrNoArmsAvailable
	}

	params := p.params(c)
	scored := make([]recommend.ScoredArm, len(candidates))
	for i, id := range candidates {
		score, err := p.score(id, params)
		if err != nil {
			return nil, err
		}
		scored[i] = recommend.ScoredArm{ArmID: id, Score: score}
	}
	return topK(scored, k), nil
}

// IsColdStart reports whether the arm is still scored by the Beta fallback.
func (p *LinearArmPool) IsColdStart(armID string) bool {
	p.paramMu.RLock()
	coldStart := p.coldStart
	p.paramMu.RUnlock()

	p.mu.RLock()
	a, ok := p.arms[armID]
	p.mu.RUnlock()
	if !ok {
		return coldStart > 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalPulls < int64(coldStart)
}

// score computes one arm's score. A and b are copied under the arm lock and
// the solve runs outside it.
func (p *LinearArmPool) score(armID string, params scoringParams) (float64, error) {
	a := p.arm(armID)

	a.mu.Lock()
	if a.totalPulls < int64(params.coldStart) {
		a.mu.Unlock()
		return p.beta.Sample(armID), nil
	}
	design := mat.NewSymDense(a.a.SymmetricDim(), nil)
	design.CopySym(a.a)
	rewards := mat.VecDenseCopyOf(a.b)
	a.mu.Unlock()

	if design.SymmetricDim() != params.x.Len() {
		return 0, fmt.Errorf("score arm %s: %w: matrix dimension %d, context dimension %d",
			armID, recommend.ErrInvalidSnapshot, design.SymmetricDim(), params.x.Len())
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(design); !ok {
		p.logger.Error().Str("arm_id", armID).Msg("design matrix factorization failed")
		return 0, fmt.Errorf("score arm %s: %w", armID, recommend.ErrSingularMatrix)
	}

	var theta, ainvx mat.VecDense
	if err := chol.SolveVecTo(&theta, rewards); err != nil {
		p.logger.Error().Err(err).Str("arm_id", armID).Msg("theta solve failed")
		return 0, fmt.Errorf("score arm %s: %w: %v", armID, recommend.ErrSingularMatrix, err)
	}
	if err := chol.SolveVecTo(&ainvx, params.x); err != nil {
		p.logger.Error().Err(err).Str("arm_id", armID).Msg("confidence solve failed")
		return 0, fmt.Errorf("score arm %s: %w: %v", armID, recommend.ErrSingularMatrix, err)
	}

	expected := mat.Dot(params.x, &theta)
	bonus := params.alpha * math.Sqrt(math.Max(mat.Dot(params.x, &ainvx), 0))

	if params.mode == recommend.ModeThompson {
		return expected + p.sampler.Normal(0, bonus), nil
	}
	return expected + bonus, nil
}

// Update folds one observation into the arm: A += x x', b += reward * x,
// theta = solve(A, b). The Beta pool receives the same reward.
// On a failed solve the arm is left unchanged.
func (p *LinearArmPool) Update(armID string, c *recommend.Context, reward float64) error {
	if math.IsNaN(reward) || math.IsInf(reward, 0) {
		return fmt.Errorf("update arm %s: reward must be finite, got %v", armID, reward)
	}

	params := p.params(c)
	a := p.arm(armID)

	if err := p.updateArm(armID, a, params.x, reward); err != nil {
		return err
	}
	return p.beta.Update(armID, reward)
}

// UpdateModel is Update without the Beta mirror. Use it when the same reward
// reaches the Beta pool by another route.
func (p *LinearArmPool) UpdateModel(armID string, c *recommend.Context, reward float64) error {
	if math.IsNaN(reward) || math.IsInf(reward, 0) {
		return fmt.Errorf("update arm %s: reward must be finite, got %v", armID, reward)
	}
	params := p.params(c)
	return p.updateArm(armID, p.arm(armID), params.x, reward)
}

func (p *LinearArmPool) updateArm(armID string, a *linearArm, x *mat.VecDense, reward float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := a.a.SymmetricDim()
	if d != x.Len() {
		return fmt.Errorf("update arm %s: %w: matrix dimension %d, context dimension %d",
			armID, recommend.ErrInvalidSnapshot, d, x.Len())
	}

	design := mat.NewSymDense(d, nil)
	design.SymRankOne(a.a, 1, x)

	rewards := mat.NewVecDense(d, nil)
	rewards.AddScaledVec(a.b, reward, x)

	theta, err := solveTheta(design, rewards)
	if err != nil {
		p.logger.Error().Err(err).Str("arm_id", armID).Msg("linear update solve failed")
		return fmt.Errorf("update arm %s: %w", armID, err)
	}

	a.a = design
	a.b = rewards
	a.theta = theta
	a.totalPulls++
	a.totalReward += reward
	return nil
}

// Stats returns pulls, reward, mean reward and theta for a known arm.
func (p *LinearArmPool) Stats(armID string) (LinearArmStats, bool) {
	p.mu.RLock()
	a, ok := p.arms[armID]
	p.mu.RUnlock()
	if !ok {
		return LinearArmStats{}, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return LinearArmStats{
		ArmID:       armID,
		TotalPulls:  a.totalPulls,
		TotalReward: a.totalReward,
		MeanReward:  a.totalReward / float64(max(a.totalPulls, 1)),
		Theta:       append([]float64(nil), a.theta.RawVector().Data...),
	}, true
}

// Len returns the number of registered arms.
func (p *LinearArmPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.arms)
}

// ExportState returns a serializable copy of the pool, including the Beta pool.
func (p *LinearArmPool) ExportState() LinearPoolState {
	p.paramMu.RLock()
	coldStart := p.coldStart
	state := LinearPoolState{
		FeatureNames:   p.encoder.FeatureNames(),
		Alpha:          p.alpha,
		Mode:           p.mode,
		ColdStartPulls: &coldStart,
	}
	p.paramMu.RUnlock()

	p.mu.RLock()
	arms := make(map[string]*linearArm, len(p.arms))
	for id, a := range p.arms {
		arms[id] = a
	}
	p.mu.RUnlock()

	state.Arms = make(map[string]LinearArmState, len(arms))
	for id, a := range arms {
		a.mu.Lock()
		state.Arms[id] = LinearArmState{
			A:           symToRows(a.a),
			B:           append([]float64(nil), a.b.RawVector().Data...),
			TotalPulls:  a.totalPulls,
			TotalReward: a.totalReward,
		}
		a.mu.Unlock()
	}
	state.Beta = p.beta.ExportState()
	return state
}

// ImportState replaces the pool with state. Feature names, alpha and mode
// fall back to the current values when absent. Every matrix must be d x d
// for the imported feature set, symmetric and positive definite.
// On error the pool is unchanged.
func (p *LinearArmPool) ImportState(state LinearPoolState) error {
	p.paramMu.RLock()
	names, alpha, mode, coldStart := p.encoder.FeatureNames(), p.alpha, p.mode, p.coldStart
	p.paramMu.RUnlock()

	if state.FeatureNames != nil {
		names = state.FeatureNames
	}
	if state.Alpha != 0 {
		alpha = state.Alpha
	}
	if state.Mode != "" {
		mode = state.Mode
	}
	if state.ColdStartPulls != nil {
		coldStart = *state.ColdStartPulls
	}
	if !positiveFinite(alpha) {
		return fmt.Errorf("%w: alpha must be positive, got %v", recommend.ErrInvalidSnapshot, alpha)
	}
	if mode != recommend.ModeUCB && mode != recommend.ModeThompson {
		return fmt.Errorf("%w: unknown mode %q", recommend.ErrInvalidSnapshot, mode)
	}
	if coldStart < 0 {
		return fmt.Errorf("%w: cold start pulls must be non-negative", recommend.ErrInvalidSnapshot)
	}

	encoder := NewContextEncoder(names)
	d := encoder.Dimension()

	arms := make(map[string]*linearArm, len(state.Arms))
	for id, st := range state.Arms {
		arm, err := linearArmFromState(id, st, d)
		if err != nil {
			return err
		}
		arms[id] = arm
	}

	if err := p.beta.ImportState(state.Beta); err != nil {
		return err
	}
	for id := range arms {
		p.beta.AddArm(id)
	}

	p.mu.Lock()
	p.paramMu.Lock()
	p.encoder = encoder
	p.alpha = alpha
	p.mode = mode
	p.coldStart = coldStart
	p.arms = arms
	p.paramMu.Unlock()
	p.mu.Unlock()
	return nil
}

func linearArmFromState(id string, st LinearArmState, d int) (*linearArm, error) {
	if len(st.A) != d || len(st.B) != d {
		return nil, fmt.Errorf("%w: arm %s has %d matrix rows and %d reward entries, want %d",
			recommend.ErrInvalidSnapshot, id, len(st.A), len(st.B), d)
	}
	if st.TotalPulls < 0 || math.IsNaN(st.TotalReward) || math.IsInf(st.TotalReward, 0) {
		return nil, fmt.Errorf("%w: arm %s has invalid counters", recommend.ErrInvalidSnapshot, id)
	}

	for i, row := range st.A {
		if len(row) != d {
			return nil, fmt.Errorf("%w: arm %s row %d has length %d, want %d", recommend.ErrInvalidSnapshot, id, i, len(row), d)
		}
	}

	design := mat.NewSymDense(d, nil)
	for i, row := range st.A {
		for j := i; j < d; j++ {
			if math.Abs(row[j]-st.A[j][i]) > symmetryTolerance {
				return nil, fmt.Errorf("%w: arm %s matrix is not symmetric", recommend.ErrInvalidSnapshot, id)
			}
			design.SetSym(i, j, row[j])
		}
	}
	rewards := mat.NewVecDense(d, append([]float64(nil), st.B...))

	theta, err := solveTheta(design, rewards)
	if err != nil {
		return nil, fmt.Errorf("%w: arm %s: %v", recommend.ErrInvalidSnapshot, id, err)
	}

	return &linearArm{
		a:           design,
		b:           rewards,
		theta:       theta,
		totalPulls:  st.TotalPulls,
		totalReward: st.TotalReward,
	}, nil
}

// solveTheta returns A^(-1) b via a Cholesky factorization.
func solveTheta(design *mat.SymDense, rewards *mat.VecDense) (*mat.VecDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(design); !ok {
		return nil, recommend.ErrSingularMatrix
	}
	theta := mat.NewVecDense(design.SymmetricDim(), nil)
	if err := chol.SolveVecTo(theta, rewards); err != nil {
		return nil, fmt.Errorf("%w: %v", recommend.ErrSingularMatrix, err)
	}
	return theta, nil
}

// identity returns the n x n identity matrix.
func identity(n int) *mat.SymDense {
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.SetSym(i, i, 1.0)
	}
	return m
}

func symToRows(m *mat.SymDense) [][]float64 {
	n := m.SymmetricDim()
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			rows[i][j] = m.At(i, j)
		}
	}
	return rows
}
