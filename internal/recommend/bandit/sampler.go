// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package bandit

import (
	"math"
	"math/rand"
	"sync"
)

// Sampler supplies the random draws used by both arm pools.
// Implementations must be safe for concurrent use.
type Sampler interface {
	// Beta draws from Beta(alpha, beta).
	Beta(alpha, beta float64) float64

	// Normal draws from N(mean, stddev^2). A zero stddev returns mean.
	Normal(mean, stddev float64) float64
}

// DefaultSeed is used when a zero seed is supplied.
const DefaultSeed int64 = 42

// maxGammaIterations bounds the Marsaglia-Tsang rejection loop.
const maxGammaIterations = 1000

// RandSampler is a seeded Sampler backed by math/rand.
// The same seed yields the same sequence of draws.
type RandSampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandSampler creates a sampler seeded with seed (DefaultSeed if zero).
func NewRandSampler(seed int64) *RandSampler {
	if seed == 0 {
		seed = DefaultSeed
	}
	return &RandSampler{
		//nolint:gosec // G404: statistical sampling, not cryptographic use
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Beta draws from Beta(alpha, beta) as x/(x+y) with x~Gamma(alpha), y~Gamma(beta).
func (s *RandSampler) Beta(alpha, beta float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	x := s.gammaLocked(alpha)
	y := s.gammaLocked(beta)
	if x+y < 1e-300 {
		return 0.5
	}
	return x / (x + y)
}

// Normal draws from N(mean, stddev^2).
func (s *RandSampler) Normal(mean, stddev float64) float64 {
	if stddev <= 0 {
		return mean
	}
	s.mu.Lock()
	z := s.rng.NormFloat64()
	s.mu.Unlock()
	return mean + stddev*z
}

// gammaLocked draws from Gamma(shape, 1) using Marsaglia-Tsang.
// Shapes below one are boosted with the u^(1/shape) transform.
func (s *RandSampler) gammaLocked(shape float64) float64 {
	if shape <= 0 {
		return 0
	}

	if shape < 1 {
		u := s.rng.Float64()
		if u == 0 {
			u = 1e-10
		}
		return s.gammaLocked(1+shape) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)

	for iter := 0; iter < maxGammaIterations; iter++ {
		x := s.rng.NormFloat64()
		v := 1.0 + c*x
		if v <= 0 {
			continue
		}

		v = v * v * v
		u := s.rng.Float64()

		if u < 1.0-0.0331*(x*x)*(x*x) {
			return d * v
		}
		if u > 0 && math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v
		}
	}

	return shape
}

var _ Sampler = (*RandSampler)(nil)
