// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package bandit

import (
	"math"
	"sync"
	"testing"
)

// fixedSampler returns deterministic draws for scoring tests.
// Beta returns the distribution mean unless betaValue is set;
// Normal returns mean + z*stddev.
type fixedSampler struct {
	mu        sync.Mutex
	betaValue *float64
	z         float64
	betaCalls int
}

func (s *fixedSampler) Beta(alpha, beta float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.betaCalls++
	if s.betaValue != nil {
		return *s.betaValue
	}
	return alpha / (alpha + beta)
}

func (s *fixedSampler) Normal(mean, stddev float64) float64 {
	return mean + s.z*stddev
}

func (s *fixedSampler) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.betaCalls
}

func TestRandSampler_Deterministic(t *testing.T) {
	a := NewRandSampler(7)
	b := NewRandSampler(7)

	for i := 0; i < 100; i++ {
		x, y := a.Beta(2, 3), b.Beta(2, 3)
		if x != y {
			t.Fatalf("draw %d differs: %v vs %v", i, x, y)
		}
	}
}

func TestRandSampler_ZeroSeedUsesDefault(t *testing.T) {
	a := NewRandSampler(0)
	b := NewRandSampler(DefaultSeed)
	if a.Normal(0, 1) != b.Normal(0, 1) {
		t.Error("seed 0 should behave like DefaultSeed")
	}
}

func TestRandSampler_BetaMoments(t *testing.T) {
	tests := []struct {
		name        string
		alpha, beta float64
	}{
		{"uniform", 1, 1},
		{"skewed", 2, 5},
		{"small shapes", 0.5, 0.5},
		{"concentrated", 50, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRandSampler(11)
			const n = 20000
			sum := 0.0
			for i := 0; i < n; i++ {
				v := s.Beta(tt.alpha, tt.beta)
				if v < 0 || v > 1 || math.IsNaN(v) {
					t.Fatalf("draw %v outside [0, 1]", v)
				}
				sum += v
			}
			want := tt.alpha / (tt.alpha + tt.beta)
			if got := sum / n; math.Abs(got-want) > 0.02 {
				t.Errorf("sample mean = %.4f, want %.4f", got, want)
			}
		})
	}
}

func TestRandSampler_Normal(t *testing.T) {
	s := NewRandSampler(3)
	if got := s.Normal(1.5, 0); got != 1.5 {
		t.Errorf("Normal(1.5, 0) = %v, want 1.5", got)
	}

	const n = 20000
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += s.Normal(2, 0.5)
	}
	if got := sum / n; math.Abs(got-2) > 0.02 {
		t.Errorf("sample mean = %.4f, want 2", got)
	}
}
