// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package attribution

import (
	"math"

	"github.com/tomtom215/rewardloop/internal/recommend"
)

// Weights maps reward kinds to multipliers.
type Weights map[recommend.RewardKind]float64

// NewWeights copies a weight table. A nil table yields the defaults.
func NewWeights(table map[recommend.RewardKind]float64) Weights {
	if table == nil {
		table = recommend.DefaultWeights()
	}
	w := make(Weights, len(table))
	for kind, v := range table {
		w[kind] = v
	}
	return w
}

// Reward computes weight[kind] * transform(kind, value).
// The second return value is false when kind has no configured weight,
// in which case the reward is 0.
func (w Weights) Reward(kind recommend.RewardKind, value float64) (float64, bool) {
	weight, ok := w[kind]
	if !ok {
		return 0, false
	}
	return weight * transform(kind, value), true
}

// transform scales raw event values into reward units.
// Dwell time counts per 10 seconds; purchases saturate at 100 currency units.
func transform(kind recommend.RewardKind, value float64) float64 {
	switch kind {
	case recommend.KindDwellTime:
		return value / 10.0
	case recommend.KindPurchase:
		return math.Min(value/100.0, 1.0)
	default:
		return value
	}
}
