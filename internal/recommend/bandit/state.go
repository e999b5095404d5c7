// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package bandit

import "github.com/tomtom215/rewardloop/internal/recommend"

// BetaPoolState is the serializable form of a BetaArmPool.
type BetaPoolState struct {
	PriorAlpha  float64                 `json:"prior_alpha"`
	PriorBeta   float64                 `json:"prior_beta"`
	DecayFactor float64                 `json:"decay_factor"`
	Arms        map[string]BetaArmState `json:"arms"`
}

// BetaArmState is the serializable form of one Beta arm.
type BetaArmState struct {
	Alpha       float64 `json:"alpha"`
	Beta        float64 `json:"beta"`
	TotalPulls  int64   `json:"total_pulls"`
	TotalReward float64 `json:"total_reward"`
}

// LinearPoolState is the serializable form of a LinearArmPool.
// theta is not stored; it is recomputed from A and b on import. A nil
// ColdStartPulls keeps the importing pool's threshold.
type LinearPoolState struct {
	FeatureNames   []string                  `json:"feature_names"`
	Alpha          float64                   `json:"alpha"`
	Mode           recommend.Mode            `json:"mode"`
	ColdStartPulls *int                      `json:"cold_start_pulls,omitempty"`
	Arms           map[string]LinearArmState `json:"arms"`
	Beta           BetaPoolState             `json:"beta"`
}

// LinearArmState is the serializable form of one linear arm.
type LinearArmState struct {
	A           [][]float64 `json:"A"`
	B           []float64   `json:"b"`
	TotalPulls  int64       `json:"total_pulls"`
	TotalReward float64     `json:"total_reward"`
}
