// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package recommend

import (
	"context"
	"time"
)

// Context carries the request signals used by the contextual bandit.
// Optional numeric signals are pointers so that an absent value can be
// told apart from an explicit zero.
type Context struct {
	// UserID identifies the requesting user. It is not encoded into features.
	UserID string `json:"user_id,omitempty"`

	// TimeOfDay is the hour of day in [0, 24).
	TimeOfDay *float64 `json:"time_of_day,omitempty"`

	// DayOfWeek is the day index in [0, 7).
	DayOfWeek *float64 `json:"day_of_week,omitempty"`

	// SessionDepth is the number of items already seen in this session.
	SessionDepth *float64 `json:"session_depth,omitempty"`

	// Custom holds caller-defined features passed through verbatim.
	Custom map[string]float64 `json:"custom,omitempty"`
}

// Float returns a pointer to v. It keeps Context literals short.
func Float(v float64) *float64 {
	return &v
}

// Clone returns a deep copy of the context, or nil for a nil receiver.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out := &Context{UserID: c.UserID}
	if c.TimeOfDay != nil {
		out.TimeOfDay = Float(*c.TimeOfDay)
	}
	if c.DayOfWeek != nil {
		out.DayOfWeek = Float(*c.DayOfWeek)
	}
	if c.SessionDepth != nil {
		out.SessionDepth = Float(*c.SessionDepth)
	}
	if c.Custom != nil {
		out.Custom = make(map[string]float64, len(c.Custom))
		for k, v := range c.Custom {
			out.Custom[k] = v
		}
	}
	return out
}

// RewardKind names a category of user interaction.
type RewardKind string

// Reward kinds understood by the default weight table.
const (
	KindImpression RewardKind = "impression"
	KindClick      RewardKind = "click"
	KindAddToCart  RewardKind = "add_to_cart"
	KindPurchase   RewardKind = "purchase"
	KindBid        RewardKind = "bid"
	KindWishlist   RewardKind = "wishlist"
	KindShare      RewardKind = "share"
	KindDwellTime  RewardKind = "dwell_time"
)

// AllKinds lists the built-in reward kinds in a stable order.
var AllKinds = []RewardKind{
	KindImpression,
	KindClick,
	KindAddToCart,
	KindPurchase,
	KindBid,
	KindWishlist,
	KindShare,
	KindDwellTime,
}

// RewardEvent is a single interaction reported against an arm.
type RewardEvent struct {
	UserID string     `json:"user_id" validate:"required"`
	ArmID  string     `json:"arm_id" validate:"required"`
	Kind   RewardKind `json:"kind" validate:"required"`

	// Value is the raw magnitude of the event: seconds for dwell time,
	// currency units for purchases, 1 for plain occurrences.
	Value float64 `json:"value" validate:"finite"`

	Context   *Context  `json:"context,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// RecommendationID ties the event to an earlier impression. Optional.
	RecommendationID string `json:"recommendation_id,omitempty"`
}

// NewRewardEvent builds an event with the conventional raw value of 1.
func NewRewardEvent(userID, armID string, kind RewardKind) RewardEvent {
	return RewardEvent{
		UserID: userID,
		ArmID:  armID,
		Kind:   kind,
		Value:  1.0,
	}
}

// ScoredArm is an arm together with the score that ranked it.
type ScoredArm struct {
	ArmID string  `json:"arm_id"`
	Score float64 `json:"score"`
}

// ArmReward pairs an arm with a single reward observation.
type ArmReward struct {
	ArmID  string  `json:"arm_id"`
	Reward float64 `json:"reward"`
}

// ArmRewards groups finalized reward values by arm, in arrival order.
type ArmRewards map[string][]float64

// Clone returns an independent copy so consumers cannot alias tracker state.
func (r ArmRewards) Clone() ArmRewards {
	out := make(ArmRewards, len(r))
	for arm, values := range r {
		out[arm] = append([]float64(nil), values...)
	}
	return out
}

// Consumer receives batches of finalized rewards.
// Implementations must be safe for concurrent use.
type Consumer interface {
	Consume(ctx context.Context, rewards ArmRewards) error
}

// ConsumerFunc adapts a plain function into a Consumer.
type ConsumerFunc func(ctx context.Context, rewards ArmRewards) error

// Consume calls f.
func (f ConsumerFunc) Consume(ctx context.Context, rewards ArmRewards) error {
	return f(ctx, rewards)
}
