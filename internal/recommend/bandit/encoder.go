// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package bandit

import (
	"math"

	"github.com/tomtom215/rewardloop/internal/recommend"
)

// cyclicPeriods lists features encoded as a (sin, cos) pair and their period.
var cyclicPeriods = map[string]float64{
	recommend.FeatureTimeOfDay: 24,
	recommend.FeatureDayOfWeek: 7,
}

// sessionDepthScale normalizes session depth into [0, 1].
const sessionDepthScale = 10.0

// ContextEncoder maps a request context onto a fixed-length feature vector.
// The layout is fixed at construction by the ordered feature names.
type ContextEncoder struct {
	names []string
	dim   int
}

// NewContextEncoder creates an encoder for the given feature names.
func NewContextEncoder(names []string) *ContextEncoder {
	dim := 0
	for _, name := range names {
		if _, ok := cyclicPeriods[name]; ok {
			dim += 2
		} else {
			dim++
		}
	}
	if dim < 1 {
		dim = 1
	}
	return &ContextEncoder{
		names: append([]string(nil), names...),
		dim:   dim,
	}
}

// Dimension returns the length of encoded vectors.
func (e *ContextEncoder) Dimension() int {
	return e.dim
}

// FeatureNames returns a copy of the declared feature names.
func (e *ContextEncoder) FeatureNames() []string {
	return append([]string(nil), e.names...)
}

// Encode returns the feature vector for c. A nil context encodes to zeros.
func (e *ContextEncoder) Encode(c *recommend.Context) []float64 {
	x := make([]float64, e.dim)
	if c == nil {
		return x
	}

	i := 0
	for _, name := range e.names {
		if period, ok := cyclicPeriods[name]; ok {
			if v := cyclicValue(c, name); v != nil {
				angle := 2 * math.Pi * *v / period
				x[i] = math.Sin(angle)
				x[i+1] = math.Cos(angle)
			}
			i += 2
			continue
		}

		switch {
		case name == recommend.FeatureSessionDepth:
			if c.SessionDepth != nil {
				x[i] = math.Min(*c.SessionDepth/sessionDepthScale, 1.0)
			}
		default:
			if v, ok := c.Custom[name]; ok {
				x[i] = v
			}
		}
		i++
	}
	return x
}

func cyclicValue(c *recommend.Context, name string) *float64 {
	if name == recommend.FeatureTimeOfDay {
		return c.TimeOfDay
	}
	return c.DayOfWeek
}
