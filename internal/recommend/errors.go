// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package recommend

import "errors"

var (
	// ErrNoArmsAvailable is returned when a selection receives no candidates.
	ErrNoArmsAvailable = errors.New("no arms available")

	// ErrSingularMatrix is returned when an arm's design matrix cannot be factorized.
	ErrSingularMatrix = errors.New("design matrix is not positive definite")

	// ErrInvalidSnapshot is returned when imported state is malformed.
	ErrInvalidSnapshot = errors.New("invalid snapshot")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidEvent is returned when a reward event fails validation.
	ErrInvalidEvent = errors.New("invalid reward event")
)
