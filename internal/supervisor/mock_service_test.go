// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
)

// errSimulated is returned by a MockService while it has failures left.
var errSimulated = errors.New("simulated failure")

// MockService is a suture.Service for exercising the tree. It fails a fixed
// number of times and then runs until its context is canceled.
type MockService struct {
	name     string
	starts   atomic.Int32
	stops    atomic.Int32
	failures atomic.Int32
}

// NewMockService creates a mock service that fails the first failures runs.
func NewMockService(name string, failures int32) *MockService {
	m := &MockService{name: name}
	m.failures.Store(failures)
	return m
}

// Serve implements suture.Service.
func (m *MockService) Serve(ctx context.Context) error {
	m.starts.Add(1)
	defer m.stops.Add(1)

	if m.failures.Add(-1) >= 0 {
		return errSimulated
	}
	<-ctx.Done()
	return ctx.Err()
}

// Starts returns how many times Serve was called.
func (m *MockService) Starts() int32 { return m.starts.Load() }

// Stops returns how many times Serve returned.
func (m *MockService) Stops() int32 { return m.stops.Load() }

func (m *MockService) String() string { return m.name }
