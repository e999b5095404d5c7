// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/rewardloop/internal/recommend/engine"
)

type fakeStore struct {
	mu      sync.Mutex
	saves   int
	err     error
	ctxErrs []error
}

func (f *fakeStore) SaveEngine(ctx context.Context, _ *engine.Engine) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	return "snapshot:1", f.err
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

func TestSnapshotService(t *testing.T) {
	tests := []struct {
		name       string
		interval   time.Duration
		saveOnStop bool
		storeErr   error
		runFor     time.Duration
		minSaves   int
		maxSaves   int
	}{
		{"no tick no stop save", time.Hour, false, nil, 30 * time.Millisecond, 0, 0},
		{"save on stop only", time.Hour, true, nil, 30 * time.Millisecond, 1, 1},
		{"periodic saves", 20 * time.Millisecond, false, nil, 110 * time.Millisecond, 3, 6},
		{"failures keep the loop alive", 20 * time.Millisecond, false, errors.New("disk full"), 110 * time.Millisecond, 3, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{err: tt.storeErr}
			svc := NewSnapshotService(store, nil, SnapshotServiceConfig{
				Interval:   tt.interval,
				SaveOnStop: tt.saveOnStop,
			}, zerolog.Nop())

			ctx, cancel := context.WithTimeout(context.Background(), tt.runFor)
			defer cancel()

			if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("Serve() = %v, want DeadlineExceeded", err)
			}
			if got := store.count(); got < tt.minSaves || got > tt.maxSaves {
				t.Errorf("saves = %d, want in [%d, %d]", got, tt.minSaves, tt.maxSaves)
			}
		})
	}
}

func TestSnapshotService_StopSaveUsesLiveContext(t *testing.T) {
	store := &fakeStore{}
	svc := NewSnapshotService(store, nil, SnapshotServiceConfig{Interval: time.Hour, SaveOnStop: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = svc.Serve(ctx)

	if len(store.ctxErrs) != 1 || store.ctxErrs[0] != nil {
		t.Errorf("stop save context errors = %v, want [nil]", store.ctxErrs)
	}
	if svc.String() != "snapshot-service" {
		t.Errorf("String() = %q", svc.String())
	}
}
