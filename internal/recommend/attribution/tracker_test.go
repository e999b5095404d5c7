// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package attribution

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/rewardloop/internal/recommend"
)

const eps = 1e-9

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingConsumer stores every batch it receives.
type recordingConsumer struct {
	mu      sync.Mutex
	batches []recommend.ArmRewards
}

func (r *recordingConsumer) Consume(_ context.Context, rewards recommend.ArmRewards) error {
	r.mu.Lock()
	r.batches = append(r.batches, rewards)
	r.mu.Unlock()
	return nil
}

func (r *recordingConsumer) Batches() []recommend.ArmRewards {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recommend.ArmRewards, len(r.batches))
	copy(out, r.batches)
	return out
}

func testConfig() recommend.AttributionConfig {
	cfg := recommend.DefaultConfig().Attribution
	cfg.Window = 30 * time.Minute
	return cfg
}

func newTestTracker(t *testing.T, cfg recommend.AttributionConfig, clock *fakeClock) *Tracker {
	t.Helper()
	tracker, err := NewTracker(cfg, zerolog.Nop(), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	return tracker
}

func event(arm string, kind recommend.RewardKind, value float64, recID string) recommend.RewardEvent {
	ev := recommend.NewRewardEvent("user-1", arm, kind)
	ev.Value = value
	ev.RecommendationID = recID
	return ev
}

func TestNewTracker_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 0
	if _, err := NewTracker(cfg, zerolog.Nop()); !errors.Is(err, recommend.ErrInvalidConfig) {
		t.Errorf("NewTracker() error = %v, want ErrInvalidConfig", err)
	}
}

func TestTracker_TrackEventRewards(t *testing.T) {
	tests := []struct {
		name  string
		kind  recommend.RewardKind
		value float64
		want  float64
	}{
		{"purchase half", recommend.KindPurchase, 50, 0.5},
		{"dwell 25s", recommend.KindDwellTime, 25, 0.25},
		{"click", recommend.KindClick, 1, 0.2},
		{"unknown kind", recommend.RewardKind("hover"), 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := newTestTracker(t, testConfig(), newFakeClock())
			got, err := tracker.TrackEvent(context.Background(), event("arm-a", tt.kind, tt.value, ""))
			if err != nil {
				t.Fatalf("TrackEvent() error = %v", err)
			}
			if math.Abs(got-tt.want) > eps {
				t.Errorf("TrackEvent() = %v, want %v", got, tt.want)
			}
			if stats := tracker.Stats(); stats.TotalEvents != 1 || stats.EventsByKind[tt.kind] != 1 {
				t.Errorf("Stats() = %+v, want one %s event", stats, tt.kind)
			}
		})
	}
}

func TestTracker_AttributionLifecycle(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	tracker := newTestTracker(t, testConfig(), clock)
	consumer := &recordingConsumer{}
	tracker.RegisterConsumer("recorder", consumer)

	if err := tracker.TrackImpression(ctx, "rec-1", "user-1", "arm-a", nil); err != nil {
		t.Fatalf("TrackImpression() error = %v", err)
	}

	clock.Advance(5 * time.Minute)
	if _, err := tracker.TrackEvent(ctx, event("arm-a", recommend.KindClick, 1, "rec-1")); err != nil {
		t.Fatalf("TrackEvent() error = %v", err)
	}
	if _, err := tracker.TrackEvent(ctx, event("arm-a", recommend.KindPurchase, 50, "rec-1")); err != nil {
		t.Fatalf("TrackEvent() error = %v", err)
	}

	pending, ok := tracker.Pending("rec-1")
	if !ok {
		t.Fatal("pending attribution missing")
	}
	if math.Abs(pending.AccumulatedReward-0.7) > eps {
		t.Errorf("AccumulatedReward = %v, want 0.7", pending.AccumulatedReward)
	}
	if len(pending.Events) != 2 {
		t.Errorf("len(Events) = %d, want 2", len(pending.Events))
	}

	// Nothing is due before the window closes.
	if got := tracker.FlushExpired(ctx); len(got) != 0 {
		t.Fatalf("FlushExpired() before expiry = %d records, want 0", len(got))
	}

	clock.Advance(25 * time.Minute) // exactly at expires_at
	expired := tracker.FlushExpired(ctx)
	if len(expired) != 1 {
		t.Fatalf("FlushExpired() = %d records, want 1", len(expired))
	}
	if expired[0].RecommendationID != "rec-1" || expired[0].ArmID != "arm-a" {
		t.Errorf("expired record = %+v", expired[0])
	}

	batches := consumer.Batches()
	if len(batches) != 1 {
		t.Fatalf("consumer received %d batches, want 1", len(batches))
	}
	if got := batches[0]["arm-a"]; len(got) != 1 || math.Abs(got[0]-0.7) > eps {
		t.Errorf("sweep batch = %v, want {arm-a: [0.7]}", batches[0])
	}

	if again := tracker.FlushExpired(ctx); len(again) != 0 {
		t.Errorf("second FlushExpired() = %d records, want 0", len(again))
	}

	reward, err := tracker.TrackEvent(ctx, event("arm-a", recommend.KindClick, 1, "rec-1"))
	if err != nil {
		t.Fatalf("late TrackEvent() error = %v", err)
	}
	if math.Abs(reward-0.2) > eps {
		t.Errorf("late TrackEvent() = %v, want 0.2", reward)
	}
	if _, ok := tracker.Pending("rec-1"); ok {
		t.Error("late event recreated a pending attribution")
	}

	stats := tracker.Stats()
	if stats.LateEvents != 1 {
		t.Errorf("LateEvents = %d, want 1", stats.LateEvents)
	}
	if stats.PendingCount != 0 {
		t.Errorf("PendingCount = %d, want 0", stats.PendingCount)
	}
	if len(consumer.Batches()) != 1 {
		t.Error("late event triggered another delivery")
	}
}

func TestTracker_ExpiredRecordStopsAttributingBeforeSweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	tracker := newTestTracker(t, testConfig(), clock)

	if err := tracker.TrackImpression(ctx, "rec-1", "user-1", "arm-a", nil); err != nil {
		t.Fatal(err)
	}
	clock.Advance(31 * time.Minute)

	if _, err := tracker.TrackEvent(ctx, event("arm-a", recommend.KindClick, 1, "rec-1")); err != nil {
		t.Fatal(err)
	}
	pending, ok := tracker.Pending("rec-1")
	if !ok {
		t.Fatal("expired record should remain until swept")
	}
	if pending.AccumulatedReward != 0 {
		t.Errorf("AccumulatedReward = %v, want 0", pending.AccumulatedReward)
	}
}

func TestTracker_AttributesByRecommendationID(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	tracker := newTestTracker(t, testConfig(), clock)
	consumer := &recordingConsumer{}
	tracker.RegisterConsumer("recorder", consumer)

	if err := tracker.TrackImpression(ctx, "rec-1", "user-1", "arm-a", nil); err != nil {
		t.Fatal(err)
	}
	// The event names a different arm but a live recommendation id.
	if _, err := tracker.TrackEvent(ctx, event("arm-b", recommend.KindClick, 1, "rec-1")); err != nil {
		t.Fatal(err)
	}

	pending, ok := tracker.Pending("rec-1")
	if !ok {
		t.Fatal("pending attribution missing")
	}
	if math.Abs(pending.AccumulatedReward-0.2) > eps {
		t.Errorf("AccumulatedReward = %v, want 0.2", pending.AccumulatedReward)
	}
	if len(pending.Events) != 1 || pending.Events[0].ArmID != "arm-b" {
		t.Errorf("Events = %+v, want the arm-b click", pending.Events)
	}

	clock.Advance(30 * time.Minute)
	if got := tracker.FlushExpired(ctx); len(got) != 1 {
		t.Fatalf("FlushExpired() = %d records, want 1", len(got))
	}
	batches := consumer.Batches()
	if len(batches) != 1 {
		t.Fatalf("consumer received %d batches, want 1", len(batches))
	}
	if got := batches[0]["arm-a"]; len(got) != 1 || math.Abs(got[0]-0.2) > eps {
		t.Errorf("sweep batch = %v, want {arm-a: [0.2]}", batches[0])
	}
}

func TestTracker_ImpressionReplacesOtherArm(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(t, testConfig(), newFakeClock())

	for _, arm := range []string{"arm-a", "arm-b"} {
		if err := tracker.TrackImpression(ctx, "rec-1", "user-1", arm, nil); err != nil {
			t.Fatal(err)
		}
	}

	if got := tracker.PendingCount(); got != 1 {
		t.Errorf("PendingCount() = %d, want 1", got)
	}
	pending, _ := tracker.Pending("rec-1")
	if pending.ArmID != "arm-b" {
		t.Errorf("ArmID = %q, want arm-b", pending.ArmID)
	}
}

func TestTracker_FlushAtBatchSize(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.BatchSize = 3
	tracker := newTestTracker(t, cfg, newFakeClock())
	consumer := &recordingConsumer{}
	tracker.RegisterConsumer("recorder", consumer)

	for i := 0; i < 2; i++ {
		if _, err := tracker.TrackEvent(ctx, event("arm-a", recommend.KindClick, 1, "")); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(consumer.Batches()); n != 0 {
		t.Fatalf("flushed at batch_size-1: %d batches", n)
	}
	if got := tracker.BufferSize(); got != 2 {
		t.Fatalf("BufferSize() = %d, want 2", got)
	}

	if _, err := tracker.TrackEvent(ctx, event("arm-b", recommend.KindAddToCart, 1, "")); err != nil {
		t.Fatal(err)
	}

	batches := consumer.Batches()
	if len(batches) != 1 {
		t.Fatalf("consumer received %d batches, want 1", len(batches))
	}
	if len(batches[0]["arm-a"]) != 2 || len(batches[0]["arm-b"]) != 1 {
		t.Errorf("batch = %v, want two arm-a rewards and one arm-b reward", batches[0])
	}
	if math.Abs(batches[0]["arm-b"][0]-0.5) > eps {
		t.Errorf("arm-b reward = %v, want 0.5", batches[0]["arm-b"][0])
	}

	stats := tracker.Stats()
	if stats.BufferSize != 0 {
		t.Errorf("BufferSize = %d, want 0", stats.BufferSize)
	}
	if stats.Flushes != 1 {
		t.Errorf("Flushes = %d, want 1", stats.Flushes)
	}
	if math.Abs(stats.TotalReward-0.9) > eps {
		t.Errorf("TotalReward = %v, want 0.9", stats.TotalReward)
	}
}

func TestTracker_ImpressionCountsTowardBatch(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.BatchSize = 2
	tracker := newTestTracker(t, cfg, newFakeClock())
	consumer := &recordingConsumer{}
	tracker.RegisterConsumer("recorder", consumer)

	if err := tracker.TrackImpression(ctx, "rec-1", "user-1", "arm-a", nil); err != nil {
		t.Fatal(err)
	}
	if err := tracker.TrackImpression(ctx, "rec-1", "user-1", "arm-b", nil); err != nil {
		t.Fatal(err)
	}

	batches := consumer.Batches()
	if len(batches) != 1 {
		t.Fatalf("consumer received %d batches, want 1", len(batches))
	}
	if got := batches[0]["arm-a"]; len(got) != 1 || got[0] != 0 {
		t.Errorf("impression reward = %v, want [0]", got)
	}
	if stats := tracker.Stats(); stats.EventsByKind[recommend.KindImpression] != 2 || stats.PendingCount != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestTracker_ConsumerIsolation(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.BatchSize = 1
	tracker := newTestTracker(t, cfg, newFakeClock())

	recorder := &recordingConsumer{}
	tracker.RegisterConsumer("panics", recommend.ConsumerFunc(func(context.Context, recommend.ArmRewards) error {
		panic("boom")
	}))
	tracker.RegisterConsumer("fails", recommend.ConsumerFunc(func(context.Context, recommend.ArmRewards) error {
		return errors.New("downstream unavailable")
	}))
	tracker.RegisterConsumer("recorder", recorder)

	reward, err := tracker.TrackEvent(ctx, event("arm-a", recommend.KindClick, 1, ""))
	if err != nil {
		t.Fatalf("TrackEvent() error = %v", err)
	}
	if math.Abs(reward-0.2) > eps {
		t.Errorf("TrackEvent() = %v, want 0.2", reward)
	}
	if n := len(recorder.Batches()); n != 1 {
		t.Errorf("recorder received %d batches, want 1", n)
	}
	if got := tracker.Stats().ConsumerFailures; got != 2 {
		t.Errorf("ConsumerFailures = %d, want 2", got)
	}
}

func TestTracker_ConsumersRunUnlocked(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.BatchSize = 1
	tracker := newTestTracker(t, cfg, newFakeClock())

	var (
		seen  Stats
		calls int
	)
	tracker.RegisterConsumer("reentrant", recommend.ConsumerFunc(func(ctx context.Context, _ recommend.ArmRewards) error {
		calls++
		if calls > 1 {
			return nil
		}
		// Would deadlock if the buffer or pending lock were held.
		seen = tracker.Stats()
		return tracker.TrackImpression(ctx, "rec-inner", "user-1", "arm-z", nil)
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := tracker.TrackEvent(ctx, event("arm-a", recommend.KindClick, 1, "")); err != nil {
			t.Errorf("TrackEvent() error = %v", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer invocation deadlocked")
	}
	if seen.TotalEvents < 1 {
		t.Errorf("consumer saw TotalEvents = %d", seen.TotalEvents)
	}
}

func TestTracker_ConsumerGetsCopy(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.BatchSize = 1
	tracker := newTestTracker(t, cfg, newFakeClock())

	tracker.RegisterConsumer("mutator", recommend.ConsumerFunc(func(_ context.Context, r recommend.ArmRewards) error {
		r["arm-a"][0] = 99
		delete(r, "arm-a")
		return nil
	}))
	recorder := &recordingConsumer{}
	tracker.RegisterConsumer("recorder", recorder)

	if _, err := tracker.TrackEvent(ctx, event("arm-a", recommend.KindClick, 1, "")); err != nil {
		t.Fatal(err)
	}
	batches := recorder.Batches()
	if len(batches) != 1 {
		t.Fatalf("got %d batches", len(batches))
	}
	if got := batches[0]["arm-a"]; len(got) != 1 || math.Abs(got[0]-0.2) > eps {
		t.Errorf("recorder batch = %v, want {arm-a: [0.2]}", batches[0])
	}
}

func TestTracker_InvalidInput(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(t, testConfig(), newFakeClock())

	tests := []struct {
		name string
		ev   recommend.RewardEvent
	}{
		{"missing arm", event("", recommend.KindClick, 1, "")},
		{"missing user", recommend.RewardEvent{ArmID: "arm-a", Kind: recommend.KindClick, Value: 1}},
		{"nan value", event("arm-a", recommend.KindClick, math.NaN(), "")},
		{"inf value", event("arm-a", recommend.KindDwellTime, math.Inf(1), "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tracker.TrackEvent(ctx, tt.ev); !errors.Is(err, recommend.ErrInvalidEvent) {
				t.Errorf("TrackEvent() error = %v, want ErrInvalidEvent", err)
			}
		})
	}

	if err := tracker.TrackImpression(ctx, "", "user-1", "arm-a", nil); !errors.Is(err, recommend.ErrInvalidEvent) {
		t.Errorf("TrackImpression() error = %v, want ErrInvalidEvent", err)
	}
	if stats := tracker.Stats(); stats.TotalEvents != 0 || stats.PendingCount != 0 {
		t.Errorf("invalid input mutated state: %+v", stats)
	}
}

func TestTracker_ManualFlush(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(t, testConfig(), newFakeClock())
	consumer := &recordingConsumer{}
	tracker.RegisterConsumer("recorder", consumer)

	if n := tracker.Flush(ctx); n != 0 {
		t.Errorf("Flush() on empty buffer = %d, want 0", n)
	}
	if len(consumer.Batches()) != 0 {
		t.Error("empty flush delivered a batch")
	}

	for i := 0; i < 3; i++ {
		if _, err := tracker.TrackEvent(ctx, event("arm-a", recommend.KindShare, 1, "")); err != nil {
			t.Fatal(err)
		}
	}
	if n := tracker.Flush(ctx); n != 3 {
		t.Errorf("Flush() = %d, want 3", n)
	}
	if tracker.BufferSize() != 0 {
		t.Error("buffer not cleared")
	}
	if len(consumer.Batches()) != 1 {
		t.Error("manual flush did not deliver")
	}
}

func TestTracker_ArmPerformance(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(t, testConfig(), newFakeClock())

	events := []recommend.RewardEvent{
		event("arm-a", recommend.KindClick, 1, ""),
		event("arm-a", recommend.KindPurchase, 200, ""),
		event("arm-b", recommend.KindClick, 1, ""),
	}
	for _, ev := range events {
		if _, err := tracker.TrackEvent(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	perf := tracker.ArmPerformance("arm-a")
	if perf.TotalEvents != 2 {
		t.Errorf("TotalEvents = %d, want 2", perf.TotalEvents)
	}
	if math.Abs(perf.TotalReward-1.2) > eps {
		t.Errorf("TotalReward = %v, want 1.2", perf.TotalReward)
	}
	if perf.EventsByKind[recommend.KindPurchase] != 1 {
		t.Errorf("EventsByKind = %v", perf.EventsByKind)
	}

	tracker.Flush(ctx)
	if perf := tracker.ArmPerformance("arm-a"); perf.TotalEvents != 0 {
		t.Errorf("after flush TotalEvents = %d, want 0", perf.TotalEvents)
	}
}

func TestTracker_ReplacedImpression(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	tracker := newTestTracker(t, testConfig(), clock)

	if err := tracker.TrackImpression(ctx, "rec-1", "user-1", "arm-a", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := tracker.TrackEvent(ctx, event("arm-a", recommend.KindClick, 1, "rec-1")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)
	if err := tracker.TrackImpression(ctx, "rec-1", "user-1", "arm-a", nil); err != nil {
		t.Fatal(err)
	}

	pending, ok := tracker.Pending("rec-1")
	if !ok {
		t.Fatal("pending missing")
	}
	if pending.AccumulatedReward != 0 || !pending.ShownAt.Equal(clock.Now()) {
		t.Errorf("replacement kept old state: %+v", pending)
	}
	if tracker.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1", tracker.PendingCount())
	}
}

func TestTracker_ConcurrentIngestAndSweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	cfg := testConfig()
	cfg.BatchSize = 7
	tracker := newTestTracker(t, cfg, clock)

	var (
		mu    sync.Mutex
		total int
	)
	tracker.RegisterConsumer("counter", recommend.ConsumerFunc(func(_ context.Context, r recommend.ArmRewards) error {
		mu.Lock()
		for _, values := range r {
			total += len(values)
		}
		mu.Unlock()
		return nil
	}))

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := tracker.TrackEvent(ctx, event("arm-a", recommend.KindClick, 1, "")); err != nil {
					t.Errorf("TrackEvent() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			tracker.FlushExpired(ctx)
		}
	}()
	wg.Wait()
	tracker.Flush(ctx)

	mu.Lock()
	defer mu.Unlock()
	if total != workers*perWorker {
		t.Errorf("delivered %d rewards, want %d", total, workers*perWorker)
	}
	if got := tracker.Stats().TotalEvents; got != workers*perWorker {
		t.Errorf("TotalEvents = %d, want %d", got, workers*perWorker)
	}
}
