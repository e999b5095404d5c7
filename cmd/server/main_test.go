// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package main

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/rewardloop/internal/config"
	"github.com/tomtom215/rewardloop/internal/recommend/engine"
	"github.com/tomtom215/rewardloop/internal/snapshot"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv(config.ConfigPathEnvVar, "")
	t.Setenv("SNAPSHOT_PATH", t.TempDir())
	t.Setenv("OPS_ADDR", "127.0.0.1:0")
	t.Setenv("REWARD_FLUSH_INTERVAL", "20ms")

	cfg, err := config.LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	return cfg
}

func TestRestoreLatest_EmptyStore(t *testing.T) {
	cfg := testConfig(t)
	store, err := snapshot.Open(cfg.SnapshotStore(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	eng, err := engine.New(cfg.Recommend(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := restoreLatest(context.Background(), store, eng, zerolog.Nop()); err != nil {
		t.Errorf("restoreLatest() on empty store = %v, want nil", err)
	}
}

func TestRun_SavesFinalSnapshotAndRestores(t *testing.T) {
	cfg := testConfig(t)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := run(ctx, cfg, zerolog.Nop()); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	store, err := snapshot.Open(cfg.SnapshotStore(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	infos, err := store.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 {
		t.Fatalf("snapshots after run = %d, want exactly the final one", len(infos))
	}

	eng, err := engine.New(cfg.Recommend(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := restoreLatest(context.Background(), store, eng, zerolog.Nop()); err != nil {
		t.Errorf("restoreLatest() = %v", err)
	}
}
