// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

/*
Package services provides suture.Service wrappers for Rewardloop components.

Each wrapper turns a component's periodic or blocking work into suture's
context-aware Serve pattern and names itself through fmt.Stringer.

# Available Services

SweepService:
  - Calls FlushExpired every attribution flush interval
  - Recovers sweep panics, logs them and retries on the next tick
  - Performs a final sweep and buffer flush on shutdown

DecayService:
  - Calls ApplyDecay every decay interval

SnapshotService:
  - Saves the engine state to the BadgerDB snapshot store on an interval
  - Optionally saves once more on shutdown

HTTPServerService:
  - Wraps the ops *http.Server (/metrics, /healthz) with graceful shutdown
*/
package services
