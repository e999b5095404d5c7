// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

// Package snapshot persists engine snapshots in BadgerDB.
//
// Each snapshot is stored as a JSON document under a key derived from its
// capture time, and a pointer key tracks the most recent save. The store is
// written by the snapshot service and read at startup and by banditctl.
package snapshot
