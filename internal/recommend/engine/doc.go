// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

// Package engine wires the bandit selector and the attribution tracker into a
// single learning loop.
//
// Recommend ranks candidates and opens a pending attribution for every arm it
// returns. ReportEvent feeds interactions back. Batched and swept rewards
// reach the Thompson Sampling pool through the selector's consumer; events
// that carry a context also update the contextual model immediately.
//
// ExportState and ImportState move the bandit state in and out as a
// versioned, JSON-compatible Snapshot. Pending attributions are process-local
// and not included.
package engine
