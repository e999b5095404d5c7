// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

/*
Package attribution turns raw interaction events into weighted rewards and
credits them to the recommendations that caused them.

# Reward Computation

Each event kind has a weight. The raw value is transformed before weighting:

	dwell_time: value / 10          (reward per 10 seconds)
	purchase:   min(value / 100, 1) (saturating)
	otherwise:  value

Kinds absent from the weight table score 0 and are logged.

# Attribution

TrackImpression opens a PendingAttribution keyed by its recommendation id,
which is unique per shown arm. Events carrying that id add to its accumulated
reward until the window closes, and the reward is credited to the record's arm. FlushExpired removes closed records exactly
once and delivers {arm: [accumulated]} to consumers. Finalized ids are kept in
a bounded LRU so late events can be counted.

# Batching

Every tracked event, impressions included, enters a buffer. When the buffer
reaches the batch size it is swapped out under lock and delivered, grouped by
arm, to every consumer in the caller's goroutine with no lock held. A consumer
that errors or panics is logged and counted; the others still run.
*/
package attribution
