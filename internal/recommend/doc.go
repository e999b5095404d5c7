// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

// Package recommend holds the shared vocabulary of the online selection engine:
// request contexts, reward kinds and events, scored arms, the learning consumer
// contract, configuration, and sentinel errors.
//
// # Architecture
//
// The engine closes a feedback loop between three parts:
//
//   - bandit: Beta-Bernoulli Thompson Sampling and a LinUCB contextual pool with
//     a cold-start fallback into the Beta pool
//   - attribution: turns raw interaction events into weighted rewards, attributes
//     them to earlier recommendations within a time window, and batches them
//   - engine: the explicit object owned by the host that wires the two together
//
// Rewards flow from the attribution tracker to registered Consumer
// implementations. The bandit selector is the default consumer.
//
// # Usage
//
//	cfg := recommend.DefaultConfig()
//	eng, err := engine.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//
//	resp, err := eng.Recommend(ctx, engine.Request{
//	    UserID:     "u-1",
//	    Candidates: []string{"a", "b", "c"},
//	    K:          2,
//	})
//
// # Thread Safety
//
// Every exported component in the subpackages is safe for concurrent use.
// Statistics for a single arm are updated under that arm's own lock, so
// updates to different arms never contend.
package recommend
