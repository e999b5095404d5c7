// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

// Command banditctl inspects the bandit snapshots written by the Rewardloop
// server. It opens the BadgerDB snapshot directory directly, so run it
// against a stopped server's directory or a copy of it.
//
//	banditctl --path /data/rewardloop/snapshots snapshot list
//	banditctl snapshot show
//	banditctl ranking --limit 10
//	banditctl arm product-42 --json
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
