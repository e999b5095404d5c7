// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tomtom215/rewardloop/internal/recommend/engine"
	"github.com/tomtom215/rewardloop/internal/snapshot"
)

const defaultSnapshotPath = "/data/rewardloop/snapshots"

// options holds the global flags.
type options struct {
	path    string
	asJSON  bool
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "banditctl",
		Short: "Inspect Rewardloop bandit snapshots",
		Long: `Reads the BadgerDB snapshot store written by the Rewardloop server and
prints saved snapshots, the exploitation ranking and per-arm state.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.path, "path", "p", defaultSnapshotPath, "Snapshot store directory")
	rootCmd.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "Print JSON instead of tables")
	rootCmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Log store activity to stderr")

	rootCmd.AddCommand(snapshotCmd(opts))
	rootCmd.AddCommand(rankingCmd(opts))
	rootCmd.AddCommand(armCmd(opts))
	return rootCmd
}

func snapshotCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "List and show saved snapshots",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved snapshots, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(ctx context.Context, store *snapshot.Store) error {
				infos, err := store.List(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.asJSON {
					return writeJSON(out, infos)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "KEY\tCAPTURED AT\tSIZE")
				for _, info := range infos {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", info.Key, info.CapturedAt.Format("2006-01-02T15:04:05Z07:00"), info.Size)
				}
				return tw.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show [key]",
		Short: "Show a snapshot (latest when no key is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(ctx context.Context, store *snapshot.Store) error {
				snap, err := loadSnapshot(ctx, store, args)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.asJSON {
					return writeJSON(out, snap)
				}

				b := snap.Bandit
				fmt.Fprintf(out, "=== Snapshot ===\n")
				fmt.Fprintf(out, "Version:      %d\n", snap.Version)
				fmt.Fprintf(out, "Captured at:  %s\n", snap.CapturedAt.Format("2006-01-02T15:04:05Z07:00"))
				coldStart := "default"
				if b.ColdStartPulls != nil {
					coldStart = strconv.Itoa(*b.ColdStartPulls)
				}
				fmt.Fprintf(out, "Mode:         %s (alpha %.3f, cold start %s)\n", b.Mode, b.Alpha, coldStart)
				fmt.Fprintf(out, "Features:     %v\n", b.FeatureNames)
				fmt.Fprintf(out, "Beta arms:    %d\n", len(b.Beta.Arms))
				fmt.Fprintf(out, "Linear arms:  %d\n", len(b.Arms))
				return nil
			})
		},
	})
	return cmd
}

func rankingCmd(opts *options) *cobra.Command {
	var limit int
	var key string

	cmd := &cobra.Command{
		Use:   "ranking",
		Short: "Print arms by posterior mean, best first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must be non-negative, got %d", limit)
			}
			return withEngine(cmd, opts, key, func(e *engine.Engine) error {
				ranking := e.Ranking(limit)
				out := cmd.OutOrStdout()
				if opts.asJSON {
					return writeJSON(out, ranking)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RANK\tARM\tMEAN\tPULLS")
				for i, arm := range ranking {
					stats, _ := e.ArmStats(arm.ArmID)
					var pulls int64
					if stats.Thompson != nil {
						pulls = stats.Thompson.TotalPulls
					}
					fmt.Fprintf(tw, "%d\t%s\t%.4f\t%d\n", i+1, arm.ArmID, arm.Score, pulls)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum arms to print (0 = all)")
	cmd.Flags().StringVar(&key, "key", "", "Snapshot key (default: latest)")
	return cmd
}

func armCmd(opts *options) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "arm <id>",
		Short: "Show the Beta and linear state of one arm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, key, func(e *engine.Engine) error {
				stats, ok := e.ArmStats(args[0])
				if !ok {
					return fmt.Errorf("arm %q not found in snapshot", args[0])
				}
				out := cmd.OutOrStdout()
				if opts.asJSON {
					return writeJSON(out, stats)
				}

				fmt.Fprintf(out, "=== Arm %s ===\n", stats.ArmID)
				if t := stats.Thompson; t != nil {
					fmt.Fprintf(out, "Beta:         alpha %.4f  beta %.4f\n", t.Alpha, t.Beta)
					fmt.Fprintf(out, "Mean reward:  %.4f (variance %.6f)\n", t.MeanReward, t.Variance)
					fmt.Fprintf(out, "Pulls:        %d (total reward %.4f)\n", t.TotalPulls, t.TotalReward)
				}
				if c := stats.Contextual; c != nil {
					fmt.Fprintf(out, "Contextual:   %d pulls, mean %.4f\n", c.TotalPulls, c.MeanReward)
					fmt.Fprintf(out, "Theta:        %s\n", formatVector(c.Theta))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Snapshot key (default: latest)")
	return cmd
}

// withStore opens the snapshot store for the duration of fn.
func withStore(cmd *cobra.Command, opts *options, fn func(context.Context, *snapshot.Store) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := zerolog.Nop()
	if opts.verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()
	}

	store, err := snapshot.Open(snapshot.Config{Path: opts.path}, logger)
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}
	defer func() { _ = store.Close() }()
	return fn(ctx, store)
}

// withEngine restores a snapshot into a fresh engine and passes it to fn.
func withEngine(cmd *cobra.Command, opts *options, key string, fn func(*engine.Engine) error) error {
	return withStore(cmd, opts, func(ctx context.Context, store *snapshot.Store) error {
		var args []string
		if key != "" {
			args = []string{key}
		}
		snap, err := loadSnapshot(ctx, store, args)
		if err != nil {
			return err
		}
		e, err := engine.New(nil, zerolog.Nop())
		if err != nil {
			return err
		}
		if err := e.ImportState(snap); err != nil {
			return fmt.Errorf("failed to import snapshot: %w", err)
		}
		return fn(e)
	})
}

func loadSnapshot(ctx context.Context, store *snapshot.Store, args []string) (engine.Snapshot, error) {
	if len(args) == 1 {
		return store.Load(ctx, args[0])
	}
	return store.Latest(ctx)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'f', 4, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
