package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatsCmd())
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <file>",
		Short: "Show allocator statistics",
		Long: `The stats command recovers the allocator stored in a file and prints
how many frames are in use, the subtree states and the free list lengths.
With --verbose it also prints the recovery report.

Example:
  framectl stats frames.bin
  framectl stats frames.bin --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(args)
		},
	}
	return cmd
}

func runStats(args []string) (err error) {
	a, err := openExisting(args[0], config())
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.Close()) }()

	p := printer()
	if verbose && !jsonOut {
		if err := p.Recovery(a.Report()); err != nil {
			return err
		}
		printInfo("\n")
	}
	if quiet {
		return nil
	}
	return p.Stats(a.Stats())
}
