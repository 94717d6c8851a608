package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/framekit/frame/report"
)

var dumpAll bool

func init() {
	cmd := newDumpCmd()
	cmd.Flags().BoolVar(&dumpAll, "all", false, "Show entirely free subtrees too")
	rootCmd.AddCommand(cmd)
}

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "Dump the subtree directory",
		Long: `The dump command prints every subtree with its free frame count,
its flags and the free list it is on.

Example:
  framectl dump frames.bin
  framectl dump frames.bin --all
  framectl dump frames.bin --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(args)
		},
	}
	return cmd
}

func runDump(args []string) (err error) {
	a, err := openExisting(args[0], config())
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.Close()) }()

	opts := report.DefaultOptions()
	opts.AllSubtrees = dumpAll
	if jsonOut {
		opts.Format = report.FormatJSON
	}
	return report.New(os.Stdout, opts).Snapshot(a.Snapshot())
}
