package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/framekit/frame"
	"github.com/joshuapare/framekit/frame/report"
	"github.com/joshuapare/framekit/internal/logger"
)

// Persistent flags shared by every command.
var (
	verbose bool
	quiet   bool
	jsonOut bool
	debug   bool
	logFile string
	cores   int
	regions int
)

var closeLog = func() error { return nil }

var rootCmd = &cobra.Command{
	Use:   "framectl",
	Short: "Format, inspect and benchmark persistent frame allocator files",
	Long: `framectl manages files holding a persistent frame allocator. It can
format a file, report the allocator state recovered from it, check its
invariants, dump the subtree directory and run synthetic workloads.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		c, err := logger.Init(logger.Options{
			Enabled: verbose || debug || logFile != "",
			Path:    logFile,
			Level:   level,
		})
		if err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		closeLog = c
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log allocator retry paths")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")
	rootCmd.PersistentFlags().IntVar(&cores, "cores", 1, "Number of cores the allocator serves")
	rootCmd.PersistentFlags().
		IntVar(&regions, "regions", 0, "Regions per subtree, 1..512 (default: recorded geometry, else 512)")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v\n", err)
		os.Exit(1)
	}
}

// printInfo writes to stdout unless --quiet is set.
func printInfo(format string, args ...any) {
	if quiet {
		return
	}
	fmt.Fprintf(os.Stdout, format, args...)
}

func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format, args...)
}

// printVerbose writes to stdout only with --verbose.
func printVerbose(format string, args ...any) {
	if !verbose || quiet {
		return
	}
	fmt.Fprintf(os.Stdout, format, args...)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printer renders reports in the selected output format.
func printer() *report.Printer {
	opts := report.DefaultOptions()
	if jsonOut {
		opts.Format = report.FormatJSON
	}
	return report.New(os.Stdout, opts)
}

// config builds the allocator configuration from the global flags.
func config() *frame.Config {
	return &frame.Config{
		RegionsPerSubtree: regions,
		Logger:            logger.L,
	}
}

// openExisting recovers the allocator stored in path. It never formats.
func openExisting(path string, cfg *frame.Config) (*frame.Allocator, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	cfg.RequireRecover = true
	printVerbose("Opening %s\n", path)
	a, err := frame.OpenFile(path, 0, cores, false, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return a, nil
}

// parseBytes parses sizes like 512M, 4G or 1048576.
func parseBytes(arg string) (int64, error) {
	s := strings.TrimSpace(strings.ToUpper(arg))
	s = strings.TrimSuffix(strings.TrimSuffix(s, "B"), "I")
	mult := int64(1)
	if n := len(s); n > 0 {
		switch s[n-1] {
		case 'K':
			mult = 1 << 10
		case 'M':
			mult = 1 << 20
		case 'G':
			mult = 1 << 30
		case 'T':
			mult = 1 << 40
		}
		if mult > 1 {
			s = s[:n-1]
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid size %q", arg)
	}
	return v * mult, nil
}
