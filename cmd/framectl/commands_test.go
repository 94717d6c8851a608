package main

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/framekit/frame"
)

func TestInitCommand(t *testing.T) {
	resetFlags()
	path := filepath.Join(t.TempDir(), "frames.bin")
	initSize, regions = "8M", 1

	output, err := captureOutput(t, func() error { return runInit([]string{path}) })
	require.NoError(t, err)
	require.Contains(t, output, "Formatted "+path)
	require.Contains(t, output, "Frames:   1536")
	require.Contains(t, output, "Subtrees: 3 of 1 regions")

	_, err = captureOutput(t, func() error { return runInit([]string{path}) })
	require.ErrorContains(t, err, "already exists")

	initForce, jsonOut = true, true
	output, err = captureOutput(t, func() error { return runInit([]string{path}) })
	require.NoError(t, err)
	var res initResult
	require.NoError(t, json.Unmarshal([]byte(output), &res))
	require.Equal(t, int64(8<<20), res.Size)
	require.Equal(t, 1536, res.Frames)

	initSize = "lots"
	_, err = captureOutput(t, func() error { return runInit([]string{path}) })
	require.ErrorContains(t, err, "invalid size")
}

func TestStatsCommand(t *testing.T) {
	path := formatted(t)

	jsonOut = true
	output, err := captureOutput(t, func() error { return runStats([]string{path}) })
	require.NoError(t, err)
	var st frame.Stats
	require.NoError(t, json.Unmarshal([]byte(output), &st))
	require.Equal(t, 1536, st.Frames)
	require.Equal(t, 1536, st.FreeFrames)
	require.Equal(t, 1, st.RegionsPerSubtree)
	require.Equal(t, 3, st.EmptyList)

	jsonOut, verbose = false, true
	output, err = captureOutput(t, func() error { return runStats([]string{path}) })
	require.NoError(t, err)
	require.Contains(t, output, "Mode:             recover")
	require.Contains(t, output, "Free:             1,536 (100%)")

	_, err = captureOutput(t, func() error { return runStats([]string{filepath.Join(t.TempDir(), "none.bin")}) })
	require.Error(t, err)
}

func TestVerifyCommand(t *testing.T) {
	path := formatted(t)

	output, err := captureOutput(t, func() error { return runVerify([]string{path}) })
	require.NoError(t, err)
	require.Contains(t, output, "Result: ✓ VALID")
	require.NotContains(t, output, "Leaf tables")

	verifyDeep, jsonOut = true, true
	output, err = captureOutput(t, func() error { return runVerify([]string{path}) })
	require.NoError(t, err)
	var res map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(output), &res))
	require.Equal(t, true, res["valid"])
	require.Equal(t, "deep-recover", res["mode"])
}

func TestDumpCommand(t *testing.T) {
	path := formatted(t)

	output, err := captureOutput(t, func() error { return runDump([]string{path}) })
	require.NoError(t, err)
	require.Contains(t, output, "SUBTREE")
	require.Contains(t, output, "(3 empty subtrees not shown)")

	dumpAll = true
	output, err = captureOutput(t, func() error { return runDump([]string{path}) })
	require.NoError(t, err)
	require.NotContains(t, output, "not shown")
	require.Contains(t, output, "empty")
}

func TestBenchCommand(t *testing.T) {
	tests := []struct {
		workload string
		size     string
		memory   string
		threads  int
	}{
		{"bulk", "small", "8M", 2},
		{"bulk", "huge", "16M", 2},
		{"repeat", "small", "8M", 2},
		{"rand", "small", "8M", 2},
	}
	for _, tt := range tests {
		t.Run(tt.workload+"/"+tt.size, func(t *testing.T) {
			resetFlags()
			path := filepath.Join(t.TempDir(), "bench.bin")
			benchWorkload, benchSize, benchThreads = tt.workload, tt.size, tt.threads
			benchMemory, benchRounds, benchIterations = tt.memory, 2, 2
			regions, jsonOut = 1, true

			output, err := captureOutput(t, func() error { return runBench([]string{path}) })
			require.NoError(t, err)
			var results []benchResult
			require.NoError(t, json.Unmarshal([]byte(output), &results))
			require.Len(t, results, 2)
			for _, r := range results {
				require.Equal(t, tt.workload, r.Workload)
				require.Positive(t, r.Allocs)
			}
			if tt.workload == "rand" {
				require.Len(t, results[0].FreeHuge, 3)
			}
		})
	}

	resetFlags()
	benchWorkload = "chaos"
	require.ErrorContains(t, runBench(nil), "unknown workload")
	resetFlags()
	benchWorkload, benchSize = "rand", "huge"
	require.ErrorContains(t, runBench(nil), "only allocates small")
	resetFlags()
	benchSize, benchMemory, regions = "giant", "8M", 0
	_, err := captureOutput(t, func() error { return runBench(nil) })
	require.ErrorContains(t, err, "too small")
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"4096", 4096},
		{"64M", 64 << 20},
		{"4g", 4 << 30},
		{"2GiB", 2 << 30},
		{"1T", 1 << 40},
	}
	for _, tt := range tests {
		got, err := parseBytes(tt.in)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
	for _, bad := range []string{"", "M", "-1", "12X"} {
		_, err := parseBytes(bad)
		require.Error(t, err, bad)
	}
}
