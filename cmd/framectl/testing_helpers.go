package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// resetFlags restores every flag to its default.
func resetFlags() {
	verbose, quiet, jsonOut, debug = false, false, false, false
	logFile = ""
	cores, regions = 1, 0
	initSize, initForce = "64M", false
	verifyDeep = false
	dumpAll = false
	benchWorkload, benchThreads, benchIterations, benchRounds = "bulk", 1, 1, 10
	benchSize, benchMemory = "small", "256M"
}

// formatted returns the path of a freshly formatted 8 MiB file with
// single-region subtrees.
func formatted(t *testing.T) string {
	t.Helper()
	resetFlags()
	path := filepath.Join(t.TempDir(), "frames.bin")
	initSize, regions, quiet = "8M", 1, true
	if err := runInit([]string{path}); err != nil {
		t.Fatalf("init %s: %v", path, err)
	}
	resetFlags()
	return path
}

// captureOutput runs fn with os.Stdout redirected into a pipe and returns
// what fn printed.
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	stdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = stdout }()

	runErr := fn()
	w.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		t.Fatalf("read captured stdout: %v", err)
	}
	r.Close()
	return out.String(), runErr
}
