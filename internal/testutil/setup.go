// Package testutil provides managed memory ranges for allocator tests.
package testutil

import (
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/joshuapare/framekit/internal/mmfile"
)

// FrameSize is the alignment every managed range needs.
const FrameSize = 4096

// Aligned returns a zeroed, frame aligned range of n frames backed by the Go
// heap. The range stays alive as long as the returned slice is referenced.
func Aligned(t testing.TB, n int) []byte {
	t.Helper()
	raw := make([]byte, (n+1)*FrameSize)
	off := FrameSize - int(uintptr(unsafe.Pointer(&raw[0]))%FrameSize)
	if off == FrameSize {
		off = 0
	}
	return raw[off : off+n*FrameSize : off+n*FrameSize]
}

// MapFile maps a fresh file of n frames in a temporary directory. The
// mapping is released when the test ends. It returns the range and the
// file path so tests can map the same file again.
func MapFile(t testing.TB, n int) ([]byte, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frames.bin")
	return Remap(t, path, n), path
}

// Remap maps the file at path, growing it to n frames if needed.
func Remap(t testing.TB, path string, n int) []byte {
	t.Helper()
	data, cleanup, err := mmfile.Map(path, int64(n)*FrameSize)
	if err != nil {
		t.Fatalf("map %s: %v", path, err)
	}
	t.Cleanup(func() {
		if err := cleanup(); err != nil {
			t.Errorf("unmap %s: %v", path, err)
		}
	})
	return data
}

// Misaligned returns a range of n frames that starts one byte past a frame
// boundary.
func Misaligned(t testing.TB, n int) []byte {
	t.Helper()
	buf := Aligned(t, n+1)
	return buf[1 : 1+n*FrameSize]
}
