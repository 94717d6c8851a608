package frame

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/framekit/frame/dirty"
)

func TestOpenFile_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.bin")
	size := int64(totalFrames(2, 1)) * FrameSize
	cfg := &Config{RegionsPerSubtree: 1}

	a, err := OpenFile(path, size, 1, true, cfg)
	require.NoError(t, err)
	require.Equal(t, ModeSetup, a.Report().Mode)
	require.Positive(t, a.Pending())
	require.NoError(t, a.Sync(context.Background(), dirty.FlushAuto))
	require.Zero(t, a.Pending())

	small, err := a.Get(0, Small)
	require.NoError(t, err)
	huge, err := a.Get(0, Huge)
	require.NoError(t, err)
	smallOff := small - a.base
	hugeOff := huge - a.base
	require.Positive(t, a.Pending())

	buf, err := a.Frame(small, Small)
	require.NoError(t, err)
	copy(buf, "payload")
	require.NoError(t, a.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, size, info.Size())

	b, err := OpenFile(path, 0, 1, false, cfg)
	require.NoError(t, err)
	defer b.Close()
	require.Equal(t, ModeRecover, b.Report().Mode)
	require.Equal(t, 1+512, b.AllocatedPages())
	require.False(t, b.IsFree(b.base+smallOff, Small))
	require.False(t, b.IsFree(b.base+hugeOff, Huge))

	buf, err = b.Frame(b.base+smallOff, Small)
	require.NoError(t, err)
	require.Equal(t, "payload", string(buf[:7]))

	require.NoError(t, b.Put(0, b.base+smallOff, Small))
	require.NoError(t, b.Put(0, b.base+hugeOff, Huge))
	require.Zero(t, b.AllocatedPages())
}

func TestOpenFile_UncleanClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.bin")
	size := int64(totalFrames(2, 1)) * FrameSize
	cfg := &Config{RegionsPerSubtree: 1}

	a, err := OpenFile(path, size, 1, true, cfg)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := a.Get(0, Small)
		require.NoError(t, err)
	}
	// Flush and unmap without marking the session finished.
	require.NoError(t, a.file.close())

	b, err := OpenFile(path, 0, 1, false, cfg)
	require.NoError(t, err)
	defer b.Close()
	require.Equal(t, ModeDeepRecover, b.Report().Mode)
	require.Empty(t, b.Report().Corrections)
	require.Equal(t, 10, b.AllocatedPages())
}

func TestOpenFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := OpenFile(filepath.Join(dir, "missing", "frames.bin"), FrameSize*2048, 1, true, nil)
	require.ErrorIs(t, err, ErrInit)

	_, err = OpenFile(filepath.Join(dir, "small.bin"), FrameSize*16, 1, true, nil)
	require.ErrorIs(t, err, ErrInit)
}

func TestSync_MemoryBacked(t *testing.T) {
	a, _ := newTestAlloc(t, 1, 1, nil)
	require.NoError(t, a.Sync(context.Background(), dirty.FlushFull))
	require.Zero(t, a.Pending())
}
