package frame

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/framekit/frame/entry"
	"github.com/joshuapare/framekit/frame/lower"
	"github.com/joshuapare/framekit/internal/testutil"
)

type unit struct {
	addr uint64
	size Size
}

// populate allocates a mix of sizes and returns what it got.
func populate(t *testing.T, a *Allocator) []unit {
	t.Helper()
	var out []unit
	for _, size := range []Size{Small, Small, Small, Huge, Small, Giant, Huge} {
		addr, err := a.Get(0, size)
		require.NoError(t, err)
		out = append(out, unit{addr, size})
	}
	return out
}

func TestRecover_CleanShutdown(t *testing.T) {
	cfg := &Config{RegionsPerSubtree: 2}
	mem := testutil.Aligned(t, totalFrames(6, 2))

	a, err := New(1, mem, true, cfg)
	require.NoError(t, err)
	units := populate(t, a)
	allocated := a.AllocatedPages()
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	b, err := New(1, mem, false, cfg)
	require.NoError(t, err)
	r := b.Report()
	require.Equal(t, ModeRecover, r.Mode)
	require.Equal(t, 6, r.Subtrees)
	require.Equal(t, 1, r.Giant)
	require.Equal(t, 1, r.Huge)
	require.Empty(t, r.Corrections)
	require.Equal(t, b.Pages()-allocated, r.Free)
	require.Equal(t, allocated, b.AllocatedPages())

	for i, e := range b.Subtrees() {
		require.False(t, e.Reserved(), "subtree %d", i)
		require.True(t, e.Valid(b.geo.max(i)), "subtree %d", i)
	}
	for _, u := range units {
		require.False(t, b.IsFree(u.addr, u.size))
	}
	for _, u := range units {
		require.NoError(t, b.Put(0, u.addr, u.size), "%s at %#x", u.size, u.addr)
	}
	require.Zero(t, b.AllocatedPages())
}

func TestRecover_ListsFreeSubtrees(t *testing.T) {
	cfg := &Config{RegionsPerSubtree: 1}
	mem := testutil.Aligned(t, totalFrames(4, 1))

	a, err := New(1, mem, true, cfg)
	require.NoError(t, err)
	for i := 0; i < entry.LeafLen+10; i++ {
		_, err := a.Get(0, Small)
		require.NoError(t, err)
	}
	require.NoError(t, a.Close())

	b, err := New(1, mem, false, cfg)
	require.NoError(t, err)
	s := b.Snapshot()
	require.Equal(t, []int{1}, s.PartialSmall)
	require.Equal(t, []int{2, 3}, s.Empty)
	require.Zero(t, s.Subtrees[0].Free())
	require.Equal(t, entry.LeafLen-10, s.Subtrees[1].Free())
}

func TestRecover_DeepAfterCrash(t *testing.T) {
	cfg := &Config{RegionsPerSubtree: 2}
	mem := testutil.Aligned(t, totalFrames(3, 2))

	a, err := New(1, mem, true, cfg)
	require.NoError(t, err)
	const k = 40
	for i := 0; i < k; i++ {
		_, err := a.Get(0, Small)
		require.NoError(t, err)
	}
	e2 := a.Lower().Region(0)
	require.Equal(t, entry.LeafLen-k, e2.Free())

	// Lose the last updates of the region counter, as a crash between the
	// counter and the leaf writes would.
	off := a.geo.tables * FrameSize
	*(*uint64)(unsafe.Pointer(&mem[off])) = uint64(entry.NewEntry2(e2.Free()+3, e2.I1()))
	// No Close: the header still says active.

	b, err := New(1, mem, false, cfg)
	require.NoError(t, err)
	r := b.Report()
	require.Equal(t, ModeDeepRecover, r.Mode)
	require.Equal(t, []lower.Correction{{Region: 0, Stored: entry.LeafLen - k + 3, Actual: entry.LeafLen - k}}, r.Corrections)
	require.Equal(t, k, b.AllocatedPages())
	require.Equal(t, entry.LeafLen-k, b.Lower().Region(0).Free())
}

func TestRecover_ShallowTrustsCounters(t *testing.T) {
	cfg := &Config{RegionsPerSubtree: 1}
	mem := testutil.Aligned(t, totalFrames(2, 1))

	a, err := New(1, mem, true, cfg)
	require.NoError(t, err)
	_, err = a.Get(0, Small)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := New(1, mem, false, cfg)
	require.NoError(t, err)
	require.Equal(t, ModeRecover, b.Report().Mode)
	require.NoError(t, b.Close())

	c, err := New(1, mem, false, &Config{RegionsPerSubtree: 1, ForceDeep: true})
	require.NoError(t, err)
	require.Equal(t, ModeDeepRecover, c.Report().Mode)
	require.Equal(t, 1, c.AllocatedPages())
}

func TestRecover_HeaderMismatch(t *testing.T) {
	mem := testutil.Aligned(t, totalFrames(4, 1))

	_, err := New(1, mem, false, &Config{RegionsPerSubtree: 1, RequireRecover: true})
	require.ErrorIs(t, err, ErrInit, "unformatted range")

	a, err := New(1, mem, false, &Config{RegionsPerSubtree: 1})
	require.NoError(t, err)
	require.Equal(t, ModeSetup, a.Report().Mode)
	_, err = a.Get(0, Small)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	// A different geometry cannot reuse the persisted tables.
	_, err = New(1, mem, false, &Config{RegionsPerSubtree: 2, RequireRecover: true})
	require.ErrorIs(t, err, ErrInit)

	b, err := New(1, mem, false, &Config{RegionsPerSubtree: 2})
	require.NoError(t, err)
	require.Equal(t, ModeSetup, b.Report().Mode)
	require.Zero(t, b.AllocatedPages())
	require.NoError(t, b.Close())

	c, err := New(1, mem, false, &Config{RegionsPerSubtree: 2, RequireRecover: true})
	require.NoError(t, err)
	require.Equal(t, ModeRecover, c.Report().Mode)
}

func TestRecover_Overwrite(t *testing.T) {
	cfg := &Config{RegionsPerSubtree: 1}
	mem := testutil.Aligned(t, totalFrames(2, 1))

	a, err := New(1, mem, true, cfg)
	require.NoError(t, err)
	_, err = a.Get(0, Giant)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := New(1, mem, true, cfg)
	require.NoError(t, err)
	require.Equal(t, ModeSetup, b.Report().Mode)
	require.Zero(t, b.AllocatedPages())
	require.False(t, b.Lower().IsGiant(0))
}

func TestRecover_MixedSubtreeIsCorrupt(t *testing.T) {
	cfg := &Config{RegionsPerSubtree: 2}
	mem := testutil.Aligned(t, totalFrames(1, 2))

	a, err := New(1, mem, true, cfg)
	require.NoError(t, err)
	_, err = a.Get(0, Small)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	// Turn the untouched second region into a huge page.
	off := a.geo.tables*FrameSize + 8
	*(*uint64)(unsafe.Pointer(&mem[off])) = uint64(entry.HugeRegion())

	_, err = New(1, mem, false, cfg)
	require.ErrorIs(t, err, ErrCorruption)
}

func TestRecover_AdoptsPersistedGeometry(t *testing.T) {
	mem := testutil.Aligned(t, totalFrames(4, 1))

	a, err := New(1, mem, true, &Config{RegionsPerSubtree: 1})
	require.NoError(t, err)
	_, err = a.Get(0, Small)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := New(1, mem, false, nil)
	require.NoError(t, err)
	require.Equal(t, ModeRecover, b.Report().Mode)
	require.Equal(t, 1, b.RegionsPerSubtree())
	require.Equal(t, 1, b.AllocatedPages())
	require.NoError(t, b.Close())

	// Overwriting ignores the header.
	c, err := New(1, mem, true, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultRegionsPerSubtree, c.RegionsPerSubtree())
}
