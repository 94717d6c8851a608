package entry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntry2_Fields(t *testing.T) {
	e := NewEntry2(17, 300)
	require.Equal(t, 17, e.Free())
	require.Equal(t, 300, e.I1())
	require.False(t, e.Page())
	require.False(t, e.Giant())
	require.True(t, e.Valid())

	g := e.WithGiant(true)
	require.True(t, g.Giant())
	require.Equal(t, 17, g.Free())
	require.False(t, g.WithGiant(false).Giant())
}

func TestEntry2_Transitions(t *testing.T) {
	tests := []struct {
		name   string
		in     Entry2
		apply  func(Entry2) (Entry2, bool)
		want   Entry2
		wantOK bool
	}{
		{"dec empty region", EmptyRegion(), func(e Entry2) (Entry2, bool) { return e.Dec(0) }, NewEntry2(LeafLen-1, 0), true},
		{"dec wrong table", EmptyRegion(), func(e Entry2) (Entry2, bool) { return e.Dec(3) }, EmptyRegion(), false},
		{"dec full", NewEntry2(0, 5), func(e Entry2) (Entry2, bool) { return e.Dec(5) }, NewEntry2(0, 5), false},
		{"dec huge", HugeRegion(), func(e Entry2) (Entry2, bool) { return e.Dec(0) }, HugeRegion(), false},
		{"dec giant", EmptyRegion().WithGiant(true), func(e Entry2) (Entry2, bool) { return e.Dec(0) }, EmptyRegion().WithGiant(true), false},
		{"inc partial", NewEntry2(3, 7), func(e Entry2) (Entry2, bool) { return e.Inc(7) }, NewEntry2(4, 7), true},
		{"inc full needs rebuild", NewEntry2(0, 7), func(e Entry2) (Entry2, bool) { return e.Inc(7) }, NewEntry2(0, 7), false},
		{"inc empty", EmptyRegion(), func(e Entry2) (Entry2, bool) { return e.Inc(0) }, EmptyRegion(), false},
		{"inc moved table", NewEntry2(3, 7), func(e Entry2) (Entry2, bool) { return e.Inc(8) }, NewEntry2(3, 7), false},
		{"mark huge", EmptyRegion(), Entry2.MarkHuge, HugeRegion(), true},
		{"mark huge moved table", NewEntry2(LeafLen, 9), Entry2.MarkHuge, HugeRegion(), true},
		{"mark huge partial", NewEntry2(LeafLen-1, 0), Entry2.MarkHuge, NewEntry2(LeafLen-1, 0), false},
		{"mark huge twice", HugeRegion(), Entry2.MarkHuge, HugeRegion(), false},
		{"free huge", HugeRegion(), Entry2.FreeHuge, EmptyRegion(), true},
		{"free huge small", NewEntry2(1, 1), Entry2.FreeHuge, NewEntry2(1, 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.apply(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEntry2_Valid(t *testing.T) {
	require.True(t, HugeRegion().Valid())
	require.True(t, EmptyRegion().Valid())
	require.False(t, Entry2(1<<40).Valid())
	require.False(t, NewEntry2(LeafLen+1, 0).Valid())
	require.False(t, (HugeRegion() | 5).Valid())
}

func TestEntry3_Fields(t *testing.T) {
	e := NewEntry3(1000, true, false)
	require.Equal(t, 1000, e.Free())
	require.True(t, e.Huge())
	require.False(t, e.Reserved())
	require.Equal(t, uint64(IdxNone), e.Idx())

	e = e.WithIdx(42).WithReserved(true)
	require.Equal(t, uint64(42), e.Idx())
	require.True(t, e.Reserved())
	require.Equal(t, 1000, e.Free())
	require.True(t, e.Huge())

	g := GiantEntry()
	require.True(t, g.Giant())
	require.Equal(t, 0, g.Free())
	require.True(t, g.Valid(LeafLen))
}

func TestEntry3_Dec(t *testing.T) {
	const max = 4 * LeafLen

	e, ok := NewEntry3(max, false, false).Dec(true, max)
	require.True(t, ok)
	require.Equal(t, max-LeafLen, e.Free())
	require.True(t, e.Huge())
	require.True(t, e.Reserved())

	// A huge subtree does not serve small frames until it is free again.
	_, ok = e.Dec(false, max)
	require.False(t, ok)

	e, ok = NewEntry3(3, false, true).Dec(false, max)
	require.True(t, ok)
	require.Equal(t, 2, e.Free())

	_, ok = NewEntry3(LeafLen-1, true, false).Dec(true, max)
	require.False(t, ok, "not enough frames for a huge page")

	_, ok = NewEntry3(0, false, false).Dec(false, max)
	require.False(t, ok)

	_, ok = GiantEntry().Dec(false, max)
	require.False(t, ok)
}

func TestEntry3_Inc(t *testing.T) {
	const max = 2 * LeafLen

	e, ok := NewEntry3(0, true, true).Inc(true, max)
	require.True(t, ok)
	require.Equal(t, LeafLen, e.Free())
	require.True(t, e.Huge())

	e, ok = e.Inc(true, max)
	require.True(t, ok)
	require.Equal(t, max, e.Free())
	require.False(t, e.Huge(), "full subtree loses its size class")
	require.True(t, e.Reserved(), "inc keeps the reservation")

	_, ok = e.Inc(false, max)
	require.False(t, ok, "cannot exceed max")

	_, ok = NewEntry3(5, true, false).Inc(false, max)
	require.False(t, ok, "size class mismatch")
}

func TestEntry3_ReserveAndGiant(t *testing.T) {
	const span = LeafLen

	e, ok := NewEntry3(10, false, false).Reserve()
	require.True(t, ok)
	_, ok = e.Reserve()
	require.False(t, ok)
	e, ok = e.Unreserve()
	require.True(t, ok)
	require.False(t, e.Reserved())
	_, ok = e.Unreserve()
	require.False(t, ok)

	_, ok = NewEntry3(span-1, false, false).MarkGiant(span)
	require.False(t, ok)
	_, ok = NewEntry3(span, false, true).MarkGiant(span)
	require.False(t, ok, "reserved subtree")

	g, ok := NewEntry3(span, false, false).MarkGiant(span)
	require.True(t, ok)
	require.Equal(t, GiantEntry(), g)

	_, ok = g.Unreserve()
	require.False(t, ok)

	f, ok := g.ClearGiant(span)
	require.True(t, ok)
	require.Equal(t, NewEntry3(span, false, false), f)
	_, ok = f.ClearGiant(span)
	require.False(t, ok)
}

func TestAtomic_UpdateRejectsWithoutWrite(t *testing.T) {
	var word uint64
	a := At[Entry2](&word)
	a.Store(NewEntry2(0, 3))

	prev, ok := a.Update(func(e Entry2) (Entry2, bool) { return e.Dec(3) })
	require.False(t, ok)
	require.Equal(t, NewEntry2(0, 3), prev)
	require.Equal(t, NewEntry2(0, 3), a.Load())
}

func TestAtomic_UpdateReturnsPrevious(t *testing.T) {
	var word uint64
	a := At[Entry2](&word)
	a.Store(EmptyRegion())

	prev, ok := a.Update(func(e Entry2) (Entry2, bool) { return e.Dec(0) })
	require.True(t, ok)
	require.Equal(t, EmptyRegion(), prev)
	require.Equal(t, LeafLen-1, a.Load().Free())
}

func TestAtomic_CompareAndSwap(t *testing.T) {
	var word uint64
	a := At[Entry1](&word)

	cur, ok := a.CompareAndSwap(Page, Empty)
	require.False(t, ok)
	require.Equal(t, Empty, cur)

	_, ok = a.CompareAndSwap(Empty, Page)
	require.True(t, ok)
	require.Equal(t, Page, a.Load())
	require.Equal(t, Page, a.Swap(Empty))
}

func TestAtomic_ConcurrentDec(t *testing.T) {
	var word uint64
	a := At[Entry2](&word)
	a.Store(EmptyRegion())

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := 0
			for {
				if _, ok := a.Update(func(e Entry2) (Entry2, bool) { return e.Dec(0) }); !ok {
					break
				}
				n++
			}
			mu.Lock()
			successes += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, LeafLen, successes)
	require.Equal(t, 0, a.Load().Free())
}
