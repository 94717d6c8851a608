package frame

import (
	"runtime"
	"testing"

	"go.uber.org/atomic"

	"github.com/joshuapare/framekit/internal/testutil"
)

func newBenchAlloc(b *testing.B, cores, subtrees, regions int) *Allocator {
	b.Helper()
	mem := testutil.Aligned(b, totalFrames(subtrees, regions))
	a, err := New(cores, mem, true, &Config{RegionsPerSubtree: regions})
	if err != nil {
		b.Fatal(err)
	}
	return a
}

// BenchmarkGetPut_Small measures one small allocation and free on a warm
// reservation.
func BenchmarkGetPut_Small(b *testing.B) {
	a := newBenchAlloc(b, 1, 8, 4)

	b.ResetTimer()
	b.ReportAllocs()

	for range b.N {
		addr, err := a.Get(0, Small)
		if err != nil {
			b.Fatal(err)
		}
		if err := a.Put(0, addr, Small); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGetPut_Huge(b *testing.B) {
	a := newBenchAlloc(b, 1, 8, 4)

	b.ResetTimer()
	b.ReportAllocs()

	for range b.N {
		addr, err := a.Get(0, Huge)
		if err != nil {
			b.Fatal(err)
		}
		if err := a.Put(0, addr, Huge); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGetPut_Giant(b *testing.B) {
	a := newBenchAlloc(b, 1, 8, 1)

	b.ResetTimer()

	for range b.N {
		addr, err := a.Get(0, Giant)
		if err != nil {
			b.Fatal(err)
		}
		if err := a.Put(0, addr, Giant); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkGetPut_Parallel gives every goroutine its own core.
func BenchmarkGetPut_Parallel(b *testing.B) {
	cores := runtime.GOMAXPROCS(0)
	a := newBenchAlloc(b, cores, 4*cores, 1)
	var next atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		core := int(next.Inc()-1) % cores
		for pb.Next() {
			addr, err := a.Get(core, Small)
			if err != nil {
				b.Error(err)
				return
			}
			if err := a.Put(core, addr, Small); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// BenchmarkNew_Recover measures a shallow recovery of a half used range.
func BenchmarkNew_Recover(b *testing.B) {
	const subtrees, regions = 64, 2
	mem := testutil.Aligned(b, totalFrames(subtrees, regions))
	cfg := &Config{RegionsPerSubtree: regions}
	a, err := New(1, mem, true, cfg)
	if err != nil {
		b.Fatal(err)
	}
	for range subtrees * regions / 2 {
		if _, err := a.Get(0, Huge); err != nil {
			b.Fatal(err)
		}
	}
	if err := a.Close(); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()

	for range b.N {
		r, err := New(1, mem, false, cfg)
		if err != nil {
			b.Fatal(err)
		}
		if err := r.Close(); err != nil {
			b.Fatal(err)
		}
	}
}
