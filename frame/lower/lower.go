package lower

import (
	"fmt"
	"log/slog"
	"runtime"
	"unsafe"

	"go.uber.org/atomic"

	"github.com/joshuapare/framekit/frame/dirty"
	"github.com/joshuapare/framekit/frame/entry"
	"github.com/joshuapare/framekit/internal/logger"
	"github.com/joshuapare/framekit/internal/wait"
)

const (
	// FrameSize is the size of a small frame in bytes.
	FrameSize = 4096

	// DefaultRetries bounds every scan and CAS retry loop.
	DefaultRetries = 4

	wordSize = 8
)

// Options tunes a lower allocator.
type Options struct {
	Retries int          // Scan rounds before reporting corruption. Default: DefaultRetries
	Logger  *slog.Logger // Default: logger.L
	Wait    wait.Hook    // Interleaving hook, tests only

	// Dirty receives every metadata frame the allocator writes. Optional.
	Dirty dirty.DirtyTracker
}

// claim is the per-core marker of the leaf table a core is about to use.
// Padded to its own cache line.
type claim struct {
	v atomic.Uint64
	_ [56]byte
}

// Alloc manages the regions and leaf tables of all subtrees.
type Alloc struct {
	mem     []byte
	base    unsafe.Pointer
	frames  int
	tables  int
	regions int
	retries int
	claims  []claim
	log     *slog.Logger
	wait    wait.Hook
	dirty   dirty.DirtyTracker
}

// New creates a lower allocator over mem. frames is the number of data
// frames (a multiple of entry.LeafLen), tables the frame number of the first
// region table and regions the number of regions per subtree.
func New(mem []byte, frames, tables, regions, cores int, opts Options) (*Alloc, error) {
	if frames <= 0 || frames%entry.LeafLen != 0 {
		return nil, fmt.Errorf("%w: %d data frames is not a multiple of %d", ErrInit, frames, entry.LeafLen)
	}
	if regions <= 0 || regions > entry.LeafLen {
		return nil, fmt.Errorf("%w: %d regions per subtree (want 1..%d)", ErrInit, regions, entry.LeafLen)
	}
	if cores <= 0 {
		return nil, fmt.Errorf("%w: %d cores", ErrInit, cores)
	}
	subtrees := (frames + regions*entry.LeafLen - 1) / (regions * entry.LeafLen)
	if tables < frames || (tables+subtrees)*FrameSize > len(mem) {
		return nil, fmt.Errorf("%w: region tables at frame %d do not fit", ErrInit, tables)
	}
	retries := opts.Retries
	if retries <= 0 {
		retries = DefaultRetries
	}
	return &Alloc{
		mem:     mem,
		base:    unsafe.Pointer(unsafe.SliceData(mem)),
		frames:  frames,
		tables:  tables,
		regions: regions,
		retries: retries,
		claims:  make([]claim, cores),
		log:     logger.Or(opts.Logger),
		wait:    opts.Wait,
		dirty:   opts.Dirty,
	}, nil
}

// Frames returns the number of data frames.
func (a *Alloc) Frames() int { return a.frames }

// Span returns the number of frames in a full subtree.
func (a *Alloc) Span() int { return a.regions * entry.LeafLen }

// Regions returns the number of regions in the subtree starting at start.
// Only the last subtree can have fewer than the configured count.
func (a *Alloc) Regions(start int) int {
	base := start - start%a.Span()
	return min(a.regions, (a.frames-base)/entry.LeafLen)
}

func (a *Alloc) region(frame int) entry.Atomic[entry.Entry2] {
	span := a.Span()
	subtree := frame / span
	r := frame % span / entry.LeafLen
	off := uintptr(a.tables+subtree)*FrameSize + uintptr(r)*wordSize
	return entry.AtOffset[entry.Entry2](a.base, off)
}

func (a *Alloc) leaf(table, slot int) entry.Atomic[entry.Entry1] {
	off := uintptr(table)*FrameSize + uintptr(slot)*wordSize
	return entry.AtOffset[entry.Entry1](a.base, off)
}

// touch reports the frame as modified metadata.
func (a *Alloc) touch(frame int) {
	if a.dirty != nil {
		a.dirty.Add(frame*FrameSize, FrameSize)
	}
}

// touchRegion reports the region table frame holding frame's region entry.
func (a *Alloc) touchRegion(frame int) {
	a.touch(a.tables + frame/a.Span())
}

func regionBase(frame int) int {
	return frame &^ (entry.LeafLen - 1)
}

// claimOf derives the non-zero claim marker of a leaf table frame.
func claimOf(table int) uint64 {
	return ^uint64(table)
}

// Clear resets every region to empty with its leaf table in slot 0.
func (a *Alloc) Clear() {
	for r := 0; r < a.frames; r += entry.LeafLen {
		a.clearTable(r)
		a.region(r).Store(entry.EmptyRegion())
		a.touchRegion(r)
	}
}

func (a *Alloc) clearTable(table int) {
	for j := 0; j < entry.LeafLen; j++ {
		a.leaf(table, j).Store(entry.Empty)
	}
	a.touch(table)
}

// Get allocates one small frame in the subtree containing start, scanning
// regions from the one holding start.
func (a *Alloc) Get(core, start int) (int, error) {
	base := start - start%a.Span()
	n := a.Regions(base)
	first := (start - base) / entry.LeafLen
	hint := start % entry.LeafLen

	for attempt := 0; attempt < a.retries; attempt++ {
		for k := 0; k < n; k++ {
			r := (first + k) % n
			rbase := base + r*entry.LeafLen
			pte := a.region(rbase)

			a.wait.Call(core)

			e2 := pte.Load()
			if e2.Page() || e2.Giant() || e2.Free() == 0 {
				continue
			}

			a.claims[core].v.Store(claimOf(rbase + e2.I1()))

			a.wait.Call(core)

			old, ok := pte.Update(func(e entry.Entry2) (entry.Entry2, bool) { return e.Dec(e2.I1()) })
			if !ok {
				a.claims[core].v.Store(0)
				continue
			}
			a.touchRegion(rbase)

			var (
				frame int
				err   error
			)
			if old.Free() == 1 {
				frame, err = a.getLast(core, old, rbase)
			} else {
				if r != first {
					hint = 0
				}
				frame, err = a.getTable(core, old, rbase, hint)
			}
			a.claims[core].v.Store(0)
			return frame, err
		}
	}
	a.log.Error("lower: no region with free frames", "subtree", base/a.Span(), "start", start)
	return 0, fmt.Errorf("%w: no free frame found in subtree %d", ErrCorruption, base/a.Span())
}

// getTable takes a free slot from the region's leaf table. The region
// counter has already been decremented for it.
func (a *Alloc) getTable(core int, e2 entry.Entry2, rbase, hint int) (int, error) {
	table := rbase + e2.I1()

	for attempt := 0; attempt < a.retries; attempt++ {
		for k := 0; k < entry.LeafLen; k++ {
			slot := (hint + k) % entry.LeafLen
			if slot == e2.I1() {
				continue
			}
			leaf := a.leaf(table, slot)
			if leaf.Load() != entry.Empty {
				continue
			}

			a.wait.Call(core)

			if _, ok := leaf.CompareAndSwap(entry.Empty, entry.Page); ok {
				a.touch(table)
				return rbase + slot, nil
			}
		}
		// A concurrent free may have counted its frame but not yet cleared the leaf.
		a.log.Debug("lower: no free leaf, retrying", "region", rbase/entry.LeafLen)
		a.wait.Call(core)
		runtime.Gosched()
	}
	a.log.Error("lower: leaf table exhausted", "region", rbase/entry.LeafLen, "entry", e2)
	return 0, fmt.Errorf("%w: no free leaf in region %d", ErrCorruption, rbase/entry.LeafLen)
}

// getLast hands out the frame that holds the region's leaf table. It waits
// until no other core is still working with that table.
func (a *Alloc) getLast(core int, e2 entry.Entry2, rbase int) (int, error) {
	table := rbase + e2.I1()
	marker := claimOf(table)

	a.wait.Call(core)

	for other := range a.claims {
		if other == core {
			continue
		}
		for a.claims[other].v.Load() == marker {
			a.log.Debug("lower: waiting for core to leave table", "core", other, "table", table)
			a.wait.Call(core)
			runtime.Gosched()
		}
	}

	if _, ok := a.leaf(table, e2.I1()).CompareAndSwap(entry.Empty, entry.Page); !ok {
		a.log.Error("lower: table slot not empty", "region", rbase/entry.LeafLen, "entry", e2)
		return 0, fmt.Errorf("%w: leaf table slot of region %d in use", ErrCorruption, rbase/entry.LeafLen)
	}
	a.touch(table)
	return table, nil
}

// GetHuge allocates one entirely free region of the subtree containing start.
func (a *Alloc) GetHuge(core, start int) (int, error) {
	base := start - start%a.Span()
	n := a.Regions(base)
	first := (start - base) / entry.LeafLen

	for attempt := 0; attempt < a.retries; attempt++ {
		for k := 0; k < n; k++ {
			rbase := base + (first+k)%n*entry.LeafLen

			a.wait.Call(core)

			if _, ok := a.region(rbase).Update(entry.Entry2.MarkHuge); ok {
				a.touchRegion(rbase)
				return rbase, nil
			}
		}
	}
	a.log.Error("lower: no free region", "subtree", base/a.Span())
	return 0, fmt.Errorf("%w: no free region in subtree %d", ErrCorruption, base/a.Span())
}

// Put frees a small frame or, if huge, a huge frame. The size class must
// match the allocation; otherwise ErrAddress is returned and nothing changes.
func (a *Alloc) Put(core, frame int, huge bool) error {
	if frame < 0 || frame >= a.frames {
		return fmt.Errorf("%w: frame %d out of range", ErrAddress, frame)
	}
	rbase := regionBase(frame)
	pte := a.region(rbase)

	a.wait.Call(core)

	old := pte.Load()
	if huge {
		if !old.Page() || frame != rbase {
			return fmt.Errorf("%w: frame %d is not a huge page", ErrAddress, frame)
		}
		a.clearTable(rbase)
		if _, ok := pte.CompareAndSwap(old, entry.EmptyRegion()); !ok {
			a.log.Error("lower: huge page changed while freeing", "region", rbase/entry.LeafLen)
			return fmt.Errorf("%w: huge region %d changed concurrently", ErrCorruption, rbase/entry.LeafLen)
		}
		a.touchRegion(rbase)
		return nil
	}

	if old.Page() || old.Giant() || old.Free() == entry.LeafLen {
		return fmt.Errorf("%w: frame %d is not an allocated small frame", ErrAddress, frame)
	}
	if old.Free() == 0 {
		return a.putFull(core, old, frame)
	}
	return a.putSmall(core, old, frame)
}

func (a *Alloc) putSmall(core int, e2 entry.Entry2, frame int) error {
	rbase := regionBase(frame)
	slot := frame - rbase
	if slot == e2.I1() {
		return fmt.Errorf("%w: frame %d holds a leaf table", ErrAddress, frame)
	}

	table := rbase + e2.I1()
	leaf := a.leaf(table, slot)
	if leaf.Load() != entry.Page {
		return fmt.Errorf("%w: frame %d is not allocated", ErrAddress, frame)
	}

	// Keep the table frame from being handed out before the leaf is cleared.
	a.claims[core].v.Store(claimOf(table))
	defer a.claims[core].v.Store(0)

	a.wait.Call(core)

	if cur, ok := a.region(rbase).Update(func(e entry.Entry2) (entry.Entry2, bool) { return e.Inc(e2.I1()) }); !ok {
		if cur.Free() == entry.LeafLen {
			return fmt.Errorf("%w: frame %d is not allocated", ErrAddress, frame)
		}
		a.log.Debug("lower: region changed while freeing", "frame", frame, "entry", cur)
		return ErrRetry
	}

	a.wait.Call(core)

	if _, ok := leaf.CompareAndSwap(entry.Page, entry.Empty); !ok {
		a.log.Error("lower: leaf changed while freeing", "frame", frame)
		return fmt.Errorf("%w: leaf of frame %d changed concurrently", ErrCorruption, frame)
	}
	a.touchRegion(rbase)
	a.touch(table)
	return nil
}

// putFull frees a frame of a fully allocated region. The region has no leaf
// table, so the freed frame becomes the new table with only itself empty.
func (a *Alloc) putFull(core int, e2 entry.Entry2, frame int) error {
	rbase := regionBase(frame)
	slot := frame - rbase

	a.wait.Call(core)

	for j := 0; j < entry.LeafLen; j++ {
		v := entry.Page
		if j == slot {
			v = entry.Empty
		}
		a.leaf(frame, j).Store(v)
	}

	if cur, ok := a.region(rbase).CompareAndSwap(e2, entry.NewEntry2(1, slot)); !ok {
		a.log.Debug("lower: full region changed while rebuilding table", "frame", frame, "entry", cur)
		return ErrRetry
	}
	a.touch(frame)
	a.touchRegion(rbase)
	return nil
}

// PersistGiant records on region 0 that the subtree at start is a giant page,
// so recovery does not need to look at the (overwritten) leaf tables.
func (a *Alloc) PersistGiant(start int) {
	a.region(start).Store(entry.EmptyRegion().WithGiant(true))
	a.touchRegion(start)
}

// IsGiant reports whether the giant persist marker is set for start's subtree.
func (a *Alloc) IsGiant(start int) bool {
	return a.region(start - start%a.Span()).Load().Giant()
}

// ClearGiant resets every region of a freed giant subtree. The persist marker
// on region 0 is cleared last.
func (a *Alloc) ClearGiant(start int) {
	n := a.Regions(start)
	for r := n - 1; r >= 0; r-- {
		rbase := start + r*entry.LeafLen
		a.clearTable(rbase)
		a.region(rbase).Store(entry.EmptyRegion())
	}
	a.touchRegion(start)
}

// IsFree reports whether the frame (or, if huge, the region starting at
// frame) is free at the region and leaf level. The frame holding a region's
// leaf table counts as free: it is the region's last free frame and Get
// hands it out once every other frame is taken.
func (a *Alloc) IsFree(frame int, huge bool) bool {
	if frame < 0 || frame >= a.frames {
		return false
	}
	rbase := regionBase(frame)
	e2 := a.region(rbase).Load()
	if e2.Page() || e2.Giant() {
		return false
	}
	if huge {
		return frame == rbase && e2.Free() == entry.LeafLen
	}
	switch e2.Free() {
	case entry.LeafLen:
		return true
	case 0:
		return false
	}
	return a.leaf(rbase+e2.I1(), frame-rbase).Load() == entry.Empty
}

// Region returns the entry of the region containing frame.
func (a *Alloc) Region(frame int) entry.Entry2 {
	return a.region(regionBase(frame)).Load()
}

// Leaf returns the leaf word of frame, if its region has a leaf table.
func (a *Alloc) Leaf(frame int) (entry.Entry1, bool) {
	rbase := regionBase(frame)
	e2 := a.region(rbase).Load()
	if !e2.HasTable() {
		return entry.Empty, false
	}
	return a.leaf(rbase+e2.I1(), frame-rbase).Load(), true
}

// TableLeaf reads slot of the leaf table stored in frame table. The caller
// must know that table currently holds a leaf table.
func (a *Alloc) TableLeaf(table, slot int) entry.Entry1 {
	return a.leaf(table, slot).Load()
}
