package frame

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"unsafe"

	"go.uber.org/atomic"

	"github.com/joshuapare/framekit/frame/entry"
	"github.com/joshuapare/framekit/frame/lower"
	"github.com/joshuapare/framekit/frame/stack"
	"github.com/joshuapare/framekit/internal/logger"
)

// Allocator hands out frames of a persistent range to a fixed number of
// cores. All methods are safe for concurrent use as long as every core
// index is used by one goroutine at a time.
type Allocator struct {
	mem    []byte
	base   uint64
	cfg    Config
	geo    layout
	meta   meta
	lower  *lower.Alloc
	trees  trees
	lists  [listCount]*stack.Stack
	locals []local
	log    *slog.Logger
	report RecoveryReport
	file   *backing
	closed atomic.Bool
}

// New creates an allocator over mem for the given number of cores.
//
// mem must be frame aligned and a multiple of FrameSize. Its last frame
// holds the persistent header. If overwrite is set, or the header does not
// describe mem, the range is formatted. Otherwise the previous state is
// recovered, recounting every leaf table if the previous session did not
// Close. A zero RegionsPerSubtree adopts the geometry recorded in the header.
func New(cores int, mem []byte, overwrite bool, cfg *Config) (*Allocator, error) {
	if !overwrite && (cfg == nil || cfg.RegionsPerSubtree == 0) {
		if r, ok := persistedRegions(mem); ok {
			var adopted Config
			if cfg != nil {
				adopted = *cfg
			}
			adopted.RegionsPerSubtree = r
			cfg = &adopted
		}
	}
	c, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if cores <= 0 {
		return nil, fmt.Errorf("%w: %d cores", ErrInit, cores)
	}
	if len(mem) == 0 || len(mem)%FrameSize != 0 {
		return nil, fmt.Errorf("%w: range of %d bytes is not a multiple of %d", ErrInit, len(mem), FrameSize)
	}
	base := unsafe.Pointer(unsafe.SliceData(mem))
	if uintptr(base)%FrameSize != 0 {
		return nil, fmt.Errorf("%w: range at %#x is not frame aligned", ErrInit, uintptr(base))
	}

	geo := newLayout(len(mem)/FrameSize, c.RegionsPerSubtree)
	if geo.frames < cores*entry.LeafLen {
		return nil, fmt.Errorf("%w: %d data frames, %d cores need at least %d", ErrInit, geo.frames, cores, cores*entry.LeafLen)
	}

	log := logger.Or(c.Logger)
	low, err := lower.New(mem, geo.frames, geo.tables, c.RegionsPerSubtree, cores, lower.Options{
		Retries: c.Retries,
		Logger:  log,
		Dirty:   c.Dirty,
	})
	if err != nil {
		return nil, err
	}

	a := &Allocator{
		mem:    mem,
		base:   uint64(uintptr(base)),
		cfg:    c,
		geo:    geo,
		meta:   metaAt(base, geo.meta),
		lower:  low,
		trees:  make(trees, geo.subtrees),
		locals: newLocals(cores),
		log:    log,
	}
	for l := range a.lists {
		a.lists[l] = stack.New()
	}

	switch {
	case overwrite || !a.meta.matches(geo, c.RegionsPerSubtree):
		if !overwrite && c.RequireRecover {
			return nil, fmt.Errorf("%w: no allocator state to recover for %s", ErrInit, geo)
		}
		a.setup()
	default:
		if err := a.recover(a.meta.active() || c.ForceDeep); err != nil {
			return nil, err
		}
	}

	a.meta.setActive(true)
	a.touchMeta()
	return a, nil
}

func (a *Allocator) touchMeta() {
	if a.cfg.Dirty != nil {
		a.cfg.Dirty.Add(a.geo.meta*FrameSize, FrameSize)
	}
}

func (a *Allocator) checkCore(core int) error {
	if core < 0 || core >= len(a.locals) {
		return fmt.Errorf("%w: core %d of %d", ErrInit, core, len(a.locals))
	}
	return nil
}

// Get allocates one unit of the given size and returns its address.
func (a *Allocator) Get(core int, size Size) (uint64, error) {
	if err := a.checkCore(core); err != nil {
		return 0, err
	}
	var (
		frame int
		err   error
	)
	switch size {
	case Small, Huge:
		frame, err = a.getLower(core, size == Huge)
	case Giant:
		frame, err = a.getGiant()
	default:
		return 0, fmt.Errorf("%w: unknown size %s", ErrAddress, size)
	}
	if err != nil {
		return 0, err
	}
	return a.base + uint64(frame)*FrameSize, nil
}

// frameOf converts an address into a data frame number.
func (a *Allocator) frameOf(addr uint64) (int, error) {
	if addr < a.base || (addr-a.base)%FrameSize != 0 {
		return 0, fmt.Errorf("%w: %#x is not a frame of this range", ErrAddress, addr)
	}
	frame := (addr - a.base) / FrameSize
	if frame >= uint64(a.geo.frames) {
		return 0, fmt.Errorf("%w: %#x is past the last data frame", ErrAddress, addr)
	}
	return int(frame), nil
}

// Put frees the unit at addr. size must be the size it was allocated with.
func (a *Allocator) Put(core int, addr uint64, size Size) error {
	if err := a.checkCore(core); err != nil {
		return err
	}
	if !size.valid() {
		return fmt.Errorf("%w: unknown size %s", ErrAddress, size)
	}
	frame, err := a.frameOf(addr)
	if err != nil {
		return err
	}
	if size == Giant {
		return a.putGiant(frame)
	}

	huge := size == Huge
	i := frame / a.geo.span
	e := a.trees.at(i).Load()
	switch {
	case e.Giant():
		return fmt.Errorf("%w: %#x lies in a giant frame", ErrAddress, addr)
	case e.Free() == a.geo.max(i):
		return fmt.Errorf("%w: %#x is not allocated", ErrAddress, addr)
	case e.Huge() != huge:
		return fmt.Errorf("%w: %#x was not allocated as %s", ErrAddress, addr, size)
	}

	for attempt := 0; ; attempt++ {
		err = a.lower.Put(core, frame, huge)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrRetry) || attempt+1 >= a.cfg.Retries {
			return err
		}
	}
	return a.release(i, huge)
}

// Pages returns the number of data frames.
func (a *Allocator) Pages() int {
	return a.geo.frames
}

// AllocatedPages returns the number of allocated data frames. It scans the
// whole directory.
func (a *Allocator) AllocatedPages() int {
	n := a.geo.frames
	for i := range a.trees {
		if e := a.trees.at(i).Load(); !e.Giant() {
			n -= e.Free()
		}
	}
	return n
}

// IsFree reports whether the unit of the given size at addr is free.
func (a *Allocator) IsFree(addr uint64, size Size) bool {
	frame, err := a.frameOf(addr)
	if err != nil || !size.valid() {
		return false
	}
	i := frame / a.geo.span
	e := a.trees.at(i).Load()
	if e.Giant() {
		return false
	}
	if size == Giant {
		return frame%a.geo.span == 0 && a.geo.max(i) == a.geo.span && e.Free() == a.geo.span
	}
	return a.lower.IsFree(frame, size == Huge)
}

// Frame returns the bytes of the unit at addr.
func (a *Allocator) Frame(addr uint64, size Size) ([]byte, error) {
	frame, err := a.frameOf(addr)
	if err != nil {
		return nil, err
	}
	n := size.Frames(a.cfg.RegionsPerSubtree)
	if n == 0 || frame%n != 0 || frame+n > a.geo.frames {
		return nil, fmt.Errorf("%w: %#x is not a %s frame", ErrAddress, addr, size)
	}
	off := frame * FrameSize
	return a.mem[off : off+n*FrameSize : off+n*FrameSize], nil
}

// Subtrees iterates over the subtree directory.
func (a *Allocator) Subtrees() iter.Seq2[int, entry.Entry3] {
	return func(yield func(int, entry.Entry3) bool) {
		for i := range a.trees {
			if !yield(i, a.trees.at(i).Load()) {
				return
			}
		}
	}
}

// Cores returns the number of cores the allocator was created for.
func (a *Allocator) Cores() int { return len(a.locals) }

// RegionsPerSubtree returns the configured subtree size in regions.
func (a *Allocator) RegionsPerSubtree() int { return a.cfg.RegionsPerSubtree }

// Report describes how the allocator was initialized.
func (a *Allocator) Report() RecoveryReport { return a.report }

// Lower exposes the region level for diagnostics.
func (a *Allocator) Lower() *lower.Alloc { return a.lower }

// Close marks the session as cleanly finished so the next New trusts the
// persisted counters. A file backed allocator is flushed and unmapped. The
// allocator must not be used afterwards.
func (a *Allocator) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	a.meta.setActive(false)
	a.touchMeta()
	if a.file != nil {
		return a.file.close()
	}
	return nil
}
