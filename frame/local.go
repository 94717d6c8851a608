package frame

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/atomic"

	"github.com/joshuapare/framekit/frame/entry"
)

const noStart = math.MaxUint64

// local is the reservation cache of one core: the frame of its last small
// and huge allocation, or noStart. Only the owning core writes it.
type local struct {
	start [2]atomic.Uint64
	_     [48]byte // pad to a cache line
}

func newLocals(cores int) []local {
	l := make([]local, cores)
	for i := range l {
		l[i].start[0].Store(noStart)
		l[i].start[1].Store(noStart)
	}
	return l
}

func slotOf(huge bool) int {
	if huge {
		return 1
	}
	return 0
}

func classOf(huge bool) Size {
	if huge {
		return Huge
	}
	return Small
}

// getLower allocates a small or huge frame from the core's reserved subtree,
// reserving a new subtree when the cached one cannot serve. With nothing
// left to reserve the frame is taken from another core's reservation.
func (a *Allocator) getLower(core int, huge bool) (int, error) {
	slot := &a.locals[core].start[slotOf(huge)]
	start := slot.Load()

	var i int
	if start == noStart {
		j, err := a.reserve(huge)
		if err != nil {
			return a.stealOn(core, huge, err)
		}
		i, start = j, uint64(j*a.geo.span)
	} else {
		i = int(start) / a.geo.span
		max := a.geo.max(i)
		_, ok := a.trees.at(i).Update(func(e entry.Entry3) (entry.Entry3, bool) {
			if !e.Reserved() {
				return e, false
			}
			return e.Dec(huge, max)
		})
		if !ok {
			j, err := a.reserve(huge)
			if err != nil {
				return a.stealOn(core, huge, err)
			}
			if err := a.unreserve(i); err != nil {
				return 0, err
			}
			i, start = j, uint64(j*a.geo.span)
		}
	}
	slot.Store(start)

	frame, err := a.lowerGet(core, int(start), huge)
	if err != nil {
		if rerr := a.release(i, huge); rerr != nil {
			a.log.Error("frame: could not return counted frame", "subtree", i, "error", rerr)
		}
		return 0, err
	}
	slot.Store(uint64(frame))
	return frame, nil
}

func (a *Allocator) lowerGet(core, start int, huge bool) (int, error) {
	if huge {
		return a.lower.GetHuge(core, start)
	}
	return a.lower.Get(core, start)
}

// stealOn falls back to steal when reserve ran out of memory.
func (a *Allocator) stealOn(core int, huge bool, err error) (int, error) {
	if !errors.Is(err, ErrMemory) {
		return 0, err
	}
	return a.steal(core, huge)
}

// steal takes one unit out of a subtree reserved by another core. The owner
// keeps its reservation and the frame does not move the core's cache.
func (a *Allocator) steal(core int, huge bool) (int, error) {
	own := -1
	if start := a.locals[core].start[slotOf(huge)].Load(); start != noStart {
		own = int(start) / a.geo.span
	}
	for i := range a.trees {
		if i == own {
			continue
		}
		max := a.geo.max(i)
		_, ok := a.trees.at(i).Update(func(e entry.Entry3) (entry.Entry3, bool) {
			if !e.Reserved() {
				return e, false
			}
			return e.Dec(huge, max)
		})
		if !ok {
			continue
		}

		frame, err := a.lowerGet(core, i*a.geo.span, huge)
		if err == nil {
			a.log.Debug("frame: stole from reserved subtree", "core", core, "subtree", i, "size", classOf(huge))
			return frame, nil
		}
		if rerr := a.release(i, huge); rerr != nil {
			a.log.Error("frame: could not return counted frame", "subtree", i, "error", rerr)
		}
		if !errors.Is(err, ErrMemory) {
			return 0, err
		}
	}
	return 0, fmt.Errorf("%w: no subtree for %s frames", ErrMemory, classOf(huge))
}

// Drain releases the subtrees cached by core so other cores can reserve
// them. The core must not allocate concurrently.
func (a *Allocator) Drain(core int) error {
	if core < 0 || core >= len(a.locals) {
		return fmt.Errorf("%w: core %d of %d", ErrInit, core, len(a.locals))
	}
	var errs []error
	for s := range a.locals[core].start {
		start := a.locals[core].start[s].Swap(noStart)
		if start == noStart {
			continue
		}
		if err := a.unreserve(int(start) / a.geo.span); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
