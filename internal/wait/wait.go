// Package wait provides a deterministic interleaving hook for concurrency tests.
//
// The allocator calls its hook at every point where another core could
// observe or change shared state. Production allocators run with a nil hook.
// Tests install a Sequencer to force one specific ordering of those points
// across goroutines.
package wait

import "sync"

// Hook is invoked by the allocator at interleaving points with the calling core.
type Hook func(core int)

// Call invokes h if it is set.
func (h Hook) Call(core int) {
	if h != nil {
		h(core)
	}
}

// Sequencer lets cores pass interleaving points in a fixed order.
//
// order lists the core allowed to pass the next point. A core arriving out of
// turn blocks until its turn comes. Once the order is exhausted, or every
// remaining step belongs to cores that called Done, all cores run freely.
type Sequencer struct {
	mu    sync.Mutex
	cond  *sync.Cond
	order []int
	pos   int
	done  map[int]bool
	trace []int
}

// NewSequencer returns a sequencer enforcing order.
func NewSequencer(order []int) *Sequencer {
	s := &Sequencer{
		order: append([]int(nil), order...),
		done:  make(map[int]bool),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Wait blocks until core may pass the next interleaving point.
func (s *Sequencer) Wait(core int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		for s.pos < len(s.order) && s.done[s.order[s.pos]] {
			s.pos++
		}
		if s.pos >= len(s.order) {
			return
		}
		if s.order[s.pos] == core {
			s.pos++
			s.trace = append(s.trace, core)
			s.cond.Broadcast()
			return
		}
		s.cond.Wait()
	}
}

// Done marks core as finished so its remaining steps are skipped.
func (s *Sequencer) Done(core int) {
	s.mu.Lock()
	s.done[core] = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Hook returns the sequencer as an allocator hook.
func (s *Sequencer) Hook() Hook {
	return s.Wait
}

// Trace returns the cores that passed an interleaving point while the order
// was being enforced, in the order they passed.
func (s *Sequencer) Trace() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.trace...)
}

// Consumed returns how many steps of the order have been passed or skipped.
func (s *Sequencer) Consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}
