// Package stack implements an intrusive lock-free stack over an index arena.
//
// Nodes are indices into an external array; the "next" link of every node is
// stored by the arena itself (for subtree descriptors it is the idx field of
// the Entry3 word), so the stack needs no storage besides its head word.
//
// The head packs a 32-bit ABA tag above the 32-bit top index. Every successful
// push or pop bumps the tag, so a pop that read a stale next link cannot
// succeed after the top was popped and pushed again.
package stack

import (
	"iter"

	"go.uber.org/atomic"
)

// None terminates a list.
const None uint64 = 1<<32 - 1

const (
	idxMask  = None
	tagShift = 32
)

// Arena stores the next link of every node.
type Arena interface {
	// Link returns the next link of node i.
	Link(i uint64) uint64
	// SetLink updates the next link of node i.
	SetLink(i, next uint64)
}

// Stack is a Treiber stack of arena indices.
type Stack struct {
	head atomic.Uint64
}

// New returns an empty stack.
func New() *Stack {
	s := &Stack{}
	s.head.Store(None)
	return s
}

func pack(tag, idx uint64) uint64 {
	return tag<<tagShift | idx&idxMask
}

// Push adds node i on top. i must not be on any stack.
func (s *Stack) Push(a Arena, i uint64) {
	for {
		h := s.head.Load()
		a.SetLink(i, h&idxMask)
		if s.head.CompareAndSwap(h, pack(h>>tagShift+1, i)) {
			return
		}
	}
}

// Pop removes and returns the top node.
func (s *Stack) Pop(a Arena) (uint64, bool) {
	for {
		h := s.head.Load()
		top := h & idxMask
		if top == None {
			return 0, false
		}
		next := a.Link(top)
		if s.head.CompareAndSwap(h, pack(h>>tagShift+1, next)) {
			return top, true
		}
	}
}

// Empty reports whether the stack has no nodes.
func (s *Stack) Empty() bool {
	return s.head.Load()&idxMask == None
}

// Clear drops all nodes without touching their links.
func (s *Stack) Clear() {
	for {
		h := s.head.Load()
		if s.head.CompareAndSwap(h, pack(h>>tagShift+1, None)) {
			return
		}
	}
}

// All walks the stack from top to bottom. The walk is only meaningful while
// no other goroutine pushes or pops; it stops after limit nodes so a corrupted
// (cyclic) list cannot loop forever.
func (s *Stack) All(a Arena, limit int) iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		i := s.head.Load() & idxMask
		for n := 0; i != None && n < limit; n++ {
			if !yield(i) {
				return
			}
			i = a.Link(i)
		}
	}
}
