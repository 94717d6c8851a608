package entry

import "fmt"

// Entry3 layout:
//
//	bits  0-19  free      frames not allocated
//	bits 20-60  idx       free-list link while enqueued, IdxNone otherwise
//	bit  61     reserved  a core caches this subtree
//	bit  62     huge      subtree is dedicated to huge pages
//	bit  63     giant     subtree is allocated as one giant page
const (
	e3FreeBits    = 20
	e3FreeMask    = 1<<e3FreeBits - 1
	e3IdxShift    = e3FreeBits
	e3IdxBits     = 41
	e3IdxMask     = 1<<e3IdxBits - 1
	e3ReservedBit = 1 << 61
	e3HugeBit     = 1 << 62
	e3GiantBit    = 1 << 63
)

// IdxNone is the idx value of an entry that links to nothing.
const IdxNone = e3IdxMask

// MaxSubtreeFrames is the largest free count an Entry3 can represent.
const MaxSubtreeFrames = e3FreeMask

// Entry3 describes one subtree.
type Entry3 uint64

// NewEntry3 returns an unlinked subtree entry.
func NewEntry3(free int, huge, reserved bool) Entry3 {
	e := Entry3(uint64(free)&e3FreeMask | uint64(IdxNone)<<e3IdxShift)
	return e.WithHuge(huge).WithReserved(reserved)
}

// GiantEntry is the descriptor of a subtree allocated as a giant page.
func GiantEntry() Entry3 {
	return Entry3(e3GiantBit | uint64(IdxNone)<<e3IdxShift)
}

// Span returns the number of frames taken by one allocation of the class.
func Span(huge bool) int {
	if huge {
		return LeafLen
	}
	return 1
}

func (e Entry3) Free() int      { return int(e & e3FreeMask) }
func (e Entry3) Idx() uint64    { return uint64(e>>e3IdxShift) & e3IdxMask }
func (e Entry3) Reserved() bool { return e&e3ReservedBit != 0 }
func (e Entry3) Huge() bool     { return e&e3HugeBit != 0 }
func (e Entry3) Giant() bool    { return e&e3GiantBit != 0 }

func (e Entry3) WithFree(n int) Entry3 {
	return e&^e3FreeMask | Entry3(uint64(n)&e3FreeMask)
}

func (e Entry3) WithIdx(idx uint64) Entry3 {
	return e&^(e3IdxMask<<e3IdxShift) | Entry3((idx&e3IdxMask)<<e3IdxShift)
}

func (e Entry3) WithReserved(v bool) Entry3 {
	if v {
		return e | e3ReservedBit
	}
	return e &^ e3ReservedBit
}

func (e Entry3) WithHuge(v bool) Entry3 {
	if v {
		return e | e3HugeBit
	}
	return e &^ e3HugeBit
}

// Dec takes one frame (or one region if huge) out of the subtree and marks it
// reserved. A subtree serves only one size class until it is entirely free
// again; max is the clipped span of this subtree.
func (e Entry3) Dec(huge bool, max int) (Entry3, bool) {
	span := Span(huge)
	if e.Giant() || (e.Huge() != huge && e.Free() != max) || e.Free() < span {
		return e, false
	}
	return e.WithFree(e.Free() - span).WithHuge(huge).WithReserved(true), true
}

// Inc returns one frame (or region) to the subtree. Reaching max drops the
// size class dedication.
func (e Entry3) Inc(huge bool, max int) (Entry3, bool) {
	if e.Giant() || e.Huge() != huge {
		return e, false
	}
	n := e.Free() + Span(huge)
	switch {
	case n > max:
		return e, false
	case n == max:
		return e.WithFree(max).WithHuge(false), true
	default:
		return e.WithFree(n), true
	}
}

// Reserve claims the subtree for a core.
func (e Entry3) Reserve() (Entry3, bool) {
	if e.Giant() || e.Reserved() {
		return e, false
	}
	return e.WithReserved(true), true
}

// Unreserve releases a claim made by Reserve or Dec.
func (e Entry3) Unreserve() (Entry3, bool) {
	if e.Giant() || !e.Reserved() {
		return e, false
	}
	return e.WithReserved(false), true
}

// MarkGiant turns an entirely free, unreserved subtree of the full span into
// a giant page.
func (e Entry3) MarkGiant(span int) (Entry3, bool) {
	if e.Giant() || e.Reserved() || e.Free() != span {
		return e, false
	}
	return GiantEntry(), true
}

// ClearGiant turns a giant page back into an entirely free subtree.
func (e Entry3) ClearGiant(span int) (Entry3, bool) {
	if !e.Giant() {
		return e, false
	}
	return NewEntry3(span, false, false), true
}

// Valid reports whether the entry respects its invariants for a subtree of
// the given clipped span.
func (e Entry3) Valid(max int) bool {
	if e.Giant() {
		return e.Free() == 0 && !e.Reserved() && !e.Huge()
	}
	if e.Free() > max {
		return false
	}
	return !(e.Huge() && e.Free() == max)
}

func (e Entry3) String() string {
	if e.Giant() {
		return "Entry3{giant}"
	}
	idx := "-"
	if e.Idx() != IdxNone {
		idx = fmt.Sprint(e.Idx())
	}
	return fmt.Sprintf("Entry3{free: %d, idx: %s, reserved: %t, huge: %t}", e.Free(), idx, e.Reserved(), e.Huge())
}
