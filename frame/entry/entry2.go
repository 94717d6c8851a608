package entry

import "fmt"

const (
	// LeafBits is log2 of the number of frames per region.
	LeafBits = 9
	// LeafLen is the number of frames in a region, and the number of
	// Entry1 words in a leaf table. 512 words of 8 bytes fill one frame.
	LeafLen = 1 << LeafBits
)

// Entry2 layout:
//
//	bits  0-9   free   frames not allocated (0..LeafLen)
//	bits 10-18  i1     slot of the frame holding the leaf table
//	bit  19     page   region is allocated as one huge page
//	bit  20     giant  persist marker of a giant subtree (region 0 only)
const (
	e2FreeBits  = 10
	e2FreeMask  = 1<<e2FreeBits - 1
	e2I1Shift   = e2FreeBits
	e2I1Mask    = LeafLen - 1
	e2PageBit   = 1 << 19
	e2GiantBit  = 1 << 20
	e2UsedMask  = e2PageBit | e2GiantBit | e2I1Mask<<e2I1Shift | e2FreeMask
	e2FreeLimit = LeafLen
)

// Entry2 describes one region.
type Entry2 uint64

// NewEntry2 returns a small-page region entry with the given free count and
// leaf table slot. Out of range values are truncated to the field width.
func NewEntry2(free, i1 int) Entry2 {
	return Entry2(uint64(free)&e2FreeMask | (uint64(i1)&e2I1Mask)<<e2I1Shift)
}

// EmptyRegion is an entirely free region whose leaf table sits in slot 0.
func EmptyRegion() Entry2 {
	return NewEntry2(LeafLen, 0)
}

// HugeRegion is a region allocated as a single huge page.
func HugeRegion() Entry2 {
	return Entry2(e2PageBit)
}

func (e Entry2) Free() int   { return int(e & e2FreeMask) }
func (e Entry2) I1() int     { return int(e>>e2I1Shift) & e2I1Mask }
func (e Entry2) Page() bool  { return e&e2PageBit != 0 }
func (e Entry2) Giant() bool { return e&e2GiantBit != 0 }

// WithGiant sets or clears the giant persist marker.
func (e Entry2) WithGiant(v bool) Entry2 {
	if v {
		return e | e2GiantBit
	}
	return e &^ e2GiantBit
}

// HasTable reports whether the region currently owns a leaf table, which is
// the case for every small-page region that is not fully allocated.
func (e Entry2) HasTable() bool {
	return !e.Page() && !e.Giant() && e.Free() > 0
}

// Dec takes one frame out of the region. The leaf table slot must still be i1,
// otherwise the table moved since the caller looked at it.
func (e Entry2) Dec(i1 int) (Entry2, bool) {
	if e.Page() || e.Giant() || e.I1() != i1 || e.Free() == 0 {
		return e, false
	}
	return e - 1, true
}

// Inc returns one frame to a region that still has a leaf table.
// A fully allocated region has no table and must be rebuilt instead.
func (e Entry2) Inc(i1 int) (Entry2, bool) {
	if e.Page() || e.Giant() || e.I1() != i1 || e.Free() == 0 || e.Free() >= LeafLen {
		return e, false
	}
	return e + 1, true
}

// MarkHuge turns an entirely free region into a huge page.
func (e Entry2) MarkHuge() (Entry2, bool) {
	if e.Page() || e.Giant() || e.Free() != LeafLen {
		return e, false
	}
	return HugeRegion(), true
}

// FreeHuge turns a huge page back into an empty region.
func (e Entry2) FreeHuge() (Entry2, bool) {
	if !e.Page() || e.Giant() {
		return e, false
	}
	return EmptyRegion(), true
}

// Valid reports whether the entry respects its field bounds.
func (e Entry2) Valid() bool {
	if uint64(e)&^e2UsedMask != 0 {
		return false
	}
	if e.Page() {
		return e.Free() == 0 && e.I1() == 0
	}
	return e.Free() <= e2FreeLimit
}

func (e Entry2) String() string {
	return fmt.Sprintf("Entry2{free: %d, i1: %d, page: %t, giant: %t}", e.Free(), e.I1(), e.Page(), e.Giant())
}
