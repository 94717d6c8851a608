package lower

import (
	"fmt"

	"github.com/joshuapare/framekit/frame/entry"
)

// Correction records a region counter rewritten by deep recovery.
type Correction struct {
	Region int // Global region number
	Stored int // Free count found in the region entry
	Actual int // Free count derived from the leaf table
}

// Recovered summarizes the lower state of one subtree.
type Recovered struct {
	Free        int  // Free frames
	Huge        bool // At least one region is a huge page
	Giant       bool // The subtree is a giant page
	Corrections []Correction
}

// Recover rebuilds the free count of the subtree starting at start from its
// region entries. A deep recovery also recounts every leaf table and rewrites
// region counters that disagree.
func (a *Alloc) Recover(start int, deep bool) (Recovered, error) {
	var res Recovered
	if a.region(start).Load().Giant() {
		res.Giant = true
		return res, nil
	}

	partial := false
	for r := 0; r < a.Regions(start); r++ {
		rbase := start + r*entry.LeafLen
		pte := a.region(rbase)
		e2 := pte.Load()

		switch {
		case e2.Page():
			res.Huge = true
			continue
		case deep && e2.Free() > 0:
			actual, err := a.recoverLeaves(rbase, e2)
			if err != nil {
				return res, err
			}
			if actual != e2.Free() {
				a.log.Warn("lower: region counter corrected",
					"region", rbase/entry.LeafLen, "stored", e2.Free(), "actual", actual)
				res.Corrections = append(res.Corrections, Correction{
					Region: rbase / entry.LeafLen,
					Stored: e2.Free(),
					Actual: actual,
				})
				e2 = entry.NewEntry2(actual, e2.I1())
				pte.Store(e2)
				a.touchRegion(rbase)
			}
		}
		if e2.Free() < entry.LeafLen {
			partial = true
		}
		res.Free += e2.Free()
	}

	if res.Huge && partial {
		a.log.Error("lower: huge pages in a subtree with small allocations", "subtree", start/a.Span())
		return res, fmt.Errorf("%w: subtree %d mixes huge and small pages", ErrCorruption, start/a.Span())
	}
	return res, nil
}

func (a *Alloc) recoverLeaves(rbase int, e2 entry.Entry2) (int, error) {
	table := rbase + e2.I1()
	if a.leaf(table, e2.I1()).Load() != entry.Empty {
		a.log.Error("lower: leaf table slot not empty", "region", rbase/entry.LeafLen, "i1", e2.I1())
		return 0, fmt.Errorf("%w: region %d leaf table slot %d in use", ErrCorruption, rbase/entry.LeafLen, e2.I1())
	}
	return entry.LeafLen - a.CountLeaves(table), nil
}

// CountLeaves returns the number of allocated frames recorded in the leaf
// table stored at frame table.
func (a *Alloc) CountLeaves(table int) int {
	n := 0
	for j := 0; j < entry.LeafLen; j++ {
		if a.leaf(table, j).Load() == entry.Page {
			n++
		}
	}
	return n
}
