package verify

import (
	"fmt"

	"github.com/joshuapare/framekit/frame"
	"github.com/joshuapare/framekit/frame/entry"
)

// ValidationError describes a violated invariant.
type ValidationError struct {
	Type    string
	Message string
	Subtree int // -1 if not tied to a subtree
	Details map[string]interface{}
}

func (e *ValidationError) Error() string {
	if e.Subtree >= 0 {
		return fmt.Sprintf("%s in subtree %d: %s", e.Type, e.Subtree, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// view is the quiescent state shared by the checks.
type view struct {
	a    *frame.Allocator
	snap frame.Snapshot
	span int
}

func newView(a *frame.Allocator) view {
	return view{a: a, snap: a.Snapshot(), span: a.RegionsPerSubtree() * entry.LeafLen}
}

// max returns the frame count of subtree i.
func (v view) max(i int) int {
	return min(v.span, v.a.Pages()-i*v.span)
}

// AllInvariants runs every check and returns the first failure.
func AllInvariants(a *frame.Allocator) error {
	return Allocator(a, true)
}

// Allocator checks the directory, counters and lists. With deep set it also
// recounts every leaf table, which reads one frame per region.
func Allocator(a *frame.Allocator, deep bool) error {
	v := newView(a)
	checks := []func(view) error{directory, counters, lists}
	if deep {
		checks = []func(view) error{directory, regions, counters, lists}
	}
	for _, check := range checks {
		if err := check(v); err != nil {
			return err
		}
	}
	return nil
}

// Directory checks the subtree entries.
func Directory(a *frame.Allocator) error { return directory(newView(a)) }

// Regions checks every region entry against its leaf table.
func Regions(a *frame.Allocator) error { return regions(newView(a)) }

// Counters checks the subtree counters against their regions.
func Counters(a *frame.Allocator) error { return counters(newView(a)) }

// Lists checks the free lists.
func Lists(a *frame.Allocator) error { return lists(newView(a)) }

func directory(v view) error {
	low := v.a.Lower()
	for i, e := range v.snap.Subtrees {
		if !e.Valid(v.max(i)) {
			return &ValidationError{
				Type:    "Directory",
				Message: fmt.Sprintf("entry %s out of bounds for %d frames", e, v.max(i)),
				Subtree: i,
			}
		}
		if marked := low.IsGiant(i * v.span); marked != e.Giant() {
			return &ValidationError{
				Type:    "Directory",
				Message: fmt.Sprintf("giant entry %t but persisted marker %t", e.Giant(), marked),
				Subtree: i,
			}
		}
	}
	return nil
}

func regions(v view) error {
	low := v.a.Lower()
	for i, e := range v.snap.Subtrees {
		if e.Giant() {
			continue
		}
		start := i * v.span
		for r := 0; r < low.Regions(start); r++ {
			rbase := start + r*entry.LeafLen
			e2 := low.Region(rbase)
			if !e2.Valid() || e2.Giant() {
				return &ValidationError{
					Type:    "Regions",
					Message: fmt.Sprintf("region %d entry %s is malformed", rbase/entry.LeafLen, e2),
					Subtree: i,
				}
			}
			if !e2.HasTable() {
				continue
			}
			table := rbase + e2.I1()
			if low.TableLeaf(table, e2.I1()) != entry.Empty {
				return &ValidationError{
					Type:    "Regions",
					Message: fmt.Sprintf("region %d leaf table slot %d is allocated", rbase/entry.LeafLen, e2.I1()),
					Subtree: i,
				}
			}
			if used := low.CountLeaves(table); used != entry.LeafLen-e2.Free() {
				return &ValidationError{
					Type:    "Regions",
					Message: fmt.Sprintf("region %d counts %d free frames, leaf table has %d", rbase/entry.LeafLen, e2.Free(), entry.LeafLen-used),
					Subtree: i,
					Details: map[string]interface{}{
						"region":   rbase / entry.LeafLen,
						"stored":   e2.Free(),
						"actual":   entry.LeafLen - used,
						"table_at": table,
					},
				}
			}
		}
	}
	return nil
}

func counters(v view) error {
	low := v.a.Lower()
	for i, e := range v.snap.Subtrees {
		if e.Giant() {
			continue
		}
		start := i * v.span
		free, pages := 0, 0
		for r := 0; r < low.Regions(start); r++ {
			e2 := low.Region(start + r*entry.LeafLen)
			if e2.Page() {
				pages++
			}
			free += e2.Free()
		}
		if free != e.Free() {
			return &ValidationError{
				Type:    "Counters",
				Message: fmt.Sprintf("subtree counts %d free frames, regions have %d", e.Free(), free),
				Subtree: i,
				Details: map[string]interface{}{"stored": e.Free(), "actual": free},
			}
		}
		if pages > 0 && !e.Huge() {
			return &ValidationError{
				Type:    "Counters",
				Message: fmt.Sprintf("%d huge pages in a small subtree", pages),
				Subtree: i,
			}
		}
		if e.Huge() && free+pages*entry.LeafLen != v.max(i) {
			return &ValidationError{
				Type:    "Counters",
				Message: fmt.Sprintf("huge subtree with %d free frames and %d huge pages", free, pages),
				Subtree: i,
			}
		}
	}
	return nil
}

func lists(v view) error {
	seen := make(map[int]string)
	named := []struct {
		name    string
		members []int
	}{
		{"empty", v.snap.Empty},
		{"partial-small", v.snap.PartialSmall},
		{"partial-huge", v.snap.PartialHuge},
	}
	for _, l := range named {
		for _, i := range l.members {
			if i < 0 || i >= len(v.snap.Subtrees) {
				return &ValidationError{
					Type:    "Lists",
					Message: fmt.Sprintf("%s list holds unknown subtree %d", l.name, i),
					Subtree: -1,
				}
			}
			if prev, ok := seen[i]; ok {
				return &ValidationError{
					Type:    "Lists",
					Message: fmt.Sprintf("listed on %s and %s", prev, l.name),
					Subtree: i,
				}
			}
			seen[i] = l.name

			e := v.snap.Subtrees[i]
			var bad string
			switch {
			case e.Reserved():
				bad = "reserved"
			case e.Giant():
				bad = "giant"
			case e.Free() == 0:
				bad = "full"
			case l.name == "empty" && e.Free() != v.max(i):
				bad = "not entirely free"
			}
			if bad != "" {
				return &ValidationError{
					Type:    "Lists",
					Message: fmt.Sprintf("%s subtree on the %s list", bad, l.name),
					Subtree: i,
				}
			}
		}
	}
	return nil
}
