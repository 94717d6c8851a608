package frame

import (
	"fmt"
	"slices"

	"github.com/joshuapare/framekit/frame/entry"
	"github.com/joshuapare/framekit/frame/stack"
)

// trees is the volatile subtree directory. It doubles as the arena of the
// free lists: a listed subtree stores its link in the idx field.
type trees []uint64

func (t trees) at(i int) entry.Atomic[entry.Entry3] {
	return entry.At[entry.Entry3](&t[i])
}

func (t trees) Link(i uint64) uint64 {
	idx := t.at(int(i)).Load().Idx()
	if idx == entry.IdxNone {
		return stack.None
	}
	return idx
}

func (t trees) SetLink(i, next uint64) {
	if next == stack.None {
		next = entry.IdxNone
	}
	t.at(int(i)).Update(func(e entry.Entry3) (entry.Entry3, bool) {
		return e.WithIdx(next), true
	})
}

// Free lists.
const (
	listEmpty = iota
	listSmall
	listHuge
	listCount
)

var listNames = [listCount]string{"empty", "partial-small", "partial-huge"}

func partialList(huge bool) int {
	if huge {
		return listHuge
	}
	return listSmall
}

func (a *Allocator) push(list, i int) {
	a.lists[list].Push(a.trees, uint64(i))
}

func (a *Allocator) pop(list int) (int, bool) {
	i, ok := a.lists[list].Pop(a.trees)
	return int(i), ok
}

// members walks a list. Only meaningful while no other core runs.
func (a *Allocator) members(list int) []int {
	var out []int
	for i := range a.lists[list].All(a.trees, len(a.trees)+1) {
		out = append(out, int(i))
	}
	return out
}

// threshold is the free count subtree i must exceed to be listed.
func (a *Allocator) threshold(i int) int {
	return min(a.cfg.ListThreshold, a.geo.max(i)-1)
}

// listFor picks the list of an unreserved subtree with free frames.
func (a *Allocator) listFor(e entry.Entry3) int {
	if e.Free() == a.geo.span {
		return listEmpty
	}
	return partialList(e.Huge())
}

// list enqueues subtree i if it deserves a list. The caller must own the
// only claim on i: the subtree is unreserved and on no list.
func (a *Allocator) list(i int, e entry.Entry3) {
	if e.Giant() || e.Reserved() || e.Free() <= a.threshold(i) {
		return
	}
	a.push(a.listFor(e), i)
}

// reserve claims a subtree for the size class and takes one unit out of it.
// Partially used subtrees are preferred over empty ones.
func (a *Allocator) reserve(huge bool) (int, error) {
	failed := 0
	for failed < a.cfg.Retries {
		i, ok := a.pop(partialList(huge))
		if !ok {
			break
		}
		pte := a.trees.at(i)
		if pte.Load().Free() == a.geo.span {
			// Became entirely free while listed.
			a.push(listEmpty, i)
			continue
		}
		if _, ok := pte.Update(func(e entry.Entry3) (entry.Entry3, bool) { return e.Dec(huge, a.geo.max(i)) }); ok {
			return i, nil
		}
		a.log.Warn("frame: listed subtree rejected reservation", "subtree", i, "entry", pte.Load(), "huge", huge)
		a.list(i, pte.Load())
		failed++
	}

	for failed < a.cfg.Retries {
		i, ok := a.pop(listEmpty)
		if !ok {
			if i, ok := a.adopt(huge); ok {
				return i, nil
			}
			return 0, fmt.Errorf("%w: no subtree for %s frames", ErrMemory, classOf(huge))
		}
		pte := a.trees.at(i)
		if _, ok := pte.Update(func(e entry.Entry3) (entry.Entry3, bool) { return e.Dec(huge, a.geo.max(i)) }); ok {
			return i, nil
		}
		a.log.Warn("frame: empty subtree rejected reservation", "subtree", i, "entry", pte.Load(), "huge", huge)
		a.list(i, pte.Load())
		failed++
	}

	a.log.Error("frame: reservation retries exhausted", "huge", huge, "retries", a.cfg.Retries)
	return 0, fmt.Errorf("%w: reservation failed %d times", ErrCorruption, failed)
}

// adopt reserves an unreserved subtree that is on no list because its free
// count is at or below the threshold, and takes one unit out of it.
func (a *Allocator) adopt(huge bool) (int, bool) {
	for i := range a.trees {
		max, thr := a.geo.max(i), a.threshold(i)
		_, ok := a.trees.at(i).Update(func(e entry.Entry3) (entry.Entry3, bool) {
			if e.Reserved() || e.Free() > thr {
				return e, false
			}
			return e.Dec(huge, max)
		})
		if ok {
			a.log.Debug("frame: reserved unlisted subtree", "subtree", i, "huge", huge)
			return i, true
		}
	}
	return 0, false
}

// unreserve drops a core's claim on subtree i and lists it if it has enough
// free frames.
func (a *Allocator) unreserve(i int) error {
	prev, ok := a.trees.at(i).Update(entry.Entry3.Unreserve)
	if !ok {
		a.log.Error("frame: unreserve of unreserved subtree", "subtree", i, "entry", prev)
		return fmt.Errorf("%w: subtree %d is not reserved", ErrCorruption, i)
	}
	a.list(i, prev.WithReserved(false))
	return nil
}

// release returns one unit to subtree i. An unreserved subtree crossing its
// threshold is listed: on the empty list once entirely free, on the partial
// list of its class otherwise.
func (a *Allocator) release(i int, huge bool) error {
	max := a.geo.max(i)
	prev, ok := a.trees.at(i).Update(func(e entry.Entry3) (entry.Entry3, bool) { return e.Inc(huge, max) })
	if !ok {
		a.log.Error("frame: subtree counter rejected free", "subtree", i, "entry", prev, "huge", huge)
		return fmt.Errorf("%w: subtree %d cannot take back a %s frame", ErrCorruption, i, classOf(huge))
	}
	next := prev.Free() + entry.Span(huge)
	thr := a.threshold(i)
	if !prev.Reserved() && prev.Free() <= thr && next > thr {
		switch {
		case next == a.geo.span:
			a.push(listEmpty, i)
		default:
			a.push(partialList(huge && next < max), i)
		}
	}
	return nil
}

// Snapshot is a structural copy of the directory and its lists, taken while
// no other core runs.
type Snapshot struct {
	Subtrees     []entry.Entry3 // Entries with the list link cleared
	Empty        []int          // Members of each list, sorted
	PartialSmall []int
	PartialHuge  []int
}

// Snapshot copies the directory and list membership.
func (a *Allocator) Snapshot() Snapshot {
	s := Snapshot{Subtrees: make([]entry.Entry3, len(a.trees))}
	for i := range a.trees {
		s.Subtrees[i] = a.trees.at(i).Load().WithIdx(entry.IdxNone)
	}
	lists := [listCount]*[]int{&s.Empty, &s.PartialSmall, &s.PartialHuge}
	for l, dst := range lists {
		*dst = a.members(l)
		slices.Sort(*dst)
	}
	return s
}
