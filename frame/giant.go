package frame

import (
	"fmt"
	"slices"

	"github.com/joshuapare/framekit/frame/entry"
)

// getGiant takes an entire empty subtree. The region level only records a
// persist marker so recovery can tell the subtree apart.
func (a *Allocator) getGiant() (int, error) {
	i, ok := a.pop(listEmpty)
	if !ok {
		i, ok = a.popFreePartial()
	}
	if !ok {
		return 0, fmt.Errorf("%w: no empty subtree for a giant frame", ErrMemory)
	}
	pte := a.trees.at(i)
	if prev, ok := pte.Update(func(e entry.Entry3) (entry.Entry3, bool) { return e.MarkGiant(a.geo.span) }); !ok {
		a.log.Error("frame: empty subtree rejected giant allocation", "subtree", i, "entry", prev)
		a.list(i, prev)
		return 0, fmt.Errorf("%w: subtree %d on the empty list is %s", ErrCorruption, i, prev)
	}
	start := i * a.geo.span
	a.lower.PersistGiant(start)
	return start, nil
}

// popFreePartial removes an entirely free subtree from a partial list. Such
// a subtree became free while listed and stays there until a reservation
// moves it. The other popped entries are pushed back in their old order.
func (a *Allocator) popFreePartial() (int, bool) {
	for _, l := range []int{listSmall, listHuge} {
		var skipped []int
		found := -1
		for {
			i, ok := a.pop(l)
			if !ok {
				break
			}
			if a.trees.at(i).Load().Free() == a.geo.span {
				found = i
				break
			}
			skipped = append(skipped, i)
		}
		for _, i := range slices.Backward(skipped) {
			a.push(l, i)
		}
		if found >= 0 {
			return found, true
		}
	}
	return 0, false
}

func (a *Allocator) putGiant(frame int) error {
	if frame%a.geo.span != 0 {
		return fmt.Errorf("%w: frame %d is not subtree aligned", ErrAddress, frame)
	}
	i := frame / a.geo.span
	pte := a.trees.at(i)
	if !pte.Load().Giant() {
		return fmt.Errorf("%w: subtree %d is not a giant frame", ErrAddress, i)
	}

	a.lower.ClearGiant(frame)
	if prev, ok := pte.Update(func(e entry.Entry3) (entry.Entry3, bool) { return e.ClearGiant(a.geo.span) }); !ok {
		return fmt.Errorf("%w: subtree %d freed concurrently (%s)", ErrAddress, i, prev)
	}
	a.push(listEmpty, i)
	return nil
}
