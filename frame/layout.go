package frame

import (
	"fmt"

	"github.com/joshuapare/framekit/frame/entry"
)

// FrameSize is the size of a small frame in bytes.
const FrameSize = 4096

// layout places data, region tables and the meta header inside a range of
// total frames:
//
//	[ data 0..frames-1 | slack | region tables | meta ]
type layout struct {
	total    int // Frames in the managed range
	frames   int // Data frames, a multiple of entry.LeafLen
	subtrees int
	span     int // Frames of a full subtree
	tables   int // First region table frame
	meta     int // Meta header frame
}

func newLayout(total, regions int) layout {
	span := regions * entry.LeafLen
	n := (total - 1) / entry.LeafLen * entry.LeafLen
	for n > 0 && n+(n+span-1)/span+1 > total {
		n -= entry.LeafLen
	}
	subtrees := (n + span - 1) / span
	return layout{
		total:    total,
		frames:   n,
		subtrees: subtrees,
		span:     span,
		tables:   total - 1 - subtrees,
		meta:     total - 1,
	}
}

// max returns the number of frames of subtree i; only the last one can be
// shorter than span.
func (l layout) max(i int) int {
	return min(l.span, l.frames-i*l.span)
}

func (l layout) String() string {
	return fmt.Sprintf("%d frames: %d data in %d subtrees of %d, tables at %d, meta at %d",
		l.total, l.frames, l.subtrees, l.span, l.tables, l.meta)
}
