package frame

import (
	"fmt"

	"github.com/joshuapare/framekit/frame/entry"
)

// Size is the granularity of an allocation.
type Size int

const (
	// Small is a single 4 KiB frame.
	Small Size = iota
	// Huge is a whole region of 512 frames (2 MiB).
	Huge
	// Giant is a whole subtree (1 GiB with the default geometry).
	Giant
)

// Frames returns the number of frames of one allocation for the given
// number of regions per subtree.
func (s Size) Frames(regionsPerSubtree int) int {
	switch s {
	case Small:
		return 1
	case Huge:
		return entry.LeafLen
	case Giant:
		return regionsPerSubtree * entry.LeafLen
	}
	return 0
}

func (s Size) String() string {
	switch s {
	case Small:
		return "small"
	case Huge:
		return "huge"
	case Giant:
		return "giant"
	}
	return fmt.Sprintf("Size(%d)", int(s))
}

// ParseSize is the inverse of String.
func ParseSize(s string) (Size, error) {
	switch s {
	case "small", "4k", "4K":
		return Small, nil
	case "huge", "2m", "2M":
		return Huge, nil
	case "giant", "1g", "1G":
		return Giant, nil
	}
	return 0, fmt.Errorf("frame: unknown size %q", s)
}

func (s Size) valid() bool {
	return s >= Small && s <= Giant
}
