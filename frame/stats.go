package frame

import "github.com/joshuapare/framekit/frame/entry"

// Stats summarizes the allocator. It scans the directory and region tables
// and is meant for diagnostics.
type Stats struct {
	Cores             int `json:"cores"`
	RegionsPerSubtree int `json:"regions_per_subtree"`
	Frames            int `json:"frames"`
	FreeFrames        int `json:"free_frames"`
	FreeHuge          int `json:"free_huge"` // Entirely free regions
	Subtrees          int `json:"subtrees"`
	Reserved          int `json:"reserved"`
	HugeSubtrees      int `json:"huge_subtrees"`
	GiantSubtrees     int `json:"giant_subtrees"`
	EmptyList         int `json:"empty_list"`
	PartialSmallList  int `json:"partial_small_list"`
	PartialHugeList   int `json:"partial_huge_list"`
}

// Stats collects allocator statistics.
func (a *Allocator) Stats() Stats {
	s := Stats{
		Cores:             len(a.locals),
		RegionsPerSubtree: a.cfg.RegionsPerSubtree,
		Frames:            a.geo.frames,
		Subtrees:          len(a.trees),
	}
	for i := range a.trees {
		e := a.trees.at(i).Load()
		switch {
		case e.Giant():
			s.GiantSubtrees++
			continue
		case e.Huge():
			s.HugeSubtrees++
		}
		if e.Reserved() {
			s.Reserved++
		}
		s.FreeFrames += e.Free()

		start := i * a.geo.span
		for r := start; r < start+a.geo.max(i); r += entry.LeafLen {
			if a.lower.IsFree(r, true) {
				s.FreeHuge++
			}
		}
	}
	s.EmptyList = len(a.members(listEmpty))
	s.PartialSmallList = len(a.members(listSmall))
	s.PartialHugeList = len(a.members(listHuge))
	return s
}
