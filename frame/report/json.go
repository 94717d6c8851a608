package report

import (
	"encoding/json"

	"github.com/joshuapare/framekit/frame"
)

type jsonCorrection struct {
	Region int `json:"region"`
	Stored int `json:"stored"`
	Actual int `json:"actual"`
}

type jsonRecovery struct {
	Mode        string           `json:"mode"`
	Subtrees    int              `json:"subtrees"`
	Free        int              `json:"free"`
	Giant       int              `json:"giant"`
	Huge        int              `json:"huge"`
	Corrections []jsonCorrection `json:"corrections"`
}

func recoveryJSON(r frame.RecoveryReport) jsonRecovery {
	out := jsonRecovery{
		Mode:        r.Mode.String(),
		Subtrees:    r.Subtrees,
		Free:        r.Free,
		Giant:       r.Giant,
		Huge:        r.Huge,
		Corrections: make([]jsonCorrection, 0, len(r.Corrections)),
	}
	for _, c := range r.Corrections {
		out.Corrections = append(out.Corrections, jsonCorrection(c))
	}
	return out
}

type jsonSubtree struct {
	Index    int    `json:"index"`
	Free     int    `json:"free"`
	Reserved bool   `json:"reserved,omitempty"`
	Huge     bool   `json:"huge,omitempty"`
	Giant    bool   `json:"giant,omitempty"`
	List     string `json:"list,omitempty"`
}

type jsonSnapshot struct {
	Subtrees     []jsonSubtree `json:"subtrees"`
	Empty        []int         `json:"empty"`
	PartialSmall []int         `json:"partial_small"`
	PartialHuge  []int         `json:"partial_huge"`
}

func nonNil(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}

func snapshotJSON(s frame.Snapshot) jsonSnapshot {
	lists := listOf(s)
	out := jsonSnapshot{
		Subtrees:     make([]jsonSubtree, len(s.Subtrees)),
		Empty:        nonNil(s.Empty),
		PartialSmall: nonNil(s.PartialSmall),
		PartialHuge:  nonNil(s.PartialHuge),
	}
	for i, e := range s.Subtrees {
		out.Subtrees[i] = jsonSubtree{
			Index:    i,
			Free:     e.Free(),
			Reserved: e.Reserved(),
			Huge:     e.Huge(),
			Giant:    e.Giant(),
			List:     lists[i],
		}
	}
	return out
}

func (p *Printer) writeJSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
