package report

import (
	"fmt"
	"strings"

	"golang.org/x/text/number"

	"github.com/joshuapare/framekit/frame"
	"github.com/joshuapare/framekit/frame/entry"
)

var units = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// byteSize formats a frame count as a binary size.
func byteSize(frames int) string {
	v := float64(frames) * frame.FrameSize
	u := 0
	for v >= 1024 && u < len(units)-1 {
		v /= 1024
		u++
	}
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d %s", int64(v), units[u])
	}
	return fmt.Sprintf("%.1f %s", v, units[u])
}

func (p *Printer) percent(part, whole int) string {
	if whole == 0 {
		return p.p.Sprint(number.Percent(0))
	}
	return p.p.Sprint(number.Percent(float64(part)/float64(whole), number.MaxFractionDigits(1)))
}

func (p *Printer) statsText(s frame.Stats) error {
	used := s.Frames - s.FreeFrames
	regions := s.Frames / entry.LeafLen

	p.p.Fprintf(p.w, "Cores:            %d\n", s.Cores)
	p.p.Fprintf(p.w, "Frames:           %d (%s)\n", s.Frames, byteSize(s.Frames))
	p.p.Fprintf(p.w, "Used:             %d (%s)\n", used, p.percent(used, s.Frames))
	p.p.Fprintf(p.w, "Free:             %d (%s)\n", s.FreeFrames, p.percent(s.FreeFrames, s.Frames))
	p.p.Fprintf(p.w, "Free huge:        %d of %d regions\n", s.FreeHuge, regions)
	p.p.Fprintf(p.w, "Subtrees:         %d of %s\n", s.Subtrees, byteSize(s.RegionsPerSubtree*entry.LeafLen))
	p.p.Fprintf(p.w, "  reserved:       %d\n", s.Reserved)
	p.p.Fprintf(p.w, "  huge:           %d\n", s.HugeSubtrees)
	p.p.Fprintf(p.w, "  giant:          %d\n", s.GiantSubtrees)
	_, err := p.p.Fprintf(p.w, "Lists:            empty %d, partial-small %d, partial-huge %d\n",
		s.EmptyList, s.PartialSmallList, s.PartialHugeList)
	return err
}

func (p *Printer) recoveryText(r frame.RecoveryReport) error {
	p.p.Fprintf(p.w, "Mode:             %s\n", r.Mode)
	p.p.Fprintf(p.w, "Subtrees:         %d (%d giant, %d huge)\n", r.Subtrees, r.Giant, r.Huge)
	p.p.Fprintf(p.w, "Free:             %d (%s)\n", r.Free, byteSize(r.Free))
	if len(r.Corrections) == 0 {
		_, err := fmt.Fprintln(p.w, "Corrections:      none")
		return err
	}
	p.p.Fprintf(p.w, "Corrections:      %d\n", len(r.Corrections))
	for _, c := range r.Corrections {
		if _, err := p.p.Fprintf(p.w, "  region %d: stored %d, actual %d\n", c.Region, c.Stored, c.Actual); err != nil {
			return err
		}
	}
	return nil
}

// listOf maps each listed subtree to its list name.
func listOf(s frame.Snapshot) map[int]string {
	m := make(map[int]string)
	for _, i := range s.Empty {
		m[i] = "empty"
	}
	for _, i := range s.PartialSmall {
		m[i] = "partial-small"
	}
	for _, i := range s.PartialHuge {
		m[i] = "partial-huge"
	}
	return m
}

func flags(e entry.Entry3) string {
	var f []string
	if e.Reserved() {
		f = append(f, "reserved")
	}
	if e.Huge() {
		f = append(f, "huge")
	}
	if e.Giant() {
		f = append(f, "giant")
	}
	if len(f) == 0 {
		return "-"
	}
	return strings.Join(f, ",")
}

func (p *Printer) snapshotText(s frame.Snapshot) error {
	lists := listOf(s)
	p.p.Fprintf(p.w, "%-8s %10s  %-18s %s\n", "SUBTREE", "FREE", "FLAGS", "LIST")

	folded := 0
	for i, e := range s.Subtrees {
		list := lists[i]
		if !p.opts.AllSubtrees && list == "empty" && !e.Reserved() {
			folded++
			continue
		}
		if list == "" {
			list = "-"
		}
		free := p.p.Sprintf("%d", e.Free())
		if e.Giant() {
			free = "-"
		}
		if _, err := p.p.Fprintf(p.w, "%-8d %10s  %-18s %s\n", i, free, flags(e), list); err != nil {
			return err
		}
	}
	if folded > 0 {
		if _, err := p.p.Fprintf(p.w, "(%d empty subtrees not shown)\n", folded); err != nil {
			return err
		}
	}
	return nil
}
