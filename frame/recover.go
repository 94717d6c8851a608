package frame

import (
	"fmt"

	"github.com/joshuapare/framekit/frame/entry"
	"github.com/joshuapare/framekit/frame/lower"
)

// InitMode tells how an allocator obtained its state.
type InitMode int

const (
	// ModeSetup formatted the range.
	ModeSetup InitMode = iota
	// ModeRecover trusted the persisted region counters.
	ModeRecover
	// ModeDeepRecover recounted every leaf table.
	ModeDeepRecover
)

func (m InitMode) String() string {
	switch m {
	case ModeSetup:
		return "setup"
	case ModeRecover:
		return "recover"
	case ModeDeepRecover:
		return "deep-recover"
	}
	return fmt.Sprintf("InitMode(%d)", int(m))
}

// RecoveryReport describes the initialization of an allocator.
type RecoveryReport struct {
	Mode        InitMode
	Subtrees    int
	Free        int // Free frames after initialization
	Giant       int // Subtrees holding a giant frame
	Huge        int // Subtrees dedicated to huge frames
	Corrections []lower.Correction
}

// setup formats the range: every region empty, every subtree on a list.
func (a *Allocator) setup() {
	a.meta.invalidate()
	a.touchMeta()

	a.lower.Clear()
	for i := range a.trees {
		a.trees.at(i).Store(entry.NewEntry3(a.geo.max(i), false, false))
	}
	for i := len(a.trees) - 1; i >= 0; i-- {
		a.list(i, a.trees.at(i).Load())
	}

	a.meta.seal(a.geo, a.cfg.RegionsPerSubtree)
	a.touchMeta()

	a.report = RecoveryReport{Mode: ModeSetup, Subtrees: len(a.trees), Free: a.geo.frames}
	a.log.Info("frame: set up allocator", "layout", a.geo.String())
}

// recover rebuilds the directory and lists from the region level.
func (a *Allocator) recover(deep bool) error {
	r := RecoveryReport{Mode: ModeRecover, Subtrees: len(a.trees)}
	if deep {
		r.Mode = ModeDeepRecover
		a.log.Warn("frame: previous session did not shut down cleanly, recounting leaf tables")
	}

	for i := range a.trees {
		res, err := a.lower.Recover(i*a.geo.span, deep)
		if err != nil {
			return fmt.Errorf("recover subtree %d: %w", i, err)
		}
		r.Corrections = append(r.Corrections, res.Corrections...)
		if res.Giant {
			a.trees.at(i).Store(entry.GiantEntry())
			r.Giant++
			continue
		}
		if res.Huge {
			r.Huge++
		}
		a.trees.at(i).Store(entry.NewEntry3(res.Free, res.Huge, false))
		r.Free += res.Free
	}
	for i := len(a.trees) - 1; i >= 0; i-- {
		a.list(i, a.trees.at(i).Load())
	}

	a.report = r
	a.log.Info("frame: recovered allocator",
		"mode", r.Mode.String(), "free", r.Free, "giant", r.Giant, "corrections", len(r.Corrections))
	return nil
}
