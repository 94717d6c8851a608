package frame

import (
	"fmt"
	"log/slog"

	"github.com/joshuapare/framekit/frame/dirty"
	"github.com/joshuapare/framekit/frame/entry"
	"github.com/joshuapare/framekit/frame/lower"
)

// DefaultRegionsPerSubtree gives 1 GiB subtrees.
const DefaultRegionsPerSubtree = entry.LeafLen

// Config tunes an allocator. The zero value (or a nil *Config) selects the
// defaults.
type Config struct {
	// RegionsPerSubtree sets the subtree (and giant page) size in regions,
	// 1..512. Default: the recorded geometry when recovering, else 512
	RegionsPerSubtree int

	// ListThreshold is the free frame count a subtree must exceed to be put
	// back on a partial list. A negative value lists every subtree with a
	// free frame. Default: a third of the subtree span
	ListThreshold int

	// Retries bounds every scan and retry loop. Default: 4
	Retries int

	// ForceDeep recounts every leaf table on recovery even after a clean
	// shutdown.
	ForceDeep bool

	// RequireRecover fails with ErrInit instead of formatting a range whose
	// header does not match.
	RequireRecover bool

	// Logger receives setup, recovery and corruption reports.
	// Default: the package logger, which discards.
	Logger *slog.Logger

	// Dirty receives every metadata range the allocator writes. OpenFile
	// installs one.
	Dirty dirty.DirtyTracker
}

func (c *Config) withDefaults() (Config, error) {
	var cfg Config
	if c != nil {
		cfg = *c
	}
	if cfg.RegionsPerSubtree == 0 {
		cfg.RegionsPerSubtree = DefaultRegionsPerSubtree
	}
	if cfg.RegionsPerSubtree < 1 || cfg.RegionsPerSubtree > entry.LeafLen {
		return cfg, fmt.Errorf("%w: %d regions per subtree (want 1..%d)", ErrInit, cfg.RegionsPerSubtree, entry.LeafLen)
	}
	span := cfg.RegionsPerSubtree * entry.LeafLen
	switch {
	case cfg.ListThreshold == 0:
		cfg.ListThreshold = span / 3
	case cfg.ListThreshold < 0:
		cfg.ListThreshold = 0
	case cfg.ListThreshold >= span:
		return cfg, fmt.Errorf("%w: list threshold %d outside 0..%d", ErrInit, cfg.ListThreshold, span-1)
	}
	if cfg.Retries == 0 {
		cfg.Retries = lower.DefaultRetries
	}
	if cfg.Retries < 0 {
		return cfg, fmt.Errorf("%w: negative retries %d", ErrInit, cfg.Retries)
	}
	return cfg, nil
}
