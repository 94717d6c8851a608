package dirty

import (
	"context"

	"go.uber.org/atomic"
)

const (
	// standardPageSize is the typical OS page size (4KB).
	standardPageSize = 4096

	wordBits = 64
)

// FlushMode controls durability guarantees of a flush.
type FlushMode int

const (
	// FlushAuto provides safe defaults for most use cases:
	// - msync() dirty data pages
	// - msync() header page
	// - fdatasync() the file.
	FlushAuto FlushMode = iota

	// FlushDataOnly only flushes dirty pages via msync().
	// The caller is responsible for syncing the file later.
	FlushDataOnly

	// FlushFull is FlushAuto plus F_FULLFSYNC on macOS.
	FlushFull
)

func (m FlushMode) String() string {
	switch m {
	case FlushAuto:
		return "auto"
	case FlushDataOnly:
		return "data"
	case FlushFull:
		return "full"
	}
	return "unknown"
}

// Range represents a dirty byte range.
type Range struct {
	Off int64 // Offset from the start of the mapped range
	Len int64 // Length in bytes
}

// Tracker records dirty pages in a lock-free bitmap.
//
// Add may be called from any number of goroutines. Flush calls must not
// overlap each other.
type Tracker struct {
	data     []byte
	fd       int // -1 skips fdatasync
	pageSize int64
	header   Range
	bits     []atomic.Uint64
}

// NewTracker creates a tracker for the mapped range data. fd is the file
// descriptor of the mapping (or -1), header the range flushed last.
func NewTracker(data []byte, fd int, header Range) *Tracker {
	pages := (int64(len(data)) + standardPageSize - 1) / standardPageSize
	return &Tracker{
		data:     data,
		fd:       fd,
		pageSize: standardPageSize,
		header:   header,
		bits:     make([]atomic.Uint64, (pages+wordBits-1)/wordBits),
	}
}

// Add records a dirty range. The range is rounded out to page boundaries;
// parts outside the mapped range are ignored.
func (t *Tracker) Add(off, length int) {
	if t == nil || length <= 0 || off < 0 {
		return
	}
	first := int64(off) / t.pageSize
	last := (int64(off) + int64(length) - 1) / t.pageSize
	limit := int64(len(t.bits)) * wordBits
	for p := first; p <= last && p < limit; p++ {
		t.set(p)
	}
}

func (t *Tracker) set(page int64) {
	w := &t.bits[page/wordBits]
	bit := uint64(1) << (page % wordBits)
	for {
		old := w.Load()
		if old&bit != 0 || w.CompareAndSwap(old, old|bit) {
			return
		}
	}
}

// Pending returns the number of dirty pages.
func (t *Tracker) Pending() int {
	n := 0
	for i := range t.bits {
		w := t.bits[i].Load()
		for ; w != 0; w &= w - 1 {
			n++
		}
	}
	return n
}

// Ranges returns the coalesced dirty ranges without clearing them.
func (t *Tracker) Ranges() []Range {
	words := make([]uint64, len(t.bits))
	for i := range t.bits {
		words[i] = t.bits[i].Load()
	}
	return t.coalesce(words)
}

// take clears the bitmap and returns the pages that were dirty.
func (t *Tracker) take() []uint64 {
	words := make([]uint64, len(t.bits))
	for i := range t.bits {
		words[i] = t.bits[i].Swap(0)
	}
	return words
}

// restore marks the pages of words dirty again after a failed flush.
func (t *Tracker) restore(words []uint64) {
	for i, w := range words {
		for ; w != 0; w &= w - 1 {
			bit := w & -w
			for {
				old := t.bits[i].Load()
				if t.bits[i].CompareAndSwap(old, old|bit) {
					break
				}
			}
		}
	}
}

// coalesce merges runs of dirty pages into ranges, clipped to the mapping.
func (t *Tracker) coalesce(words []uint64) []Range {
	var out []Range
	start := int64(-1)
	total := int64(len(words)) * wordBits
	for p := int64(0); p <= total; p++ {
		dirty := p < total && words[p/wordBits]&(1<<(p%wordBits)) != 0
		switch {
		case dirty && start < 0:
			start = p
		case !dirty && start >= 0:
			off := start * t.pageSize
			end := min(p*t.pageSize, int64(len(t.data)))
			out = append(out, Range{Off: off, Len: end - off})
			start = -1
		}
	}
	return out
}

// Reset clears all dirty marks.
func (t *Tracker) Reset() {
	for i := range t.bits {
		t.bits[i].Store(0)
	}
}

// Flush writes every dirty data page, then the header, and finally syncs
// the file unless mode is FlushDataOnly.
func (t *Tracker) Flush(ctx context.Context, mode FlushMode) error {
	if err := t.FlushDataOnly(ctx); err != nil {
		return err
	}
	return t.FlushHeaderAndMeta(ctx, mode)
}

// FlushDataOnly flushes all dirty ranges except the header.
//
// The context can be used to cancel the flush. Ranges not yet written when
// the flush stops stay dirty.
func (t *Tracker) FlushDataOnly(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(t.data) == 0 {
		return nil
	}

	words := t.take()
	ranges := t.coalesce(words)
	if len(ranges) == 0 {
		return nil
	}
	if err := t.flushRanges(ctx, ranges); err != nil {
		t.restore(words)
		return err
	}
	return nil
}

// FlushHeaderAndMeta flushes the header range and syncs the file according
// to mode.
func (t *Tracker) FlushHeaderAndMeta(ctx context.Context, mode FlushMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(t.data) == 0 {
		return nil
	}

	if t.header.Len > 0 && t.header.Off+t.header.Len <= int64(len(t.data)) {
		if err := msync(t.data[t.header.Off : t.header.Off+t.header.Len]); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if mode == FlushDataOnly || t.fd < 0 {
		return nil
	}
	return fdatasync(t.fd, mode == FlushFull)
}

// isHeader reports whether r lies inside the header range.
func (t *Tracker) isHeader(r Range) bool {
	return t.header.Len > 0 && r.Off >= t.header.Off && r.Off+r.Len <= t.header.Off+t.header.Len
}
