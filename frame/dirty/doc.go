// Package dirty tracks which pages of a file backed frame range hold
// allocator metadata that has not reached the file yet.
//
// # Overview
//
// The allocator persists its state inside the managed range: region tables,
// leaf tables living in data frames, and the meta header in the last frame.
// With a file mapping the kernel writes those pages back eventually; the
// tracker lets a caller force them out at a chosen point.
//
// # Usage
//
//	tracker := dirty.NewTracker(data, int(f.Fd()), header)
//	tracker.Add(off, length) // from any goroutine
//	err := tracker.Flush(ctx, dirty.FlushAuto)
//
// # Page-Level Granularity
//
// The tracker keeps one bit per 4 KiB page. Add rounds to page boundaries and
// only sets bits, so it is safe to call concurrently with the allocator's
// lock-free operations. Flush takes the bits it is about to write, so pages
// dirtied during a flush stay dirty for the next one.
//
// # Range Coalescing
//
// Consecutive dirty pages are merged into single msync calls:
//
//	Dirty pages: [0, 1, 2, 5, 6] → Ranges: [0x0-0x3000, 0x5000-0x7000]
package dirty
