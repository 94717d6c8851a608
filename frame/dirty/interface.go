package dirty

import "context"

// DirtyTracker is the minimal interface for components that modify the
// mapped range and only need to report what they touched.
type DirtyTracker interface {
	// Add marks a byte range as dirty.
	// off is the offset from the start of the range, length the number of bytes.
	Add(off, length int)
}

// FlushableTracker extends DirtyTracker with methods for writing dirty pages
// back to the file.
type FlushableTracker interface {
	DirtyTracker

	// Flush writes data pages, then the header, then syncs per mode.
	Flush(ctx context.Context, mode FlushMode) error

	// Pending returns the number of pages waiting for Flush.
	Pending() int
}

var _ FlushableTracker = (*Tracker)(nil)
