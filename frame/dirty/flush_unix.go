//go:build unix && !darwin

package dirty

import (
	"context"

	"golang.org/x/sys/unix"
)

// flushRanges flushes individual dirty ranges to disk.
//
// msync() accepts page aligned sub-slices of the mapping here.
func (t *Tracker) flushRanges(ctx context.Context, ranges []Range) error {
	for _, r := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.isHeader(r) {
			continue
		}
		if err := unix.Msync(t.data[r.Off:r.Off+r.Len], unix.MS_SYNC); err != nil {
			return err
		}
	}
	return nil
}

// msync flushes a memory region to disk.
func msync(data []byte) error {
	return unix.Msync(data, unix.MS_SYNC)
}

// fdatasync performs file descriptor sync. fullfsync is a macOS concept.
func fdatasync(fd int, _ bool) error {
	return unix.Fdatasync(fd)
}
