//go:build darwin

package dirty

import (
	"context"

	"golang.org/x/sys/unix"
)

// flushRanges flushes dirty ranges to disk.
//
// On macOS, msync() requires the address to match the original mmap() address,
// so the whole mapping is synced. The kernel only writes dirty pages anyway.
func (t *Tracker) flushRanges(ctx context.Context, _ []Range) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return unix.Msync(t.data, unix.MS_SYNC)
}

// msync flushes a memory region to disk.
func msync(data []byte) error {
	return unix.Msync(data, unix.MS_SYNC)
}

// fdatasync performs file descriptor sync.
//
// With fullfsync, F_FULLFSYNC makes the drive flush its cache too.
func fdatasync(fd int, fullfsync bool) error {
	if fullfsync {
		_, err := unix.FcntlInt(uintptr(fd), unix.F_FULLFSYNC, 0)
		return err
	}
	return unix.Fsync(fd)
}
