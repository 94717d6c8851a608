//go:build unix

package mmfile

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Map maps the file at path read/write and shared, so stores into the
// returned slice reach the file. A missing file is created. If size is
// positive the file is grown (never shrunk) to size bytes first; otherwise
// the current file size is mapped.
func Map(path string, size int64) ([]byte, func() error, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close() // the mapping stays valid after close

	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if size > info.Size() {
		if err := f.Truncate(size); err != nil {
			return nil, nil, fmt.Errorf("mmfile: grow %s: %w", path, err)
		}
	} else {
		size = info.Size()
	}
	if size == 0 {
		return nil, nil, fmt.Errorf("mmfile: %s is empty", path)
	}
	if size > int64(^uint(0)>>1) {
		return nil, nil, fmt.Errorf("mmfile: file too large to map (%d bytes)", size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, fmt.Errorf("mmfile: map %s: %w", path, err)
	}
	unmapped := false
	cleanup := func() error {
		if unmapped {
			return nil
		}
		unmapped = true
		err := unix.Munmap(data)
		if errors.Is(err, unix.EINVAL) {
			return nil
		}
		return err
	}
	return data, cleanup, nil
}
