//go:build !unix

package mmfile

import (
	"fmt"
	"os"
	"unsafe"
)

const pageSize = 4096

// Map reads the whole file into a page aligned buffer when shared mappings
// are not available. The cleanup function writes the buffer back.
func Map(path string, size int64) ([]byte, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, err
	}
	if size < int64(len(data)) {
		size = int64(len(data))
	}
	if size == 0 {
		return nil, nil, fmt.Errorf("mmfile: %s is empty", path)
	}

	raw := make([]byte, size+pageSize)
	off := pageSize - int(uintptr(unsafe.Pointer(&raw[0]))%pageSize)
	if off == pageSize {
		off = 0
	}
	buf := raw[off : off+int(size)]
	copy(buf, data)

	cleanup := func() error {
		return os.WriteFile(path, buf, 0o644)
	}
	return buf, cleanup, nil
}
