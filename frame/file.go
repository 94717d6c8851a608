package frame

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joshuapare/framekit/frame/dirty"
	"github.com/joshuapare/framekit/internal/mmfile"
)

// backing is the file behind a file backed allocator.
type backing struct {
	f       *os.File
	unmap   func() error
	tracker dirty.FlushableTracker
}

func (b *backing) close() error {
	return errors.Join(
		b.tracker.Flush(context.Background(), dirty.FlushAuto),
		b.unmap(),
		b.f.Close(),
	)
}

// OpenFile maps the file at path read/write and creates an allocator over
// it. If size is positive the file is grown to size bytes first; otherwise
// the existing file size is used. Metadata writes are tracked so Sync can
// flush them; Close flushes, unmaps and closes the file.
func OpenFile(path string, size int64, cores int, overwrite bool, cfg *Config) (*Allocator, error) {
	data, unmap, err := mmfile.Map(path, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("%w: %w", ErrInit, err), unmap())
	}

	var header dirty.Range
	if len(data) >= FrameSize {
		header = dirty.Range{Off: int64(len(data)/FrameSize-1) * FrameSize, Len: FrameSize}
	}
	tracker := dirty.NewTracker(data, int(f.Fd()), header)

	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.Dirty = tracker

	a, err := New(cores, data, overwrite, &c)
	if err != nil {
		return nil, errors.Join(err, unmap(), f.Close())
	}
	a.file = &backing{f: f, unmap: unmap, tracker: tracker}
	return a, nil
}

// Sync writes the metadata modified since the last Sync to the backing
// file. It is a no-op for allocators created with New.
func (a *Allocator) Sync(ctx context.Context, mode dirty.FlushMode) error {
	if a.file == nil {
		return nil
	}
	return a.file.tracker.Flush(ctx, mode)
}

// Pending returns the number of metadata pages waiting for Sync.
func (a *Allocator) Pending() int {
	if a.file == nil {
		return 0
	}
	return a.file.tracker.Pending()
}
