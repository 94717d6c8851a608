package frame

import (
	"sync/atomic"
	"unsafe"

	"github.com/joshuapare/framekit/frame/entry"
)

// metaMagic marks a range formatted by this allocator ("framekit").
const metaMagic uint64 = 0x6672616d656b6974

// Meta header words, stored at the start of the last frame.
const (
	metaWordMagic = iota
	metaWordPages
	metaWordActive
	metaWordFrames
	metaWordGeometry
	metaWords
)

// meta is the persistent header. Every word is accessed atomically since it
// lives in the shared range.
type meta struct {
	w *[metaWords]uint64
}

func metaAt(base unsafe.Pointer, frame int) meta {
	return meta{w: (*[metaWords]uint64)(unsafe.Add(base, frame*FrameSize))}
}

func (m meta) load(i int) uint64     { return atomic.LoadUint64(&m.w[i]) }
func (m meta) store(i int, v uint64) { atomic.StoreUint64(&m.w[i], v) }

// matches reports whether the header describes the given geometry.
func (m meta) matches(l layout, regions int) bool {
	return m.load(metaWordMagic) == metaMagic &&
		m.load(metaWordPages) == uint64(l.frames) &&
		m.load(metaWordFrames) == uint64(l.total) &&
		m.load(metaWordGeometry) == uint64(regions)
}

// invalidate drops the magic first so a crash during setup leaves a header
// that forces the next init to set up again.
func (m meta) invalidate() {
	m.store(metaWordMagic, 0)
}

// seal writes the geometry and then the magic.
func (m meta) seal(l layout, regions int) {
	m.store(metaWordPages, uint64(l.frames))
	m.store(metaWordFrames, uint64(l.total))
	m.store(metaWordGeometry, uint64(regions))
	m.store(metaWordMagic, metaMagic)
}

func (m meta) active() bool { return m.load(metaWordActive) != 0 }

func (m meta) setActive(v bool) {
	var n uint64
	if v {
		n = 1
	}
	m.store(metaWordActive, n)
}

// persistedRegions returns the subtree size recorded in the header of mem,
// if mem carries a header for its own size.
func persistedRegions(mem []byte) (int, bool) {
	if len(mem) < FrameSize || len(mem)%FrameSize != 0 {
		return 0, false
	}
	base := unsafe.Pointer(unsafe.SliceData(mem))
	if uintptr(base)%FrameSize != 0 {
		return 0, false
	}
	total := len(mem) / FrameSize
	m := metaAt(base, total-1)
	if m.load(metaWordMagic) != metaMagic || m.load(metaWordFrames) != uint64(total) {
		return 0, false
	}
	r := int(m.load(metaWordGeometry))
	if r < 1 || r > entry.LeafLen {
		return 0, false
	}
	return r, true
}
