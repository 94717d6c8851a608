package entry

import (
	"sync/atomic"
	"unsafe"
)

// Word is the constraint satisfied by every entry type.
type Word interface {
	~uint64
}

// Atomic is a handle to a single 64-bit metadata word.
//
// The word may live in ordinary Go memory or inside the managed (possibly
// memory-mapped) range; the handle only stores its address. The zero value
// is not usable.
type Atomic[E Word] struct {
	p *uint64
}

// At returns an atomic handle for the word at p. p must be 8-byte aligned.
func At[E Word](p *uint64) Atomic[E] {
	return Atomic[E]{p: p}
}

// AtOffset returns an atomic handle for the word at base+off.
func AtOffset[E Word](base unsafe.Pointer, off uintptr) Atomic[E] {
	return Atomic[E]{p: (*uint64)(unsafe.Add(base, off))}
}

// Load reads the word.
func (a Atomic[E]) Load() E {
	return E(atomic.LoadUint64(a.p))
}

// Store overwrites the word.
func (a Atomic[E]) Store(v E) {
	atomic.StoreUint64(a.p, uint64(v))
}

// Swap stores v and returns the previous value.
func (a Atomic[E]) Swap(v E) E {
	return E(atomic.SwapUint64(a.p, uint64(v)))
}

// CompareAndSwap replaces old with next. On failure it returns the value
// that was observed instead of old.
func (a Atomic[E]) CompareAndSwap(old, next E) (E, bool) {
	if atomic.CompareAndSwapUint64(a.p, uint64(old), uint64(next)) {
		return old, true
	}
	return a.Load(), false
}

// Update applies the transition f with a CAS loop.
//
// On success it returns the value the transition was applied to. If f rejects
// the current value, Update returns that value and false without writing.
// A failed CAS means another writer made progress, so the loop reloads and
// evaluates f again. The number of CAS attempts is not bounded: Update only
// returns once f rejects or a CAS succeeds. Callers that need a bound count
// their own attempts around Update, as the allocator does with
// Config.Retries.
func (a Atomic[E]) Update(f func(E) (E, bool)) (E, bool) {
	cur := a.Load()
	for {
		next, ok := f(cur)
		if !ok {
			return cur, false
		}
		if atomic.CompareAndSwapUint64(a.p, uint64(cur), uint64(next)) {
			return cur, true
		}
		cur = a.Load()
	}
}
