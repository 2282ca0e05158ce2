// Package fifo implements the single-producer/single-consumer index queue
// used to hand preallocated pool slot indices from a realtime audio thread
// to a background coalescer, and from the coalescer to the sender (spec
// §4.1). It never blocks, and TryPush never allocates: a full queue
// simply refuses the push so the realtime caller can drop and log instead
// of stalling. TryPopBatch, called only by the consumer, allocates the
// slice it returns.
//
// This is the idiomatic-Go translation of the original's JUCE
// AbstractFifo-backed LockFreeIndexFIFO / NoAllocIndexQueue: a fixed ring
// of uint64 slots addressed by two atomic cursors, no mutex.
package fifo

import "sync/atomic"

// IndexFIFO is a bounded, lock-free, single-producer/single-consumer FIFO
// of pool slot indices.
type IndexFIFO struct {
	ring []uint64
	mask uint64

	// head is the next slot the producer will write; tail is the next
	// slot the consumer will read. Both only move forward and are only
	// ever written by their respective single owner, so plain atomic
	// loads/stores (no CAS) are sufficient for cross-thread visibility.
	head atomic.Uint64
	tail atomic.Uint64
}

// New creates an IndexFIFO with the given capacity, rounded up to the next
// power of two so the ring can be indexed with a mask instead of a modulo.
func New(capacity int) *IndexFIFO {
	if capacity <= 0 {
		capacity = 1
	}
	size := uint64(1)
	for size < uint64(capacity) {
		size <<= 1
	}
	return &IndexFIFO{
		ring: make([]uint64, size),
		mask: size - 1,
	}
}

// Capacity returns the usable capacity of the queue (a power of two, may
// be larger than the capacity requested at construction).
func (f *IndexFIFO) Capacity() int {
	return len(f.ring)
}

// TryPush inserts index into the queue. Returns false without blocking if
// the queue is full; the caller (typically the realtime audio thread)
// must drop the value and log a warning rather than wait.
func (f *IndexFIFO) TryPush(index uint64) bool {
	head := f.head.Load()
	tail := f.tail.Load()
	if head-tail >= uint64(len(f.ring)) {
		return false
	}
	f.ring[head&f.mask] = index
	f.head.Store(head + 1)
	return true
}

// TryPopBatch drains up to max queued indices in FIFO order, never
// blocking. Returns an empty slice if nothing is queued.
func (f *IndexFIFO) TryPopBatch(max int) []uint64 {
	tail := f.tail.Load()
	head := f.head.Load()
	available := head - tail
	if available == 0 || max <= 0 {
		return nil
	}
	if uint64(max) < available {
		available = uint64(max)
	}
	out := make([]uint64, available)
	for i := uint64(0); i < available; i++ {
		out[i] = f.ring[(tail+i)&f.mask]
	}
	f.tail.Store(tail + available)
	return out
}

// Len reports the number of currently queued indices. Advisory only: the
// producer may add more between the read and the caller observing it.
func (f *IndexFIFO) Len() int {
	return int(f.head.Load() - f.tail.Load())
}
