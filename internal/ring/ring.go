// Package ring implements the Distribution Ring Buffer (C7, spec §4.7):
// a monotonic, generation-tagged catch-up buffer serving visualiser
// clients that poll for FFT frames they haven't seen yet. Grounded on
// the origin's HeadlessAudioBroadcast/ServerFftsRingBuffer.{h,cpp}, with
// the protobuf AudioTasks/FftToDrawTask response type replaced by
// transport.Frame/ResponseBatch and math/rand/v2 standing in for the
// origin's libc rand() server-identifier.
package ring

import (
	"math/rand/v2"
	"sync"

	"github.com/kholors/station/internal/transport"
)

// ResponseBatch is a reusable response to a Read call. Frames returns the
// populated prefix of a preallocated, reused backing slice; callers must
// call Ring.Release(batch) once done so its storage can serve the next
// Read instead of allocating one.
type ResponseBatch struct {
	frames           []transport.Frame
	used             int
	NextOffset       uint64
	ServerGeneration uint64
}

// Frames returns the frames populated by the Read call that produced this
// batch, oldest first.
func (b *ResponseBatch) Frames() []transport.Frame {
	return b.frames[:b.used]
}

func newResponseBatch(capacity, defaultFFTArraySize int) *ResponseBatch {
	frames := make([]transport.Frame, capacity)
	for i := range frames {
		frames[i].FFTData = make([]float32, 0, defaultFFTArraySize)
	}
	return &ResponseBatch{frames: frames}
}

// Ring is a fixed-capacity, mutex-guarded catch-up buffer. Write never
// blocks a caller beyond a short critical section; Read copies a window
// of entries into a pooled ResponseBatch.
type Ring struct {
	mu sync.Mutex

	entries    []transport.Frame
	usedSize   int
	lastIndex  int
	lastOffset uint64
	generation uint64

	defaultFFTArraySize int
	free                []*ResponseBatch
}

// New builds a Ring with room for capacity entries, each frame's FFTData
// preallocated to defaultFFTArraySize floats.
func New(capacity, defaultFFTArraySize int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	entries := make([]transport.Frame, capacity)
	for i := range entries {
		entries[i].FFTData = make([]float32, 0, defaultFFTArraySize)
	}
	return &Ring{
		entries:             entries,
		lastIndex:           -1,
		generation:          rand.Uint64(),
		defaultFFTArraySize: defaultFFTArraySize,
	}
}

// Generation returns the server's random identifier, assigned once at
// construction.
func (r *Ring) Generation() uint64 {
	return r.generation
}

// Stats is a point-in-time snapshot of the ring's fill state, for the ops
// dashboard.
type Stats struct {
	Generation uint64
	LastOffset uint64
	UsedSize   int
	Capacity   int
}

// Stats reports the ring's current generation, last-written offset, and
// fill level.
func (r *Ring) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Generation: r.generation,
		LastOffset: r.lastOffset,
		UsedSize:   r.usedSize,
		Capacity:   len(r.entries),
	}
}

// Write appends frame, overwriting the oldest entry once the ring is
// full. Never blocks beyond the critical section.
func (r *Ring) Write(frame transport.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := len(r.entries)
	if r.usedSize < capacity {
		r.usedSize++
	}
	r.lastOffset++
	r.lastIndex = (r.lastIndex + 1) % capacity
	copyFrameInto(&r.entries[r.lastIndex], &frame)
}

// Read returns the window of frames the client hasn't seen, per spec
// §4.7: a generation mismatch or an offset ahead of what the server has
// produced resets the client to the oldest available entry; an offset
// older than the oldest retained entry silently clamps up to it.
func (r *Ring) Read(clientGeneration, clientOffset uint64) *ResponseBatch {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch := r.acquireBatch()
	batch.NextOffset = r.lastOffset + 1
	batch.ServerGeneration = r.generation
	batch.used = 0

	if r.usedSize == 0 {
		return batch
	}

	start := clientOffset
	if clientGeneration != r.generation || clientOffset > r.lastOffset+1 {
		start = 0
	}
	oldest := r.lastOffset - uint64(r.usedSize-1)
	if start < oldest {
		start = oldest
	}

	idx := r.ringIndexForOffset(start)
	for off := start; off <= r.lastOffset; off++ {
		if batch.used >= len(batch.frames) {
			batch.frames = append(batch.frames, transport.Frame{FFTData: make([]float32, 0, r.defaultFFTArraySize)})
		}
		copyFrameInto(&batch.frames[batch.used], &r.entries[idx])
		batch.used++
		idx++
		if idx == len(r.entries) {
			idx = 0
		}
	}
	return batch
}

// Release returns a ResponseBatch to the free pool for Read to reuse.
func (r *Ring) Release(batch *ResponseBatch) {
	if batch == nil {
		return
	}
	r.mu.Lock()
	r.free = append(r.free, batch)
	r.mu.Unlock()
}

func (r *Ring) acquireBatch() *ResponseBatch {
	n := len(r.free)
	if n == 0 {
		return newResponseBatch(len(r.entries), r.defaultFFTArraySize)
	}
	b := r.free[n-1]
	r.free = r.free[:n-1]
	return b
}

// ringIndexForOffset locates the ring slot holding offset, given the
// slot currently holding lastOffset.
func (r *Ring) ringIndexForOffset(offset uint64) int {
	diff := int64(r.lastOffset - offset)
	m := int64(len(r.entries))
	idx := int64(r.lastIndex) - diff
	idx %= m
	if idx < 0 {
		idx += m
	}
	return int(idx)
}

// copyFrameInto deep-copies src into dst, reusing dst's existing FFTData
// backing array when it has enough capacity.
func copyFrameInto(dst, src *transport.Frame) {
	buf := dst.FFTData[:0]
	*dst = *src
	dst.FFTData = append(buf, src.FFTData...)
}
