package stft

import "sync"

// resultCache is a LIFO free-list of previously returned result buffers,
// so PerformFFT avoids allocating a fresh []float32 on every call once the
// caller has returned enough buffers via Pool.Release (spec §4.6: "does
// not allocate the result from scratch when a free one is cached").
type resultCache struct {
	mu   sync.Mutex
	free [][]float32
}

func (c *resultCache) get(size int) []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.free) - 1; i >= 0; i-- {
		if cap(c.free[i]) >= size {
			buf := c.free[i]
			c.free = append(c.free[:i], c.free[i+1:]...)
			return buf[:size]
		}
	}
	return make([]float32, size)
}

func (c *resultCache) put(buf []float32) {
	c.mu.Lock()
	c.free = append(c.free, buf)
	c.mu.Unlock()
}
