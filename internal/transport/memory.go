package transport

import (
	"context"
	"sync"
)

// Memory is an in-process Transport backed by mutex-guarded slices, used by
// tests and the replay CLI in place of a real RPC stack. SendSegment
// appends to an internal log that a station-side test harness can drain;
// GetNextAudioEvents serves whatever Frames have been pushed via Publish.
type Memory struct {
	mu sync.Mutex

	sent          []Segment
	failNext      int
	reconnects    int
	frames        []Frame
	generation    uint64
}

// NewMemory builds a Memory transport with a fixed server generation
// (tests may override it to exercise Property 5's generation-isolation
// behavior).
func NewMemory(generation uint64) *Memory {
	return &Memory{generation: generation}
}

// SendSegment records seg. If ArmFailure was called, it consumes one
// armed failure instead.
func (m *Memory) SendSegment(ctx context.Context, seg Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return errSendFailed
	}
	m.sent = append(m.sent, seg)
	return nil
}

// Reconnect counts reconnect attempts; idempotent, never fails.
func (m *Memory) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	m.reconnects++
	m.mu.Unlock()
	return nil
}

// GetNextAudioEvents returns every Frame published with offset >= offset,
// or the whole backlog if generation doesn't match the server's current
// one (spec Property 5: generation mismatch resets to the oldest-available
// window).
func (m *Memory) GetNextAudioEvents(ctx context.Context, offset uint64, generation uint64) ([]Frame, uint64, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := 0
	if generation == m.generation {
		start = int(offset)
		if start > len(m.frames) {
			start = len(m.frames)
		}
	}
	out := make([]Frame, len(m.frames)-start)
	copy(out, m.frames[start:])
	return out, uint64(len(m.frames)), m.generation, nil
}

// Publish appends a Frame to the backlog the fake serves from.
func (m *Memory) Publish(f Frame) {
	m.mu.Lock()
	m.frames = append(m.frames, f)
	m.mu.Unlock()
}

// ArmFailure makes the next n SendSegment calls fail.
func (m *Memory) ArmFailure(n int) {
	m.mu.Lock()
	m.failNext = n
	m.mu.Unlock()
}

// Sent returns a copy of every segment accepted so far.
func (m *Memory) Sent() []Segment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Segment, len(m.sent))
	copy(out, m.sent)
	return out
}

// Reconnects reports how many times Reconnect was called.
func (m *Memory) Reconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnects
}

type sendFailedError struct{}

func (sendFailedError) Error() string { return "transport: send failed" }

var errSendFailed = sendFailedError{}
