// Package timing tracks how long a STFT worker pool (C6) takes to turn a
// payload's segments into frames, and publishes a rolling average on the
// task bus every AveragingWindow samples (spec §4.6/§4.9, "C9 wraps C6
// work"). A WaitGroup here is not sync.WaitGroup: it tracks an
// expected-count of worker completions raised one Add at a time as the
// segments fan out, not fixed up front, mirroring the origin's
// ProcessingTimerWaitgroup.
package timing

import (
	"sync"
	"time"

	"github.com/kholors/station/internal/taskbus"
)

// AveragingWindow is the number of payload processing-time samples
// averaged before a ProcessingTimeUpdate task is broadcast (the origin's
// AVERAGING_TIMER_SIZE).
const AveragingWindow = 32

// defaultPreallocated mirrors DEFAULT_PREALLOCATED_PROC_TIMER_WAITGROUPS.
const defaultPreallocated = 32

// KindProcessingTimeUpdate carries a float64 average-processing-ms
// payload, broadcast once every AveragingWindow completions.
const KindProcessingTimeUpdate taskbus.Kind = "timing.processing_time_update"

// WaitGroup tracks how many workers must call Done before a payload is
// considered fully processed, then reports the elapsed time to its parent
// Timer. It is reused across payloads via Timer.Acquire/the idle pool, so
// a stale completion reported after the group has been reset for a new
// payload must not be mistaken for the current one — callers only see a
// WaitGroup through Acquire, which already reset it for their use.
type WaitGroup struct {
	mu       sync.Mutex
	parent   *Timer
	id       int64
	sentAt   time.Time
	count    int
	expected int
}

// Add registers one more expected completion before the group fires.
func (w *WaitGroup) Add() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expected++
}

// Done records one completion. When the observed count reaches the
// expected count, it reports the elapsed processing time to the parent
// Timer and returns the waitgroup's slot to the idle pool. Calling Done
// more times than Add was called is a caller bug and panics, mirroring
// the origin's throw.
func (w *WaitGroup) Done() {
	w.mu.Lock()
	w.count++
	switch {
	case w.count == w.expected:
		parent := w.parent
		id := w.id
		elapsed := time.Since(w.sentAt)
		w.mu.Unlock()
		if parent != nil {
			parent.recordCompletion(id, elapsed)
		}
		return
	case w.count > w.expected:
		w.mu.Unlock()
		panic("timing: more completions recorded than were added")
	}
	w.mu.Unlock()
}

// Deactivate detaches the waitgroup from its parent Timer so a late Done
// call cannot reach a Timer that has since been torn down (the origin's
// deactivate(), a weak-handle substitute for the parent back-pointer).
func (w *WaitGroup) Deactivate() {
	w.mu.Lock()
	w.parent = nil
	w.mu.Unlock()
}

func (w *WaitGroup) reset(sentAt time.Time) {
	w.mu.Lock()
	w.sentAt = sentAt
	w.count = 0
	w.expected = 0
	w.mu.Unlock()
}

// Timer accumulates per-payload processing times and publishes a rolling
// average on the bus every AveragingWindow samples.
type Timer struct {
	mu         sync.Mutex
	bus        *taskbus.Bus
	waitgroups []*WaitGroup
	idle       []int64
	samples    []time.Duration
}

// NewTimer builds a Timer that publishes updates on bus.
func NewTimer(bus *taskbus.Bus) *Timer {
	t := &Timer{bus: bus}
	for i := 0; i < defaultPreallocated; i++ {
		wg := &WaitGroup{parent: t, id: int64(i)}
		t.waitgroups = append(t.waitgroups, wg)
		t.idle = append(t.idle, int64(i))
	}
	return t
}

// Acquire hands out an idle WaitGroup (growing the pool if none is free),
// reset to track a payload sent at sentAt.
func (t *Timer) Acquire(sentAt time.Time) *WaitGroup {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.idle) == 0 {
		newIdx := int64(len(t.waitgroups))
		wg := &WaitGroup{parent: t, id: newIdx}
		t.waitgroups = append(t.waitgroups, wg)
		t.idle = append(t.idle, newIdx)
	}

	n := len(t.idle)
	idx := t.idle[n-1]
	t.idle = t.idle[:n-1]
	wg := t.waitgroups[idx]
	wg.reset(sentAt)
	return wg
}

func (t *Timer) recordCompletion(id int64, elapsed time.Duration) {
	t.mu.Lock()
	if id >= 0 {
		t.idle = append(t.idle, id)
	}
	t.samples = append(t.samples, elapsed)

	var avg time.Duration
	fire := len(t.samples) >= AveragingWindow
	if fire {
		var total time.Duration
		for _, s := range t.samples[:AveragingWindow] {
			total += s
		}
		avg = total / AveragingWindow
		t.samples = t.samples[:0]
	}
	t.mu.Unlock()

	if fire && t.bus != nil {
		avgMs := float64(avg) / float64(time.Millisecond)
		t.bus.Broadcast(taskbus.NewSilent(KindProcessingTimeUpdate, avgMs))
	}
}

// Close detaches every outstanding waitgroup from this timer so late
// completions from in-flight work cannot call back into a destroyed
// timer.
func (t *Timer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, wg := range t.waitgroups {
		wg.Deactivate()
	}
}
