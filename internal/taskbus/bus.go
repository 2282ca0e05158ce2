package taskbus

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/kholors/station/internal/logging"
)

// historySize mirrors the origin's ACTIVITY_HISTORY_RING_BUFFER_SIZE.
const historySize = 4096

// Listener is called once per dispatched task, in registration order. It
// returns true to short-circuit further fan-out for that task (the origin
// design's taskHandler bool return).
type Listener func(*Task) (stop bool)

type registeredListener struct {
	id       int64
	listener Listener
}

// Bus is the process-wide task dispatcher: register() once per subscriber,
// broadcast() from any goroutine, and a single background loop invokes
// listeners in order. It is the Go analogue of a TaskingManager: a typed
// pub/sub channel plus an undo/redo history, minus the dynamic_pointer_cast
// dispatch (replaced by a Kind tag and a type-switched Payload).
type Bus struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue   []*Task
	stopped bool

	listeners  []registeredListener
	listenerMu sync.Mutex
	nextID     int64

	history     [historySize]*Task
	historyNext int
	cancelled   []*Task

	running      atomic.Bool
	dispatchGID  atomic.Uint64
	groupCounter atomic.Int64
	log          *charmlog.Logger
	dispatchDone chan struct{}
}

// New builds a Bus. The dispatcher is not started until Start is called.
func New() *Bus {
	b := &Bus{log: logging.Named("taskbus")}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// NextTaskGroup returns a fresh task-group id, used by a caller that wants
// several tasks broadcast in a row to undo/redo atomically (spec Property
// 9).
func (b *Bus) NextTaskGroup() int64 {
	return b.groupCounter.Add(1)
}

// Register adds a listener, called for every task in registration order.
// Safe to call from any goroutine, including while the dispatcher runs.
func (b *Bus) Register(l Listener) int64 {
	b.listenerMu.Lock()
	defer b.listenerMu.Unlock()
	id := b.nextID
	b.nextID++
	b.listeners = append(b.listeners, registeredListener{id: id, listener: l})
	return id
}

// Unregister removes a previously registered listener. A no-op if id is
// unknown.
func (b *Bus) Unregister(id int64) {
	b.listenerMu.Lock()
	defer b.listenerMu.Unlock()
	out := b.listeners[:0]
	for _, rl := range b.listeners {
		if rl.id != id {
			out = append(out, rl)
		}
	}
	b.listeners = out
}

// Broadcast enqueues task and wakes the dispatcher. Non-blocking; safe
// from any goroutine, including the realtime audio thread's callers one
// hop removed (never call Broadcast directly from an audio callback —
// route through C4 instead).
func (b *Bus) Broadcast(t *Task) {
	b.mu.Lock()
	b.queue = append(b.queue, t)
	b.mu.Unlock()
	b.cond.Broadcast()
}

// BroadcastNestedNow calls every listener with task immediately, jumping
// the regular queue. It is reentrant and may ONLY be called from inside a
// listener while it is itself running on the dispatch goroutine (the bus
// captures the dispatch goroutine's id at Start and checks it here,
// mirroring the origin's thread-id guard). The nested task is never
// recorded in history.
func (b *Bus) BroadcastNestedNow(t *Task) {
	if !b.onDispatchGoroutine() {
		panic("taskbus: BroadcastNestedNow called from outside the dispatch goroutine; " +
			"it may only be invoked from within a Listener")
	}
	b.invokeListeners(t)
}

// Start launches the background dispatch goroutine. A Bus can only be
// started once; calling Start again while already running logs a warning
// and does nothing (mirrors startTaskBroadcast's origin behavior).
func (b *Bus) Start() {
	if !b.running.CompareAndSwap(false, true) {
		b.log.Warn("Start called while dispatcher already running")
		return
	}
	b.mu.Lock()
	b.stopped = false
	b.mu.Unlock()

	b.dispatchDone = make(chan struct{})
	go b.loop()
}

// ShutdownAsync flags the dispatcher to exit after draining the queue and
// wakes it; it does not wait for the goroutine to exit (spec §4.3).
func (b *Bus) ShutdownAsync() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Wait blocks until the dispatch goroutine has exited. Primarily useful in
// tests; production callers typically only need ShutdownAsync.
func (b *Bus) Wait() {
	if b.dispatchDone != nil {
		<-b.dispatchDone
	}
}

// Running reports whether the dispatch goroutine is currently active.
func (b *Bus) Running() bool { return b.running.Load() }

func (b *Bus) loop() {
	defer func() {
		b.running.Store(false)
		close(b.dispatchDone)
	}()

	b.dispatchGID.Store(currentGoroutineID())

	// A ticker stands in for the origin's condition-variable wait with a
	// one-second timeout: it guarantees the dispatcher wakes periodically
	// to recheck the stop flag even with no new tasks.
	ticker := time.NewTicker(time.Second)
	tickerDone := make(chan struct{})
	defer func() {
		ticker.Stop()
		close(tickerDone)
	}()
	go func() {
		for {
			select {
			case <-ticker.C:
				b.cond.Broadcast()
			case <-tickerDone:
				return
			}
		}
	}()

	for {
		for {
			b.mu.Lock()
			if len(b.queue) == 0 {
				b.mu.Unlock()
				break
			}
			current := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()

			b.invokeListeners(current)

			if current.GoesInHistory() && current.Completed() && !current.Failed() {
				b.recordInHistory(current)
			}
		}

		b.mu.Lock()
		for len(b.queue) == 0 && !b.stopped {
			b.cond.Wait()
		}
		stop := b.stopped && len(b.queue) == 0
		b.mu.Unlock()
		if stop {
			return
		}
	}
}

// invokeListeners runs the bus's own control-task handler first (undo,
// redo, clear-history — never short-circuits), then every registered
// listener in order. Must run on the dispatch goroutine.
func (b *Bus) invokeListeners(t *Task) {
	b.handleControlTask(t)

	b.listenerMu.Lock()
	snapshot := make([]registeredListener, len(b.listeners))
	copy(snapshot, b.listeners)
	b.listenerMu.Unlock()

	for _, rl := range snapshot {
		stop := b.callListenerSafely(rl.listener, t)
		if stop {
			break
		}
	}
}

// callListenerSafely recovers from a listener panic, logs it, and treats
// the listener as "did not handle" (spec §4.3 failure semantics).
func (b *Bus) callListenerSafely(l Listener, t *Task) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("listener panicked handling task", "kind", t.Kind, "panic", r)
			stop = false
		}
	}()
	return l(t)
}

func (b *Bus) onDispatchGoroutine() bool {
	return b.running.Load() && b.dispatchGID.Load() == currentGoroutineID()
}

// currentGoroutineID extracts the calling goroutine's numeric id from its
// stack trace header. The standard library has no public goroutine-id
// API; this is the conventional workaround, used here only to approximate
// the origin's std::thread::get_id() reentrancy guard.
func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
