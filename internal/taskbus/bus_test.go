package taskbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testPayload struct {
	name string
}

const kindPing Kind = "test.ping"

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestBus_BroadcastReachesListenersInOrder(t *testing.T) {
	b := New()
	b.Start()
	defer b.ShutdownAsync()

	var order []string
	done := make(chan struct{})

	b.Register(func(tk *Task) bool {
		order = append(order, "first")
		return false
	})
	b.Register(func(tk *Task) bool {
		order = append(order, "second")
		close(done)
		return false
	})

	b.Broadcast(New(kindPing, testPayload{name: "hello"}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listeners never ran")
	}
	require.Equal(t, []string{"first", "second"}, order)
}

func TestBus_StopShortCircuitsFanOut(t *testing.T) {
	b := New()
	b.Start()
	defer b.ShutdownAsync()

	reached := make(chan struct{}, 1)
	done := make(chan struct{})

	b.Register(func(tk *Task) bool {
		close(done)
		return true
	})
	b.Register(func(tk *Task) bool {
		reached <- struct{}{}
		return false
	})

	b.Broadcast(New(kindPing, nil))
	<-done

	select {
	case <-reached:
		t.Fatal("second listener should not have run")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_ListenerPanicIsRecovered(t *testing.T) {
	b := New()
	b.Start()
	defer b.ShutdownAsync()

	done := make(chan struct{})
	b.Register(func(tk *Task) bool {
		panic("boom")
	})
	b.Register(func(tk *Task) bool {
		close(done)
		return false
	})

	b.Broadcast(New(kindPing, nil))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second listener never ran after first panicked")
	}
}

// TestBus_TaskGroupAtomicUndoRedo is spec Property 9: a history ending
// with tasks tagged with identical task-group ids is undone as a single
// step, the cancelled stack receives those tasks in order, and a
// subsequent redo restores them in the original order.
func TestBus_TaskGroupAtomicUndoRedo(t *testing.T) {
	b := New()
	b.Start()
	defer b.ShutdownAsync()

	var applied []string
	var undone []string
	var redone []string

	const kindMove Kind = "test.move"
	const kindMoveUndo Kind = "test.move_undo"

	b.Register(func(tk *Task) bool {
		switch tk.Kind {
		case kindMove:
			name := tk.Payload.(string)
			if tk.IsReversion() {
				redone = append(redone, name)
			} else {
				applied = append(applied, name)
			}
			tk.SetCompleted(true)
		case kindMoveUndo:
			undone = append(undone, tk.Payload.(string))
		}
		return false
	})

	group := b.NextTaskGroup()
	makeMove := func(name string) *Task {
		tk := New(kindMove, name).SetTaskGroup(group)
		tk.WithOpposite(func() []*Task {
			return []*Task{New(kindMoveUndo, name)}
		})
		return tk
	}

	b.Broadcast(makeMove("a"))
	b.Broadcast(makeMove("b"))
	b.Broadcast(makeMove("c"))

	waitForCondition(t, time.Second, func() bool { return len(applied) == 3 })

	cancel := New(KindCancel, nil)
	b.Broadcast(cancel)
	waitForCondition(t, time.Second, func() bool { return len(undone) == 3 })
	require.Equal(t, []string{"c", "b", "a"}, undone)

	restore := New(KindRestore, nil)
	b.Broadcast(restore)
	waitForCondition(t, time.Second, func() bool { return len(redone) == 3 })
	require.Equal(t, []string{"a", "b", "c"}, redone)
}

func TestBus_ClearHistoryEmptiesBothStructures(t *testing.T) {
	b := New()
	b.Start()
	defer b.ShutdownAsync()

	const kindNoop Kind = "test.noop"
	b.Register(func(tk *Task) bool {
		if tk.Kind == kindNoop {
			tk.SetCompleted(true)
		}
		return false
	})

	tk := New(kindNoop, nil).WithOpposite(func() []*Task { return []*Task{New(kindNoop, nil)} })
	b.Broadcast(tk)
	waitForCondition(t, time.Second, func() bool { return tk.Completed() })

	clear := New(KindClearHistory, nil)
	b.Broadcast(clear)
	waitForCondition(t, time.Second, func() bool { return clear.Completed() })

	cancel := New(KindCancel, nil)
	b.Broadcast(cancel)
	waitForCondition(t, time.Second, func() bool { return cancel.Completed() || cancel.Failed() })
	require.True(t, cancel.Failed(), "undo after clear-history must fail: nothing left to undo")
}

func TestBus_BroadcastNestedNowOutsideDispatchPanics(t *testing.T) {
	b := New()
	require.Panics(t, func() {
		b.BroadcastNestedNow(New(kindPing, nil))
	})
}

func TestBus_RegisterUnregister(t *testing.T) {
	b := New()
	b.Start()
	defer b.ShutdownAsync()

	count := 0
	id := b.Register(func(tk *Task) bool {
		count++
		return false
	})
	b.Broadcast(New(kindPing, nil))
	waitForCondition(t, time.Second, func() bool { return count == 1 })

	b.Unregister(id)
	b.Broadcast(New(kindPing, nil))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, count)
}
