// Package taskbus is the process-wide publish/subscribe spine (spec §4.3):
// a single background dispatch thread drains a queue of typed tasks and
// calls every registered listener in registration order, with a bounded
// history ring enabling task-group atomic undo/redo. It replaces the
// dynamic-downcasting Task hierarchy of a C++ origin with a tagged Go
// struct that listeners type-switch on.
package taskbus

import "fmt"

// Kind tags the payload carried by a Task. Each component that broadcasts
// tasks owns its own Kind constants; the bus itself only recognizes the
// three history-control kinds below.
type Kind string

const (
	// KindCancel undoes the most recent history-eligible task (and any
	// task sharing its task-group id).
	KindCancel Kind = "taskbus.cancel"
	// KindRestore redoes the most recently cancelled task (and any task
	// sharing its task-group id).
	KindRestore Kind = "taskbus.restore"
	// KindClearHistory empties both the history ring and the cancelled
	// stack. Used after a durable commit, so a later undo can never
	// resurrect a state older than the commit.
	KindClearHistory Kind = "taskbus.clear_history"
)

// Task is a single typed event broadcast on the bus. Payload carries
// whatever data the Kind implies; listeners type-assert it after checking
// Kind. A Task is not safe for concurrent mutation — it is expected to be
// handled by one dispatch loop at a time.
type Task struct {
	Kind    Kind
	Payload any

	completed bool
	failed    bool
	errMsg    string

	historyEligible bool
	isReversion     bool
	taskGroup       int64

	// opposite, when non-nil, builds the tasks that undo this one. Tasks
	// without an opposite cannot be undone (undo fails and logs).
	opposite func() []*Task

	// prepareForRepost lets a task refresh any repost-sensitive state
	// (e.g. regenerate an id) before it is redone. Most tasks need none.
	prepareForRepost func()
}

// New builds a history-eligible task of the given kind and payload.
func New(kind Kind, payload any) *Task {
	return &Task{Kind: kind, Payload: payload, historyEligible: true}
}

// NewSilent builds a task that is never recorded in history (mirrors the
// origin design's SilentTask).
func NewSilent(kind Kind, payload any) *Task {
	return &Task{Kind: kind, Payload: payload, historyEligible: false}
}

// WithOpposite attaches a reverse-task factory, making the task undoable.
func (t *Task) WithOpposite(opposite func() []*Task) *Task {
	t.opposite = opposite
	return t
}

// WithPrepareForRepost attaches a hook run just before the task is redone.
func (t *Task) WithPrepareForRepost(fn func()) *Task {
	t.prepareForRepost = fn
	return t
}

// TaskGroup returns the task-group id tying this task to others that must
// undo/redo together (0 means "no group").
func (t *Task) TaskGroup() int64 { return t.taskGroup }

// SetTaskGroup assigns a task-group id, propagated from a caller-held
// NextTaskGroup() counter so several tasks broadcast in sequence share one
// atomic undo step (spec Property 9).
func (t *Task) SetTaskGroup(id int64) *Task {
	t.taskGroup = id
	return t
}

// Completed reports whether the task has finished processing.
func (t *Task) Completed() bool { return t.completed }

// SetCompleted marks the task done.
func (t *Task) SetCompleted(c bool) { t.completed = c }

// Failed reports whether the task's processing failed.
func (t *Task) Failed() bool { return t.failed }

// SetFailed marks the task as failed, with an optional message.
func (t *Task) SetFailed(failed bool, msg string) {
	t.failed = failed
	t.errMsg = msg
}

// Error returns the failure message, if any.
func (t *Task) Error() string { return t.errMsg }

// GoesInHistory reports whether a completed, non-failed instance of this
// task should be appended to the history ring.
func (t *Task) GoesInHistory() bool { return t.historyEligible }

// PreventHistory marks the task as not to be recorded (used when
// replaying a restored task, which is re-appended explicitly instead).
func (t *Task) PreventHistory() *Task {
	t.historyEligible = false
	return t
}

// ForceHistory marks the task as recordable.
func (t *Task) ForceHistory() *Task {
	t.historyEligible = true
	return t
}

// IsReversion reports whether this task was produced by an undo/redo step
// rather than submitted directly.
func (t *Task) IsReversion() bool { return t.isReversion }

func (t *Task) declareAsReversion() { t.isReversion = true }

// OppositeTasks returns the tasks that undo this one, in the order they
// must be applied, or nil if this task cannot be undone.
func (t *Task) OppositeTasks() []*Task {
	if t.opposite == nil {
		return nil
	}
	return t.opposite()
}

func (t *Task) runPrepareForRepost() {
	if t.prepareForRepost != nil {
		t.prepareForRepost()
	}
}

func (t *Task) String() string {
	return fmt.Sprintf("Task{kind=%s completed=%v failed=%v group=%d reversion=%v}",
		t.Kind, t.completed, t.failed, t.taskGroup, t.isReversion)
}
