package taskbus

// recordInHistory appends task to the history ring, evicting the oldest
// entry if full, and clears the cancelled stack (spec: "any new
// non-reversion task clears the cancelled stack"). Must run on the
// dispatch goroutine.
func (b *Bus) recordInHistory(t *Task) {
	if !t.isReversion {
		b.cancelled = b.cancelled[:0]
	}
	b.history[b.historyNext] = t
	b.historyNext = (b.historyNext + 1) % historySize
}

func (b *Bus) lastHistoryIndex() int {
	idx := b.historyNext - 1
	if idx < 0 {
		idx += historySize
	}
	return idx
}

// undoLastActivity undoes the most recent history entry, then keeps
// undoing further entries while they share the same task-group id (spec
// Property 9). Must run on the dispatch goroutine (called only from
// handleControlTask, itself invoked from the dispatch loop).
func (b *Bus) undoLastActivity() bool {
	for {
		idx := b.lastHistoryIndex()
		entry := b.history[idx]
		if entry == nil {
			b.log.Info("undo requested but history is empty")
			return false
		}

		group := entry.TaskGroup()
		reversions := entry.OppositeTasks()
		if len(reversions) == 0 {
			b.log.Info("task cannot be undone (no opposite tasks)")
			return false
		}

		for _, rev := range reversions {
			rev.declareAsReversion()
			b.invokeListeners(rev)
		}

		b.cancelled = append(b.cancelled, entry)
		b.history[idx] = nil
		b.historyNext = idx

		next := b.lastHistoryIndex()
		if group == 0 || b.history[next] == nil || b.history[next].TaskGroup() != group {
			return true
		}
	}
}

// redoLastActivity restores the most recently cancelled entry, then keeps
// restoring while the next cancelled entry shares the same task-group id.
func (b *Bus) redoLastActivity() bool {
	for {
		n := len(b.cancelled)
		if n == 0 {
			b.log.Info("redo requested but nothing is cancelled")
			return false
		}

		toRestore := b.cancelled[n-1]
		b.cancelled = b.cancelled[:n-1]

		group := toRestore.TaskGroup()
		toRestore.runPrepareForRepost()
		toRestore.PreventHistory()
		toRestore.declareAsReversion()

		b.invokeListeners(toRestore)

		toRestore.ForceHistory()
		b.history[b.historyNext] = toRestore
		b.historyNext = (b.historyNext + 1) % historySize

		if group == 0 || len(b.cancelled) == 0 || b.cancelled[len(b.cancelled)-1].TaskGroup() != group {
			return true
		}
	}
}

func (b *Bus) clearHistory() {
	b.cancelled = b.cancelled[:0]
	for i := range b.history {
		b.history[i] = nil
	}
	b.historyNext = 0
}

// handleControlTask recognizes the three bus-owned control kinds
// (cancel/restore/clear-history) and performs them inline, mirroring the
// origin TaskingManager's own taskHandler being the first registered
// listener. It always returns false (never short-circuits fan-out) so
// every other listener still observes the control task completing.
func (b *Bus) handleControlTask(t *Task) bool {
	switch t.Kind {
	case KindCancel, KindRestore, KindClearHistory:
		// Control actions are never themselves history entries — an undo
		// of an undo is not a meaningful user-facing concept here, and it
		// would otherwise poison the history ring with bookkeeping noise.
		t.PreventHistory()
	}

	switch t.Kind {
	case KindCancel:
		if t.Completed() || t.Failed() {
			return false
		}
		if b.undoLastActivity() {
			t.SetFailed(false, "")
			t.SetCompleted(true)
		} else {
			t.SetFailed(true, "nothing to undo")
			t.SetCompleted(false)
		}
	case KindRestore:
		if t.Completed() || t.Failed() {
			return false
		}
		if b.redoLastActivity() {
			t.SetFailed(false, "")
			t.SetCompleted(true)
		} else {
			t.SetFailed(true, "nothing to redo")
			t.SetCompleted(false)
		}
	case KindClearHistory:
		if t.Completed() || t.Failed() {
			return false
		}
		b.clearHistory()
		t.SetFailed(false, "")
		t.SetCompleted(true)
	}
	return false
}
