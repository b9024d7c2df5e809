package store

import (
	"sync"
	"time"
)

// Subscriber receives the (newState, previousState) pair for every
// mutation applied to the RunStore it subscribed to (spec.md §4.3
// "subscribe primitive"). It is invoked synchronously on the mutating
// goroutine; per Design Notes §9 it must not call back into the store.
type Subscriber func(newState, prevState RunState)

// Unsubscribe deregisters a Subscriber previously returned by Subscribe.
type Unsubscribe func()

// RunStore is the authoritative, mutex-serialized record of one run's
// state (spec.md §4.3). All mutations go through its methods; callers
// never hold a reference to its internal collections.
type RunStore struct {
	mu   sync.Mutex
	subs map[int]Subscriber
	next int

	state    RunState
	lastNano int64
}

// New builds a RunStore for (runID, workflowID) in StatusInitial, with
// all collections initialized empty (spec.md "Lifecycle": "Store is
// created on run construction").
func New(runID, workflowID string) *RunStore {
	return &RunStore{
		subs: make(map[int]Subscriber),
		state: RunState{
			RunID:            runID,
			WorkflowID:       workflowID,
			Status:           StatusInitial,
			StepResults:      make(map[string]StepResult),
			SuspendedPaths:   make(map[string][]int),
			State:            make(map[string]any),
			ExecutionContext: make(map[string]any),
		},
	}
}

// Subscribe registers cb to observe every mutation strictly after this
// call (spec.md §4.3 "A subscriber registered at time T sees all
// mutations strictly after T"). The returned Unsubscribe deregisters it.
func (rs *RunStore) Subscribe(cb Subscriber) Unsubscribe {
	rs.mu.Lock()
	id := rs.next
	rs.next++
	rs.subs[id] = cb
	rs.mu.Unlock()

	return func() {
		rs.mu.Lock()
		delete(rs.subs, id)
		rs.mu.Unlock()
	}
}

// State returns a defensive copy of the current state, safe to retain
// and read without holding the store's lock.
func (rs *RunStore) State() RunState {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.state.clone()
}

// nextTimestamp returns a strictly increasing nanosecond timestamp,
// guarding I4 against clock granularity/ties by bumping past the last
// one issued. Must be called with rs.mu held.
func (rs *RunStore) nextTimestamp() int64 {
	now := time.Now().UnixNano()
	if now <= rs.lastNano {
		now = rs.lastNano + 1
	}
	rs.lastNano = now
	return now
}

// apply is the single choke point every mutator funnels through: it
// takes the lock, lets mutate edit rs.state in place, appends the log
// entry mutate produced, then — outside the lock — fans the
// before/after snapshot out to every subscriber, matching spec.md's
// "totally ordered, subscribers observe them in that order" guarantee.
// The order in which different subscribers are called for one mutation
// is not defined.
func (rs *RunStore) apply(kind LogKind, detail string, mutate func(ts int64)) {
	rs.mu.Lock()
	prev := rs.state.clone()
	ts := rs.nextTimestamp()
	mutate(ts)
	rs.state.Logs = append(rs.state.Logs, LogEntry{Timestamp: ts, Kind: kind, Detail: detail})
	next := rs.state.clone()
	subs := make([]Subscriber, 0, len(rs.subs))
	for _, cb := range rs.subs {
		subs = append(subs, cb)
	}
	rs.mu.Unlock()

	for _, cb := range subs {
		cb(next, prev)
	}
}

// SetStatus transitions the run's status (spec.md §4.3, §4.5).
func (rs *RunStore) SetStatus(s Status) {
	rs.apply(LogStatusChange, "status -> "+s.String(), func(int64) {
		rs.state.Status = s
	})
}

// UpdateStepResult records the most recent outcome for step id (I1).
func (rs *RunStore) UpdateStepResult(id string, result StepResult) {
	rs.apply(LogStepUpdate, "step "+id+" -> "+result.Status.String(), func(int64) {
		rs.state.StepResults[id] = result
		if result.Status == StepSuspended {
			rs.state.SuspendedPaths[id] = append([]int(nil), result.SuspendedPath...)
		} else {
			delete(rs.state.SuspendedPaths, id)
		}
	})
}

// SetCurrentStep records which step's execute is presently in flight;
// pass "" to clear it (I5).
func (rs *RunStore) SetCurrentStep(id string) {
	rs.apply(LogStepUpdate, "currentStep -> "+id, func(int64) {
		rs.state.CurrentStep = id
	})
}

// UpdateExecutionPath records the engine's current position within
// nested entries (spec.md §3 "executionPath").
func (rs *RunStore) UpdateExecutionPath(path []int) {
	rs.apply(LogStepUpdate, "executionPath updated", func(int64) {
		rs.state.ExecutionPath = append([]int(nil), path...)
	})
}

// UpdateSuspendedPaths replaces the full suspendedPaths map (used by
// snapshot.Restore; ordinary suspend/resume flows go through
// UpdateStepResult, which maintains this map incrementally).
func (rs *RunStore) UpdateSuspendedPaths(paths map[string][]int) {
	rs.apply(LogStepUpdate, "suspendedPaths replaced", func(int64) {
		cp := make(map[string][]int, len(paths))
		for k, v := range paths {
			cp[k] = append([]int(nil), v...)
		}
		rs.state.SuspendedPaths = cp
	})
}

// AddWatchEvent appends e to the run's event log without also routing
// it through the WorkflowStatusUpdate/StepStatusUpdate-specific helpers
// below; used for events the engine constructs directly.
func (rs *RunStore) AddWatchEvent(e Event) {
	rs.apply(LogWatchEvent, e.Description, func(ts int64) {
		e.Timestamp = ts
		e.RunID = rs.state.RunID
		e.WorkflowID = rs.state.WorkflowID
		rs.state.Events = append(rs.state.Events, e)
	})
}

// EmitWorkflowStatusUpdate appends a WorkflowStatusUpdate event.
func (rs *RunStore) EmitWorkflowStatusUpdate(e Event) {
	e.Type = EventWorkflowStatusUpdate
	rs.AddWatchEvent(e)
}

// EmitStepStatusUpdate appends a StepStatusUpdate event.
func (rs *RunStore) EmitStepStatusUpdate(e Event) {
	e.Type = EventStepStatusUpdate
	rs.AddWatchEvent(e)
}

// UpdateState merges kv into the opaque state bag.
func (rs *RunStore) UpdateState(kv map[string]any) {
	rs.apply(LogStepUpdate, "state updated", func(int64) {
		for k, v := range kv {
			rs.state.State[k] = v
		}
	})
}

// UpdateExecutionContext replaces the execution-context view restored
// from a snapshot's runtime-context scratchpad.
func (rs *RunStore) UpdateExecutionContext(ctx map[string]any) {
	rs.apply(LogStepUpdate, "executionContext updated", func(int64) {
		rs.state.ExecutionContext = copyAnyMap(ctx)
	})
}

// ReplaceLogs overwrites the store's log history with logs verbatim,
// deliberately bypassing apply's own synthesized log entry for the
// replacement itself. Used only by snapshot.Restore, so that replaying a
// captured snapshot reproduces its exact log history — including each
// entry's original timestamp — rather than appending a fresh "logs
// replaced" marker on top of it (spec.md §8 Testable Property #3:
// "capture of the restored store equals the original snapshot except
// timestamp").
func (rs *RunStore) ReplaceLogs(logs []LogEntry) {
	rs.mu.Lock()
	prev := rs.state.clone()
	rs.state.Logs = append([]LogEntry(nil), logs...)
	next := rs.state.clone()
	subs := make([]Subscriber, 0, len(rs.subs))
	for _, cb := range rs.subs {
		subs = append(subs, cb)
	}
	rs.mu.Unlock()

	for _, cb := range subs {
		cb(next, prev)
	}
}

// ReplaceEvents overwrites the store's event history with events
// verbatim, for the same reason and in the same manner as ReplaceLogs:
// AddWatchEvent re-stamps each event's Timestamp, which would desync a
// restored run's event history from the snapshot it was restored from.
func (rs *RunStore) ReplaceEvents(events []Event) {
	rs.mu.Lock()
	prev := rs.state.clone()
	rs.state.Events = append([]Event(nil), events...)
	next := rs.state.clone()
	subs := make([]Subscriber, 0, len(rs.subs))
	for _, cb := range rs.subs {
		subs = append(subs, cb)
	}
	rs.mu.Unlock()

	for _, cb := range subs {
		cb(next, prev)
	}
}

// Reset restores the store to its initial state; only runId/workflowId
// survive (spec.md "Lifecycle": "reset at the start of each start call").
func (rs *RunStore) Reset() {
	rs.apply(LogStatusChange, "reset", func(int64) {
		runID, workflowID := rs.state.RunID, rs.state.WorkflowID
		rs.state = RunState{
			RunID:            runID,
			WorkflowID:       workflowID,
			Status:           StatusInitial,
			StepResults:      make(map[string]StepResult),
			SuspendedPaths:   make(map[string][]int),
			State:            make(map[string]any),
			ExecutionContext: make(map[string]any),
		}
	})
}
