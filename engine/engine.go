// Package engine implements the execution engine (spec.md §4.5, C5):
// it walks a committed flow.Workflow entry by entry through the serial
// primary queue, validates each step's I/O against its schema, drives
// the run's store, and implements the suspend/resume protocol.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/dshills/flowrun/flow"
	"github.com/dshills/flowrun/store"
)

// Engine walks committed workflows. One Engine may drive many runs
// sequentially or concurrently; it holds no per-run state itself — that
// all lives in the store.RunStore and flow.RuntimeContext passed to
// Run/Resume.
type Engine struct {
	opts Options

	mu           sync.Mutex
	lastFrontier *Frontier
}

// New builds an Engine from the given options.
func New(opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, fmt.Errorf("engine: applying option: %w", err)
		}
	}
	if o.Emitter == nil {
		o.Emitter = defaultOptions().Emitter
	}
	return &Engine{opts: o}, nil
}

// Metrics returns a snapshot of the scheduler metrics from the most
// recently started walk (SPEC_FULL.md §4 "Scheduler metrics snapshot").
// The zero value is returned if no walk has run yet.
func (e *Engine) Metrics() SchedulerMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastFrontier == nil {
		return SchedulerMetrics{}
	}
	return e.lastFrontier.Metrics()
}

// ResumeRequest carries the target step id(s) and the payload to resume
// them with (spec.md §4.5 "Resume semantics").
type ResumeRequest struct {
	Steps      []string
	ResumeData any
}

// Run walks wf from the beginning against a freshly reset rs, feeding it
// initData as the first entry's input (spec.md §4.5 "Walk").
func (e *Engine) Run(ctx context.Context, wf *flow.Workflow, rs *store.RunStore, initData any, rtc flow.RuntimeContext) (store.WorkflowResult, error) {
	return e.walk(ctx, wf, rs, initData, nil, rtc)
}

// Resume restarts the walk at the head of the flow with rs's existing
// stepResults preloaded, targeting req.Steps for re-execution (spec.md
// §4.5 "Resume semantics"). It requires at least one step currently in
// StepSuspended status.
func (e *Engine) Resume(ctx context.Context, wf *flow.Workflow, rs *store.RunStore, initData any, req ResumeRequest, rtc flow.RuntimeContext) (store.WorkflowResult, error) {
	st := rs.State()
	anySuspended := false
	for _, r := range st.StepResults {
		if r.Status == store.StepSuspended {
			anySuspended = true
			break
		}
	}
	if !anySuspended {
		return store.WorkflowResult{}, ErrNoSuspendedSteps
	}

	rs.SetStatus(store.StatusResumed)
	e.emitWorkflowStatus(rs, "workflow resumed")
	if e.opts.Metrics != nil {
		e.opts.Metrics.IncrementResume(st.RunID)
	}
	return e.walk(ctx, wf, rs, initData, &req, rtc)
}

// outcomeKind discriminates the result of evaluating one flow entry.
// The zero value, outcomeNotRun, flags a child that a bounded dispatch
// never started (e.g. cancelled after a sibling failure) so aggregation
// can tell "didn't run" apart from "completed with a nil output".
type outcomeKind int

const (
	outcomeNotRun outcomeKind = iota
	outcomeCompleted
	outcomeSuspended
	outcomeFailed
)

// entryOutcome is the non-error half of walkEntry's result: whether the
// entry completed, suspended, or failed as a normal (non-exceptional)
// outcome. A non-nil error returned alongside it signals an engine-level
// problem (e.g. context cancellation) rather than a step/predicate
// failure, which is instead carried in entryOutcome.err.
type entryOutcome struct {
	kind outcomeKind
	err  error
}

// walk is the shared implementation behind Run and Resume (spec.md §4.5
// "Walk", "Resume semantics"). resumeReq is nil for a fresh Run.
func (e *Engine) walk(ctx context.Context, wf *flow.Workflow, rs *store.RunStore, initData any, resumeReq *ResumeRequest, rtc flow.RuntimeContext) (store.WorkflowResult, error) {
	if !wf.IsCommitted() {
		return store.WorkflowResult{}, flow.ErrDraftWorkflow
	}
	entries := wf.Entries()

	st0 := rs.State()
	runID, workflowID := st0.RunID, st0.WorkflowID

	resuming := resumeReq != nil
	targetSet := make(map[string]bool)
	var resumeData any
	if resuming {
		for _, id := range resumeReq.Steps {
			targetSet[id] = true
		}
		resumeData = resumeReq.ResumeData
	}

	// Forward every appended store event to the configured emitter
	// (bus.Emitter) — this is this engine's "logging": the store is the
	// single choke point every mutation funnels through, so subscribing
	// once here covers every status/step transition for the whole walk.
	unsub := rs.Subscribe(func(newState, prevState store.RunState) {
		if e.opts.Emitter == nil {
			return
		}
		if n, p := len(newState.Events), len(prevState.Events); n > p {
			for i := p; i < n; i++ {
				e.opts.Emitter.Emit(newState.Events[i])
			}
		}
	})
	defer unsub()

	rs.SetStatus(store.StatusRunning)
	e.emitWorkflowStatus(rs, "workflow running")

	getStepResult := func(id string) (any, bool) {
		st := rs.State()
		r, ok := st.StepResults[id]
		if !ok {
			return nil, false
		}
		return r.Output, true
	}
	getInitData := func() any { return initData }

	frontier := NewFrontier(e.queueDepth(len(entries)))
	e.mu.Lock()
	e.lastFrontier = frontier
	e.mu.Unlock()

	produceErr := make(chan error, 1)
	go func() {
		for idx := range entries {
			if err := frontier.Enqueue(ctx, WorkItem{OrderKey: uint64(idx), Index: idx}); err != nil {
				select {
				case produceErr <- err:
				default:
				}
				return
			}
		}
	}()

	input := initData
	var lastOutput any
	steps := 0

	for range entries {
		if e.opts.MaxSteps > 0 && steps >= e.opts.MaxSteps {
			return e.fail(rs, fmt.Errorf("%w (%d)", ErrMaxStepsExceeded, e.opts.MaxSteps)), nil
		}
		steps++

		item, err := frontier.Dequeue(ctx)
		if err != nil {
			select {
			case perr := <-produceErr:
				return e.fail(rs, perr), nil
			default:
			}
			return e.fail(rs, err), nil
		}
		entry := entries[item.Index]

		ids := entryStepIDs(entry)
		if cached, ok := canSkipEntry(rs, item.Index, ids, resuming, targetSet); ok {
			input = cached
			lastOutput = cached
			continue
		}

		out, oc, err := e.walkEntry(ctx, item.Index, entry, input, resuming, resumeData, targetSet, rtc, runID, workflowID, getStepResult, getInitData, rs)
		if err != nil {
			return e.fail(rs, err), nil
		}
		switch oc.kind {
		case outcomeFailed:
			return e.fail(rs, oc.err), nil
		case outcomeSuspended:
			rs.SetStatus(store.StatusSuspended)
			e.emitWorkflowStatus(rs, "workflow suspended")
			return rs.State().Result(""), nil
		}

		markEntryDone(rs, item.Index, out)
		input = out
		lastOutput = out
	}

	rs.SetStatus(store.StatusCompleted)
	e.emitWorkflowStatus(rs, "workflow completed")
	result := rs.State().Result("")
	result.Result = lastOutput
	return result, nil
}

// fail finishes a walk with a FAILED status and a failed WorkflowResult
// carrying err — this is the "engine never throws on a normal step
// failure" path (spec.md §7 "Propagation").
func (e *Engine) fail(rs *store.RunStore, err error) store.WorkflowResult {
	rs.SetStatus(store.StatusFailed)
	e.emitWorkflowStatus(rs, "workflow failed: "+err.Error())
	result := rs.State().Result("")
	result.Err = err
	return result
}

func (e *Engine) queueDepth(nEntries int) int {
	if e.opts.QueueDepth > 0 {
		return e.opts.QueueDepth
	}
	if nEntries == 0 {
		return 1
	}
	return nEntries
}

func (e *Engine) emitWorkflowStatus(rs *store.RunStore, desc string) {
	st := rs.State()
	rs.EmitWorkflowStatusUpdate(store.Event{
		Description: desc,
		Payload: store.EventPayload{
			CurrentStep: st.CurrentStep,
			WorkflowState: store.WorkflowStateView{
				Status: st.Status,
				Steps:  st.StepResults,
			},
		},
	})
}

func (e *Engine) emitStepStatus(rs *store.RunStore, stepID string, status store.StepStatus, result *store.StepResult) {
	st := rs.State()
	rs.EmitStepStatusUpdate(store.Event{
		Description: fmt.Sprintf("step %s -> %s", stepID, status.String()),
		Payload: store.EventPayload{
			StepID:      stepID,
			StepStatus:  status,
			StepResult:  result,
			CurrentStep: st.CurrentStep,
			WorkflowState: store.WorkflowStateView{
				Status: st.Status,
				Steps:  st.StepResults,
			},
		},
	})
}

// Divergence is the first point at which two event streams disagree, as
// reported by VerifyReplay.
type Divergence struct {
	Index  int
	Reason string
}

// VerifyReplay compares two event streams that are expected to
// represent the same run and reports the first point of divergence
// (SPEC_FULL.md §4 "Replay verification"), generalizing the teacher's
// I/O-hash replay check to the event stream spec.md's data model
// actually carries (testable property 3, §8: "Replaying all events from
// a snapshot through an identity store produces the same observable
// event stream as the original run"). Timestamps are intentionally
// ignored since they are wall-clock and never expected to match.
func VerifyReplay(original, replayed []store.Event) (bool, *Divergence) {
	n := len(original)
	if len(replayed) < n {
		n = len(replayed)
	}
	for i := 0; i < n; i++ {
		a, b := original[i], replayed[i]
		if a.Type != b.Type {
			return false, &Divergence{Index: i, Reason: fmt.Sprintf("event type %v != %v", a.Type, b.Type)}
		}
		if a.Payload.StepID != b.Payload.StepID {
			return false, &Divergence{Index: i, Reason: fmt.Sprintf("step id %q != %q", a.Payload.StepID, b.Payload.StepID)}
		}
		if a.Payload.StepStatus != b.Payload.StepStatus {
			return false, &Divergence{Index: i, Reason: "step status diverged"}
		}
		if a.Payload.WorkflowState.Status != b.Payload.WorkflowState.Status {
			return false, &Divergence{Index: i, Reason: "workflow status diverged"}
		}
	}
	if len(original) != len(replayed) {
		return false, &Divergence{Index: n, Reason: fmt.Sprintf("event count %d != %d", len(original), len(replayed))}
	}
	return true, nil
}
