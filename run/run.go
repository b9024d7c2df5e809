// Package run implements the run façade (spec.md §4.7, C7): it binds a
// committed flow.Workflow's (workflowId, runId) pair to a fresh
// store.RunStore and a shared engine.Engine, exposing Start/Resume/Stream/
// Watch/GetRunState/GetState/UpdateState as the host-facing surface.
package run

import (
	"context"
	"fmt"

	"github.com/dshills/flowrun/bus"
	"github.com/dshills/flowrun/engine"
	"github.com/dshills/flowrun/flow"
	"github.com/dshills/flowrun/store"
)

// Run binds one committed workflow to one run's store (spec.md §4.7).
// A Run is built once per (workflowId, runId) pair and its store survives
// across Start/suspend/Resume cycles (spec.md "Lifecycle").
type Run struct {
	wf  *flow.Workflow
	eng *engine.Engine
	rs  *store.RunStore

	rootStepID string
}

// StartParams carries Start's named arguments (spec.md §6 "Run API
// surface": "start({inputData, runtimeContext?})").
type StartParams struct {
	InputData      any
	RuntimeContext flow.RuntimeContext
}

// ResumeParams carries Resume's named arguments (spec.md §6 "Run API
// surface": "resume({step, resumeData, runtimeContext?})").
type ResumeParams struct {
	Steps          []string
	ResumeData     any
	RuntimeContext flow.RuntimeContext
}

// New binds wf — which must already be committed — to a fresh store for
// (runID, workflowID), driven by eng. eng may be shared across many Runs;
// it holds no per-run state of its own.
func New(wf *flow.Workflow, eng *engine.Engine, runID, workflowID string) (*Run, error) {
	if !wf.IsCommitted() {
		return nil, flow.ErrDraftWorkflow
	}
	return &Run{
		wf:         wf,
		eng:        eng,
		rs:         store.New(runID, workflowID),
		rootStepID: lastStepID(wf),
	}, nil
}

// lastStepID returns the step id whose output becomes the run's overall
// result: the last top-level entry's single step, when there is one
// (store.RunState.Result's "root" parameter, spec.md §3 "result").
// Parallel/conditional/loop/foreach entries have no single natural root,
// so this returns "" for those and the caller falls back to the engine's
// own lastOutput-derived Result.
func lastStepID(wf *flow.Workflow) string {
	entries := wf.Entries()
	if len(entries) == 0 {
		return ""
	}
	last := entries[len(entries)-1]
	if last.Kind == flow.KindStep {
		return last.Step.ID
	}
	return ""
}

// Start validates params.InputData against the workflow's input schema,
// resets the store, and drives the engine from the beginning (spec.md
// §4.7 "start... validates input, resets store, drives engine, updates
// terminal status, invokes cleanup").
func (r *Run) Start(ctx context.Context, params StartParams) (store.WorkflowResult, error) {
	if r.wf.InputSchema != nil {
		if err := r.wf.InputSchema.Validate(params.InputData); err != nil {
			return store.WorkflowResult{}, fmt.Errorf("run: input validation: %w", err)
		}
	}
	r.rs.Reset()
	r.rs.UpdateState(map[string]any{initDataKey: params.InputData})

	rtc := params.RuntimeContext
	if rtc.IsZero() {
		rtc = flow.NewRuntimeContext()
	}

	result, err := r.eng.Run(ctx, r.wf, r.rs, params.InputData, rtc)
	if err != nil {
		return result, err
	}
	return result, nil
}

// Resume continues a suspended run, re-entering the walk with params.Steps
// targeted for re-execution and params.ResumeData supplied to them
// (spec.md §4.7 "resume").
func (r *Run) Resume(ctx context.Context, params ResumeParams) (store.WorkflowResult, error) {
	rtc := params.RuntimeContext
	if rtc.IsZero() {
		rtc = flow.NewRuntimeContext()
	}
	req := engine.ResumeRequest{Steps: params.Steps, ResumeData: params.ResumeData}

	st := r.rs.State()
	return r.eng.Resume(ctx, r.wf, r.rs, st.State[initDataKey], req, rtc)
}

// Stream opens a one-shot event sequence bracketed by start/finish
// markers (spec.md §4.4 "Stream", §4.7 "stream"). The run is started
// from params concurrently; the returned handle observes every event
// from registration forward.
func (r *Run) Stream(ctx context.Context, params StartParams) (*bus.StreamHandle, error) {
	if r.wf.InputSchema != nil {
		if err := r.wf.InputSchema.Validate(params.InputData); err != nil {
			return nil, fmt.Errorf("run: input validation: %w", err)
		}
	}
	r.rs.Reset()
	r.rs.UpdateState(map[string]any{initDataKey: params.InputData})

	handle := bus.Stream(ctx, r.rs, r.rootStepID)

	rtc := params.RuntimeContext
	if rtc.IsZero() {
		rtc = flow.NewRuntimeContext()
	}
	go func() {
		_, _ = r.eng.Run(ctx, r.wf, r.rs, params.InputData, rtc)
	}()
	return handle, nil
}

// Watch subscribes cb to every mutation of this run's store from this
// call forward (spec.md §4.7 "watch(cb, version)").
func (r *Run) Watch(cb bus.WatchCallback, version bus.Version) store.Unsubscribe {
	return bus.Watch(r.rs, cb, version)
}

// GetRunState returns a defensive copy of the run's full observable
// state (spec.md §4.7 "getRunState()").
func (r *Run) GetRunState() store.RunState {
	return r.rs.State()
}

// GetState returns a copy of the run's opaque state bag (spec.md §4.7
// "getState()").
func (r *Run) GetState() map[string]any {
	return r.rs.State().State
}

// UpdateState merges kv into the run's opaque state bag (spec.md §4.7
// "updateState(kv)").
func (r *Run) UpdateState(kv map[string]any) {
	r.rs.UpdateState(kv)
}

// initDataKey stashes Start/Stream's inputData in the store's own opaque
// state bag so a later Resume — which, per spec.md §4.7, only receives
// resumeData, not the original inputData — can still hand the engine the
// initData every step's GetInitData() call depends on.
const initDataKey = "__flowrun_init_data"
