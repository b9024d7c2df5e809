package engine

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/flowrun/flow"
	"github.com/dshills/flowrun/store"
)

// entryStepIDs returns every step id a flow entry would execute, in the
// order the engine would visit them. flow.FlowEntry keeps the
// equivalent list private to its own package, so the engine carries its
// own copy here purely for the resume target-set intersection check
// below — it never needs the full adjacency semantics flow uses it for.
func entryStepIDs(e flow.FlowEntry) []string {
	switch e.Kind {
	case flow.KindStep:
		return []string{e.Step.ID}
	case flow.KindParallel:
		ids := make([]string, len(e.ParallelChildren))
		for i, s := range e.ParallelChildren {
			ids[i] = s.ID
		}
		return ids
	case flow.KindConditional:
		ids := make([]string, len(e.Children))
		for i, s := range e.Children {
			ids[i] = s.ID
		}
		return ids
	case flow.KindLoop:
		return []string{e.LoopStep.ID}
	case flow.KindForEach:
		return []string{e.ForEachStep.ID}
	default:
		return nil
	}
}

func entryDoneKey(idx int) string   { return fmt.Sprintf("__flowrun_entry_done_%d", idx) }
func entryOutputKey(idx int) string { return fmt.Sprintf("__flowrun_entry_output_%d", idx) }

// markEntryDone records idx's output into the store's opaque state bag
// so a later resume that doesn't target this entry can skip it and feed
// the cached output forward, without needing to reconstruct it from
// stepResults — which for loop/foreach entries only ever holds the most
// recent iteration's result, not the entry's overall output.
func markEntryDone(rs *store.RunStore, idx int, output any) {
	rs.UpdateState(map[string]any{
		entryDoneKey(idx):   true,
		entryOutputKey(idx): output,
	})
}

// canSkipEntry reports whether entry idx can be skipped during a resume
// walk, and if so returns its cached output. An entry is skippable when
// none of its step ids are resume targets and it previously ran to
// completion (spec.md §4.5 "a step entry whose id is NOT in the resume
// target set AND whose existing result is completed is skipped... a
// parallel entry whose children are all completed is likewise
// reconstructed from the cache", generalized uniformly to every entry
// kind via the done-marker left by markEntryDone).
func canSkipEntry(rs *store.RunStore, idx int, ids []string, resuming bool, targetSet map[string]bool) (any, bool) {
	if !resuming || len(ids) == 0 {
		return nil, false
	}
	for _, id := range ids {
		if targetSet[id] {
			return nil, false
		}
	}
	st := rs.State()
	done, _ := st.State[entryDoneKey(idx)].(bool)
	if !done {
		return nil, false
	}
	return st.State[entryOutputKey(idx)], true
}

// walkEntry evaluates one flow entry per its kind (spec.md §4.5 "Walk").
func (e *Engine) walkEntry(
	ctx context.Context,
	idx int,
	entry flow.FlowEntry,
	input any,
	resuming bool,
	resumeData any,
	targetSet map[string]bool,
	rtc flow.RuntimeContext,
	runID, workflowID string,
	getStepResult func(string) (any, bool),
	getInitData func() any,
	rs *store.RunStore,
) (any, entryOutcome, error) {
	switch entry.Kind {
	case flow.KindStep:
		isResuming := resuming && targetSet[entry.Step.ID]
		return e.runStep(ctx, rs, entry.Step, input, []int{idx}, isResuming, resumeData, rtc, runID, workflowID, getStepResult, getInitData, true)

	case flow.KindParallel:
		return e.runParallel(ctx, idx, entry.ParallelChildren, input, resuming, resumeData, targetSet, rtc, runID, workflowID, getStepResult, getInitData, rs)

	case flow.KindConditional:
		return e.runConditional(ctx, idx, entry.Predicates, entry.Children, input, resuming, resumeData, targetSet, rtc, runID, workflowID, getStepResult, getInitData, rs)

	case flow.KindLoop:
		return e.runLoop(ctx, idx, entry.LoopStep, entry.LoopPredicate, entry.Loop, input, resuming, resumeData, targetSet, rtc, runID, workflowID, getStepResult, getInitData, rs)

	case flow.KindForEach:
		return e.runForEach(ctx, idx, entry.ForEachStep, entry.ForEachOpts, input, resuming, resumeData, targetSet, rtc, runID, workflowID, getStepResult, getInitData, rs)

	default:
		return nil, entryOutcome{}, fmt.Errorf("engine: unknown entry kind %v", entry.Kind)
	}
}

// runStep executes one step to completion, suspension, or failure
// (spec.md §4.1, §4.5 "step"). It owns every store side-effect a single
// step invocation produces: the running→{completed,failed,suspended}
// transition and schema validation on both sides of execute, plus
// currentStep/executionPath bookkeeping when trackCurrent is set.
//
// trackCurrent must be false whenever this call is one of several
// siblings running concurrently under dispatch (runParallel/runForEach):
// currentStep and executionPath are single fields on RunState, and
// spec.md §4.5/§9 scope their writer to "the [primary] queue's worker...
// the only caller of step execute at the entry level" — i.e. serial
// top-level steps, conditional branches, and loop iterations, never
// concurrently-dispatched parallel/foreach children, which would
// otherwise race to set and clear the same shared field (I5).
func (e *Engine) runStep(
	ctx context.Context,
	rs *store.RunStore,
	s *flow.Step,
	input any,
	path []int,
	isResuming bool,
	resumeData any,
	rtc flow.RuntimeContext,
	runID, workflowID string,
	getStepResult func(string) (any, bool),
	getInitData func() any,
	trackCurrent bool,
) (any, entryOutcome, error) {
	if trackCurrent {
		rs.SetCurrentStep(s.ID)
		rs.UpdateExecutionPath(path)
		defer rs.SetCurrentStep("")
	}

	recordFailure := func(err error) (any, entryOutcome, error) {
		result := store.StepResult{Status: store.StepFailed, Err: err}
		rs.UpdateStepResult(s.ID, result)
		e.emitStepStatus(rs, s.ID, store.StepFailed, &result)
		return nil, entryOutcome{kind: outcomeFailed, err: err}, nil
	}

	if isResuming {
		if s.ResumeSchema != nil {
			if err := s.ResumeSchema.Validate(resumeData); err != nil {
				return recordFailure(fmt.Errorf("engine: step %q: resume data: %w", s.ID, err))
			}
		}
	} else if s.InputSchema != nil {
		if err := s.InputSchema.Validate(input); err != nil {
			return recordFailure(fmt.Errorf("engine: step %q: input: %w", s.ID, err))
		}
	}

	runningResult := store.StepResult{Status: store.StepRunning}
	rs.UpdateStepResult(s.ID, runningResult)
	e.emitStepStatus(rs, s.ID, store.StepRunning, &runningResult)

	stepCtx := flow.NewStepContext(input, isResuming, resumeData, runID, workflowID,
		getStepResult, getInitData, rtc,
		func(payload any) error { return flow.NewSuspendError(payload) },
	)

	started := time.Now()
	output, err := s.Execute(ctx, stepCtx)
	latency := time.Since(started)

	if err != nil {
		if payload, ok := flow.AsSuspend(err); ok {
			result := store.StepResult{Status: store.StepSuspended, Output: payload, SuspendedPath: append([]int(nil), path...)}
			rs.UpdateStepResult(s.ID, result)
			e.emitStepStatus(rs, s.ID, store.StepSuspended, &result)
			if e.opts.Metrics != nil {
				e.opts.Metrics.IncrementSuspend(runID, s.ID)
				e.opts.Metrics.RecordStepLatency(runID, s.ID, latency, "suspended")
			}
			return payload, entryOutcome{kind: outcomeSuspended}, nil
		}
		if e.opts.Metrics != nil {
			e.opts.Metrics.RecordStepLatency(runID, s.ID, latency, "failed")
		}
		return recordFailure(fmt.Errorf("engine: step %q: %w", s.ID, err))
	}

	if s.OutputSchema != nil {
		if verr := s.OutputSchema.Validate(output); verr != nil {
			return recordFailure(fmt.Errorf("engine: step %q: output: %w", s.ID, verr))
		}
	}

	if e.opts.Metrics != nil {
		e.opts.Metrics.RecordStepLatency(runID, s.ID, latency, "completed")
	}
	result := store.StepResult{Status: store.StepCompleted, Output: output}
	rs.UpdateStepResult(s.ID, result)
	e.emitStepStatus(rs, s.ID, store.StepCompleted, &result)
	return output, entryOutcome{kind: outcomeCompleted}, nil
}

// childOutcome is one bounded-dispatch child's recorded result, indexed
// by its position among siblings regardless of completion order.
type childOutcome struct {
	output any
	kind   outcomeKind
	err    error
}

// aggregateChildren reduces a set of sibling outcomes per spec.md §4.5:
// any failure wins (the first by index), else any suspension wins (the
// first by index — Design Notes §9's "mark every suspended child
// suspended in stepResults, surface the entry-level result as the first
// suspended child's payload"), else build assembles the completed
// output.
func aggregateChildren(results []childOutcome, build func([]childOutcome) any) (any, entryOutcome, error) {
	for _, r := range results {
		if r.kind == outcomeFailed {
			return nil, entryOutcome{kind: outcomeFailed, err: r.err}, nil
		}
	}
	for _, r := range results {
		if r.kind == outcomeSuspended {
			return r.output, entryOutcome{kind: outcomeSuspended}, nil
		}
	}
	return build(results), entryOutcome{kind: outcomeCompleted}, nil
}

// dispatch runs n indexed work items with at most concurrency in
// flight, ordered for deterministic replay via ComputeOrderKey (spec.md
// §4.5 "parallel and foreach entries instantiate separate bounded
// queues for their inner dispatch"). work reports whether its item
// failed; a failure cancels dispatch of items not yet started, while
// already in-flight siblings run to completion (spec.md §5 "the engine
// does not force-terminate a running execute").
func (e *Engine) dispatch(ctx context.Context, n, concurrency int, parentID string, work func(ctx context.Context, i int) bool) error {
	if n == 0 {
		return nil
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > n {
		concurrency = n
	}

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fr := NewFrontier(n)
	for i := 0; i < n; i++ {
		if err := fr.Enqueue(dctx, WorkItem{OrderKey: ComputeOrderKey(parentID, i), Index: i}); err != nil {
			break
		}
	}

	g, gctx := errgroup.WithContext(dctx)
	g.SetLimit(concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			item, err := fr.Dequeue(gctx)
			if err != nil {
				return nil
			}
			if work(gctx, item.Index) {
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func (e *Engine) runParallel(
	ctx context.Context,
	idx int,
	children []*flow.Step,
	input any,
	resuming bool,
	resumeData any,
	targetSet map[string]bool,
	rtc flow.RuntimeContext,
	runID, workflowID string,
	getStepResult func(string) (any, bool),
	getInitData func() any,
	rs *store.RunStore,
) (any, entryOutcome, error) {
	n := len(children)
	results := make([]childOutcome, n)
	parentID := fmt.Sprintf("entry-%d", idx)

	// Recorded once, serially, before fan-out starts: children run
	// concurrently and don't individually claim currentStep/executionPath
	// (see runStep's trackCurrent doc), so this is the only path-tracking
	// a parallel entry gets.
	rs.UpdateExecutionPath([]int{idx})

	err := e.dispatch(ctx, n, n, parentID, func(cctx context.Context, i int) bool {
		child := children[i]
		isResuming := resuming && targetSet[child.ID]

		// Already-completed, non-targeted siblings are reused verbatim
		// (spec.md §4.5 "For a resume over a set of step ids within one
		// entry... only those children are re-executed; already-completed
		// siblings are reused"). Unlike loop/foreach, each parallel child
		// owns a distinct step id, so stepResults is a reliable cache.
		if resuming && !isResuming {
			if r, ok := rs.State().StepResults[child.ID]; ok && r.Status == store.StepCompleted {
				results[i] = childOutcome{output: r.Output, kind: outcomeCompleted}
				return false
			}
		}

		out, oc, rerr := e.runStep(cctx, rs, child, input, []int{idx, i}, isResuming, resumeData, rtc, runID, workflowID, getStepResult, getInitData, false)
		if rerr != nil {
			results[i] = childOutcome{kind: outcomeFailed, err: rerr}
			return true
		}
		results[i] = childOutcome{output: out, kind: oc.kind, err: oc.err}
		return oc.kind == outcomeFailed
	})
	if err != nil {
		return nil, entryOutcome{}, err
	}

	return aggregateChildren(results, func(outcomes []childOutcome) any {
		out := make(map[string]any, len(outcomes))
		for i, r := range outcomes {
			out[children[i].ID] = r.output
		}
		return out
	})
}

func (e *Engine) runConditional(
	ctx context.Context,
	idx int,
	preds []flow.Predicate,
	children []*flow.Step,
	input any,
	resuming bool,
	resumeData any,
	targetSet map[string]bool,
	rtc flow.RuntimeContext,
	runID, workflowID string,
	getStepResult func(string) (any, bool),
	getInitData func() any,
	rs *store.RunStore,
) (any, entryOutcome, error) {
	for i, pred := range preds {
		predCtx := flow.NewPredicateContext(input, getStepResult, getInitData)
		ok, err := pred(predCtx)
		if err != nil {
			return nil, entryOutcome{kind: outcomeFailed, err: fmt.Errorf("engine: conditional predicate %d: %w", i, err)}, nil
		}
		if !ok {
			continue
		}
		child := children[i]
		isResuming := resuming && targetSet[child.ID]
		out, oc, rerr := e.runStep(ctx, rs, child, input, []int{idx, i}, isResuming, resumeData, rtc, runID, workflowID, getStepResult, getInitData, true)
		if rerr != nil {
			return nil, entryOutcome{}, rerr
		}
		return out, oc, nil
	}
	// No predicate matched: completed with no output (spec.md §3
	// "conditional... first match wins; no match = completed with no
	// output").
	return nil, entryOutcome{kind: outcomeCompleted}, nil
}

func (e *Engine) runLoop(
	ctx context.Context,
	idx int,
	body *flow.Step,
	pred flow.Predicate,
	kind flow.LoopKind,
	input any,
	resuming bool,
	resumeData any,
	targetSet map[string]bool,
	rtc flow.RuntimeContext,
	runID, workflowID string,
	getStepResult func(string) (any, bool),
	getInitData func() any,
	rs *store.RunStore,
) (any, entryOutcome, error) {
	isResuming := resuming && targetSet[body.ID]
	cur := input

	for iter := 0; ; iter++ {
		if e.opts.MaxSteps > 0 && iter >= e.opts.MaxSteps {
			return nil, entryOutcome{kind: outcomeFailed, err: fmt.Errorf("%w: loop body at entry %d", ErrMaxStepsExceeded, idx)}, nil
		}

		out, oc, err := e.runStep(ctx, rs, body, cur, []int{idx, iter}, isResuming, resumeData, rtc, runID, workflowID, getStepResult, getInitData, true)
		// Only the iteration that actually targets the resume carries
		// isResuming/resumeData; every iteration after that is a fresh
		// invocation.
		isResuming = false
		if err != nil {
			return nil, entryOutcome{}, err
		}
		if oc.kind != outcomeCompleted {
			return out, oc, nil
		}
		cur = out

		predCtx := flow.NewPredicateContext(cur, getStepResult, getInitData)
		matched, perr := pred(predCtx)
		if perr != nil {
			return nil, entryOutcome{kind: outcomeFailed, err: fmt.Errorf("engine: loop predicate at entry %d: %w", idx, perr)}, nil
		}

		cont := matched
		if kind == flow.LoopDoUntil {
			cont = !matched
		}
		if !cont {
			return cur, entryOutcome{kind: outcomeCompleted}, nil
		}
	}
}

func (e *Engine) runForEach(
	ctx context.Context,
	idx int,
	body *flow.Step,
	opts flow.ForEachOptions,
	input any,
	resuming bool,
	resumeData any,
	targetSet map[string]bool,
	rtc flow.RuntimeContext,
	runID, workflowID string,
	getStepResult func(string) (any, bool),
	getInitData func() any,
	rs *store.RunStore,
) (any, entryOutcome, error) {
	v := reflect.ValueOf(input)
	if input == nil || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
		return nil, entryOutcome{kind: outcomeFailed, err: flow.ErrInvalidForEachInput}, nil
	}

	n := v.Len()
	items := make([]any, n)
	for i := 0; i < n; i++ {
		items[i] = v.Index(i).Interface()
	}

	// foreach's single body step id is reused for every item, so (unlike
	// parallel) a resume targeting this entry re-runs every item with
	// isResuming/resumeData rather than a precise per-item cache — there
	// is no per-item step id to key a partial-completion cache on.
	isResuming := resuming && targetSet[body.ID]

	// Recorded once, serially, before fan-out starts — see runParallel's
	// identical note.
	rs.UpdateExecutionPath([]int{idx})

	results := make([]childOutcome, n)
	parentID := fmt.Sprintf("entry-%d", idx)
	err := e.dispatch(ctx, n, opts.Concurrency, parentID, func(cctx context.Context, i int) bool {
		out, oc, rerr := e.runStep(cctx, rs, body, items[i], []int{idx, i}, isResuming, resumeData, rtc, runID, workflowID, getStepResult, getInitData, false)
		if rerr != nil {
			results[i] = childOutcome{kind: outcomeFailed, err: rerr}
			return true
		}
		results[i] = childOutcome{output: out, kind: oc.kind, err: oc.err}
		return oc.kind == outcomeFailed
	})
	if err != nil {
		return nil, entryOutcome{}, err
	}

	return aggregateChildren(results, func(outcomes []childOutcome) any {
		out := make([]any, len(outcomes))
		for i, r := range outcomes {
			out[i] = r.output
		}
		return out
	})
}
