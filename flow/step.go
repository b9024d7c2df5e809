// Package flow implements the workflow graph model: steps, the composable
// flow entries (step/parallel/conditional/loop/foreach), the fluent
// builder, and commit-time freezing. See spec.md §3-4.1-4.2.
package flow

import (
	"context"
	"fmt"

	"github.com/dshills/flowrun/schema"
)

// Step is an immutable description of one unit of work: a stable id,
// input/output schemas, optional resume/suspend schemas, and the async
// execute function (spec.md §4.1).
//
// A Step is constructed once and never mutated afterward; the engine
// only ever reads from it.
type Step struct {
	ID          string
	Description string

	InputSchema   schema.Schema
	OutputSchema  schema.Schema
	ResumeSchema  schema.Schema
	SuspendSchema schema.Schema

	Execute ExecuteFunc
}

// ExecuteFunc is the function a Step runs. It receives a StepContext
// carrying input data, peer results, run metadata, and the suspend hook,
// and returns the step's output or an error.
//
// Calling ctx.Suspend must be the last thing execute does: the returned
// error (a *suspendSignal) must be propagated immediately, e.g.
//
//	if value < 0 {
//	    return nil, ctx.Suspend(map[string]any{"reason": "negative_value"})
//	}
type ExecuteFunc func(ctx context.Context, stepCtx *StepContext) (any, error)

// Validate checks that a Step is well-formed: it must have a non-empty
// id and a non-nil execute function. Schemas are optional (nil means
// "accept anything" and is treated as schema.Any by the engine).
func (s *Step) Validate() error {
	if s == nil {
		return fmt.Errorf("flow: nil step")
	}
	if s.ID == "" {
		return fmt.Errorf("flow: step has empty id")
	}
	if s.Execute == nil {
		return fmt.Errorf("flow: step %q has no execute function", s.ID)
	}
	return nil
}

func (s *Step) inputSchema() schema.Schema {
	if s.InputSchema == nil {
		return schema.Any
	}
	return s.InputSchema
}

func (s *Step) outputSchema() schema.Schema {
	if s.OutputSchema == nil {
		return schema.Any
	}
	return s.OutputSchema
}

func (s *Step) resumeSchema() schema.Schema {
	if s.ResumeSchema == nil {
		return schema.Any
	}
	return s.ResumeSchema
}

// StepContext is the scratchpad and peer-access surface passed to
// execute. It is built fresh by the engine for every invocation and
// discarded afterward (spec.md §4.1, §3 "Runtime context").
type StepContext struct {
	// InputData is the input this step was invoked with.
	InputData any

	// IsResuming is true when this invocation follows a suspend/resume
	// cycle for this exact step.
	IsResuming bool

	// ResumeData is the payload supplied to Run.Resume, populated only
	// when IsResuming is true.
	ResumeData any

	// RunID / WorkflowID identify the run this step executes within.
	RunID      string
	WorkflowID string

	getStepResult  func(id string) (any, bool)
	getInitData    func() any
	runtimeContext RuntimeContext
	suspend        func(payload any) error
}

// NewStepContext builds the StepContext passed to a Step's execute. It
// is constructed by the engine for every invocation; step authors never
// build one directly.
func NewStepContext(
	input any,
	isResuming bool,
	resumeData any,
	runID, workflowID string,
	getStepResult func(id string) (any, bool),
	getInitData func() any,
	runtimeContext RuntimeContext,
	suspend func(payload any) error,
) *StepContext {
	return &StepContext{
		InputData:      input,
		IsResuming:     isResuming,
		ResumeData:     resumeData,
		RunID:          runID,
		WorkflowID:     workflowID,
		getStepResult:  getStepResult,
		getInitData:    getInitData,
		runtimeContext: runtimeContext,
		suspend:        suspend,
	}
}

// GetStepResult returns the most recently recorded output for a given
// step id within the current run, or false if that step has not
// produced a result yet.
func (c *StepContext) GetStepResult(id string) (any, bool) {
	if c.getStepResult == nil {
		return nil, false
	}
	return c.getStepResult(id)
}

// GetInitData returns the run's original input, regardless of how many
// entries have executed since.
func (c *StepContext) GetInitData() any {
	if c.getInitData == nil {
		return nil
	}
	return c.getInitData()
}

// RuntimeContext returns the per-run scratchpad (spec.md §3 "Runtime
// context"). It is not persisted in snapshots by design.
func (c *StepContext) RuntimeContext() RuntimeContext {
	return c.runtimeContext
}

// Suspend halts this step's run, recording payload as its suspended
// output. The caller MUST immediately return the resulting error from
// execute; see spec.md §4.1.
func (c *StepContext) Suspend(payload any) error {
	if c.suspend == nil {
		return fmt.Errorf("flow: suspend is not available in this context")
	}
	return c.suspend(payload)
}
