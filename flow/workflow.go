package flow

import (
	"context"
	"fmt"

	"github.com/dshills/flowrun/internal/expri"
	"github.com/dshills/flowrun/schema"
)

// RetryConfig is accepted and carried by a Workflow but never actuated by
// the execution engine — spec.md §1 Non-goals: "retrying a failed step
// (the retry knobs in configuration are reserved but not actuated)".
type RetryConfig struct {
	Attempts int
	Delay    int // milliseconds; reserved, see above.
}

// Workflow is a named, finalizable sequence of flow entries (spec.md §3
// "Workflow"). It starts in the draft state, where builder methods
// append entries, and becomes immutable once Commit is called.
type Workflow struct {
	ID          string
	Description string

	InputSchema  schema.Schema
	OutputSchema schema.Schema
	RetryConfig  *RetryConfig

	entries    []FlowEntry
	committed  bool
	graph      []ExecutionGraphNode
	flowHash   string
	mapCounter int
}

// New creates a draft Workflow. inputSchema/outputSchema may be nil,
// which is treated as schema.Any.
func New(id string, inputSchema, outputSchema schema.Schema) *Workflow {
	return &Workflow{ID: id, InputSchema: inputSchema, OutputSchema: outputSchema}
}

func (w *Workflow) requireDraft() {
	if w.committed {
		panic(fmt.Sprintf("flow: workflow %q is committed; builder methods are append-only before Commit", w.ID))
	}
}

// Then appends a single-step entry.
func (w *Workflow) Then(s *Step) *Workflow {
	w.requireDraft()
	w.entries = append(w.entries, stepEntry(s))
	return w
}

// Parallel appends an unordered fan-out entry over the given steps.
func (w *Workflow) Parallel(steps ...*Step) *Workflow {
	w.requireDraft()
	w.entries = append(w.entries, parallelEntry(steps))
	return w
}

// BranchCase pairs a predicate with the step it gates, for Branch.
type BranchCase struct {
	When Predicate
	Then *Step
}

// Branch appends an ordered if/else-if chain: the first case whose
// predicate matches is executed; no match completes with no output
// (spec.md §3 "conditional").
func (w *Workflow) Branch(cases ...BranchCase) *Workflow {
	w.requireDraft()
	preds := make([]Predicate, len(cases))
	children := make([]*Step, len(cases))
	for i, c := range cases {
		preds[i] = c.When
		children[i] = c.Then
	}
	w.entries = append(w.entries, conditionalEntry(preds, children))
	return w
}

// DoWhile appends a loop entry that repeats body while pred is true,
// evaluated after each iteration (spec.md §3 "loop").
func (w *Workflow) DoWhile(body *Step, pred Predicate) *Workflow {
	w.requireDraft()
	w.entries = append(w.entries, loopEntry(body, pred, LoopDoWhile))
	return w
}

// DoUntil appends a loop entry that repeats body until pred is true.
func (w *Workflow) DoUntil(body *Step, pred Predicate) *Workflow {
	w.requireDraft()
	w.entries = append(w.entries, loopEntry(body, pred, LoopDoUntil))
	return w
}

// ForEach appends an entry that runs body once per element of the
// upstream array input, bounded by opts.Concurrency (spec.md §3
// "foreach").
func (w *Workflow) ForEach(body *Step, opts ForEachOptions) *Workflow {
	w.requireDraft()
	w.entries = append(w.entries, forEachEntry(body, opts))
	return w
}

// Expr compiles a string condition into a Predicate via expr-lang,
// evaluated against {InputData, Steps("id"), InitData} — sugar for hosts that
// want data-driven condition strings (e.g. loaded from YAML) instead of
// a Go func. See internal/expri and SPEC_FULL.md §3.2.
func Expr(expression string) Predicate {
	compiled, compileErr := expri.Compile(expression)
	return func(ctx *PredicateContext) (bool, error) {
		if compileErr != nil {
			return false, fmt.Errorf("flow: compiling expression %q: %w", expression, compileErr)
		}
		env := expri.Env{
			InputData: ctx.InputData,
			Steps: expri.StepLookup(func(id string) any {
				v, _ := ctx.GetStepResult(id)
				return v
			}),
			InitData: ctx.GetInitData(),
		}
		return compiled.EvalBool(env)
	}
}

// Commit freezes the flow: it validates the entries (non-empty, unique
// step ids), builds the execution-graph adjacency view used for
// diagnostics and snapshotting, computes a stable flow hash, and flips
// the workflow from draft to committed. Commit is idempotent once
// committed (spec.md §4.2).
func (w *Workflow) Commit() (*Workflow, error) {
	if w.committed {
		return w, nil
	}
	if len(w.entries) == 0 {
		return nil, ErrEmptyFlow
	}

	seen := make(map[string]bool)
	for _, e := range w.entries {
		for _, id := range e.stepIDs() {
			if seen[id] {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateStepID, id)
			}
			seen[id] = true
		}
	}

	w.graph = buildExecutionGraph(w.entries)
	w.flowHash = hashExecutionGraph(w.graph)
	w.committed = true
	return w, nil
}

// IsCommitted reports whether Commit has succeeded for this workflow.
func (w *Workflow) IsCommitted() bool { return w.committed }

// Entries returns the committed flow entries in execution order. It
// panics if the workflow is still a draft, mirroring the "committed
// required before running" contract.
func (w *Workflow) Entries() []FlowEntry {
	if !w.committed {
		panic("flow: Entries called on a draft workflow")
	}
	return w.entries
}

// ExecutionGraph returns the diagnostic adjacency view built at commit
// time (spec.md §4.2).
func (w *Workflow) ExecutionGraph() []ExecutionGraphNode { return w.graph }

// FlowHash returns a stable hash of the committed flow's shape. Design
// Notes §9: predicates/functions are not portable across snapshot
// boundaries, but a stable hash of the graph shape lets a restored run
// be sanity-checked against the graph it was captured from.
func (w *Workflow) FlowHash() string { return w.flowHash }

func (w *Workflow) inputSchema() schema.Schema {
	if w.InputSchema == nil {
		return schema.Any
	}
	return w.InputSchema
}

func (w *Workflow) outputSchema() schema.Schema {
	if w.OutputSchema == nil {
		return schema.Any
	}
	return w.OutputSchema
}

// NestedRunFunc executes a committed workflow as a nested run and
// returns its root-level result value. runID is the enclosing step's
// own run id, so the runner can derive a distinct nested run id from it.
// Supplied by the run façade, which owns store/engine instantiation;
// flow itself never imports run, avoiding an import cycle (spec.md §4.2
// "workflow as step", Design Notes §9 "inheritance/duck-typed workflow
// as step").
type NestedRunFunc func(ctx context.Context, runID string, input any) (any, error)

// AsStep represents this committed workflow as a Step whose execute runs
// a nested run through runner. id becomes the step id under which the
// nested run's result is later looked up via GetStepResult.
func (w *Workflow) AsStep(id string, runner NestedRunFunc) *Step {
	if !w.committed {
		panic("flow: AsStep called on a draft workflow")
	}
	return &Step{
		ID:           id,
		Description:  fmt.Sprintf("nested workflow %q", w.ID),
		InputSchema:  w.inputSchema(),
		OutputSchema: w.outputSchema(),
		Execute: func(ctx context.Context, stepCtx *StepContext) (any, error) {
			return runner(ctx, stepCtx.RunID, stepCtx.InputData)
		},
	}
}

// nextMapID returns the deterministic synthetic id for the next map
// entry, per Design Notes §9 ("generate a deterministic id... to make
// tests and snapshots reproducible").
func (w *Workflow) nextMapID() string {
	id := fmt.Sprintf("map@%d", len(w.entries))
	w.mapCounter++
	return id
}
