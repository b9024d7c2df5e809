package flow

// Predicate evaluates a piece of workflow state and reports whether a
// branch/loop condition holds. It must be pure and must not suspend
// (spec.md §4.5: "suspending from a predicate is not supported").
type Predicate func(ctx *PredicateContext) (bool, error)

// PredicateContext is the read-only view a Predicate evaluates against:
// the upstream input, peer step results, and the run's original input
// (spec.md §4.5 "evaluate predicates in order over a built context").
type PredicateContext struct {
	InputData     any
	getStepResult func(id string) (any, bool)
	getInitData   func() any
}

// NewPredicateContext builds the context a Predicate evaluates against.
// It is constructed by the engine while walking a conditional/loop
// entry; predicate authors never build one directly.
func NewPredicateContext(
	input any,
	getStepResult func(id string) (any, bool),
	getInitData func() any,
) *PredicateContext {
	return &PredicateContext{
		InputData:     input,
		getStepResult: getStepResult,
		getInitData:   getInitData,
	}
}

// GetStepResult returns the most recent output recorded for step id.
func (c *PredicateContext) GetStepResult(id string) (any, bool) {
	if c.getStepResult == nil {
		return nil, false
	}
	return c.getStepResult(id)
}

// GetInitData returns the run's original input.
func (c *PredicateContext) GetInitData() any {
	if c.getInitData == nil {
		return nil
	}
	return c.getInitData()
}

// EntryKind discriminates the tagged FlowEntry variant (spec.md §3
// "Flow entry").
type EntryKind int

const (
	KindStep EntryKind = iota
	KindParallel
	KindConditional
	KindLoop
	KindForEach
)

func (k EntryKind) String() string {
	switch k {
	case KindStep:
		return "step"
	case KindParallel:
		return "parallel"
	case KindConditional:
		return "conditional"
	case KindLoop:
		return "loop"
	case KindForEach:
		return "foreach"
	default:
		return "unknown"
	}
}

// LoopKind distinguishes do-while from do-until (spec.md §3).
type LoopKind int

const (
	LoopDoWhile LoopKind = iota
	LoopDoUntil
)

// ForEachOptions configures a foreach entry's bounded concurrency
// (spec.md §3: "concurrency: ≥1").
type ForEachOptions struct {
	Concurrency int
}

// FlowEntry is one node in the committed flow (spec.md §3 "Flow entry").
// Exactly one of the kind-specific fields is populated, selected by Kind.
type FlowEntry struct {
	Kind EntryKind

	// KindStep
	Step *Step

	// KindParallel
	ParallelChildren []*Step

	// KindConditional: Predicates[i] gates Children[i]; first match wins.
	Predicates []Predicate
	Children   []*Step

	// KindLoop
	LoopStep      *Step
	LoopPredicate Predicate
	Loop          LoopKind

	// KindForEach
	ForEachStep *Step
	ForEachOpts ForEachOptions
}

func stepEntry(s *Step) FlowEntry {
	return FlowEntry{Kind: KindStep, Step: s}
}

func parallelEntry(steps []*Step) FlowEntry {
	cp := make([]*Step, len(steps))
	copy(cp, steps)
	return FlowEntry{Kind: KindParallel, ParallelChildren: cp}
}

func conditionalEntry(preds []Predicate, children []*Step) FlowEntry {
	pc := make([]Predicate, len(preds))
	copy(pc, preds)
	cc := make([]*Step, len(children))
	copy(cc, children)
	return FlowEntry{Kind: KindConditional, Predicates: pc, Children: cc}
}

func loopEntry(s *Step, pred Predicate, kind LoopKind) FlowEntry {
	return FlowEntry{Kind: KindLoop, LoopStep: s, LoopPredicate: pred, Loop: kind}
}

func forEachEntry(s *Step, opts ForEachOptions) FlowEntry {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return FlowEntry{Kind: KindForEach, ForEachStep: s, ForEachOpts: opts}
}

// stepIDs returns every step id directly referenced by this entry, in
// the order the engine would visit them. Used for commit-time validation
// and for building the execution-graph adjacency view.
func (e FlowEntry) stepIDs() []string {
	switch e.Kind {
	case KindStep:
		return []string{e.Step.ID}
	case KindParallel:
		ids := make([]string, len(e.ParallelChildren))
		for i, s := range e.ParallelChildren {
			ids[i] = s.ID
		}
		return ids
	case KindConditional:
		ids := make([]string, len(e.Children))
		for i, s := range e.Children {
			ids[i] = s.ID
		}
		return ids
	case KindLoop:
		return []string{e.LoopStep.ID}
	case KindForEach:
		return []string{e.ForEachStep.ID}
	default:
		return nil
	}
}
