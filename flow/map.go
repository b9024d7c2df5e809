package flow

import (
	"context"
	"fmt"

	"github.com/dshills/flowrun/internal/pathresolve"
)

// MapSource is one field's value source in a declarative MapConfig
// (spec.md §4.4 "declarative map"). Exactly one of the embedded specs is
// set; Resolve distinguishes them in priority order.
type MapSource struct {
	// FromStep reads Path out of the named step's recorded output.
	FromStep *PathRef
	// FromInit reads Path out of the run's original input.
	FromInit *PathRef
	// FromContext reads Path out of the runtime context scratchpad.
	FromContext *ContextRef
	// Literal supplies a fixed value, ignoring any upstream data.
	Literal *LiteralRef
}

// PathRef addresses a dotted path within a named step's output (as
// FromStep) or within the run's init data (as FromInit, where Step is
// ignored).
type PathRef struct {
	Step string
	Path string
}

// ContextRef addresses a dotted path within the runtime context
// scratchpad.
type ContextRef struct {
	Path string
}

// LiteralRef supplies a value verbatim, independent of run state.
type LiteralRef struct {
	Value any
}

// MapConfig declares, field by field, how to assemble a step's input
// out of prior results (spec.md §4.4). Keys are output field names;
// values describe where to pull each one from.
type MapConfig map[string]MapSource

// MapFunc is the functional alternative to MapConfig: a plain Go
// closure computing the next step's input from the same context a step
// would see (spec.md §4.4 "functional map").
type MapFunc func(ctx *StepContext) (any, error)

// resolve evaluates one MapSource against the running StepContext.
func (s MapSource) resolve(ctx context.Context, stepCtx *StepContext) (any, error) {
	switch {
	case s.Literal != nil:
		return s.Literal.Value, nil
	case s.FromStep != nil:
		ref := s.FromStep
		out, ok := stepCtx.GetStepResult(ref.Step)
		if !ok {
			return nil, fmt.Errorf("flow: map: step %q has no recorded result yet", ref.Step)
		}
		if ref.Path == "" {
			return out, nil
		}
		v, err := pathresolve.ResolvePath(ctx, out, ref.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: step %q path %q: %v", ErrMissingPathSegment, ref.Step, ref.Path, err)
		}
		return v, nil
	case s.FromInit != nil:
		ref := s.FromInit
		init := stepCtx.GetInitData()
		if ref.Path == "" {
			return init, nil
		}
		v, err := pathresolve.ResolvePath(ctx, init, ref.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: init data path %q: %v", ErrMissingPathSegment, ref.Path, err)
		}
		return v, nil
	case s.FromContext != nil:
		ref := s.FromContext
		snap := stepCtx.RuntimeContext().Snapshot()
		v, err := pathresolve.ResolvePath(ctx, snap, ref.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: runtime context path %q: %v", ErrMissingPathSegment, ref.Path, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("flow: map: empty MapSource")
	}
}

// mapStep wraps a MapConfig or MapFunc as a pass-through Step: its
// execute never suspends; it fails only when a source cannot be resolved
// (a missing upstream result or field, or an empty MapSource) or when
// the MapFunc returns an error, matching spec.md §4.4's framing of map as
// pure data plumbing rather than business logic.
func mapStep(id string, cfg MapConfig, fn MapFunc) *Step {
	return &Step{
		ID:          id,
		Description: "declarative input mapping",
		Execute: func(ctx context.Context, stepCtx *StepContext) (any, error) {
			if fn != nil {
				return fn(stepCtx)
			}
			out := make(map[string]any, len(cfg))
			for field, src := range cfg {
				v, err := src.resolve(ctx, stepCtx)
				if err != nil {
					return nil, err
				}
				out[field] = v
			}
			return out, nil
		},
	}
}

// Map appends a synthetic step that assembles its output purely from
// upstream data, per cfg (spec.md §4.4 "declarative map"). The
// synthetic step's id is deterministic (map@<entry index>) so snapshots
// and tests can address it without the caller having to name it.
func (w *Workflow) Map(cfg MapConfig) *Workflow {
	w.requireDraft()
	id := w.nextMapID()
	w.entries = append(w.entries, stepEntry(mapStep(id, cfg, nil)))
	return w
}

// MapFn appends a synthetic step whose output is computed by fn, the
// functional form of Map (spec.md §4.4 "functional map").
func (w *Workflow) MapFn(fn MapFunc) *Workflow {
	w.requireDraft()
	id := w.nextMapID()
	w.entries = append(w.entries, stepEntry(mapStep(id, nil, fn)))
	return w
}
