package run

import (
	"context"
	"fmt"

	"github.com/dshills/flowrun/engine"
	"github.com/dshills/flowrun/flow"
	"github.com/dshills/flowrun/store"
)

// AsStep represents child as a Step that drives it end to end through
// this same façade: a fresh store.RunStore and run.Run are built for it,
// sharing eng with whichever run ends up executing the returned step, and
// the nested run's root result becomes the step's output (spec.md §4.2
// "a committed workflow is itself usable as a step... executes a nested
// run via the same façade"). The nested run id is derived from the
// enclosing step's own run id (available only once that step actually
// executes, via flow.NestedRunFunc's runID parameter), so the same
// committed child can be wired into many parent workflows, and the same
// parent workflow run many times, without id collisions between nested
// runs. A nested run never suspends on its own: Resume only ever targets
// the parent's own step ids, so if child suspends, AsStep fails the
// enclosing step rather than leaving a nested run with no way to resume it.
func AsStep(eng *engine.Engine, id string, child *flow.Workflow) *flow.Step {
	return child.AsStep(id, func(ctx context.Context, runID string, input any) (any, error) {
		nested, err := New(child, eng, runID+"/"+id, child.ID)
		if err != nil {
			return nil, fmt.Errorf("run: nested step %q: %w", id, err)
		}
		result, err := nested.Start(ctx, StartParams{InputData: input})
		if err != nil {
			return nil, fmt.Errorf("run: nested step %q: %w", id, err)
		}
		if result.Status == store.StatusFailed {
			return nil, fmt.Errorf("run: nested step %q: nested run failed: %w", id, result.Err)
		}
		if len(result.Suspended) > 0 {
			return nil, fmt.Errorf("run: nested step %q: nested runs cannot suspend", id)
		}
		return result.Result, nil
	})
}
