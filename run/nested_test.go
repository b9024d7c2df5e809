package run

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/flowrun/engine"
	"github.com/dshills/flowrun/flow"
	"github.com/dshills/flowrun/store"
)

var errBoom = errors.New("boom")

func TestRun_AsStepDrivesARealNestedRun(t *testing.T) {
	child := mustCommit(t, flow.New("child-wf", nil, nil).Then(doubleStep("double")))

	eng, err := engine.New()
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	parent := mustCommit(t, flow.New("parent-wf", nil, nil).Then(AsStep(eng, "nested", child)))
	r, err := New(parent, eng, "run-nested", "parent-wf")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := r.Start(context.Background(), StartParams{InputData: 21})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if result.Status != store.StatusCompleted {
		t.Fatalf("status = %v, want Completed", result.Status)
	}
	if result.Result != 42 {
		t.Fatalf("result = %v, want 42 (doubled by the nested run)", result.Result)
	}
}

func TestRun_AsStepPropagatesNestedFailure(t *testing.T) {
	failing := mustCommit(t, flow.New("child-fails", nil, nil).Then(&flow.Step{
		ID: "boom",
		Execute: func(_ context.Context, _ *flow.StepContext) (any, error) {
			return nil, errBoom
		},
	}))

	eng, err := engine.New()
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	parent := mustCommit(t, flow.New("parent-fails", nil, nil).Then(AsStep(eng, "nested", failing)))
	r, err := New(parent, eng, "run-nested-fail", "parent-fails")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := r.Start(context.Background(), StartParams{InputData: 1})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if result.Status != store.StatusFailed {
		t.Fatalf("status = %v, want Failed", result.Status)
	}
}

func TestRun_AsStepUsesDistinctNestedRunIDsAcrossParentRuns(t *testing.T) {
	var nestedIDs []string
	child := mustCommit(t, flow.New("child-wf-2", nil, nil).Then(&flow.Step{
		ID: "record",
		Execute: func(_ context.Context, sc *flow.StepContext) (any, error) {
			nestedIDs = append(nestedIDs, sc.RunID)
			return nil, nil
		},
	}))
	eng, err := engine.New()
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	parent := mustCommit(t, flow.New("parent-wf-2", nil, nil).Then(AsStep(eng, "nested", child)))

	r1, _ := New(parent, eng, "run-a", "parent-wf-2")
	r2, _ := New(parent, eng, "run-b", "parent-wf-2")

	if _, err := r1.Start(context.Background(), StartParams{InputData: 1}); err != nil {
		t.Fatalf("Start r1: %v", err)
	}
	if _, err := r2.Start(context.Background(), StartParams{InputData: 2}); err != nil {
		t.Fatalf("Start r2: %v", err)
	}
	if r1.GetRunState().RunID == r2.GetRunState().RunID {
		t.Fatal("parent runs unexpectedly share a run id")
	}
	if len(nestedIDs) != 2 || nestedIDs[0] != "run-a/nested" || nestedIDs[1] != "run-b/nested" {
		t.Fatalf("nested run ids = %v, want [run-a/nested run-b/nested]", nestedIDs)
	}
}

