package flow

import (
	"context"
	"errors"
	"testing"
)

func noopExecute(_ context.Context, _ *StepContext) (any, error) { return nil, nil }

func TestStep_Validate(t *testing.T) {
	cases := []struct {
		name    string
		step    *Step
		wantErr bool
	}{
		{"nil step", nil, true},
		{"empty id", &Step{ID: "", Execute: noopExecute}, true},
		{"nil execute", &Step{ID: "a"}, true},
		{"valid", &Step{ID: "a", Execute: noopExecute}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.step.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestWorkflow_CommitRejectsEmptyFlow(t *testing.T) {
	wf := New("empty", nil, nil)
	if _, err := wf.Commit(); !errors.Is(err, ErrEmptyFlow) {
		t.Fatalf("err = %v, want ErrEmptyFlow", err)
	}
}

func TestWorkflow_CommitRejectsDuplicateStepID(t *testing.T) {
	wf := New("dup", nil, nil).
		Then(&Step{ID: "a", Execute: noopExecute}).
		Then(&Step{ID: "a", Execute: noopExecute})
	if _, err := wf.Commit(); !errors.Is(err, ErrDuplicateStepID) {
		t.Fatalf("err = %v, want ErrDuplicateStepID", err)
	}
}

func TestWorkflow_CommitIsIdempotent(t *testing.T) {
	wf := New("idem", nil, nil).Then(&Step{ID: "a", Execute: noopExecute})
	first, err := wf.Commit()
	if err != nil {
		t.Fatalf("first Commit: %v", err)
	}
	second, err := wf.Commit()
	if err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	if first != second {
		t.Fatal("second Commit returned a different workflow")
	}
}

func TestWorkflow_BuilderMethodsPanicAfterCommit(t *testing.T) {
	wf := New("frozen", nil, nil).Then(&Step{ID: "a", Execute: noopExecute})
	if _, err := wf.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("Then on a committed workflow did not panic")
		}
	}()
	wf.Then(&Step{ID: "b", Execute: noopExecute})
}

func TestWorkflow_EntriesPanicsOnDraft(t *testing.T) {
	wf := New("draft", nil, nil).Then(&Step{ID: "a", Execute: noopExecute})
	defer func() {
		if recover() == nil {
			t.Fatal("Entries on a draft workflow did not panic")
		}
	}()
	wf.Entries()
}

func TestWorkflow_FlowHashStableAcrossEquivalentGraphs(t *testing.T) {
	build := func() *Workflow {
		wf, err := New("hash", nil, nil).
			Then(&Step{ID: "a", Execute: noopExecute}).
			Parallel(&Step{ID: "b", Execute: noopExecute}, &Step{ID: "c", Execute: noopExecute}).
			Commit()
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		return wf
	}
	wf1, wf2 := build(), build()
	if wf1.FlowHash() != wf2.FlowHash() {
		t.Fatalf("hash1 = %q, hash2 = %q, want equal", wf1.FlowHash(), wf2.FlowHash())
	}
	if wf1.FlowHash() == "" {
		t.Fatal("FlowHash() is empty")
	}
}

func TestSuspend_AsSuspendRoundTrips(t *testing.T) {
	err := NewSuspendError(map[string]any{"reason": "needs_approval"})
	payload, ok := AsSuspend(err)
	if !ok {
		t.Fatal("AsSuspend reported false for a suspend signal")
	}
	m, ok := payload.(map[string]any)
	if !ok || m["reason"] != "needs_approval" {
		t.Fatalf("payload = %#v", payload)
	}
}

func TestSuspend_AsSuspendFalseForOrdinaryError(t *testing.T) {
	if _, ok := AsSuspend(errors.New("boom")); ok {
		t.Fatal("AsSuspend reported true for a non-suspend error")
	}
}

func TestStepContext_GetStepResultAndInitData(t *testing.T) {
	results := map[string]any{"a": 42}
	ctx := NewStepContext(
		"input", false, nil, "run-1", "wf-1",
		func(id string) (any, bool) { v, ok := results[id]; return v, ok },
		func() any { return "init" },
		NewRuntimeContext(),
		func(payload any) error { return NewSuspendError(payload) },
	)

	if v, ok := ctx.GetStepResult("a"); !ok || v != 42 {
		t.Fatalf("GetStepResult(a) = %v, %v", v, ok)
	}
	if _, ok := ctx.GetStepResult("missing"); ok {
		t.Fatal("GetStepResult(missing) reported true")
	}
	if ctx.GetInitData() != "init" {
		t.Fatalf("GetInitData() = %v", ctx.GetInitData())
	}
	if err := ctx.Suspend("paused"); err == nil {
		t.Fatal("Suspend returned nil error")
	}
}

func TestPredicateContext_GetStepResultAndInitData(t *testing.T) {
	ctx := NewPredicateContext(
		7,
		func(id string) (any, bool) { return nil, false },
		func() any { return "init" },
	)
	if ctx.InputData != 7 {
		t.Fatalf("InputData = %v", ctx.InputData)
	}
	if ctx.GetInitData() != "init" {
		t.Fatalf("GetInitData() = %v", ctx.GetInitData())
	}
}

func TestRuntimeContext_SetGetHasDeleteClear(t *testing.T) {
	rc := NewRuntimeContext()
	if rc.IsZero() {
		t.Fatal("NewRuntimeContext() reported IsZero")
	}
	if (RuntimeContext{}).IsZero() == false {
		t.Fatal("zero-value RuntimeContext did not report IsZero")
	}

	rc.Set("k", "v")
	if !rc.Has("k") {
		t.Fatal("Has(k) = false after Set")
	}
	if v, ok := rc.Get("k"); !ok || v != "v" {
		t.Fatalf("Get(k) = %v, %v", v, ok)
	}
	rc.Delete("k")
	if rc.Has("k") {
		t.Fatal("Has(k) = true after Delete")
	}

	rc.Set("a", 1)
	rc.Set("b", 2)
	snap := rc.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() = %v, want 2 entries", snap)
	}
	rc.Clear()
	if rc.Has("a") {
		t.Fatal("Has(a) = true after Clear")
	}
}

func TestWorkflow_MapResolvesFromStepInitAndLiteral(t *testing.T) {
	wf := New("map-wf", nil, nil).
		Then(&Step{ID: "src", Execute: func(_ context.Context, _ *StepContext) (any, error) {
			return map[string]any{"total": 10}, nil
		}}).
		Map(MapConfig{
			"fromStep": MapSource{FromStep: &PathRef{Step: "src", Path: "total"}},
			"fromInit": MapSource{FromInit: &PathRef{}},
			"literal":  MapSource{Literal: &LiteralRef{Value: "fixed"}},
		})
	committed, err := wf.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	results := map[string]any{"src": map[string]any{"total": 10}}
	mapEntry := committed.Entries()[1]
	if mapEntry.Kind != KindStep {
		t.Fatalf("map entry kind = %v", mapEntry.Kind)
	}
	ctx := NewStepContext(nil, false, nil, "run", "wf",
		func(id string) (any, bool) { v, ok := results[id]; return v, ok },
		func() any { return "init-value" },
		NewRuntimeContext(),
		func(payload any) error { return NewSuspendError(payload) },
	)
	out, err := mapEntry.Step.Execute(context.Background(), ctx)
	if err != nil {
		t.Fatalf("map execute: %v", err)
	}
	m := out.(map[string]any)
	if m["fromStep"] != 10 || m["fromInit"] != "init-value" || m["literal"] != "fixed" {
		t.Fatalf("map output = %#v", m)
	}
}

func TestWorkflow_AsStepRequiresCommit(t *testing.T) {
	wf := New("nested", nil, nil).Then(&Step{ID: "a", Execute: noopExecute})
	defer func() {
		if recover() == nil {
			t.Fatal("AsStep on a draft workflow did not panic")
		}
	}()
	wf.AsStep("nested-step", func(context.Context, string, any) (any, error) { return nil, nil })
}

func TestWorkflow_AsStepRunsNestedRunner(t *testing.T) {
	wf, err := New("nested", nil, nil).Then(&Step{ID: "a", Execute: noopExecute}).Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	called := false
	step := wf.AsStep("nested-step", func(_ context.Context, runID string, input any) (any, error) {
		called = true
		if runID != "run" {
			t.Fatalf("runID = %q, want %q", runID, "run")
		}
		return input, nil
	})
	ctx := NewStepContext("payload", false, nil, "run", "wf", nil, nil, NewRuntimeContext(),
		func(payload any) error { return NewSuspendError(payload) })
	out, err := step.Execute(context.Background(), ctx)
	if err != nil {
		t.Fatalf("nested execute: %v", err)
	}
	if !called || out != "payload" {
		t.Fatalf("called=%v out=%v", called, out)
	}
}
