package snapshot

import (
	"context"
	"testing"

	"github.com/dshills/flowrun/flow"
	"github.com/dshills/flowrun/store"
)

func buildSampleStore() *store.RunStore {
	rs := store.New("run-1", "wf-1")
	rs.SetStatus(store.StatusRunning)
	rs.UpdateExecutionPath([]int{0})
	rs.UpdateStepResult("a", store.StepResult{Status: store.StepCompleted, Output: 42})
	rs.UpdateStepResult("b", store.StepResult{Status: store.StepSuspended, Output: "waiting", SuspendedPath: []int{1}})
	rs.UpdateExecutionContext(map[string]any{"scratch": "value"})
	rs.EmitStepStatusUpdate(store.Event{Description: "b suspended"})
	rs.SetStatus(store.StatusSuspended)
	return rs
}

func TestCaptureRestoreRoundTrip(t *testing.T) {
	rs := buildSampleStore()
	snap := capture(rs, nil, "before-resume")

	restored := store.New("run-1", "wf-1")
	if err := Restore(restored, nil, snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	st := restored.State()
	if st.Status != store.StatusSuspended {
		t.Fatalf("status = %v, want Suspended", st.Status)
	}
	if st.StepResults["a"].Output != 42 {
		t.Fatalf("step a output = %v, want 42", st.StepResults["a"].Output)
	}
	if st.StepResults["b"].Status != store.StepSuspended {
		t.Fatalf("step b status = %v, want Suspended", st.StepResults["b"].Status)
	}
	if len(st.SuspendedPaths["b"]) != 1 || st.SuspendedPaths["b"][0] != 1 {
		t.Fatalf("suspendedPaths[b] = %v, want [1]", st.SuspendedPaths["b"])
	}
	if st.ExecutionContext["scratch"] != "value" {
		t.Fatalf("executionContext = %v", st.ExecutionContext)
	}

	// Property #3 (spec.md §8): capturing the restored store must
	// reproduce the original snapshot in every field Diff compares
	// (Timestamp, the wall-clock capture instant, is not among them).
	recaptured := capture(restored, nil, "before-resume")
	if diffs := Diff(snap, recaptured); len(diffs) != 0 {
		t.Fatalf("recaptured snapshot diverged from original: %+v", diffs)
	}
}

func TestRestoreReproducesExactLogsAndEvents(t *testing.T) {
	rs := buildSampleStore()
	snap := capture(rs, nil, "")

	restored := store.New("run-1", "wf-1")
	if err := Restore(restored, nil, snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	st := restored.State()
	if len(st.Logs) != len(snap.Logs) {
		t.Fatalf("logs length = %d, want %d", len(st.Logs), len(snap.Logs))
	}
	for i, entry := range st.Logs {
		if entry != snap.Logs[i] {
			t.Fatalf("log[%d] = %+v, want %+v", i, entry, snap.Logs[i])
		}
	}
	if len(st.Events) != len(snap.Events) {
		t.Fatalf("events length = %d, want %d", len(st.Events), len(snap.Events))
	}
	for i, ev := range st.Events {
		if ev.Timestamp != snap.Events[i].Timestamp {
			t.Fatalf("event[%d].Timestamp = %d, want %d (restore must not re-stamp)", i, ev.Timestamp, snap.Events[i].Timestamp)
		}
	}
}

func TestRestoreRejectsFlowHashMismatch(t *testing.T) {
	snap := Snapshot{RunID: "run-1", WorkflowID: "wf-1", Status: store.StatusInitial.String(), FlowHash: "deadbeef"}
	restored := store.New("run-1", "wf-1")
	if err := Restore(restored, nil, snap); err != nil {
		t.Fatalf("Restore with nil workflow should ignore FlowHash: %v", err)
	}

	wf, err := flow.New("wf-1", nil, nil).Then(&flow.Step{
		ID:      "a",
		Execute: func(context.Context, *flow.StepContext) (any, error) { return nil, nil },
	}).Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := Restore(store.New("run-1", "wf-1"), wf, snap); err == nil {
		t.Fatalf("Restore into workflow with hash %q accepted snapshot hash %q", wf.FlowHash(), snap.FlowHash)
	}
}

func TestDiffReportsChangedFields(t *testing.T) {
	a := Snapshot{Status: store.StatusRunning.String(), StepResults: map[string]StepResultView{"a": {Status: "completed"}}}
	b := Snapshot{Status: store.StatusCompleted.String(), StepResults: map[string]StepResultView{"a": {Status: "failed"}}}

	diffs := Diff(a, b)
	fields := make(map[string]bool, len(diffs))
	for _, d := range diffs {
		fields[d.Field] = true
	}
	if !fields["status"] {
		t.Fatal("expected a status diff")
	}
	if !fields["stepResults.a"] {
		t.Fatalf("expected a stepResults.a diff, got %+v", diffs)
	}
}

func TestManagerCaptureLatestLoad(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryBackend())
	rs := buildSampleStore()

	first, err := m.Capture(ctx, rs, nil, "")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	rs.SetStatus(store.StatusCompleted)
	second, err := m.Capture(ctx, rs, nil, "final")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	latest, err := m.Latest(ctx, "run-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Label != "final" {
		t.Fatalf("Latest label = %q, want %q", latest.Label, "final")
	}

	loaded, err := m.Load(ctx, "run-1", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Status != first.Status {
		t.Fatalf("loaded status = %q, want %q", loaded.Status, first.Status)
	}
	_ = second
}

func TestManagerRetentionPrunesOldestUnlabeledFirst(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryBackend(), WithRetention(1))
	rs := buildSampleStore()

	if _, err := m.Capture(ctx, rs, nil, ""); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if _, err := m.Capture(ctx, rs, nil, "keep"); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	all, err := m.backend.List(ctx, "run-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len(all) = %d, want 1 after retention", len(all))
	}
	if all[0].Label != "keep" {
		t.Fatalf("surviving snapshot label = %q, want %q", all[0].Label, "keep")
	}
}
