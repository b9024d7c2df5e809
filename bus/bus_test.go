package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dshills/flowrun/store"
)

func TestNullEmitter_DiscardsEverything(t *testing.T) {
	n := NewNullEmitter()
	n.Emit(store.Event{Description: "noop"})
	if err := n.EmitBatch(context.Background(), []store.Event{{}, {}}); err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}
	if err := n.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestLogEmitter_JSONMode(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, true)
	e.Emit(store.Event{
		Type:        store.EventStepStatusUpdate,
		RunID:       "run-1",
		WorkflowID:  "wf-1",
		Description: "step a -> completed",
		Payload: store.EventPayload{
			StepID: "a",
			WorkflowState: store.WorkflowStateView{
				Status: store.StatusRunning,
			},
		},
	})

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Emit did not produce valid JSON: %v (%q)", err, buf.String())
	}
	if decoded["stepId"] != "a" {
		t.Fatalf("decoded[stepId] = %v", decoded["stepId"])
	}
}

func TestLogEmitter_TextMode(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, false)
	e.Emit(store.Event{Description: "workflow running", RunID: "run-1"})

	if !strings.Contains(buf.String(), "workflow running") {
		t.Fatalf("text output = %q, missing description", buf.String())
	}
}

func TestWatch_V1AndV2EventShapes(t *testing.T) {
	rs := store.New("run-1", "wf-1")

	var v1Events, v2Events []WatchEvent
	unsub1 := Watch(rs, func(we WatchEvent) { v1Events = append(v1Events, we) }, V1)
	defer unsub1()
	unsub2 := Watch(rs, func(we WatchEvent) { v2Events = append(v2Events, we) }, V2)
	defer unsub2()

	rs.SetCurrentStep("a")
	rs.UpdateStepResult("a", store.StepResult{Status: store.StepCompleted, Output: 1})

	if len(v1Events) == 0 || len(v2Events) == 0 {
		t.Fatal("Watch never invoked")
	}
	last := v2Events[len(v2Events)-1]
	if last.StepID != "a" {
		t.Fatalf("V2 StepID = %q, want a", last.StepID)
	}
	if last.StepResult == nil || last.StepResult.Status != store.StepCompleted {
		t.Fatalf("V2 StepResult = %+v", last.StepResult)
	}

	lastV1 := v1Events[len(v1Events)-1]
	if lastV1.StepID != "" {
		t.Fatalf("V1 StepID = %q, want empty (V1 omits per-step detail)", lastV1.StepID)
	}
}

func TestStream_BracketsWithStartAndFinish(t *testing.T) {
	rs := store.New("run-2", "wf-2")
	handle := Stream(context.Background(), rs, "")

	go func() {
		rs.SetStatus(store.StatusRunning)
		rs.EmitWorkflowStatusUpdate(store.Event{Description: "running"})
		rs.UpdateStepResult("a", store.StepResult{Status: store.StepCompleted, Output: 1})
		rs.SetStatus(store.StatusCompleted)
	}()

	var kinds []StreamEventKind
	for se := range handle.Events {
		kinds = append(kinds, se.Kind)
	}

	if len(kinds) == 0 || kinds[0] != StreamStart {
		t.Fatalf("first event = %v, want start", kinds)
	}
	if kinds[len(kinds)-1] != StreamFinish {
		t.Fatalf("last event = %v, want finish", kinds[len(kinds)-1])
	}

	result, err := handle.GetFinalState(context.Background())
	if err != nil {
		t.Fatalf("GetFinalState: %v", err)
	}
	if result.Status != store.StatusCompleted {
		t.Fatalf("final status = %v, want Completed", result.Status)
	}
}

func TestStream_AlreadyTerminalSynthesizesFinishImmediately(t *testing.T) {
	rs := store.New("run-3", "wf-3")
	rs.SetStatus(store.StatusCompleted)

	handle := Stream(context.Background(), rs, "")
	result, err := handle.GetFinalState(context.Background())
	if err != nil {
		t.Fatalf("GetFinalState: %v", err)
	}
	if result.Status != store.StatusCompleted {
		t.Fatalf("status = %v, want Completed", result.Status)
	}
}
