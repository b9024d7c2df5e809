package run

import (
	"testing"

	"github.com/dshills/flowrun/engine"
	"github.com/dshills/flowrun/flow"
)

func TestCreateRun_GeneratesRunIDWhenOmitted(t *testing.T) {
	wf := mustCommit(t, flow.New("wf-id", nil, nil).Then(doubleStep("double")))
	eng, err := engine.New()
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	r1, err := CreateRun(wf, eng, "", "wf-id")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	r2, err := CreateRun(wf, eng, "", "wf-id")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	id1 := r1.GetRunState().RunID
	id2 := r2.GetRunState().RunID
	if id1 == "" || id2 == "" {
		t.Fatalf("expected generated run ids, got %q and %q", id1, id2)
	}
	if id1 == id2 {
		t.Fatalf("expected distinct generated run ids, got %q twice", id1)
	}
}

func TestCreateRun_HonorsExplicitRunID(t *testing.T) {
	wf := mustCommit(t, flow.New("wf-id2", nil, nil).Then(doubleStep("double")))
	eng, _ := engine.New()

	r, err := CreateRun(wf, eng, "my-run", "wf-id2")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if got := r.GetRunState().RunID; got != "my-run" {
		t.Fatalf("RunID = %q, want %q", got, "my-run")
	}
}
