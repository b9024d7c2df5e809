package store

import (
	"sync"
	"testing"
)

func TestRunStore_SetStatusRecordsLogAndEmits(t *testing.T) {
	rs := New("run-1", "wf-1")

	var got RunState
	unsub := rs.Subscribe(func(newState, _ RunState) { got = newState })
	defer unsub()

	rs.SetStatus(StatusRunning)

	if got.Status != StatusRunning {
		t.Fatalf("subscriber saw status = %v, want Running", got.Status)
	}
	if rs.State().Status != StatusRunning {
		t.Fatalf("State().Status = %v, want Running", rs.State().Status)
	}
	if n := len(rs.State().Logs); n != 1 {
		t.Fatalf("len(Logs) = %d, want 1", n)
	}
}

func TestRunStore_UpdateStepResultTracksSuspendedPaths(t *testing.T) {
	rs := New("run-2", "wf-2")

	rs.UpdateStepResult("a", StepResult{Status: StepSuspended, Output: "waiting", SuspendedPath: []int{0, 1}})
	st := rs.State()
	if got, ok := st.SuspendedPaths["a"]; !ok || got[0] != 0 || got[1] != 1 {
		t.Fatalf("SuspendedPaths[a] = %v, %v", got, ok)
	}

	rs.UpdateStepResult("a", StepResult{Status: StepCompleted, Output: "done"})
	if _, ok := rs.State().SuspendedPaths["a"]; ok {
		t.Fatal("SuspendedPaths[a] still present after completion")
	}
}

// I4: timestamps are strictly increasing even under rapid back-to-back
// mutations that could otherwise collide at clock granularity.
func TestRunStore_TimestampsAreStrictlyIncreasing(t *testing.T) {
	rs := New("run-3", "wf-3")
	var last int64
	for i := 0; i < 100; i++ {
		rs.SetCurrentStep("step")
		logs := rs.State().Logs
		ts := logs[len(logs)-1].Timestamp
		if ts <= last {
			t.Fatalf("timestamp %d did not increase past %d at iteration %d", ts, last, i)
		}
		last = ts
	}
}

// I5: currentStep reflects the most recent SetCurrentStep call, cleared
// by passing the empty string.
func TestRunStore_CurrentStepClearedByEmptyString(t *testing.T) {
	rs := New("run-4", "wf-4")
	rs.SetCurrentStep("a")
	if rs.State().CurrentStep != "a" {
		t.Fatalf("CurrentStep = %q, want a", rs.State().CurrentStep)
	}
	rs.SetCurrentStep("")
	if rs.State().CurrentStep != "" {
		t.Fatalf("CurrentStep = %q, want empty", rs.State().CurrentStep)
	}
}

// O4: event order delivered to a single subscriber equals store mutation
// order.
func TestRunStore_SubscriberObservesMutationOrder(t *testing.T) {
	rs := New("run-5", "wf-5")
	var mu sync.Mutex
	var seen []Status
	unsub := rs.Subscribe(func(newState, _ RunState) {
		mu.Lock()
		seen = append(seen, newState.Status)
		mu.Unlock()
	})
	defer unsub()

	order := []Status{StatusRunning, StatusSuspended, StatusResumed, StatusCompleted}
	for _, s := range order {
		rs.SetStatus(s)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(order) {
		t.Fatalf("len(seen) = %d, want %d", len(seen), len(order))
	}
	for i, s := range order {
		if seen[i] != s {
			t.Fatalf("seen[%d] = %v, want %v", i, seen[i], s)
		}
	}
}

func TestRunStore_SubscribeOnlySeesMutationsAfterRegistration(t *testing.T) {
	rs := New("run-6", "wf-6")
	rs.SetStatus(StatusRunning)

	var seen []Status
	unsub := rs.Subscribe(func(newState, _ RunState) { seen = append(seen, newState.Status) })
	defer unsub()

	rs.SetStatus(StatusCompleted)

	if len(seen) != 1 || seen[0] != StatusCompleted {
		t.Fatalf("seen = %v, want [Completed]", seen)
	}
}

func TestRunStore_UnsubscribeStopsDelivery(t *testing.T) {
	rs := New("run-7", "wf-7")
	count := 0
	unsub := rs.Subscribe(func(RunState, RunState) { count++ })
	rs.SetStatus(StatusRunning)
	unsub()
	rs.SetStatus(StatusCompleted)

	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestRunStore_UpdateStateMergesWithoutClobbering(t *testing.T) {
	rs := New("run-8", "wf-8")
	rs.UpdateState(map[string]any{"a": 1})
	rs.UpdateState(map[string]any{"b": 2})

	st := rs.State()
	if st.State["a"] != 1 || st.State["b"] != 2 {
		t.Fatalf("State = %v", st.State)
	}
}

func TestRunStore_ResetPreservesIdentityOnly(t *testing.T) {
	rs := New("run-9", "wf-9")
	rs.SetStatus(StatusRunning)
	rs.UpdateStepResult("a", StepResult{Status: StepCompleted, Output: 1})
	rs.UpdateState(map[string]any{"k": "v"})

	rs.Reset()
	st := rs.State()
	if st.RunID != "run-9" || st.WorkflowID != "wf-9" {
		t.Fatalf("identity lost: %+v", st)
	}
	if st.Status != StatusInitial {
		t.Fatalf("Status = %v, want Initial", st.Status)
	}
	if len(st.StepResults) != 0 || len(st.State) != 0 {
		t.Fatalf("Reset left stale state: %+v", st)
	}
}

func TestRunState_ResultBuildsSuspendedListSortedByStepID(t *testing.T) {
	rs := New("run-10", "wf-10")
	rs.UpdateStepResult("b", StepResult{Status: StepSuspended, Output: "b-payload", SuspendedPath: []int{1}})
	rs.UpdateStepResult("a", StepResult{Status: StepSuspended, Output: "a-payload", SuspendedPath: []int{0}})

	wr := rs.State().Result("")
	if len(wr.Suspended) != 2 {
		t.Fatalf("len(Suspended) = %d, want 2", len(wr.Suspended))
	}
	if wr.Suspended[0].StepID != "a" || wr.Suspended[1].StepID != "b" {
		t.Fatalf("Suspended = %+v, want sorted by step id", wr.Suspended)
	}
}

func TestRunState_ResultSurfacesFirstFailure(t *testing.T) {
	rs := New("run-11", "wf-11")
	boom := testErr("boom")
	rs.UpdateStepResult("a", StepResult{Status: StepFailed, Err: boom})

	wr := rs.State().Result("")
	if wr.Err != boom {
		t.Fatalf("Err = %v, want %v", wr.Err, boom)
	}
}

func TestRunState_CloneIsIndependent(t *testing.T) {
	rs := New("run-12", "wf-12")
	rs.UpdateStepResult("a", StepResult{Status: StepCompleted, Output: 1})

	snap := rs.State()
	rs.UpdateStepResult("b", StepResult{Status: StepCompleted, Output: 2})

	if _, ok := snap.StepResults["b"]; ok {
		t.Fatal("earlier snapshot observed a later mutation")
	}
}

type testErr string

func (e testErr) Error() string { return string(e) }
