// Package snapshot implements the snapshot manager (spec.md §4.6, C6):
// capturing a run's full observable state into a portable, versioned
// JSON document, restoring a store from one, diffing two snapshots
// field by field, and enforcing a retention policy. Persistence is
// delegated to a caller-supplied Backend — an out-of-scope external
// collaborator per spec.md §1 — but this package ships three reference
// backends for tests and demos: MemoryBackend, and SQLiteBackend and
// MySQLBackend adapted from the teacher's graph/store package.
package snapshot

import (
	"time"

	"github.com/dshills/flowrun/flow"
	"github.com/dshills/flowrun/store"
)

// FormatVersion is the snapshot format version stamped into every
// Snapshot (spec.md §6 "Snapshot format").
const FormatVersion = "1.0.0"

// StepResultView is the serialized form of a store.StepResult (spec.md
// §6 "stepResults: { [id]: {status, output?, error?, suspendedPath?} }").
type StepResultView struct {
	Status        string `json:"status"`
	Output        any    `json:"output,omitempty"`
	Error         string `json:"error,omitempty"`
	SuspendedPath []int  `json:"suspendedPath,omitempty"`
}

// Snapshot is a durable, portable record of one run's state at a point
// in time (spec.md §6 "Snapshot format").
type Snapshot struct {
	Version    string `json:"version"`
	Timestamp  int64  `json:"timestamp"` // ms since epoch
	RunID      string `json:"runId"`
	WorkflowID string `json:"workflowId"`
	Status     string `json:"status"`

	StepResults map[string]StepResultView `json:"stepResults"`

	ExecutionPath  []int               `json:"executionPath"`
	SuspendedPaths map[string][]int    `json:"suspendedPaths"`
	Events         []store.Event       `json:"events"`

	// ExecutionGraph is the serialised form of the committed flow this
	// run belongs to: only ids/kind/detail, never predicate/execute
	// closures (spec.md §6: "predicates/conditions are reduced to opaque
	// markers"). Empty when Capture is not given a *flow.Workflow.
	ExecutionGraph []flow.ExecutionGraphNode `json:"executionGraph"`

	Logs             []store.LogEntry `json:"logs"`
	ExecutionContext map[string]any   `json:"executionContext"`

	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	// Label names a user-initiated capture (empty for an automatic
	// capture), e.g. "before_summary" (spec.md §6, mirroring the
	// teacher's Checkpoint.Label).
	Label string `json:"label,omitempty"`

	// FlowHash is the committed flow's stable shape hash (flow.FlowHash),
	// so Restore can sanity-check a snapshot against the graph it is
	// being restored into (Design Notes §9: predicates/functions are not
	// portable across snapshot boundaries, but the graph's shape is).
	FlowHash string `json:"flowHash,omitempty"`
}

// capture builds a Snapshot from rs's current state. wf may be nil, in
// which case ExecutionGraph/FlowHash are left empty.
func capture(rs *store.RunStore, wf *flow.Workflow, label string) Snapshot {
	st := rs.State()

	stepResults := make(map[string]StepResultView, len(st.StepResults))
	for id, r := range st.StepResults {
		v := StepResultView{Status: r.Status.String(), Output: r.Output, SuspendedPath: r.SuspendedPath}
		if r.Err != nil {
			v.Error = r.Err.Error()
		}
		stepResults[id] = v
	}

	suspendedPaths := make(map[string][]int, len(st.SuspendedPaths))
	for id, p := range st.SuspendedPaths {
		suspendedPaths[id] = append([]int(nil), p...)
	}

	snap := Snapshot{
		Version:          FormatVersion,
		Timestamp:        time.Now().UnixMilli(),
		RunID:            st.RunID,
		WorkflowID:       st.WorkflowID,
		Status:           st.Status.String(),
		StepResults:      stepResults,
		ExecutionPath:    append([]int(nil), st.ExecutionPath...),
		SuspendedPaths:   suspendedPaths,
		Events:           append([]store.Event(nil), st.Events...),
		Logs:             append([]store.LogEntry(nil), st.Logs...),
		ExecutionContext: copyAnyMap(st.ExecutionContext),
		Label:            label,
	}
	result := st.Result("")
	snap.Result = result.Result
	if result.Err != nil {
		snap.Error = result.Err.Error()
	}
	if wf != nil && wf.IsCommitted() {
		snap.ExecutionGraph = wf.ExecutionGraph()
		snap.FlowHash = wf.FlowHash()
	}
	return snap
}

func copyAnyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
