package snapshot

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/dshills/flowrun/flow"
	"github.com/dshills/flowrun/store"
)

// Manager captures, restores, diffs, and retains snapshots of a run's
// state (spec.md §4.6 "Snapshot manager").
type Manager struct {
	backend   Backend
	retention int // max snapshots kept per run; 0 = unlimited
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetention bounds how many snapshots Capture keeps per run: once
// exceeded, the oldest unlabeled (automatic) snapshots are pruned first,
// then the oldest labeled ones (spec.md §4.6 "retention").
func WithRetention(n int) Option {
	return func(m *Manager) { m.retention = n }
}

// NewManager builds a Manager backed by backend.
func NewManager(backend Backend, opts ...Option) *Manager {
	m := &Manager{backend: backend}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Capture snapshots rs's current state under label (empty label for an
// automatic/unlabeled capture) and persists it via the backend, applying
// retention afterward. wf, if non-nil and committed, attaches the
// execution graph and flow hash for later sanity-checking on Restore.
func (m *Manager) Capture(ctx context.Context, rs *store.RunStore, wf *flow.Workflow, label string) (Snapshot, error) {
	snap := capture(rs, wf, label)
	if err := m.backend.Save(ctx, snap); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: capture: %w", err)
	}
	if m.retention > 0 {
		if err := m.prune(ctx, snap.RunID); err != nil {
			return snap, fmt.Errorf("snapshot: capture succeeded but retention pruning failed: %w", err)
		}
	}
	return snap, nil
}

// Latest returns the most recently captured snapshot for runID.
func (m *Manager) Latest(ctx context.Context, runID string) (Snapshot, error) {
	all, err := m.backend.List(ctx, runID)
	if err != nil {
		return Snapshot{}, err
	}
	if len(all) == 0 {
		return Snapshot{}, newNotFoundError(runID, "")
	}
	return all[len(all)-1], nil
}

// Load retrieves the snapshot saved under (runID, label).
func (m *Manager) Load(ctx context.Context, runID, label string) (Snapshot, error) {
	return m.backend.Load(ctx, runID, label)
}

func (m *Manager) prune(ctx context.Context, runID string) error {
	all, err := m.backend.List(ctx, runID)
	if err != nil {
		return err
	}
	if len(all) <= m.retention {
		return nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp < all[j].Timestamp })

	excess := len(all) - m.retention
	// Prefer dropping unlabeled (automatic) snapshots first, oldest
	// first, before touching anything the caller explicitly labeled.
	victims := make([]Snapshot, 0, excess)
	for _, s := range all {
		if len(victims) >= excess {
			break
		}
		if s.Label == "" {
			victims = append(victims, s)
		}
	}
	for _, s := range all {
		if len(victims) >= excess {
			break
		}
		if s.Label != "" {
			victims = append(victims, s)
		}
	}
	for _, v := range victims {
		if err := m.backend.Delete(ctx, v.RunID, v.Label); err != nil {
			return err
		}
	}
	return nil
}

// Restore replaces rs's entire state with snap's (spec.md §4.6
// "Restore"). If wf is non-nil and committed, and snap carries a
// non-empty FlowHash, a mismatch against wf.FlowHash() fails the restore
// rather than silently loading state for the wrong flow shape.
func Restore(rs *store.RunStore, wf *flow.Workflow, snap Snapshot) error {
	if wf != nil && wf.IsCommitted() && snap.FlowHash != "" && snap.FlowHash != wf.FlowHash() {
		return fmt.Errorf("snapshot: flow hash mismatch: snapshot captured %q, target workflow is %q", snap.FlowHash, wf.FlowHash())
	}

	rs.Reset()
	status, err := parseStatus(snap.Status)
	if err != nil {
		return err
	}
	rs.SetStatus(status)

	for id, v := range snap.StepResults {
		stepStatus, err := parseStepStatus(v.Status)
		if err != nil {
			return fmt.Errorf("snapshot: step %q: %w", id, err)
		}
		result := store.StepResult{Status: stepStatus, Output: v.Output, SuspendedPath: append([]int(nil), v.SuspendedPath...)}
		if v.Error != "" {
			result.Err = fmt.Errorf("%s", v.Error)
		}
		rs.UpdateStepResult(id, result)
	}

	rs.UpdateExecutionPath(snap.ExecutionPath)
	rs.UpdateSuspendedPaths(snap.SuspendedPaths)
	rs.UpdateExecutionContext(snap.ExecutionContext)

	// Events and logs are restored verbatim, as the last step, rather
	// than replayed through AddWatchEvent/apply's own bookkeeping: those
	// re-stamp timestamps and append a fresh entry for the replacement
	// itself, which would desync a restored run's history from the
	// snapshot it came from (spec.md §8 Testable Property #3).
	rs.ReplaceEvents(append([]store.Event(nil), snap.Events...))
	rs.ReplaceLogs(append([]store.LogEntry(nil), snap.Logs...))
	return nil
}

func parseStatus(s string) (store.Status, error) {
	for _, st := range []store.Status{
		store.StatusInitial, store.StatusRunning, store.StatusPaused, store.StatusResumed,
		store.StatusCompleted, store.StatusFailed, store.StatusSuspended,
	} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("snapshot: unknown status %q", s)
}

func parseStepStatus(s string) (store.StepStatus, error) {
	for _, st := range []store.StepStatus{
		store.StepRunning, store.StepCompleted, store.StepFailed, store.StepSuspended,
	} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("snapshot: unknown step status %q", s)
}

// FieldDiff is one entry of Diff's sparse result (only differing fields
// appear). Diff compares status, result, error, stepResults,
// executionPath, events and logs. When both snapshots hold the same
// number of step results, each differing step is reported as
// "stepResults.<id>" with both views; otherwise "stepResults" is
// reported with the two counts. Events and logs are compared in full and
// reported with their lengths. executionContext, suspendedPaths,
// executionGraph, flowHash, label, identity fields, version and
// timestamp are not compared.
type FieldDiff struct {
	Field    string
	Previous any
	Current  any
}

// Diff compares a (older) against b (newer).
func Diff(a, b Snapshot) []FieldDiff {
	var diffs []FieldDiff
	add := func(field string, prev, cur any) {
		diffs = append(diffs, FieldDiff{Field: field, Previous: prev, Current: cur})
	}

	if a.Status != b.Status {
		add("status", a.Status, b.Status)
	}
	if fmt.Sprint(a.Result) != fmt.Sprint(b.Result) {
		add("result", a.Result, b.Result)
	}
	if a.Error != b.Error {
		add("error", a.Error, b.Error)
	}
	if len(a.StepResults) != len(b.StepResults) {
		add("stepResults", len(a.StepResults), len(b.StepResults))
	} else {
		for id, av := range a.StepResults {
			if bv, ok := b.StepResults[id]; !ok || !reflect.DeepEqual(av, bv) {
				add("stepResults."+id, av, b.StepResults[id])
			}
		}
	}
	if fmt.Sprint(a.ExecutionPath) != fmt.Sprint(b.ExecutionPath) {
		add("executionPath", a.ExecutionPath, b.ExecutionPath)
	}
	if !reflect.DeepEqual(a.Events, b.Events) {
		add("events", len(a.Events), len(b.Events))
	}
	if !reflect.DeepEqual(a.Logs, b.Logs) {
		add("logs", len(a.Logs), len(b.Logs))
	}
	return diffs
}
