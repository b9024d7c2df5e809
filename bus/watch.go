package bus

import "github.com/dshills/flowrun/store"

// Version selects the shape of a WatchEvent (spec.md §4.4: "v1 and v2
// differ only in event shape").
type Version int

const (
	V1 Version = iota
	V2
)

// WatchEvent is the value handed to a WatchCallback: every variant
// carries {eventType, currentStep?, workflowState, timestamp}; V2 adds
// the specific step id/result that triggered the notification.
//
// CurrentStep (and so V2's StepID/StepResult) is only ever populated for
// a serial top-level step, a chosen conditional branch, or a loop
// iteration — never for an individual parallel/foreach child, since
// those run concurrently and currentStep is a single RunState field
// (spec.md §4.5/§9, engine.runStep's trackCurrent). Watchers that need
// per-child visibility into a parallel/foreach entry should read
// WorkflowState.Steps instead, which every child's UpdateStepResult
// still updates.
type WatchEvent struct {
	EventType     string
	CurrentStep   string
	WorkflowState store.WorkflowStateView
	Timestamp     int64

	// V2 only.
	StepID     string
	StepResult *store.StepResult
}

// WatchCallback is invoked synchronously, within the store's mutation
// path, for every mutation observed after Watch was called.
type WatchCallback func(WatchEvent)

// Watch subscribes cb to every mutation of rs from this call forward,
// translating each one into a WatchEvent of the requested shape (spec.md
// §4.4 "Callback"). The returned Unsubscribe deregisters cb.
func Watch(rs *store.RunStore, cb WatchCallback, version Version) store.Unsubscribe {
	return rs.Subscribe(func(newState, _ store.RunState) {
		cb(buildWatchEvent(newState, version))
	})
}

func buildWatchEvent(s store.RunState, version Version) WatchEvent {
	var ts int64
	kind := store.LogStepUpdate
	if n := len(s.Logs); n > 0 {
		ts = s.Logs[n-1].Timestamp
		kind = s.Logs[n-1].Kind
	}

	eventType := "StepStatusUpdate"
	switch kind {
	case store.LogStatusChange:
		eventType = "WorkflowStatusUpdate"
	case store.LogWatchEvent:
		if n := len(s.Events); n > 0 {
			eventType = s.Events[n-1].Type.String()
		}
	}

	we := WatchEvent{
		EventType:   eventType,
		CurrentStep: s.CurrentStep,
		WorkflowState: store.WorkflowStateView{
			Status: s.Status,
			Steps:  s.StepResults,
		},
		Timestamp: ts,
	}
	if version == V2 && s.CurrentStep != "" {
		we.StepID = s.CurrentStep
		if r, ok := s.StepResults[s.CurrentStep]; ok {
			rc := r
			we.StepResult = &rc
		}
	}
	return we
}
