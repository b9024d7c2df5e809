package bus

import (
	"context"
	"sync"

	"github.com/dshills/flowrun/store"
)

// StreamEventKind discriminates a StreamEvent (spec.md §4.4 "Stream",
// §6 "Stream event shape": start/finish events bracket the sequence).
type StreamEventKind string

const (
	StreamStart  StreamEventKind = "start"
	StreamFinish StreamEventKind = "finish"
)

// StreamEvent is one element of a Stream's sequence: the synthetic
// start/finish brackets carry no Event, every other element wraps the
// store.Event that was appended.
type StreamEvent struct {
	Kind  StreamEventKind
	Event *store.Event
}

// StreamHandle is the {stream, getFinalState()} pair spec.md §4.4
// describes. Events is closed once the run reaches a non-suspended
// terminal state; GetFinalState blocks until then.
type StreamHandle struct {
	Events <-chan StreamEvent

	final       chan store.WorkflowResult
	unsubscribe store.Unsubscribe
}

// GetFinalState resolves with the same WorkflowResult Start/Resume
// would return. It does not resolve while the run is merely suspended
// (spec.md §4.4 point 5).
func (h *StreamHandle) GetFinalState(ctx context.Context) (store.WorkflowResult, error) {
	select {
	case r := <-h.final:
		return r, nil
	case <-ctx.Done():
		return store.WorkflowResult{}, ctx.Err()
	}
}

// Close deregisters the underlying store subscription early, e.g. if a
// caller abandons a stream before the run terminates.
func (h *StreamHandle) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
}

// Stream opens a backpressure-aware, one-shot event sequence for rs
// (spec.md §4.4 "Stream"). root names the step whose output becomes the
// run's overall result, as in store.RunState.Result.
//
// A resume call against the same RunStore needs no special handling
// here: because Stream subscribes directly to rs and a run's store
// instance survives across suspend/resume (spec.md "Lifecycle"), further
// mutations from a later Resume flow into this same sequence until a
// non-suspended terminal state is reached (spec.md §4.4 point 4).
func Stream(ctx context.Context, rs *store.RunStore, root string) *StreamHandle {
	events := make(chan StreamEvent, 64)
	final := make(chan store.WorkflowResult, 1)
	var closeOnce sync.Once
	var unsub store.Unsubscribe

	send := func(se StreamEvent) {
		select {
		case events <- se:
		case <-ctx.Done():
		}
	}

	finish := func(s store.RunState) {
		closeOnce.Do(func() {
			final <- s.Result(root)
			send(StreamEvent{Kind: StreamFinish})
			close(events)
			if unsub != nil {
				unsub()
			}
		})
	}

	unsub = rs.Subscribe(func(newState, prevState store.RunState) {
		if n, p := len(newState.Events), len(prevState.Events); n > p {
			for i := p; i < n; i++ {
				e := newState.Events[i]
				send(StreamEvent{Kind: StreamEventKind(e.Type.String()), Event: &e})
			}
		}
		if newState.Status.IsTerminal() {
			finish(newState)
		}
	})

	send(StreamEvent{Kind: StreamStart})

	// The run may already be terminal by the time Stream is called
	// (e.g. a fast synchronous Start completed before the caller
	// subscribed); in that case synthesize the finish immediately.
	if s := rs.State(); s.Status.IsTerminal() {
		finish(s)
	}

	return &StreamHandle{Events: events, final: final, unsubscribe: unsub}
}
