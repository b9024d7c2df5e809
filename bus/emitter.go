// Package bus implements the event bus / watch subsystem (spec.md §4.4
// "Event bus / watch"): it multiplexes store.RunStore mutations into
// run events, in both pull-mode callback subscription (Watch) and
// push-mode stream consumption (Stream), and defines the Emitter
// contract observability backends implement.
package bus

import (
	"context"

	"github.com/dshills/flowrun/store"
)

// Emitter receives structured events as a run progresses. It is the
// system's logging layer: the core engine never writes to a
// conventional logger, it only ever produces store.Event values and
// hands them to an Emitter (reused verbatim from the teacher's
// graph/emit.Emitter shape, since the contract generalizes cleanly).
//
// Implementations must be non-blocking and must not panic; errors are
// swallowed or logged internally rather than propagated out of Emit.
type Emitter interface {
	// Emit sends a single event to the configured backend.
	Emit(event store.Event)

	// EmitBatch sends multiple events in one operation, preserving
	// order.
	EmitBatch(ctx context.Context, events []store.Event) error

	// Flush blocks until any buffered events have been delivered.
	Flush(ctx context.Context) error
}
