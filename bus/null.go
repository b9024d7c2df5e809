package bus

import (
	"context"

	"github.com/dshills/flowrun/store"
)

// NullEmitter discards every event. It is the default for embedding
// hosts and tests that don't care about observability.
type NullEmitter struct{}

// NewNullEmitter returns a NullEmitter.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

func (n *NullEmitter) Emit(store.Event) {}

func (n *NullEmitter) EmitBatch(context.Context, []store.Event) error { return nil }

func (n *NullEmitter) Flush(context.Context) error { return nil }
