package bus

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/flowrun/store"
)

// OTelEmitter implements Emitter by turning each event into an
// OpenTelemetry span: spans are created and ended immediately since an
// Event represents a point in time, not a duration (adapted from the
// teacher's graph/emit.OTelEmitter).
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter builds an OTelEmitter using tracer, typically obtained
// via otel.Tracer("flowrun").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) Emit(event store.Event) {
	ctx := context.Background()
	_, span := o.tracer.Start(ctx, event.Type.String())
	defer span.End()
	o.annotate(span, event)
}

func (o *OTelEmitter) annotate(span trace.Span, event store.Event) {
	span.SetAttributes(
		attribute.String("flowrun.run_id", event.RunID),
		attribute.String("flowrun.workflow_id", event.WorkflowID),
		attribute.String("flowrun.status", event.Payload.WorkflowState.Status.String()),
	)
	if event.Payload.StepID != "" {
		span.SetAttributes(attribute.String("flowrun.step_id", event.Payload.StepID))
	}
	if event.Payload.WorkflowState.Err != nil {
		span.SetStatus(codes.Error, event.Payload.WorkflowState.Err.Error())
		span.RecordError(event.Payload.WorkflowState.Err)
	}
	for k, v := range event.Metadata {
		span.SetAttributes(attribute.String("flowrun.meta."+k, fmt.Sprintf("%v", v)))
	}
}

// EmitBatch creates one span per event.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []store.Event) error {
	for _, event := range events {
		_, span := o.tracer.Start(ctx, event.Type.String())
		o.annotate(span, event)
		span.End()
	}
	return nil
}

// Flush forces the global tracer provider to export pending spans, if
// it supports it.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	tp := otel.GetTracerProvider()
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := tp.(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}
