package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dshills/flowrun/store"
)

// LogEmitter implements Emitter by writing structured output to an
// io.Writer, in text or JSONL form (adapted from the teacher's
// graph/emit.LogEmitter — stdlib only, by design: this is the teacher's
// own choice of logging mechanism for this exact concern).
type LogEmitter struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter builds a LogEmitter writing to writer (os.Stdout if
// nil). jsonMode selects JSONL output instead of the human-readable
// text format.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

func (l *LogEmitter) Emit(event store.Event) {
	if l.jsonMode {
		l.emitJSON(event)
	} else {
		l.emitText(event)
	}
}

func (l *LogEmitter) emitJSON(event store.Event) {
	data, err := json.Marshal(struct {
		Type        string         `json:"type"`
		RunID       string         `json:"runId"`
		WorkflowID  string         `json:"workflowId"`
		Timestamp   int64          `json:"timestamp"`
		Description string         `json:"description"`
		StepID      string         `json:"stepId,omitempty"`
		Status      string         `json:"workflowStatus"`
	}{
		Type:        event.Type.String(),
		RunID:       event.RunID,
		WorkflowID:  event.WorkflowID,
		Timestamp:   event.Timestamp,
		Description: event.Description,
		StepID:      event.Payload.StepID,
		Status:      event.Payload.WorkflowState.Status.String(),
	})
	if err != nil {
		_, _ = fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event store.Event) {
	_, _ = fmt.Fprintf(l.writer, "[%s] runId=%s workflowId=%s status=%s",
		event.Type, event.RunID, event.WorkflowID, event.Payload.WorkflowState.Status)
	if event.Payload.StepID != "" {
		_, _ = fmt.Fprintf(l.writer, " stepId=%s", event.Payload.StepID)
	}
	if event.Description != "" {
		_, _ = fmt.Fprintf(l.writer, " msg=%q", event.Description)
	}
	_, _ = fmt.Fprint(l.writer, "\n")
}

// EmitBatch writes each event in order.
func (l *LogEmitter) EmitBatch(_ context.Context, events []store.Event) error {
	for _, e := range events {
		l.Emit(e)
	}
	return nil
}

// Flush is a no-op: LogEmitter writes synchronously with no internal
// buffering.
func (l *LogEmitter) Flush(context.Context) error { return nil }
