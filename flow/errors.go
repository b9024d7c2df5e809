package flow

import "errors"

// Structural errors (spec.md §7 "Structural error"): these surface as an
// immediate exception from the builder/façade rather than as a failed
// run, because they indicate the workflow was misconfigured, not that a
// step misbehaved.
var (
	// ErrEmptyFlow is returned by Commit when the flow has no entries.
	ErrEmptyFlow = errors.New("flow: cannot commit a workflow with no entries")

	// ErrDraftWorkflow is returned by CreateRun/Start when called on a
	// workflow that has not been committed.
	ErrDraftWorkflow = errors.New("flow: workflow must be committed before it can run")

	// ErrDuplicateStepID is returned by Commit when two entries reuse the
	// same step id; step ids must be stable and unique within a workflow.
	ErrDuplicateStepID = errors.New("flow: duplicate step id in workflow")

	// ErrInvalidForEachInput is returned when a foreach entry's input is
	// not a slice (spec.md §4.5 "Shape mismatch").
	ErrInvalidForEachInput = errors.New("flow: foreach input must be an array")

	// ErrMissingPathSegment is returned by declarative map resolution
	// when a dotted path descends into a field that does not exist.
	ErrMissingPathSegment = errors.New("flow: map path resolution hit a missing field")
)
