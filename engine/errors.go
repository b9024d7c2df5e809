package engine

import "errors"

// Engine errors. ErrNoSuspendedSteps surfaces as an immediate error from
// Resume (spec.md §7 "Structural error"), because it indicates a
// caller-side misuse rather than a step misbehaving; ErrMaxStepsExceeded
// is carried in a failed WorkflowResult's Err.
var (
	// ErrNoSuspendedSteps is returned by Resume when the run has no step
	// in StepSuspended status (spec.md §4.7 "resume... requires at least
	// one step id in stepResults with status suspended").
	ErrNoSuspendedSteps = errors.New("engine: no suspended steps to resume")

	// ErrMaxStepsExceeded fails the run when a walk evaluates more entries,
	// or a single loop entry runs more iterations, than Options.MaxSteps
	// allows (backstop against unbounded loops,
	// spec.md §4.5 "Infinite loops are the caller's responsibility").
	ErrMaxStepsExceeded = errors.New("engine: exceeded max steps")
)
