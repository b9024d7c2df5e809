package flow

import "errors"

// suspendSignal is the internal control-flow sentinel a step's execute
// returns via StepContext.Suspend to request a voluntary halt.
//
// Design Notes §9 of spec.md explicitly calls out the source's ad-hoc
// exception-as-signal approach as needing re-architecture: mixing user
// errors with a framework sentinel in one error channel is error-prone.
// suspendSignal is unexported and only ever produced by Suspend, so the
// engine can recognize it with errors.As without a user ever being able
// to construct (and therefore accidentally trigger) one directly.
type suspendSignal struct {
	payload any
}

func (s *suspendSignal) Error() string {
	return "flow: step suspended"
}

// newSuspend builds the sentinel error returned by StepContext.Suspend.
func newSuspend(payload any) error {
	return &suspendSignal{payload: payload}
}

// NewSuspendError builds the same sentinel newSuspend does. It is
// exported so the engine package can wire StepContext.Suspend without
// flow exposing suspendSignal's fields directly.
func NewSuspendError(payload any) error {
	return newSuspend(payload)
}

// AsSuspend reports whether err is (or wraps) a suspend signal, and if
// so returns the payload that was passed to Suspend.
func AsSuspend(err error) (payload any, ok bool) {
	var sig *suspendSignal
	if errors.As(err, &sig) {
		return sig.payload, true
	}
	return nil, false
}
