package dashboard

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownControl    = errors.New("unknown control")
	ErrInvalidValue      = errors.New("invalid control value")
	ErrConflictingOutput = errors.New("output has more than one binding")
	ErrInvalidBinding    = errors.New("invalid binding")
	ErrOutputArity       = errors.New("binding returned wrong number of outputs")
	ErrBindingPanic      = errors.New("binding panicked")
	ErrSessionNotFound   = errors.New("session not found")
	ErrIntervalExhausted = errors.New("interval reached max_intervals")
)

// BindingError reports a failed binding run. It only ever affects the outputs
// of that binding for a single pass.
type BindingError struct {
	Binding string
	Trigger ControlID
	Err     error
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("binding %s (trigger %s): %v", e.Binding, e.Trigger, e.Err)
}

func (e *BindingError) Unwrap() error { return e.Err }
