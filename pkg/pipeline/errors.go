package pipeline

import (
	"fmt"
	"runtime/debug"
)

// Phase names a policy hook.
type Phase string

const (
	PhasePrepare    Phase = "prepare"
	PhasePreInvoke  Phase = "pre-invoke"
	PhasePostInvoke Phase = "post-invoke"
	PhaseContinue   Phase = "continue"
)

// PolicyError reports a failure inside a policy hook, as opposed to a
// failure of the target operation.
type PolicyError struct {
	Policy string
	Phase  Phase
	Cause  error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("pipeline: policy %s failed in %s: %v", e.Policy, e.Phase, e.Cause)
}

func (e *PolicyError) Unwrap() error { return e.Cause }

// PanicError is a recovered panic.
type PanicError struct {
	Value any
	Stack []byte
}

// NewPanicError captures the current stack alongside the recovered value.
func NewPanicError(v any) *PanicError {
	if pe, ok := v.(*PanicError); ok {
		return pe
	}
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Unwrap exposes a panicked error value.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
