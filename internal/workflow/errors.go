package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrThreadTerminated is returned for any input on a completed thread.
	ErrThreadTerminated = errors.New("thread has terminated")
	// ErrEmptyInput is returned when a task or feedback is required but missing.
	ErrEmptyInput = errors.New("input is empty")
	// ErrUnknownRoute is returned when a router picks a target it did not declare.
	ErrUnknownRoute = errors.New("router returned an undeclared target")
	// ErrPartialJoin is returned when only some sources of a join completed in a superstep.
	ErrPartialJoin = errors.New("join sources completed in different supersteps")
	// ErrStepLimit is returned when a call runs more supersteps than allowed.
	ErrStepLimit = errors.New("superstep limit reached")
)

// StepError reports the step whose execution or commit failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
