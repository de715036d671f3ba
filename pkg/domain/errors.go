package domain

import (
	"errors"
	"fmt"
)

// ErrNotStarted is returned when an interpreter is used before Start.
var ErrNotStarted = errors.New("interpreter not started")

// ErrStopped is returned when an event is sent to a stopped interpreter.
var ErrStopped = errors.New("interpreter stopped")

// ErrReentrantSend is returned when Send is called synchronously from the interpreter's own
// listeners or actions. Use Post instead.
var ErrReentrantSend = errors.New("synchronous send from within the interpreter loop")

// ErrUnknownActor is returned when an action references a child actor that is not alive.
var ErrUnknownActor = errors.New("unknown actor")

// ErrLivelock is wrapped by a FaultError when a macrostep does not stabilize.
var ErrLivelock = errors.New("macrostep did not stabilize")

// FaultPhase identifies where a fault was raised.
type FaultPhase string

const (
	PhaseGuard  FaultPhase = "guard"
	PhaseAction FaultPhase = "action"
	PhaseStep   FaultPhase = "step"
)

// FaultError reports a failing guard or action. It is fatal for the instance: the
// microstep in progress is discarded and the interpreter becomes errored.
type FaultError struct {
	Phase   FaultPhase
	Machine string
	State   string // path of the node owning the guard or action
	Event   string
	Action  string // action or guard name, if any
	Context Context
	Err     error
}

func (e *FaultError) Error() string {
	name := ""
	if e.Action != "" {
		name = fmt.Sprintf(" %q", e.Action)
	}
	return fmt.Sprintf("%s fault%s in machine '%s' at state '%s' on event '%s': %v",
		e.Phase, name, e.Machine, e.State, e.Event, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }

// InvocationError reports a failed invoke. It travels as the Err of an error.invoke event
// and becomes the instance error when no transition handles it.
type InvocationError struct {
	InvokeID string
	State    string
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invocation '%s' in state '%s' failed: %v", e.InvokeID, e.State, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// ChildError reports a spawned child that became errored.
type ChildError struct {
	ActorID string
	Err     error
}

func (e *ChildError) Error() string {
	return fmt.Sprintf("child actor '%s' failed: %v", e.ActorID, e.Err)
}

func (e *ChildError) Unwrap() error { return e.Err }

// PanicError wraps a value recovered from a panicking guard, action or service.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
