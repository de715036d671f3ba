package domain

import (
	"context"
	"time"
)

// StateEvent reports the entry or exit of a state.
type StateEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	Machine    string    `json:"machine"`
	InstanceID string    `json:"instance_id"`
	Path       string    `json:"path"`
	Kind       Kind      `json:"kind"`
	Activation uint64    `json:"activation"`
}

// TransitionEvent reports a transition taken during a microstep.
type TransitionEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	Machine    string    `json:"machine"`
	InstanceID string    `json:"instance_id"`
	Source     string    `json:"source"`
	Targets    []string  `json:"targets,omitempty"`
	Event      string    `json:"event"`
}

// InvokeEvent reports the start or the settlement of an invocation.
type InvokeEvent struct {
	Timestamp  time.Time     `json:"timestamp"`
	Machine    string        `json:"machine"`
	InstanceID string        `json:"instance_id"`
	InvokeID   string        `json:"invoke_id"`
	State      string        `json:"state"`
	Activation uint64        `json:"activation"`
	Input      any           `json:"input,omitempty"`
	Output     any           `json:"output,omitempty"`
	Err        error         `json:"-"`
	Duration   time.Duration `json:"duration,omitempty"`
	// Stale is set when the result arrived after the state was exited and was discarded.
	Stale bool `json:"stale,omitempty"`
}

// SpawnEvent reports a child actor being started.
type SpawnEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	Machine      string    `json:"machine"`
	InstanceID   string    `json:"instance_id"`
	ActorID      string    `json:"actor_id"`
	ChildMachine string    `json:"child_machine"`
}

// SignalEvent reports a signal flushed on the bus.
type SignalEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	Machine    string    `json:"machine"`
	InstanceID string    `json:"instance_id"`
	Signal     Signal    `json:"signal"`
}

// LifecycleHooks defines callbacks for runtime observability.
// Hooks run synchronously on the interpreter goroutine and must not block.
type LifecycleHooks struct {
	OnStateEnter   func(context.Context, *StateEvent)
	OnStateExit    func(context.Context, *StateEvent)
	OnTransition   func(context.Context, *TransitionEvent)
	OnInvokeStart  func(context.Context, *InvokeEvent)
	OnInvokeSettle func(context.Context, *InvokeEvent)
	OnSpawn        func(context.Context, *SpawnEvent)
	OnSignal       func(context.Context, *SignalEvent)
}
