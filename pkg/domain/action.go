package domain

import (
	"context"
	"fmt"
)

// ActionKind tags the variant held by an Action.
type ActionKind string

const (
	ActionAssign    ActionKind = "assign"
	ActionEmit      ActionKind = "emit"
	ActionRaise     ActionKind = "raise"
	ActionSpawn     ActionKind = "spawn"
	ActionSendTo    ActionKind = "send_to"
	ActionForward   ActionKind = "forward"
	ActionStopChild ActionKind = "stop_child"
	ActionDo        ActionKind = "do"
)

// AssignFunc returns a patch merged into the context at the end of the microstep.
type AssignFunc func(ctx Context, ev Event) (map[string]any, error)

// EmitFunc builds a side-channel signal.
type EmitFunc func(ctx Context, ev Event) (Signal, error)

// EventFunc builds an event to raise internally or send to a child.
type EventFunc func(ctx Context, ev Event) (Event, error)

// EffectFunc is a plain side effect. It must not block.
type EffectFunc func(ctx Context, ev Event) error

// Service is the asynchronous task bound to a state activation by an Invoke.
// The context is cancelled when the owning state is exited.
type Service func(ctx context.Context, input any) (any, error)

// Action is a tagged variant. Only the fields relevant to Kind are set;
// use the constructors below.
type Action struct {
	Kind ActionKind
	// Name identifies the action in faults, logs and rendered graphs.
	Name string

	Assign AssignFunc
	Emit   EmitFunc
	Event  EventFunc
	Effect EffectFunc
	Spawn  *SpawnSpec

	// Target is the child actor ID for send_to, forward and stop_child.
	Target string
}

// SpawnSpec describes a child machine started by a spawn action.
type SpawnSpec struct {
	// ID of the child actor. Generated when empty.
	ID      string
	Machine *Machine
	// Input builds the child's input. Defaults to nil.
	Input func(ctx Context, ev Event) any
	// SaveTo, when set, is the context key receiving the actor ID.
	SaveTo string
	// AutoForward delivers every external event processed by the parent to the child.
	AutoForward bool
	// Relay re-emits every child signal on the parent's bus.
	Relay bool
}

// Assign returns an action that patches the context.
func Assign(fn AssignFunc) Action {
	return Action{Kind: ActionAssign, Name: "assign", Assign: fn}
}

// Set returns an assign action writing a fixed value.
func Set(key string, value any) Action {
	return Action{Kind: ActionAssign, Name: "set:" + key, Assign: func(Context, Event) (map[string]any, error) {
		return map[string]any{key: value}, nil
	}}
}

// Emit returns an action publishing a computed signal on the bus.
func Emit(fn EmitFunc) Action {
	return Action{Kind: ActionEmit, Name: "emit", Emit: fn}
}

// EmitStatic returns an action publishing a fixed signal on the bus.
func EmitStatic(signalType string, data any) Action {
	return Action{Kind: ActionEmit, Name: "emit:" + signalType, Emit: func(Context, Event) (Signal, error) {
		return Signal{Type: signalType, Data: data}, nil
	}}
}

// Raise returns an action queueing an internal event, processed within the same macrostep.
func Raise(fn EventFunc) Action {
	return Action{Kind: ActionRaise, Name: "raise", Event: fn}
}

// RaiseStatic raises an internal event of the given type.
func RaiseStatic(eventType string) Action {
	return Action{Kind: ActionRaise, Name: "raise:" + eventType, Event: func(Context, Event) (Event, error) {
		return Event{Type: eventType}, nil
	}}
}

// SpawnActor returns an action starting a child machine.
func SpawnActor(spec SpawnSpec) Action {
	name := "spawn"
	if spec.ID != "" {
		name += ":" + spec.ID
	}
	return Action{Kind: ActionSpawn, Name: name, Spawn: &spec}
}

// SendTo returns an action posting a computed event to a live child.
func SendTo(actorID string, fn EventFunc) Action {
	return Action{Kind: ActionSendTo, Name: "send_to:" + actorID, Target: actorID, Event: fn}
}

// Forward returns an action posting the current event to a live child.
func Forward(actorID string) Action {
	return Action{Kind: ActionForward, Name: "forward:" + actorID, Target: actorID}
}

// StopChild returns an action stopping a live child.
func StopChild(actorID string) Action {
	return Action{Kind: ActionStopChild, Name: "stop:" + actorID, Target: actorID}
}

// Do returns an action running a plain effect.
func Do(fn EffectFunc) Action {
	return Action{Kind: ActionDo, Name: "do", Effect: fn}
}

// Named returns a copy of the action with the given name.
func (a Action) Named(name string) Action {
	a.Name = name
	return a
}

// check reports a missing payload for the action's kind.
func (a Action) check() error {
	ok := true
	switch a.Kind {
	case ActionAssign:
		ok = a.Assign != nil
	case ActionEmit:
		ok = a.Emit != nil
	case ActionRaise:
		ok = a.Event != nil
	case ActionSpawn:
		ok = a.Spawn != nil
	case ActionSendTo:
		ok = a.Event != nil && a.Target != ""
	case ActionForward, ActionStopChild:
		ok = a.Target != ""
	case ActionDo:
		ok = a.Effect != nil
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	if !ok {
		return fmt.Errorf("action %q of kind %s is incomplete", a.Name, a.Kind)
	}
	return nil
}
