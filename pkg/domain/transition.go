package domain

import "strings"

// Guard is a pure predicate over the context and the triggering event.
type Guard func(ctx Context, ev Event) (bool, error)

// Transition is a rule that moves the machine from its source node to its targets.
type Transition struct {
	// Event is an exact event type, "*" for any event, or a prefix wildcard such as "child.worker.*".
	// It is ignored for Always and OnDone transitions.
	Event string `json:"event,omitempty" yaml:"event,omitempty"`

	Guard     Guard  `json:"-" yaml:"-"`
	GuardName string `json:"guard,omitempty" yaml:"guard,omitempty"`

	Actions []Action `json:"-" yaml:"-"`

	// Targets are resolved against the source node:
	// "#a.b" is absolute, ".x" is a child of the source, "x" is a sibling searched outward.
	// No targets makes the transition targetless.
	Targets []string `json:"targets,omitempty" yaml:"targets,omitempty"`

	// Reenter forces the source to be exited and re-entered even when every target
	// is a descendant of it.
	Reenter bool `json:"reenter,omitempty" yaml:"reenter,omitempty"`

	source   *Node
	resolved []*Node
}

// On starts a transition on the given event type.
func On(event string, targets ...string) *Transition {
	return &Transition{Event: event, Targets: targets}
}

// Always starts an eventless transition.
func Always(targets ...string) *Transition {
	return &Transition{Targets: targets}
}

// To starts a transition without an event descriptor, for OnDone and invoke handlers.
func To(targets ...string) *Transition {
	return &Transition{Targets: targets}
}

// If sets the guard.
func (t *Transition) If(g Guard) *Transition {
	t.Guard = g
	return t
}

// Do appends actions.
func (t *Transition) Do(actions ...Action) *Transition {
	t.Actions = append(t.Actions, actions...)
	return t
}

// Source returns the node declaring the transition. Only valid after NewMachine.
func (t *Transition) Source() *Node { return t.source }

// TargetNodes returns the resolved targets. Only valid after NewMachine.
func (t *Transition) TargetNodes() []*Node { return t.resolved }

// IsTargetless reports whether the transition only runs actions.
func (t *Transition) IsTargetless() bool { return len(t.Targets) == 0 }

// Matches reports whether the transition's event descriptor accepts eventType.
func (t *Transition) Matches(eventType string) bool {
	return MatchEvent(t.Event, eventType)
}

// MatchEvent matches an event descriptor ("*", "prefix.*" or an exact type) against an event type.
func MatchEvent(descriptor, eventType string) bool {
	switch {
	case descriptor == Wildcard:
		return true
	case strings.HasSuffix(descriptor, ".*"):
		prefix := strings.TrimSuffix(descriptor, "*")
		return strings.HasPrefix(eventType, prefix)
	default:
		return descriptor == eventType
	}
}
