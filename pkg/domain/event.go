package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// EventKind tells where an event came from.
type EventKind string

const (
	EventExternal        EventKind = "external"
	EventInternal        EventKind = "internal"
	EventInvocationDone  EventKind = "invocation_done"
	EventInvocationError EventKind = "invocation_error"
	EventChildEmitted    EventKind = "child_emitted"
	EventChildDone       EventKind = "child_done"
	EventChildError      EventKind = "child_error"
)

// Event triggers transitions.
type Event struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload,omitempty"`
	Kind    EventKind `json:"kind,omitempty"`

	// Source is the invoke or actor ID for generated events.
	Source string `json:"source,omitempty"`
	// Instance is the activation that started the invocation, or the spawn
	// generation of the actor.
	Instance uint64 `json:"instance,omitempty"`
	// Output carries the service result or the child's output.
	Output any   `json:"output,omitempty"`
	Err    error `json:"-"`
}

// NewEvent builds an external event.
func NewEvent(eventType string, payload any) Event {
	return Event{Type: eventType, Payload: payload, Kind: EventExternal}
}

// IsExternal reports whether the event was sent by a caller. Events without a kind
// are treated as external.
func (e Event) IsExternal() bool {
	return e.Kind == "" || e.Kind == EventExternal
}

// DecodePayload decodes the event payload into out, a pointer to a struct or map.
func (e Event) DecodePayload(out any) error {
	return decodeInto(e.Payload, out)
}

// DecodeOutput decodes the event output into out.
func (e Event) DecodeOutput(out any) error {
	return decodeInto(e.Output, out)
}

func decodeInto(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("failed to decode event data: %w", err)
	}
	return nil
}

// Signal is a side-channel message published on the event bus. Signals never
// trigger transitions on the emitting interpreter.
type Signal struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
	// Source is the ID of the emitting interpreter or actor.
	Source string `json:"source,omitempty"`
}
