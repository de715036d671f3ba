package domain

// Prefixes of the event types generated by the runtime.
const (
	PrefixDoneInvoke  = "done.invoke."
	PrefixErrorInvoke = "error.invoke."
	PrefixDoneState   = "done.state."
	PrefixChild       = "child."
	PrefixDoneActor   = "done.actor."
	PrefixErrorActor  = "error.actor."

	// EventInit is the type of the event seen by actions run while entering the initial configuration.
	EventInit = "arbor.init"

	// Wildcard matches every event type (transitions) or every signal type (subscriptions).
	Wildcard = "*"

	// PathSeparator joins node IDs into a state path.
	PathSeparator = "."
)

// DoneInvoke is the event type delivered when the invocation with the given ID resolves.
func DoneInvoke(invokeID string) string { return PrefixDoneInvoke + invokeID }

// ErrorInvoke is the event type delivered when the invocation with the given ID fails.
func ErrorInvoke(invokeID string) string { return PrefixErrorInvoke + invokeID }

// DoneState is the event type raised when the compound or parallel node at path completes.
func DoneState(path string) string { return PrefixDoneState + path }

// ChildSignal is the event type a parent receives when child actorID emits signalType.
func ChildSignal(actorID, signalType string) string {
	return PrefixChild + actorID + PathSeparator + signalType
}

// DoneActor is the event type a parent receives when child actorID reaches a top-level final state.
func DoneActor(actorID string) string { return PrefixDoneActor + actorID }

// ErrorActor is the event type a parent receives when child actorID becomes errored.
func ErrorActor(actorID string) string { return PrefixErrorActor + actorID }
