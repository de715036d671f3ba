package domain

import "slices"

// Status is the lifecycle status of an interpreter.
type Status string

const (
	StatusActive  Status = "active"  // started and processing events
	StatusDone    Status = "done"    // a top-level final state was reached
	StatusErrored Status = "errored" // a fault or an unhandled invocation error
	StatusStopped Status = "stopped" // stopped by the caller or by a parent
)

// IsTerminal reports whether the status accepts no more events.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusErrored || s == StatusStopped
}

// Snapshot is the observable state of one interpreter after a stable macrostep.
type Snapshot struct {
	Machine string `json:"machine"`
	ID      string `json:"id"`

	// Configuration is the sorted set of active state paths.
	Configuration []string `json:"configuration"`
	Context       Context  `json:"context"`
	Status        Status   `json:"status"`

	// Output is computed when the interpreter reaches StatusDone.
	Output any `json:"output,omitempty"`

	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// Matches reports whether path is in the configuration.
func (s Snapshot) Matches(path string) bool {
	_, ok := slices.BinarySearch(s.Configuration, path)
	return ok
}

// Leaves returns the active paths that have no active descendant.
func (s Snapshot) Leaves() []string {
	var out []string
	for i, p := range s.Configuration {
		leaf := true
		for j, q := range s.Configuration {
			if i != j && IsPathWithin(q, p) {
				leaf = false
				break
			}
		}
		if leaf {
			out = append(out, p)
		}
	}
	return out
}
