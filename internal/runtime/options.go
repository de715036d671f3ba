package runtime

import (
	"log/slog"

	"github.com/aretw0/arbor/pkg/domain"
)

// DefaultMaxMicrosteps bounds the microsteps of a single macrostep.
const DefaultMaxMicrosteps = 1000

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interpreter) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks. Spawned children inherit them.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(i *Interpreter) {
		i.hooks = hooks
	}
}

// WithID sets the instance ID. A random UUID is used by default.
func WithID(id string) Option {
	return func(i *Interpreter) {
		if id != "" {
			i.id = id
		}
	}
}

// WithMaxMicrosteps bounds the microsteps of one macrostep. Exceeding it faults the
// instance with ErrLivelock.
func WithMaxMicrosteps(n int) Option {
	return func(i *Interpreter) {
		if n > 0 {
			i.maxMicrosteps = n
		}
	}
}
