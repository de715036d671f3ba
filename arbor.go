package arbor

import (
	"github.com/aretw0/arbor/internal/compiler"
	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/registry"
)

// Version is the release of the module. Overridden at build time with
// -ldflags "-X github.com/aretw0/arbor.Version=...".
var Version = "0.1.0-dev"

type (
	// Interpreter runs one instance of a machine.
	Interpreter = runtime.Interpreter
	// Option configures an Interpreter.
	Option = runtime.Option
	// SnapshotListener receives the snapshot of every macrostep.
	SnapshotListener = runtime.SnapshotListener
	// SignalHandler receives emitted signals.
	SignalHandler = runtime.SignalHandler
	// ActorRef is a handle on a spawned child machine.
	ActorRef = runtime.ActorRef
)

var (
	// WithLogger sets the structured logger. Children log with machine and actor attributes.
	WithLogger = runtime.WithLogger
	// WithLifecycleHooks registers observability hooks, inherited by children.
	WithLifecycleHooks = runtime.WithLifecycleHooks
	// WithID sets the instance ID. Defaults to a random UUID.
	WithID = runtime.WithID
	// WithMaxMicrosteps bounds a macrostep before it faults with domain.ErrLivelock.
	WithMaxMicrosteps = runtime.WithMaxMicrosteps
)

// New creates an interpreter for m. input is handed to the machine's context factory.
// The interpreter does nothing until Start.
func New(m *domain.Machine, input any, opts ...Option) *Interpreter {
	return runtime.New(m, input, opts...)
}

// Parse compiles a YAML or JSON machine document. Guard, action, service, input,
// output and machine names are resolved against reg, which may be nil when the
// document only uses built-in actions.
func Parse(data []byte, reg *registry.Registry) (*domain.Machine, error) {
	return compiler.New(reg).Compile(data)
}

// ParseFile reads and compiles the machine document at path.
func ParseFile(path string, reg *registry.Registry) (*domain.Machine, error) {
	return compiler.New(reg).CompileFile(path)
}
