package runner

import (
	"context"
	"errors"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
)

// ErrInvalidEvent marks a line that could not be turned into an event.
// The runner reports it and keeps reading.
var ErrInvalidEvent = errors.New("invalid event")

// EventSource produces the events fed to the interpreter.
// Next returns io.EOF once the stream is exhausted.
type EventSource interface {
	Next(ctx context.Context) (domain.Event, error)
}

// Observer is told about every snapshot and signal of the running interpreter.
// Calls come from the interpreter's bus goroutine, one at a time.
type Observer interface {
	Snapshot(snap domain.Snapshot)
	Signal(sig domain.Signal)
}

// Interpreter is the part of *runtime.Interpreter the runner drives.
type Interpreter interface {
	Start(ctx context.Context) (domain.Snapshot, error)
	Send(ctx context.Context, ev domain.Event) (domain.Snapshot, error)
	Subscribe(fn runtime.SnapshotListener) func()
	On(signalType string, fn runtime.SignalHandler) func()
	Snapshot() domain.Snapshot
	Done() <-chan struct{}
	Stop()
}

var _ Interpreter = (*runtime.Interpreter)(nil)

// Observers fans snapshots and signals out to several observers, in order.
type Observers []Observer

// Snapshot implements Observer.
func (o Observers) Snapshot(snap domain.Snapshot) {
	for _, obs := range o {
		obs.Snapshot(snap)
	}
}

// Signal implements Observer.
func (o Observers) Signal(sig domain.Signal) {
	for _, obs := range o {
		obs.Signal(sig)
	}
}
