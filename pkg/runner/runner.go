package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
)

// Runner feeds events from a source to an interpreter until the source is exhausted
// or the interpreter reaches a terminal status.
type Runner struct {
	Source   EventSource
	Observer Observer
	Logger   *slog.Logger
	Wait     time.Duration
}

// NewRunner creates a runner. Without a source the runner only starts the machine
// and waits for it.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{Logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	if r.Logger == nil {
		r.Logger = logging.NewNop()
	}
	return r
}

// Run starts i, sends every event of the source and returns the final snapshot.
// The interpreter is stopped when Run returns. An errored machine returns its error.
func (r *Runner) Run(ctx context.Context, i Interpreter) (domain.Snapshot, error) {
	if r.Observer != nil {
		defer i.Subscribe(func(_ context.Context, snap domain.Snapshot) { r.Observer.Snapshot(snap) })()
		defer i.On(domain.Wildcard, func(_ context.Context, sig domain.Signal) { r.Observer.Signal(sig) })()
	}
	defer i.Stop()

	if _, err := i.Start(ctx); err != nil && !isTerminal(err) {
		return i.Snapshot(), fmt.Errorf("failed to start machine: %w", err)
	}

	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()
	events, readErr := r.pump(readCtx)

	for {
		select {
		case <-ctx.Done():
			snap, _ := r.result(i)
			return snap, ctx.Err()

		case <-i.Done():
			return r.result(i)

		case ev := <-events:
			r.Logger.Debug("sending event", "type", ev.Type)
			if _, err := i.Send(ctx, ev); err != nil {
				if errors.Is(err, ctx.Err()) {
					continue
				}
				// Faults terminate the interpreter; Done reports the final snapshot.
				r.Logger.Warn("event failed", "type", ev.Type, "err", err)
			}

		case err := <-readErr:
			if !errors.Is(err, io.EOF) {
				snap, _ := r.result(i)
				return snap, fmt.Errorf("failed to read event: %w", err)
			}
			return r.drain(ctx, i)
		}
	}
}

// pump reads the source on its own goroutine. A blocking read (a terminal) cannot be
// interrupted, so the goroutine may outlive Run until the next line arrives.
func (r *Runner) pump(ctx context.Context) (<-chan domain.Event, <-chan error) {
	events := make(chan domain.Event)
	errs := make(chan error, 1)
	if r.Source == nil {
		errs <- io.EOF
		return events, errs
	}

	go func() {
		for {
			ev, err := r.Source.Next(ctx)
			if errors.Is(err, ErrInvalidEvent) {
				r.Logger.Warn("skipping event", "err", err)
				continue
			}
			if err != nil {
				errs <- err
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, errs
}

func (r *Runner) drain(ctx context.Context, i Interpreter) (domain.Snapshot, error) {
	if r.Wait <= 0 {
		return r.result(i)
	}

	timer := time.NewTimer(r.Wait)
	defer timer.Stop()
	select {
	case <-i.Done():
	case <-timer.C:
		r.Logger.Info("machine still running after input ended, stopping", "wait", r.Wait)
	case <-ctx.Done():
		snap, _ := r.result(i)
		return snap, ctx.Err()
	}
	return r.result(i)
}

// result stops i and waits until every observer saw the final snapshot.
func (r *Runner) result(i Interpreter) (domain.Snapshot, error) {
	i.Stop()
	<-i.Done()
	snap := i.Snapshot()
	if snap.Status != domain.StatusErrored {
		return snap, nil
	}
	if snap.Err != nil {
		return snap, snap.Err
	}
	return snap, errors.New(snap.Error)
}

func isTerminal(err error) bool {
	var fault *domain.FaultError
	return errors.Is(err, domain.ErrStopped) || errors.As(err, &fault)
}
