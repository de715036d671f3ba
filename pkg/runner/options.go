package runner

import (
	"log/slog"
	"time"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithSource sets where events are read from.
func WithSource(src EventSource) Option {
	return func(r *Runner) {
		r.Source = src
	}
}

// WithObserver sets who is told about snapshots and signals.
func WithObserver(obs Observer) Option {
	return func(r *Runner) {
		r.Observer = obs
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// WithWait sets how long the runner waits for the machine to terminate once the
// source is exhausted. Pending invocations keep running meanwhile. Zero stops the
// machine right away.
func WithWait(d time.Duration) Option {
	return func(r *Runner) {
		r.Wait = d
	}
}
