package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/arbor/pkg/domain"
)

// Combine fans every hook out to each set, in order. Nil callbacks are skipped.
func Combine(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		out.OnStateEnter = chain(out.OnStateEnter, h.OnStateEnter)
		out.OnStateExit = chain(out.OnStateExit, h.OnStateExit)
		out.OnTransition = chain(out.OnTransition, h.OnTransition)
		out.OnInvokeStart = chain(out.OnInvokeStart, h.OnInvokeStart)
		out.OnInvokeSettle = chain(out.OnInvokeSettle, h.OnInvokeSettle)
		out.OnSpawn = chain(out.OnSpawn, h.OnSpawn)
		out.OnSignal = chain(out.OnSignal, h.OnSignal)
	}
	return out
}

func chain[E any](a, b func(context.Context, *E)) func(context.Context, *E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e *E) {
		a(ctx, e)
		b(ctx, e)
	}
}

// LogHooks returns hooks writing one structured record per lifecycle event.
// State and transition records are logged at Debug, the rest at Info.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateEnter: func(ctx context.Context, e *domain.StateEvent) {
			logger.DebugContext(ctx, "state_enter", "machine", e.Machine, "instance", e.InstanceID, "state", e.Path, "kind", e.Kind)
		},
		OnStateExit: func(ctx context.Context, e *domain.StateEvent) {
			logger.DebugContext(ctx, "state_exit", "machine", e.Machine, "instance", e.InstanceID, "state", e.Path)
		},
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.DebugContext(ctx, "transition", "machine", e.Machine, "instance", e.InstanceID, "source", e.Source, "targets", e.Targets, "event", e.Event)
		},
		OnInvokeStart: func(ctx context.Context, e *domain.InvokeEvent) {
			logger.InfoContext(ctx, "invoke_start", "machine", e.Machine, "instance", e.InstanceID, "invoke", e.InvokeID, "state", e.State)
		},
		OnInvokeSettle: func(ctx context.Context, e *domain.InvokeEvent) {
			attrs := []any{"machine", e.Machine, "instance", e.InstanceID, "invoke", e.InvokeID, "duration", e.Duration, "stale", e.Stale}
			if e.Err != nil {
				attrs = append(attrs, "err", e.Err)
			}
			logger.InfoContext(ctx, "invoke_settle", attrs...)
		},
		OnSpawn: func(ctx context.Context, e *domain.SpawnEvent) {
			logger.InfoContext(ctx, "spawn", "machine", e.Machine, "instance", e.InstanceID, "actor", e.ActorID, "child_machine", e.ChildMachine)
		},
		OnSignal: func(ctx context.Context, e *domain.SignalEvent) {
			logger.InfoContext(ctx, "signal", "machine", e.Machine, "instance", e.InstanceID, "signal", e.Signal.Type)
		},
	}
}
