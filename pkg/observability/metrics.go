package observability

import (
	"context"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Invocation outcomes reported by the arbor_invocations_total counter.
const (
	OutcomeDone  = "done"
	OutcomeError = "error"
	OutcomeStale = "stale"
)

// Metrics exposes interpreter activity as Prometheus collectors.
type Metrics struct {
	stateEntries   *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	invocations    *prometheus.CounterVec
	invokeDuration *prometheus.HistogramVec
	spawns         *prometheus.CounterVec
	signals        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		stateEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbor_state_entries_total",
				Help: "Total number of state activations",
			},
			[]string{"machine", "state"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbor_transitions_total",
				Help: "Total number of transitions taken",
			},
			[]string{"machine", "source", "event"},
		),
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbor_invocations_total",
				Help: "Total number of settled invocations by outcome",
			},
			[]string{"machine", "invoke", "outcome"},
		),
		invokeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arbor_invocation_duration_seconds",
				Help:    "Duration of invocations, from state entry to settlement",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"machine", "invoke"},
		),
		spawns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbor_actors_spawned_total",
				Help: "Total number of child actors spawned",
			},
			[]string{"machine", "child_machine"},
		),
		signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbor_signals_total",
				Help: "Total number of signals emitted",
			},
			[]string{"machine", "signal"},
		),
	}

	for _, c := range []prometheus.Collector{m.stateEntries, m.transitions, m.invocations, m.invokeDuration, m.spawns, m.signals} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register arbor metrics: %w", err)
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks recording into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateEnter: func(_ context.Context, e *domain.StateEvent) {
			m.stateEntries.WithLabelValues(e.Machine, e.Path).Inc()
		},
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) {
			m.transitions.WithLabelValues(e.Machine, e.Source, e.Event).Inc()
		},
		OnInvokeSettle: func(_ context.Context, e *domain.InvokeEvent) {
			outcome := OutcomeDone
			switch {
			case e.Stale:
				outcome = OutcomeStale
			case e.Err != nil:
				outcome = OutcomeError
			}
			m.invocations.WithLabelValues(e.Machine, e.InvokeID, outcome).Inc()
			if !e.Stale {
				m.invokeDuration.WithLabelValues(e.Machine, e.InvokeID).Observe(e.Duration.Seconds())
			}
		},
		OnSpawn: func(_ context.Context, e *domain.SpawnEvent) {
			m.spawns.WithLabelValues(e.Machine, e.ChildMachine).Inc()
		},
		OnSignal: func(_ context.Context, e *domain.SignalEvent) {
			m.signals.WithLabelValues(e.Machine, e.Signal.Type).Inc()
		},
	}
}
