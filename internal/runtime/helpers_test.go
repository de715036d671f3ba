package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/require"
)

func mustMachine(t *testing.T, root *domain.Node, opts ...domain.MachineOption) *domain.Machine {
	t.Helper()
	m, err := domain.NewMachine(root, opts...)
	require.NoError(t, err)
	return m
}

func startInterpreter(t *testing.T, m *domain.Machine, input any, opts ...runtime.Option) (*runtime.Interpreter, domain.Snapshot) {
	t.Helper()
	i := runtime.New(m, input, opts...)
	t.Cleanup(i.Stop)
	snap, err := i.Start(context.Background())
	require.NoError(t, err)
	return i, snap
}

func send(t *testing.T, i *runtime.Interpreter, eventType string, payload any) domain.Snapshot {
	t.Helper()
	snap, err := i.Send(context.Background(), domain.NewEvent(eventType, payload))
	require.NoError(t, err)
	return snap
}

func waitFor(t *testing.T, i *runtime.Interpreter, cond func(domain.Snapshot) bool) domain.Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return cond(i.Snapshot()) }, 2*time.Second, 5*time.Millisecond)
	return i.Snapshot()
}

// assertStructural checks that every active compound state has exactly one active
// child and every active parallel state has all of its regions active.
func assertStructural(t *testing.T, m *domain.Machine, snap domain.Snapshot) {
	t.Helper()
	active := func(n *domain.Node) bool { return n.IsRoot() || snap.Matches(n.Path()) }

	check := func(n *domain.Node) {
		if !active(n) {
			return
		}
		count := 0
		for _, c := range n.Children {
			if snap.Matches(c.Path()) {
				count++
			}
		}
		switch n.Kind {
		case domain.KindCompound:
			require.Equal(t, 1, count, "compound %q must have exactly one active child in %v", n.Path(), snap.Configuration)
		case domain.KindParallel:
			require.Equal(t, len(n.Children), count, "parallel %q must have all regions active in %v", n.Path(), snap.Configuration)
		default:
			require.Zero(t, count)
		}
	}
	check(m.Root)
	for _, n := range m.Nodes() {
		check(n)
		if snap.Matches(n.Path()) && !n.Parent().IsRoot() {
			require.True(t, snap.Matches(n.Parent().Path()), "active %q has inactive parent", n.Path())
		}
	}
}

func counter(key string) domain.Action {
	return domain.Assign(func(ctx domain.Context, _ domain.Event) (map[string]any, error) {
		n, _ := ctx[key].(int)
		return map[string]any{key: n + 1}, nil
	}).Named("inc:" + key)
}

func record(log *[]string, entry string) domain.Action {
	return domain.Do(func(domain.Context, domain.Event) error {
		*log = append(*log, entry)
		return nil
	}).Named(entry)
}
