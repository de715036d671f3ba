package runner_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu        sync.Mutex
	snapshots []domain.Snapshot
	signals   []domain.Signal
}

func (r *recorder) Snapshot(snap domain.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snap)
}

func (r *recorder) Signal(sig domain.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, sig)
}

func (r *recorder) last() domain.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots[len(r.snapshots)-1]
}

// taskMachine waits for TASK, runs a service upper-casing the payload and finishes
// with the result as output.
func taskMachine(t *testing.T) *domain.Machine {
	t.Helper()
	upper := func(_ context.Context, input any) (any, error) {
		s, _ := input.(string)
		return strings.ToUpper(s), nil
	}
	m, err := domain.NewMachine(&domain.Node{ID: "task", Children: []*domain.Node{
		{ID: "idle", On: []*domain.Transition{domain.On("TASK", "working")}},
		{
			ID:    "working",
			Entry: []domain.Action{domain.EmitStatic("progress", "started")},
			Invoke: &domain.Invoke{
				ID:    "upper",
				Src:   upper,
				Input: func(_ domain.Context, ev domain.Event) any { return ev.Payload },
				OnDone: []*domain.Transition{domain.To("done").Do(domain.Assign(func(_ domain.Context, ev domain.Event) (map[string]any, error) {
					return map[string]any{"result": ev.Output}, nil
				}))},
			},
		},
		{ID: "done", Kind: domain.KindFinal},
	}}, domain.WithOutput(func(ctx domain.Context) any { return ctx["result"] }))
	require.NoError(t, err)
	return m
}

func TestRun_Completes(t *testing.T) {
	rec := &recorder{}
	r := runner.NewRunner(
		runner.WithSource(runner.NewTextSource(strings.NewReader("# start the task\n\nTASK write docs\n"))),
		runner.WithObserver(rec),
		runner.WithWait(2*time.Second),
	)

	snap, err := r.Run(context.Background(), runtime.New(taskMachine(t), nil))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, snap.Status)
	assert.Equal(t, "WRITE DOCS", snap.Output)

	assert.Equal(t, domain.StatusDone, rec.last().Status, "the observer sees the final snapshot")
	require.Len(t, rec.signals, 1)
	assert.Equal(t, "progress", rec.signals[0].Type)
}

func TestRun_StopsWhenInputEnds(t *testing.T) {
	rec := &recorder{}
	r := runner.NewRunner(
		runner.WithSource(runner.NewTextSource(strings.NewReader("NOISE\n"))),
		runner.WithObserver(rec),
	)

	snap, err := r.Run(context.Background(), runtime.New(taskMachine(t), nil))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, snap.Status)
	assert.Equal(t, []string{"idle"}, snap.Configuration)
	assert.Equal(t, domain.StatusStopped, rec.last().Status)
}

func TestRun_WaitTimesOut(t *testing.T) {
	r := runner.NewRunner(runner.WithWait(20 * time.Millisecond))

	start := time.Now()
	snap, err := r.Run(context.Background(), runtime.New(taskMachine(t), nil))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, snap.Status)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestRun_Errored(t *testing.T) {
	boom := domain.Do(func(domain.Context, domain.Event) error { return errors.New("boom") }).Named("explode")
	m, err := domain.NewMachine(&domain.Node{ID: "fragile", Children: []*domain.Node{
		{ID: "idle", On: []*domain.Transition{domain.On("GO", "next").Do(boom)}},
		{ID: "next"},
	}})
	require.NoError(t, err)

	r := runner.NewRunner(runner.WithSource(runner.NewTextSource(strings.NewReader("GO\nGO\n"))))
	snap, err := r.Run(context.Background(), runtime.New(m, nil))

	var fault *domain.FaultError
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "explode", fault.Action)
	assert.Equal(t, domain.StatusErrored, snap.Status)
	assert.Equal(t, []string{"idle"}, snap.Configuration)
}

func TestRun_ContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r := runner.NewRunner(runner.WithSource(runner.NewTextSource(pr)))

	errCh := make(chan error, 1)
	var snap domain.Snapshot
	go func() {
		var err error
		snap, err = r.Run(ctx, runtime.New(taskMachine(t), nil))
		errCh <- err
	}()

	_, err := pw.Write([]byte("TASK\n"))
	require.NoError(t, err)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, snap.Status.IsTerminal())
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not return after cancel")
	}
}

func TestRun_SkipsInvalidEvents(t *testing.T) {
	input := "{not json}\n{\"payload\": 1}\n{\"type\":\"TASK\",\"payload\":\"ok\"}\n"
	r := runner.NewRunner(
		runner.WithSource(runner.NewJSONSource(strings.NewReader(input))),
		runner.WithWait(2*time.Second),
	)

	snap, err := r.Run(context.Background(), runtime.New(taskMachine(t), nil))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, snap.Status)
	assert.Equal(t, "OK", snap.Output)
}
