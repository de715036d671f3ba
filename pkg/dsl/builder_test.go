package dsl_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Structure(t *testing.T) {
	b := dsl.New("review").Context("approved", false)

	b.Add("drafting").
		On("SUBMIT", "reviewing").
		Entry(domain.Set("draft", true))

	reviewing := b.Add("reviewing").Parallel()
	reviewing.Add("style").Add("pending").On("OK", "ok").Up().Add("ok").Terminal()
	reviewing.Add("facts").Add("pending").On("OK", "ok").Up().Add("ok").Terminal()
	reviewing.Done("published")

	b.Add("published").Terminal()

	// Add returns the existing builder.
	assert.Same(t, b.Add("drafting"), b.Add("drafting"))

	m, err := b.Build()
	require.NoError(t, err)

	n, ok := m.Node("reviewing.style.ok")
	require.True(t, ok)
	assert.Equal(t, domain.KindFinal, n.Kind)

	n, ok = m.Node("reviewing")
	require.True(t, ok)
	assert.Equal(t, domain.KindParallel, n.Kind)
	assert.Len(t, n.OnDone, 1)

	ctx, err := m.InitialContext(map[string]any{"topic": "go"})
	require.NoError(t, err)
	assert.Equal(t, domain.Context{"approved": false, "topic": "go"}, ctx)
}

func TestBuilder_InvalidMachine(t *testing.T) {
	b := dsl.New("broken")
	b.Add("a").On("GO", "nowhere")

	_, err := b.Build()
	require.Error(t, err)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.HasCode(domain.ErrCodeInvalidTarget))

	assert.Panics(t, func() { b.MustBuild() })
}

func TestBuilder_RunsInvokeFlow(t *testing.T) {
	var calls atomic.Int32
	flaky := func(context.Context, any) (any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("timeout")
		}
		return map[string]any{"text": "done"}, nil
	}

	b := dsl.New("assistant")
	b.Add("idle").On("ASK", "thinking")
	b.Add("thinking").
		Invoke(flaky).
		ID("llm").
		OnDone(domain.To("answered").Do(domain.Assign(func(_ domain.Context, ev domain.Event) (map[string]any, error) {
			var out struct{ Text string }
			if err := ev.DecodeOutput(&out); err != nil {
				return nil, err
			}
			return map[string]any{"answer": out.Text}, nil
		}))).
		Error("idle").
		End().
		Meta("label", "Thinking")
	b.Add("answered").Terminal()
	b.Output(func(ctx domain.Context) any { return ctx["answer"] })

	m := b.MustBuild()
	i := runtime.New(m, nil)
	t.Cleanup(i.Stop)
	_, err := i.Start(context.Background())
	require.NoError(t, err)

	_, err = i.Send(context.Background(), domain.NewEvent("ASK", nil))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return i.Snapshot().Matches("idle") && calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err = i.Send(context.Background(), domain.NewEvent("ASK", nil))
	require.NoError(t, err)
	<-i.Done()

	snap := i.Snapshot()
	assert.Equal(t, domain.StatusDone, snap.Status)
	assert.Equal(t, "done", snap.Output)
}

func TestBuilder_Branch(t *testing.T) {
	b := dsl.New("router").Context("score", 9)
	b.Add("route").
		Branch("high", func(ctx domain.Context, _ domain.Event) (bool, error) { return ctx["score"].(int) > 5, nil }, "escalate").
		Go("archive")
	b.Add("escalate")
	b.Add("archive")

	i := runtime.New(b.MustBuild(), nil)
	t.Cleanup(i.Stop)
	snap, err := i.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"escalate"}, snap.Configuration)
}
