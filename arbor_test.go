package arbor_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/completion"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/dsl"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const approvalDoc = `
id: approval
context:
  approved: false
output: answer
states:
  drafting:
    invoke:
      id: writer
      src: draft
      input: topic
      on_done:
        target: review
        actions: [save_draft]
      on_error:
        target: failed
  review:
    entry:
      - emit: review_requested
        data: {needs: approval}
    on:
      APPROVE:
        target: published
        actions:
          - assign: {approved: true}
      REJECT: drafting
  published:
    type: final
  failed:
    type: final
`

func approvalRegistry(draft domain.Service) *registry.Registry {
	r := registry.NewRegistry()
	r.RegisterService("draft", draft)
	r.RegisterInput("topic", func(ctx domain.Context, _ domain.Event) any { return ctx["topic"] })
	r.RegisterAction("save_draft", domain.Assign(func(_ domain.Context, ev domain.Event) (map[string]any, error) {
		return map[string]any{"draft": ev.Output}, nil
	}))
	r.RegisterOutput("answer", func(ctx domain.Context) any { return ctx["draft"] })
	return r
}

func waitDone(t *testing.T, i *arbor.Interpreter) domain.Snapshot {
	t.Helper()
	select {
	case <-i.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("interpreter did not finish")
	}
	return i.Snapshot()
}

func TestParse_ToolApproval(t *testing.T) {
	var drafts atomic.Int32
	draft := func(_ context.Context, input any) (any, error) {
		n := drafts.Add(1)
		if n == 1 {
			return "first draft about " + input.(string), nil
		}
		return "second draft about " + input.(string), nil
	}
	m, err := arbor.Parse([]byte(approvalDoc), approvalRegistry(draft))
	require.NoError(t, err)

	i := arbor.New(m, map[string]any{"topic": "go"}, arbor.WithID("approval-1"))
	t.Cleanup(i.Stop)

	requested := make(chan domain.Signal, 2)
	i.On("review_requested", func(_ context.Context, sig domain.Signal) { requested <- sig })

	snap, err := i.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "approval-1", snap.ID)
	assert.Equal(t, []string{"drafting"}, snap.Configuration)

	require.Eventually(t, func() bool { return i.Snapshot().Matches("review") }, time.Second, 5*time.Millisecond)
	sig := <-requested
	assert.Equal(t, "approval-1", sig.Source)
	assert.Equal(t, map[string]any{"needs": "approval"}, sig.Data)

	_, err = i.Send(context.Background(), domain.NewEvent("REJECT", nil))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return i.Snapshot().Matches("review") }, time.Second, 5*time.Millisecond)
	<-requested

	snap, err = i.Send(context.Background(), domain.NewEvent("APPROVE", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"published"}, snap.Configuration)

	snap = waitDone(t, i)
	assert.Equal(t, domain.StatusDone, snap.Status)
	assert.Equal(t, true, snap.Context["approved"])
	assert.Equal(t, "second draft about go", snap.Output)

	_, err = i.Send(context.Background(), domain.NewEvent("APPROVE", nil))
	assert.ErrorIs(t, err, domain.ErrStopped)
}

func TestParse_ServiceFailure(t *testing.T) {
	m, err := arbor.Parse([]byte(approvalDoc), approvalRegistry(func(context.Context, any) (any, error) {
		return nil, errors.New("rate limited")
	}))
	require.NoError(t, err)

	i := arbor.New(m, nil)
	t.Cleanup(i.Stop)
	_, err = i.Start(context.Background())
	require.NoError(t, err)

	snap := waitDone(t, i)
	assert.Equal(t, []string{"failed"}, snap.Configuration)
	assert.Nil(t, snap.Output)
}

func TestParse_UnboundService(t *testing.T) {
	_, err := arbor.Parse([]byte(approvalDoc), nil)
	require.Error(t, err)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.HasCode(domain.ErrCodeInvalidInvoke))
}

func TestParseFile_Missing(t *testing.T) {
	_, err := arbor.ParseFile("testdata/nope.yaml", nil)
	assert.ErrorContains(t, err, "failed to read machine document")
}

func TestNew_ParallelAgents(t *testing.T) {
	provider := completion.NewScripted(
		completion.ScriptStep{Match: "search", Content: "three sources", Delay: 10 * time.Millisecond},
		completion.ScriptStep{Match: "review", Content: "looks fine"},
	)
	ask := func(prompt string) func(domain.Context, domain.Event) any {
		return func(domain.Context, domain.Event) any {
			return map[string]any{"messages": []map[string]any{{"role": "user", "content": prompt}}}
		}
	}
	save := func(key string) domain.Action {
		return domain.Assign(func(_ domain.Context, ev domain.Event) (map[string]any, error) {
			return map[string]any{key: ev.Output}, nil
		})
	}
	svc := completion.Bind(provider, completion.WithResult(completion.Content))

	b := dsl.New("research")
	work := b.Add("work").Parallel()
	work.Add("search").
		Add("running").Invoke(svc).ID("searcher").Input(ask("search the web")).
		OnDone(domain.To("finished").Do(save("sources"))).Error("finished").End().Up().
		Add("finished").Terminal().Up().
		Up()
	work.Add("review").
		Add("running").Invoke(svc).ID("reviewer").Input(ask("review the draft")).
		OnDone(domain.To("finished").Do(save("review"))).Error("finished").End().Up().
		Add("finished").Terminal().Up().
		Up()
	work.Done("summary")
	b.Add("summary").Terminal()
	b.Output(func(ctx domain.Context) any {
		return map[string]any{"sources": ctx["sources"], "review": ctx["review"]}
	})

	i := arbor.New(b.MustBuild(), nil)
	t.Cleanup(i.Stop)

	snap, err := i.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"work", "work.review", "work.review.running", "work.search", "work.search.running"}, snap.Configuration)

	snap = waitDone(t, i)
	assert.Equal(t, domain.StatusDone, snap.Status)
	assert.Equal(t, []string{"summary"}, snap.Configuration)
	assert.Equal(t, map[string]any{"sources": "three sources", "review": "looks fine"}, snap.Output)
	assert.Len(t, provider.Calls(), 2)
}
