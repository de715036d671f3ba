package completion_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/completion"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userRequest(prompt string) ports.CompletionRequest {
	return ports.CompletionRequest{Messages: []ports.Message{{Role: ports.RoleUser, Content: prompt}}}
}

func TestBind_DecodesMapInput(t *testing.T) {
	provider := completion.NewScripted(completion.ScriptStep{Content: "hello"})
	svc := completion.Bind(provider, completion.WithModel("test-model"), completion.WithResult(completion.Content))

	out, err := svc(context.Background(), map[string]any{
		"messages": []any{map[string]any{"role": "user", "content": "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "test-model", calls[0].Model)
	assert.Equal(t, "hi", calls[0].Messages[0].Content)
}

func TestBind_RequestFromContext(t *testing.T) {
	provider := completion.NewScripted(completion.ScriptStep{Content: "ok"})
	svc := completion.Bind(provider)

	out, err := svc(context.Background(), domain.Context{"request": userRequest("plan"), "other": 1})
	require.NoError(t, err)
	resp, ok := out.(*ports.CompletionResponse)
	require.True(t, ok)
	assert.Equal(t, "ok", resp.Message.Content)
}

func TestScripted_MatchAndToolCalls(t *testing.T) {
	provider, err := completion.ParseScript([]byte(`
steps:
  - match: weather
    tool_calls:
      - id: call-1
        name: get_weather
        arguments: {city: Lisbon}
  - content: generic answer
`))
	require.NoError(t, err)
	ctx := context.Background()

	resp, err := provider.Complete(ctx, userRequest("tell me a joke"))
	require.NoError(t, err)
	assert.Equal(t, "generic answer", resp.Message.Content)

	resp, err = provider.Complete(ctx, userRequest("what is the weather?"))
	require.NoError(t, err)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "Lisbon", resp.Message.ToolCalls[0].Arguments["city"])

	_, err = provider.Complete(ctx, userRequest("again"))
	assert.ErrorIs(t, err, completion.ErrScriptExhausted)
}

func TestScripted_HonoursCancellation(t *testing.T) {
	provider := completion.NewScripted(completion.ScriptStep{Content: "slow", Delay: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.Complete(ctx, userRequest("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCached_ServesRepeatedRequests(t *testing.T) {
	var calls atomic.Int32
	next := ports.CompletionFunc(func(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
		calls.Add(1)
		return &ports.CompletionResponse{Message: ports.Message{Role: ports.RoleAssistant, Content: "answer"}}, nil
	})
	cached := completion.NewCached(next, memory.NewCache(), completion.WithLocker(memory.NewLocker(), time.Second))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		resp, err := cached.Complete(ctx, userRequest("same"))
		require.NoError(t, err)
		assert.Equal(t, "answer", resp.Message.Content)
	}
	assert.Equal(t, int32(1), calls.Load())

	_, err := cached.Complete(ctx, userRequest("different"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	provider := completion.NewScripted(
		completion.ScriptStep{Error: "rate limited"},
		completion.ScriptStep{Content: "recovered"},
	)
	cached := completion.NewCached(provider, memory.NewCache())
	ctx := context.Background()

	_, err := cached.Complete(ctx, userRequest("q"))
	require.EqualError(t, err, "rate limited")

	resp, err := cached.Complete(ctx, userRequest("q"))
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Message.Content)
}
