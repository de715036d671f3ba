package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCompletionCacheContract runs a suite of tests to verify that a CompletionCache
// implementation adheres to the defined interface contract.
func RunCompletionCacheContract(t *testing.T, cache CompletionCache) {
	ctx := context.Background()
	key := "contract-test-" + time.Now().Format("20060102150405")

	resp := &CompletionResponse{
		Message: Message{
			Role:    RoleAssistant,
			Content: "calling a tool",
			ToolCalls: []ToolCall{
				{ID: "call-1", Name: "search", Arguments: map[string]any{"query": "weather"}},
			},
		},
		FinishReason: "tool_calls",
		Usage:        Usage{PromptTokens: 12, CompletionTokens: 7},
	}

	t.Run("Put and Get", func(t *testing.T) {
		err := cache.Put(ctx, key, resp)
		require.NoError(t, err, "Put should not return error")

		got, err := cache.Get(ctx, key)
		require.NoError(t, err, "Get should not return error")
		assert.Equal(t, resp.Message.Content, got.Message.Content)
		assert.Equal(t, resp.FinishReason, got.FinishReason)
		assert.Equal(t, resp.Usage, got.Usage)
		require.Len(t, got.Message.ToolCalls, 1)
		assert.Equal(t, "search", got.Message.ToolCalls[0].Name)
		assert.Equal(t, "weather", got.Message.ToolCalls[0].Arguments["query"])
	})

	t.Run("Returned Value Is Isolated", func(t *testing.T) {
		got, err := cache.Get(ctx, key)
		require.NoError(t, err)
		got.Message.Content = "mutated"

		again, err := cache.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "calling a tool", again.Message.Content)
	})

	t.Run("Get Missing", func(t *testing.T) {
		_, err := cache.Get(ctx, "missing-"+key)
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, cache.Delete(ctx, key))

		_, err := cache.Get(ctx, key)
		assert.ErrorIs(t, err, ErrCacheMiss, "Get after Delete should return ErrCacheMiss")

		assert.NoError(t, cache.Delete(ctx, key), "Delete of a missing key should not fail")
	})
}
