package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_Contract(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})

	cache := redis.NewFromClient(client)
	ports.RunCompletionCacheContract(t, cache)
}

func TestRedisCache_TTL_Expiration(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})

	cache := redis.NewFromClient(client, redis.WithTTL(time.Second), redis.WithPrefix("test:"))
	ctx := context.Background()

	err = cache.Put(ctx, "req-1", &ports.CompletionResponse{Message: ports.Message{Role: ports.RoleAssistant, Content: "hi"}})
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:req-1"))

	keys, err := cache.Keys(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, "req-1")

	mr.FastForward(2 * time.Second)

	_, err = cache.Get(ctx, "req-1")
	assert.ErrorIs(t, err, ports.ErrCacheMiss)
}

func TestRedisCache_CorruptEntry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	cache := redis.NewFromClient(client)

	require.NoError(t, mr.Set("arbor:completion:bad", "{not json"))
	_, err = cache.Get(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ports.ErrCacheMiss)
}
