package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/aretw0/arbor/pkg/ports"
)

type entry struct {
	resp    *ports.CompletionResponse
	expires time.Time
}

// Cache implements ports.CompletionCache in memory.
// Safe for concurrent use.
type Cache struct {
	data map[string]entry
	ttl  time.Duration
	now  func() time.Time
	mu   sync.RWMutex
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the expiration of cached responses. Zero means no expiration.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a new in-memory completion cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		data: make(map[string]entry),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the cached response.
func (c *Cache) Get(ctx context.Context, key string) (*ports.CompletionResponse, error) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()

	if !ok {
		return nil, ports.ErrCacheMiss
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		return nil, ports.ErrCacheMiss
	}
	return cloneResponse(e.resp), nil
}

// Put stores a copy of the response.
func (c *Cache) Put(ctx context.Context, key string, resp *ports.CompletionResponse) error {
	e := entry{resp: cloneResponse(resp)}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = e
	return nil
}

// Delete removes the response.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func cloneResponse(resp *ports.CompletionResponse) *ports.CompletionResponse {
	if resp == nil {
		return nil
	}
	out := *resp
	if resp.Message.ToolCalls != nil {
		out.Message.ToolCalls = make([]ports.ToolCall, len(resp.Message.ToolCalls))
		for i, tc := range resp.Message.ToolCalls {
			tc.Arguments = maps.Clone(tc.Arguments)
			out.Message.ToolCalls[i] = tc
		}
	}
	return &out
}
