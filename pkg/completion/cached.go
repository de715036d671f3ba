package completion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/arbor/pkg/ports"
)

// Cached is a CompletionService decorator serving repeated requests from a cache.
type Cached struct {
	next    ports.CompletionService
	cache   ports.CompletionCache
	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// CachedOption configures Cached.
type CachedOption func(*Cached)

// WithLocker serializes identical requests so that only one reaches the provider.
func WithLocker(l ports.DistributedLocker, ttl time.Duration) CachedOption {
	return func(c *Cached) {
		c.locker = l
		c.lockTTL = ttl
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l *slog.Logger) CachedOption {
	return func(c *Cached) {
		c.logger = l
	}
}

// NewCached wraps next with cache.
func NewCached(next ports.CompletionService, cache ports.CompletionCache, opts ...CachedOption) *Cached {
	c := &Cached{
		next:    next,
		cache:   cache,
		lockTTL: 30 * time.Second,
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete returns the cached response for req, or calls the wrapped service and
// stores its response. Cache failures are logged and never fail the request.
func (c *Cached) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	key, err := req.Fingerprint()
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint request: %w", err)
	}

	if resp, ok := c.lookup(ctx, key); ok {
		return resp, nil
	}

	if c.locker != nil {
		unlock, err := c.locker.Lock(ctx, key, c.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to lock completion %s: %w", key, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				c.logger.Warn("failed to release completion lock", "key", key, "err", err)
			}
		}()
		// Another holder may have filled the cache while we waited.
		if resp, ok := c.lookup(ctx, key); ok {
			return resp, nil
		}
	}

	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(ctx, key, resp); err != nil {
		c.logger.Warn("failed to store completion", "key", key, "err", err)
	}
	return resp, nil
}

func (c *Cached) lookup(ctx context.Context, key string) (*ports.CompletionResponse, bool) {
	resp, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		c.logger.Debug("completion cache hit", "key", key)
		return resp, true
	case errors.Is(err, ports.ErrCacheMiss):
		return nil, false
	default:
		c.logger.Warn("completion cache lookup failed", "key", key, "err", err)
		return nil, false
	}
}
