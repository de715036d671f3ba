package ports

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned by CompletionCache.Get when the key is absent or expired.
var ErrCacheMiss = errors.New("completion cache miss")

// CompletionCache stores completion responses by request fingerprint.
type CompletionCache interface {
	// Get returns the cached response, or ErrCacheMiss.
	Get(ctx context.Context, key string) (*CompletionResponse, error)

	// Put stores the response for key.
	Put(ctx context.Context, key string, resp *CompletionResponse) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
