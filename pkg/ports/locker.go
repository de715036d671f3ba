package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker defines the interface for distributed concurrency control.
// The completion cache uses it so that identical requests issued by several replicas
// reach the provider only once.
type DistributedLocker interface {
	// Lock blocks until the lock for key is acquired or ctx is cancelled.
	// Returns an UnlockFunc that MUST be called to release the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
