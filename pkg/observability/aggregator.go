package observability

import (
	"context"
	"sync"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
)

// Watcher is anything publishing snapshots, such as an interpreter.
type Watcher interface {
	Subscribe(fn runtime.SnapshotListener) func()
}

// Aggregator combines the snapshot streams of several watchers into a single view.
type Aggregator struct {
	mu       sync.Mutex
	watchers []Watcher
}

// NewAggregator creates a new aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// AddWatcher registers a watcher. It only affects later calls to Watch.
func (a *Aggregator) AddWatcher(w Watcher) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.watchers = append(a.watchers, w)
}

// Watch returns a channel receiving every snapshot published by the watchers until
// ctx is done. Delivery blocks the publishing interpreter's listeners, not its loop.
func (a *Aggregator) Watch(ctx context.Context) <-chan domain.Snapshot {
	a.mu.Lock()
	watchers := append([]Watcher(nil), a.watchers...)
	a.mu.Unlock()

	out := make(chan domain.Snapshot, len(watchers))
	var mu sync.Mutex
	closed := false

	offs := make([]func(), 0, len(watchers))
	for _, w := range watchers {
		offs = append(offs, w.Subscribe(func(_ context.Context, snap domain.Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			if closed {
				return
			}
			select {
			case out <- snap:
			case <-ctx.Done():
			}
		}))
	}

	go func() {
		<-ctx.Done()
		for _, off := range offs {
			off()
		}
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out
}
