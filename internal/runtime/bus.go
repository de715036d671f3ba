package runtime

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// SignalHandler receives side-channel signals.
type SignalHandler func(ctx context.Context, sig domain.Signal)

// SnapshotListener receives the snapshot published after every macrostep.
type SnapshotListener func(ctx context.Context, snap domain.Snapshot)

type signalEntry struct {
	seq     int
	pattern string
	fn      SignalHandler
}

type snapshotEntry struct {
	seq int
	fn  SnapshotListener
}

// batch is everything observers see for one macrostep.
type batch struct {
	signals []domain.Signal
	snap    domain.Snapshot
	err     error
	reply   chan result
}

// eventBus buffers signals emitted during a macrostep and delivers them, followed by
// the resulting snapshot, on a dedicated goroutine once the macrostep is stable.
// Listeners never see a snapshot older than the signals delivered before it.
type eventBus struct {
	logger *slog.Logger

	mu        sync.RWMutex
	seq       int
	signals   []signalEntry
	snapshots []snapshotEntry

	// pending is owned by the interpreter loop.
	pending []domain.Signal

	batches *queue[batch]
	drained chan struct{}
}

func newEventBus(logger *slog.Logger) *eventBus {
	return &eventBus{
		logger:  logger,
		batches: newQueue[batch](),
		drained: make(chan struct{}),
	}
}

// emit buffers a signal until the end of the macrostep.
func (b *eventBus) emit(sig domain.Signal) {
	b.pending = append(b.pending, sig)
}

// take returns and clears the buffered signals.
func (b *eventBus) take() []domain.Signal {
	out := b.pending
	b.pending = nil
	return out
}

// on registers a handler for a signal type, "*" or a prefix wildcard.
func (b *eventBus) on(pattern string, fn SignalHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	seq := b.seq
	b.signals = append(b.signals, signalEntry{seq: seq, pattern: pattern, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.signals = slices.DeleteFunc(b.signals, func(e signalEntry) bool { return e.seq == seq })
	}
}

func (b *eventBus) subscribe(fn SnapshotListener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	seq := b.seq
	b.snapshots = append(b.snapshots, snapshotEntry{seq: seq, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.snapshots = slices.DeleteFunc(b.snapshots, func(e snapshotEntry) bool { return e.seq == seq })
	}
}

// publish hands a batch to the delivery goroutine.
func (b *eventBus) publish(bt batch) {
	if !b.batches.push(bt) && bt.reply != nil {
		bt.reply <- result{snap: bt.snap, err: bt.err}
	}
}

// run delivers batches until the bus is closed and drained.
func (b *eventBus) run(ctx context.Context) {
	defer close(b.drained)
	for {
		bt, ok := b.batches.take()
		if !ok {
			return
		}
		b.deliver(ctx, bt)
		if bt.reply != nil {
			bt.reply <- result{snap: bt.snap, err: bt.err}
		}
	}
}

func (b *eventBus) close() {
	b.batches.close()
}

func (b *eventBus) deliver(ctx context.Context, bt batch) {
	b.mu.RLock()
	signals := slices.Clone(b.signals)
	snapshots := slices.Clone(b.snapshots)
	b.mu.RUnlock()

	for _, sig := range bt.signals {
		for _, e := range signals {
			if domain.MatchEvent(e.pattern, sig.Type) {
				b.safeSignal(ctx, e.fn, sig)
			}
		}
	}
	for _, e := range snapshots {
		b.safeSnapshot(ctx, e.fn, bt.snap)
	}
}

func (b *eventBus) safeSignal(ctx context.Context, fn SignalHandler, sig domain.Signal) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("signal handler panicked", "signal", sig.Type, "panic", r)
		}
	}()
	fn(ctx, sig)
}

func (b *eventBus) safeSnapshot(ctx context.Context, fn SnapshotListener, snap domain.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("snapshot listener panicked", "panic", r)
		}
	}()
	fn(ctx, snap)
}
