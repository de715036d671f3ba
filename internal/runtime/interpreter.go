package runtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/google/uuid"
)

type loopKey struct{}

type msgKind int

const (
	msgStart msgKind = iota
	msgEvent
	msgStop
)

type message struct {
	kind  msgKind
	event domain.Event
	reply chan result
}

type result struct {
	snap domain.Snapshot
	err  error
}

type pendingInvoke struct {
	node       *domain.Node
	activation uint64
	event      domain.Event
}

// Interpreter runs one instance of a Machine.
//
// Each interpreter owns a goroutine draining an unbounded FIFO mailbox, so macrosteps
// never interleave. Listeners run on a second goroutine after each macrostep and
// receive a context marking them as such: calling Send from a listener returns
// domain.ErrReentrantSend, use Post instead.
type Interpreter struct {
	id            string
	machine       *domain.Machine
	input         any
	logger        *slog.Logger
	hooks         domain.LifecycleHooks
	maxMicrosteps int

	mailbox *queue[message]
	bus     *eventBus
	invoker *serviceInvoker
	spawner *actorSpawner

	lifecycle sync.Mutex
	started   bool
	stopped   bool
	loopDone  chan struct{}
	loopCtx   context.Context
	cancel    context.CancelFunc

	// Owned by the loop goroutine.
	config      map[*domain.Node]uint64
	ctx         domain.Context
	status      domain.Status
	output      any
	err         error
	activations uint64
	internal    []domain.Event
	pending     []pendingInvoke
	completed   map[*domain.Node]uint64
	// onHalt runs once on the loop when a terminal status is reached, before
	// listeners hear about it.
	onHalt func()

	snapMu sync.RWMutex
	snap   domain.Snapshot
}

// New creates an interpreter for machine. Nothing runs until Start.
func New(machine *domain.Machine, input any, opts ...Option) *Interpreter {
	i := &Interpreter{
		id:            uuid.NewString(),
		machine:       machine,
		input:         input,
		logger:        logging.NewNop(),
		maxMicrosteps: DefaultMaxMicrosteps,
		mailbox:       newQueue[message](),
		loopDone:      make(chan struct{}),
		config:        make(map[*domain.Node]uint64),
		completed:     make(map[*domain.Node]uint64),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With("machine", machine.ID, "instance", i.id)
	i.bus = newEventBus(i.logger)
	i.spawner = newActorSpawner(i)
	i.snap = domain.Snapshot{Machine: machine.ID, ID: i.id, Configuration: []string{}}
	return i
}

// ID returns the instance ID.
func (i *Interpreter) ID() string { return i.id }

// Machine returns the definition being run.
func (i *Interpreter) Machine() *domain.Machine { return i.machine }

// Start enters the initial configuration and runs the first macrostep.
// The interpreter outlives ctx: cancelling it only stops waiting.
// Calling Start again returns the current snapshot.
func (i *Interpreter) Start(ctx context.Context) (domain.Snapshot, error) {
	i.lifecycle.Lock()
	if i.stopped {
		i.lifecycle.Unlock()
		return i.Snapshot(), domain.ErrStopped
	}
	if i.started {
		i.lifecycle.Unlock()
		return i.Snapshot(), nil
	}
	i.started = true
	lifetime, cancel := context.WithCancel(context.WithoutCancel(ctx))
	i.cancel = cancel
	i.loopCtx = context.WithValue(lifetime, loopKey{}, i)
	i.invoker = newServiceInvoker(i, lifetime)
	go i.bus.run(i.loopCtx)
	go i.run()
	i.lifecycle.Unlock()

	return i.request(ctx, message{kind: msgStart})
}

// Send delivers an event and waits for the resulting stable snapshot.
// Events without a kind are external.
func (i *Interpreter) Send(ctx context.Context, ev domain.Event) (domain.Snapshot, error) {
	if owner, _ := ctx.Value(loopKey{}).(*Interpreter); owner == i {
		return i.Snapshot(), domain.ErrReentrantSend
	}
	if !i.isStarted() {
		return i.Snapshot(), domain.ErrNotStarted
	}
	if ev.Kind == "" {
		ev.Kind = domain.EventExternal
	}
	return i.request(ctx, message{kind: msgEvent, event: ev})
}

// Post enqueues an event without waiting for it to be processed.
func (i *Interpreter) Post(ev domain.Event) error {
	if !i.isStarted() {
		return domain.ErrNotStarted
	}
	if ev.Kind == "" {
		ev.Kind = domain.EventExternal
	}
	if !i.mailbox.push(message{kind: msgEvent, event: ev}) {
		return domain.ErrStopped
	}
	return nil
}

// Stop cancels every in-flight invocation, stops every live child recursively and
// waits for the loop to exit. It is idempotent. It must not be called from an action.
func (i *Interpreter) Stop() {
	i.lifecycle.Lock()
	if !i.started {
		if !i.stopped {
			i.stopped = true
			i.status = domain.StatusStopped
			i.publishSnapshot()
			close(i.loopDone)
			close(i.bus.drained)
		}
		i.lifecycle.Unlock()
		return
	}
	i.lifecycle.Unlock()

	i.mailbox.pushFront(message{kind: msgStop})
	<-i.loopDone
}

// Done is closed once the interpreter reached a terminal status and every listener
// has been notified.
func (i *Interpreter) Done() <-chan struct{} {
	return i.bus.drained
}

// Snapshot returns the snapshot of the last stable macrostep.
func (i *Interpreter) Snapshot() domain.Snapshot {
	i.snapMu.RLock()
	defer i.snapMu.RUnlock()
	return i.snap
}

// Subscribe registers a listener called with the snapshot after every macrostep.
// It returns a function removing the listener.
func (i *Interpreter) Subscribe(fn SnapshotListener) func() {
	return i.bus.subscribe(fn)
}

// On registers a handler for emitted signals of the given type. "*" receives every
// signal and "prefix.*" every signal under prefix.
func (i *Interpreter) On(signalType string, fn SignalHandler) func() {
	return i.bus.on(signalType, fn)
}

// Children returns the live child actors in spawn order.
func (i *Interpreter) Children() []*ActorRef {
	return i.spawner.live()
}

// Child returns the live child actor with the given ID.
func (i *Interpreter) Child(id string) (*ActorRef, bool) {
	return i.spawner.get(id)
}

func (i *Interpreter) isStarted() bool {
	i.lifecycle.Lock()
	defer i.lifecycle.Unlock()
	return i.started
}

func (i *Interpreter) request(ctx context.Context, msg message) (domain.Snapshot, error) {
	msg.reply = make(chan result, 1)
	if !i.mailbox.push(msg) {
		return i.Snapshot(), domain.ErrStopped
	}
	select {
	case r := <-msg.reply:
		return r.snap, r.err
	case <-ctx.Done():
		return i.Snapshot(), ctx.Err()
	}
}

func (i *Interpreter) run() {
	defer close(i.loopDone)
	for {
		msg, ok := i.mailbox.take()
		if !ok {
			break
		}
		i.handle(msg)
		if i.status.IsTerminal() {
			break
		}
	}

	i.mailbox.close()
	for {
		msg, ok := i.mailbox.take()
		if !ok {
			break
		}
		if msg.reply != nil {
			msg.reply <- result{snap: i.Snapshot(), err: domain.ErrStopped}
		}
	}
	i.cancel()
	i.bus.close()
}

func (i *Interpreter) handle(msg message) {
	var err error
	switch msg.kind {
	case msgStart:
		err = i.enterInitial()
	case msgEvent:
		err = i.process(msg.event)
	case msgStop:
		if !i.status.IsTerminal() {
			i.logger.Debug("interpreter stopped")
			i.halt(domain.StatusStopped)
		}
	}
	if i.status.IsTerminal() && i.onHalt != nil {
		i.onHalt()
		i.onHalt = nil
	}

	snap := i.publishSnapshot()
	i.bus.publish(batch{signals: i.flushSignals(), snap: snap, err: err, reply: msg.reply})
}

func (i *Interpreter) enterInitial() error {
	ctx, err := i.initialContext()
	if err != nil {
		i.fail(err)
		return err
	}
	i.ctx = ctx
	i.status = domain.StatusActive
	i.activations++
	i.config[i.machine.Root] = i.activations

	init := domain.Event{Type: domain.EventInit, Kind: domain.EventInternal}
	if err := i.execute(i.planInitial(init)); err != nil {
		i.fail(err)
		return err
	}
	if err := i.stabilize(init); err != nil {
		i.fail(err)
		return err
	}
	if err := i.startInvocations(); err != nil {
		i.fail(err)
		return err
	}
	return nil
}

func (i *Interpreter) initialContext() (ctx domain.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.FaultError{
				Phase:   domain.PhaseAction,
				Machine: i.machine.ID,
				Event:   domain.EventInit,
				Action:  "context",
				Err:     &domain.PanicError{Value: r},
			}
		}
	}()
	return i.machine.InitialContext(i.input)
}

func (i *Interpreter) process(ev domain.Event) error {
	if i.status != domain.StatusActive {
		return domain.ErrStopped
	}
	if err := i.macrostep(ev); err != nil {
		i.fail(err)
		return err
	}
	return nil
}

// fail moves the instance to StatusErrored.
func (i *Interpreter) fail(err error) {
	i.err = err
	i.logger.Error("interpreter failed", "err", err)
	i.halt(domain.StatusErrored)
}

// finish moves the instance to StatusDone once a top-level final state is reached.
func (i *Interpreter) finish() {
	out, err := i.computeOutput()
	if err != nil {
		i.fail(err)
		return
	}
	i.output = out
	i.logger.Debug("interpreter done")
	i.halt(domain.StatusDone)
}

func (i *Interpreter) computeOutput() (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.FaultError{
				Phase:   domain.PhaseAction,
				Machine: i.machine.ID,
				Action:  "output",
				Context: i.ctx,
				Err:     &domain.PanicError{Value: r},
			}
		}
	}()
	return i.machine.ComputeOutput(i.ctx), nil
}

// halt releases every invocation and child.
func (i *Interpreter) halt(status domain.Status) {
	i.status = status
	i.pending = nil
	i.internal = nil
	if i.invoker != nil {
		i.invoker.cancelAll()
	}
	i.spawner.stopAll()
}

func (i *Interpreter) publishSnapshot() domain.Snapshot {
	paths := make([]string, 0, len(i.config))
	for n := range i.config {
		if !n.IsRoot() {
			paths = append(paths, n.Path())
		}
	}
	sort.Strings(paths)

	snap := domain.Snapshot{
		Machine:       i.machine.ID,
		ID:            i.id,
		Configuration: paths,
		Context:       i.ctx.Clone(),
		Status:        i.status,
		Output:        i.output,
		Err:           i.err,
	}
	if i.err != nil {
		snap.Error = i.err.Error()
	}

	i.snapMu.Lock()
	i.snap = snap
	i.snapMu.Unlock()
	return snap
}

func (i *Interpreter) flushSignals() []domain.Signal {
	signals := i.bus.take()
	if i.hooks.OnSignal != nil {
		for _, sig := range signals {
			i.hooks.OnSignal(i.loopCtx, &domain.SignalEvent{
				Timestamp:  now(),
				Machine:    i.machine.ID,
				InstanceID: i.id,
				Signal:     sig,
			})
		}
	}
	return signals
}
