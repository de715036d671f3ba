package runtime

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
)

// ActorRef is a handle on a spawned child interpreter. Communication with the child
// happens only through messages.
type ActorRef struct {
	id          string
	interp      *Interpreter
	autoForward bool
	relay       bool
	gen         uint64
	alive       atomic.Bool
}

// ID returns the actor ID, unique among the parent's live children.
func (r *ActorRef) ID() string { return r.id }

// Interpreter returns the child interpreter.
func (r *ActorRef) Interpreter() *Interpreter { return r.interp }

// Alive reports whether the child is still running under its parent.
func (r *ActorRef) Alive() bool { return r.alive.Load() }

// Snapshot returns the child's latest snapshot.
func (r *ActorRef) Snapshot() domain.Snapshot { return r.interp.Snapshot() }

// actorSpawner creates, routes to and supervises the children of one interpreter.
// A child leaves the live set as soon as its own loop halts, so its ID can be
// reused while its last events are still queued on the parent. Those events carry
// the spawn generation and are only accepted while the generation is tracked.
type actorSpawner struct {
	parent *Interpreter

	mu       sync.RWMutex
	children map[string]*ActorRef
	order    []string
	// tracked holds the latest ref per ID until the parent settles its
	// done.actor or error.actor event.
	tracked map[string]*ActorRef
	gen     uint64
}

func newActorSpawner(parent *Interpreter) *actorSpawner {
	return &actorSpawner{
		parent:   parent,
		children: make(map[string]*ActorRef),
		tracked:  make(map[string]*ActorRef),
	}
}

// spawn creates and starts a child. The child's signals and terminal status are
// posted back to the parent as child.<id>.<type>, done.actor.<id> and error.actor.<id>.
func (s *actorSpawner) spawn(ctx context.Context, id string, spec *domain.SpawnSpec, input any) (*ActorRef, error) {
	if s.has(id) {
		return nil, fmt.Errorf("actor '%s' is already running", id)
	}

	p := s.parent
	child := New(spec.Machine, input,
		WithID(id),
		WithLogger(p.logger.With("actor", id)),
		WithLifecycleHooks(p.hooks),
		WithMaxMicrosteps(p.maxMicrosteps),
	)
	s.mu.Lock()
	s.gen++
	ref := &ActorRef{id: id, interp: child, autoForward: spec.AutoForward, relay: spec.Relay, gen: s.gen}
	ref.alive.Store(true)
	s.children[id] = ref
	s.order = append(s.order, id)
	s.tracked[id] = ref
	s.mu.Unlock()

	child.onHalt = func() { s.release(ref) }
	child.On(domain.Wildcard, func(_ context.Context, sig domain.Signal) {
		_ = p.Post(domain.Event{
			Type:     domain.ChildSignal(id, sig.Type),
			Kind:     domain.EventChildEmitted,
			Source:   id,
			Instance: ref.gen,
			Payload:  sig.Data,
		})
	})
	child.Subscribe(func(_ context.Context, snap domain.Snapshot) {
		switch snap.Status {
		case domain.StatusDone:
			_ = p.Post(domain.Event{
				Type:     domain.DoneActor(id),
				Kind:     domain.EventChildDone,
				Source:   id,
				Instance: ref.gen,
				Output:   snap.Output,
			})
		case domain.StatusErrored:
			_ = p.Post(domain.Event{
				Type:     domain.ErrorActor(id),
				Kind:     domain.EventChildError,
				Source:   id,
				Instance: ref.gen,
				Err:      &domain.ChildError{ActorID: id, Err: snap.Err},
			})
		}
	})

	if p.hooks.OnSpawn != nil {
		p.hooks.OnSpawn(p.loopCtx, &domain.SpawnEvent{
			Timestamp:    time.Now(),
			Machine:      p.machine.ID,
			InstanceID:   p.id,
			ActorID:      id,
			ChildMachine: spec.Machine.ID,
		})
	}
	p.logger.Debug("actor spawned", "actor", id, "child_machine", spec.Machine.ID)

	// A child failing during its initial macrostep reports through error.actor.
	if _, err := child.Start(ctx); err != nil {
		p.logger.Debug("actor failed to start", "actor", id, "err", err)
	}
	return ref, nil
}

func (s *actorSpawner) has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.children[id]
	return ok
}

func (s *actorSpawner) get(id string) (*ActorRef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.children[id]
	return ref, ok
}

// known reports whether id names a live child or one whose completion the parent
// has not processed yet.
func (s *actorSpawner) known(id string) bool {
	_, ok := s.lookup(id)
	return ok
}

func (s *actorSpawner) lookup(id string) (*ActorRef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.tracked[id]
	return ref, ok
}

// current returns the ref that posted ev, unless it was stopped or replaced.
func (s *actorSpawner) current(ev domain.Event) (*ActorRef, bool) {
	ref, ok := s.lookup(ev.Source)
	if !ok || ref.gen != ev.Instance {
		return nil, false
	}
	return ref, true
}

// settle consumes the terminal event of the current generation of an actor.
func (s *actorSpawner) settle(ev domain.Event) bool {
	ref, ok := s.current(ev)
	if !ok {
		return false
	}
	s.mu.Lock()
	delete(s.tracked, ref.id)
	s.mu.Unlock()
	s.release(ref)
	return true
}

// release drops ref from the live set. Runs on the child loop when it halts.
func (s *actorSpawner) release(ref *ActorRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.children[ref.id] == ref {
		delete(s.children, ref.id)
		s.order = slices.DeleteFunc(s.order, func(o string) bool { return o == ref.id })
	}
	ref.alive.Store(false)
}

// forward posts ev into the child's own queue.
func (s *actorSpawner) forward(ref *ActorRef, ev domain.Event) {
	ev.Kind = domain.EventExternal
	if err := ref.interp.Post(ev); err != nil {
		s.parent.logger.Debug("forward to finished actor dropped", "actor", ref.id, "event", ev.Type)
	}
}

// autoForward delivers an external event to every child spawned with AutoForward.
func (s *actorSpawner) autoForward(ev domain.Event) {
	for _, ref := range s.live() {
		if ref.autoForward {
			s.forward(ref, ev)
		}
	}
}

// remove forgets a child so none of its pending events are accepted.
func (s *actorSpawner) remove(id string) (*ActorRef, bool) {
	s.mu.Lock()
	ref, ok := s.tracked[id]
	delete(s.tracked, id)
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	s.release(ref)
	return ref, true
}

// stop stops one child synchronously, along with its own children.
func (s *actorSpawner) stop(id string) {
	if ref, ok := s.remove(id); ok {
		ref.interp.Stop()
	}
}

// stopAll stops every live child, most recent first, and forgets finished ones.
func (s *actorSpawner) stopAll() {
	live := s.live()
	for i := len(live) - 1; i >= 0; i-- {
		s.stop(live[i].id)
	}
	s.mu.Lock()
	clear(s.tracked)
	s.mu.Unlock()
}

// live returns the live children in spawn order.
func (s *actorSpawner) live() []*ActorRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ActorRef, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.children[id])
	}
	return out
}

// relay re-emits a child signal on the parent's bus when the child asked for it.
func (s *actorSpawner) relay(ref *ActorRef, ev domain.Event) {
	if !ref.relay {
		return
	}
	sigType := strings.TrimPrefix(ev.Type, domain.PrefixChild+ev.Source+domain.PathSeparator)
	s.parent.bus.emit(domain.Signal{Type: sigType, Data: ev.Payload, Source: ev.Source})
}
