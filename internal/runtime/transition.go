package runtime

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/google/uuid"
)

var now = time.Now

// microstep is one exit/transition/entry cycle.
type microstep struct {
	event       domain.Event
	transitions []*domain.Transition
	exit        []*domain.Node // innermost first
	entry       []*domain.Node // document order
}

type childOpKind int

const (
	opSpawn childOpKind = iota
	opSend
	opStop
)

type childOp struct {
	kind  childOpKind
	id    string
	spec  *domain.SpawnSpec
	input any
	event domain.Event
}

// effects collects what a microstep produces. Nothing is applied until every action
// of the microstep succeeded.
type effects struct {
	patches []map[string]any
	signals []domain.Signal
	raised  []domain.Event
	ops     []childOp
}

func (fx *effects) spawning(id string) bool {
	known := false
	for _, op := range fx.ops {
		switch {
		case op.id != id:
		case op.kind == opSpawn:
			known = true
		case op.kind == opStop:
			known = false
		}
	}
	return known
}

// macrostep processes one event from the mailbox until the configuration is stable.
func (i *Interpreter) macrostep(ev domain.Event) error {
	switch ev.Kind {
	case domain.EventInvocationDone, domain.EventInvocationError:
		t, ok := i.invoker.settle(ev)
		i.settleHook(ev, t, !ok)
		if !ok {
			i.logger.Debug("stale invocation result discarded", "event", ev.Type, "activation", ev.Instance)
			return nil
		}
	case domain.EventChildDone, domain.EventChildError:
		if !i.spawner.settle(ev) {
			i.logger.Debug("event from unsupervised actor dropped", "event", ev.Type, "generation", ev.Instance)
			return nil
		}
	case domain.EventChildEmitted:
		ref, ok := i.spawner.current(ev)
		if !ok {
			return nil
		}
		i.spawner.relay(ref, ev)
	}

	ts, err := i.selectTransitions(ev)
	if err != nil {
		return err
	}

	if len(ts) == 0 {
		switch ev.Kind {
		case domain.EventInvocationError:
			return ev.Err
		case domain.EventChildError:
			i.logger.Warn("unhandled child error", "event", ev.Type, "err", ev.Err)
		default:
			i.logger.Debug("event dropped", "event", ev.Type)
		}
	} else {
		if err := i.execute(i.plan(ts, ev)); err != nil {
			return err
		}
		if err := i.stabilize(ev); err != nil {
			return err
		}
	}

	if i.status != domain.StatusActive {
		return nil
	}
	if err := i.startInvocations(); err != nil {
		return err
	}
	if ev.IsExternal() {
		i.spawner.autoForward(ev)
	}
	return nil
}

// stabilize takes eventless transitions and drains the internal queue until nothing
// is pending.
func (i *Interpreter) stabilize(trigger domain.Event) error {
	for steps := 0; i.status == domain.StatusActive; steps++ {
		if steps >= i.maxMicrosteps {
			return &domain.FaultError{
				Phase:   domain.PhaseStep,
				Machine: i.machine.ID,
				Event:   trigger.Type,
				Context: i.ctx,
				Err:     fmt.Errorf("%w after %d microsteps", domain.ErrLivelock, steps),
			}
		}

		ts, err := i.selectEventless(trigger)
		if err != nil {
			return err
		}
		if len(ts) > 0 {
			if err := i.execute(i.plan(ts, trigger)); err != nil {
				return err
			}
			continue
		}

		if len(i.internal) == 0 {
			return nil
		}
		trigger = i.internal[0]
		i.internal = i.internal[1:]

		ts, err = i.selectTransitions(trigger)
		if err != nil {
			return err
		}
		if len(ts) == 0 {
			i.logger.Debug("internal event dropped", "event", trigger.Type)
			continue
		}
		if err := i.execute(i.plan(ts, trigger)); err != nil {
			return err
		}
	}
	return nil
}

func (i *Interpreter) selectTransitions(ev domain.Event) ([]*domain.Transition, error) {
	return i.selectWith(ev, func(n *domain.Node) []*domain.Transition {
		return n.Handlers()
	}, true)
}

func (i *Interpreter) selectEventless(ev domain.Event) ([]*domain.Transition, error) {
	return i.selectWith(ev, func(n *domain.Node) []*domain.Transition {
		return n.Always
	}, false)
}

// selectWith walks outward from every active leaf, in document order, and keeps the
// first enabled transition of each. A transition whose exit set overlaps one already
// kept is skipped, so the earlier region wins.
func (i *Interpreter) selectWith(ev domain.Event, pick func(*domain.Node) []*domain.Transition, matchEvent bool) ([]*domain.Transition, error) {
	var chosen []*domain.Transition
	var exits []map[*domain.Node]bool

	for _, leaf := range i.activeLeaves() {
		var found *domain.Transition
	search:
		for n := leaf; n != nil; n = n.Parent() {
			for _, t := range pick(n) {
				if matchEvent && !t.Matches(ev.Type) {
					continue
				}
				ok, err := i.evalGuard(t, ev)
				if err != nil {
					return nil, err
				}
				if ok {
					found = t
					break search
				}
			}
		}
		if found == nil || slices.Contains(chosen, found) {
			continue
		}

		exit := i.exitSet(found)
		conflict := false
		for _, other := range exits {
			for n := range exit {
				if other[n] {
					conflict = true
					break
				}
			}
		}
		if conflict {
			continue
		}
		chosen = append(chosen, found)
		exits = append(exits, exit)
	}
	return chosen, nil
}

func (i *Interpreter) evalGuard(t *domain.Transition, ev domain.Event) (ok bool, err error) {
	if t.Guard == nil {
		return true, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &domain.PanicError{Value: r}
		}
		if err != nil {
			err = &domain.FaultError{
				Phase:   domain.PhaseGuard,
				Machine: i.machine.ID,
				State:   t.Source().Path(),
				Event:   ev.Type,
				Action:  t.GuardName,
				Context: i.ctx,
				Err:     err,
			}
		}
	}()
	return t.Guard(i.ctx, ev)
}

// activeLeaves returns the active atomic and final states in document order.
func (i *Interpreter) activeLeaves() []*domain.Node {
	var leaves []*domain.Node
	for n := range i.config {
		if n.IsLeaf() {
			leaves = append(leaves, n)
		}
	}
	sort.Slice(leaves, func(a, b int) bool { return leaves[a].Order() < leaves[b].Order() })
	return leaves
}

// transitionDomain is the node whose active descendants a transition exits.
// It is nil for targetless transitions.
func (i *Interpreter) transitionDomain(t *domain.Transition) *domain.Node {
	if t.IsTargetless() {
		return nil
	}
	src := t.Source()
	targets := t.TargetNodes()

	within := func(anc *domain.Node) bool {
		for _, target := range targets {
			if !target.IsDescendantOf(anc) {
				return false
			}
		}
		return true
	}

	if !t.Reenter && src.Kind == domain.KindCompound && within(src) {
		return src
	}
	for anc := src.Parent(); anc != nil; anc = anc.Parent() {
		if (anc.Kind == domain.KindCompound || anc.IsRoot()) && within(anc) {
			return anc
		}
	}
	return i.machine.Root
}

func (i *Interpreter) exitSet(t *domain.Transition) map[*domain.Node]bool {
	set := make(map[*domain.Node]bool)
	d := i.transitionDomain(t)
	if d == nil {
		return set
	}
	for n := range i.config {
		if n.IsDescendantOf(d) {
			set[n] = true
		}
	}
	return set
}

// plan computes the exit and entry sets of the selected transitions.
func (i *Interpreter) plan(ts []*domain.Transition, ev domain.Event) *microstep {
	ms := &microstep{event: ev, transitions: slices.Clone(ts)}
	sort.SliceStable(ms.transitions, func(a, b int) bool {
		return ms.transitions[a].Source().Order() < ms.transitions[b].Source().Order()
	})

	exit := make(map[*domain.Node]bool)
	entry := make(map[*domain.Node]bool)
	for _, t := range ms.transitions {
		d := i.transitionDomain(t)
		if d == nil {
			continue
		}
		for n := range i.exitSet(t) {
			exit[n] = true
		}
		addEntry(entry, d, t.TargetNodes())
	}

	for n := range exit {
		ms.exit = append(ms.exit, n)
	}
	sort.Slice(ms.exit, func(a, b int) bool {
		return ms.exit[a].Order() > ms.exit[b].Order()
	})
	ms.entry = sortedByOrder(entry)
	return ms
}

func (i *Interpreter) planInitial(ev domain.Event) *microstep {
	entry := make(map[*domain.Node]bool)
	addEntry(entry, i.machine.Root, nil)
	return &microstep{event: ev, entry: sortedByOrder(entry)}
}

// addEntry adds every node entered below d to reach targets: their ancestors, the
// initial child of each compound entered without an explicit child, and every region
// of each parallel entered.
func addEntry(entry map[*domain.Node]bool, d *domain.Node, targets []*domain.Node) {
	marked := make(map[*domain.Node]bool)
	for _, target := range targets {
		for n := target; n != nil && n != d; n = n.Parent() {
			marked[n] = true
			entry[n] = true
		}
	}

	var fill func(n *domain.Node)
	fill = func(n *domain.Node) {
		switch n.Kind {
		case domain.KindCompound:
			var next *domain.Node
			for _, c := range n.Children {
				if marked[c] {
					next = c
					break
				}
			}
			if next == nil {
				next = n.InitialChild()
			}
			entry[next] = true
			fill(next)
		case domain.KindParallel:
			for _, c := range n.Children {
				entry[c] = true
				fill(c)
			}
		}
	}
	fill(d)
}

func sortedByOrder(set map[*domain.Node]bool) []*domain.Node {
	out := make([]*domain.Node, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Order() < out[b].Order() })
	return out
}

// execute runs the actions of a microstep against the context committed before it,
// then commits configuration, context and effects at once. On a fault nothing is
// committed.
func (i *Interpreter) execute(ms *microstep) error {
	start := i.ctx
	fx := &effects{}

	for _, n := range ms.exit {
		for _, a := range n.Exit {
			if err := i.runAction(fx, a, n.Path(), ms.event, start); err != nil {
				return err
			}
		}
	}
	for _, t := range ms.transitions {
		for _, a := range t.Actions {
			if err := i.runAction(fx, a, t.Source().Path(), ms.event, start); err != nil {
				return err
			}
		}
	}
	for _, n := range ms.entry {
		for _, a := range n.Entry {
			if err := i.runAction(fx, a, n.Path(), ms.event, start); err != nil {
				return err
			}
		}
	}

	i.commit(ms, fx)
	return nil
}

func (i *Interpreter) runAction(fx *effects, a domain.Action, owner string, ev domain.Event, ctx domain.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.PanicError{Value: r}
		}
		if err != nil {
			err = &domain.FaultError{
				Phase:   domain.PhaseAction,
				Machine: i.machine.ID,
				State:   owner,
				Event:   ev.Type,
				Action:  a.Name,
				Context: ctx,
				Err:     err,
			}
		}
	}()

	switch a.Kind {
	case domain.ActionAssign:
		patch, err := a.Assign(ctx, ev)
		if err != nil {
			return err
		}
		fx.patches = append(fx.patches, patch)

	case domain.ActionEmit:
		sig, err := a.Emit(ctx, ev)
		if err != nil {
			return err
		}
		if sig.Type == "" {
			return errors.New("signal type is required")
		}
		if sig.Source == "" {
			sig.Source = i.id
		}
		fx.signals = append(fx.signals, sig)

	case domain.ActionRaise:
		raised, err := a.Event(ctx, ev)
		if err != nil {
			return err
		}
		raised.Kind = domain.EventInternal
		fx.raised = append(fx.raised, raised)

	case domain.ActionSpawn:
		spec := a.Spawn
		id := spec.ID
		if id == "" {
			id = uuid.NewString()
		}
		if i.spawner.has(id) || fx.spawning(id) {
			return fmt.Errorf("actor '%s' is already running", id)
		}
		var input any
		if spec.Input != nil {
			input = spec.Input(ctx, ev)
		}
		if spec.SaveTo != "" {
			fx.patches = append(fx.patches, map[string]any{spec.SaveTo: id})
		}
		fx.ops = append(fx.ops, childOp{kind: opSpawn, id: id, spec: spec, input: input})

	case domain.ActionSendTo, domain.ActionForward:
		if !i.spawner.known(a.Target) && !fx.spawning(a.Target) {
			return fmt.Errorf("%w: '%s'", domain.ErrUnknownActor, a.Target)
		}
		out := ev
		if a.Kind == domain.ActionSendTo {
			if out, err = a.Event(ctx, ev); err != nil {
				return err
			}
		}
		fx.ops = append(fx.ops, childOp{kind: opSend, id: a.Target, event: out})

	case domain.ActionStopChild:
		if !i.spawner.known(a.Target) && !fx.spawning(a.Target) {
			return fmt.Errorf("%w: '%s'", domain.ErrUnknownActor, a.Target)
		}
		fx.ops = append(fx.ops, childOp{kind: opStop, id: a.Target})

	case domain.ActionDo:
		return a.Effect(ctx, ev)

	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}

// commit applies a microstep that ran without faults.
func (i *Interpreter) commit(ms *microstep, fx *effects) {
	ts := now()

	for _, n := range ms.exit {
		activation := i.config[n]
		delete(i.config, n)
		delete(i.completed, n)
		i.invoker.cancel(activation)
		if i.hooks.OnStateExit != nil {
			i.hooks.OnStateExit(i.loopCtx, i.stateEvent(ts, n, activation))
		}
	}

	for _, t := range ms.transitions {
		targets := make([]string, 0, len(t.TargetNodes()))
		for _, target := range t.TargetNodes() {
			targets = append(targets, target.Path())
		}
		i.logger.Debug("transition", "event", ms.event.Type, "source", t.Source().Path(), "targets", targets)
		if i.hooks.OnTransition != nil {
			i.hooks.OnTransition(i.loopCtx, &domain.TransitionEvent{
				Timestamp:  ts,
				Machine:    i.machine.ID,
				InstanceID: i.id,
				Source:     t.Source().Path(),
				Targets:    targets,
				Event:      ms.event.Type,
			})
		}
	}

	for _, n := range ms.entry {
		i.activations++
		i.config[n] = i.activations
		if i.hooks.OnStateEnter != nil {
			i.hooks.OnStateEnter(i.loopCtx, i.stateEvent(ts, n, i.activations))
		}
		if n.Invoke != nil {
			i.pending = append(i.pending, pendingInvoke{node: n, activation: i.activations, event: ms.event})
		}
	}

	next := i.ctx
	for _, patch := range fx.patches {
		next = next.With(patch)
	}
	i.ctx = next

	for _, sig := range fx.signals {
		i.bus.emit(sig)
	}
	i.internal = append(i.internal, fx.raised...)

	for _, op := range fx.ops {
		i.applyChildOp(op)
	}

	for _, n := range ms.entry {
		if i.status != domain.StatusActive {
			break
		}
		if n.Kind == domain.KindFinal {
			i.completeFinal(n)
		}
	}
}

func (i *Interpreter) applyChildOp(op childOp) {
	switch op.kind {
	case opSpawn:
		if _, err := i.spawner.spawn(i.loopCtx, op.id, op.spec, op.input); err != nil {
			i.logger.Warn("spawn failed", "actor", op.id, "err", err)
		}
	case opSend:
		if ref, ok := i.spawner.lookup(op.id); ok {
			i.spawner.forward(ref, op.event)
		} else {
			i.logger.Debug("send to finished actor dropped", "actor", op.id, "event", op.event.Type)
		}
	case opStop:
		i.spawner.stop(op.id)
	}
}

// completeFinal raises done.state for the parent of a final state just entered and
// for every enclosing parallel state whose regions are now all complete. Each
// parallel activation completes at most once.
func (i *Interpreter) completeFinal(f *domain.Node) {
	p := f.Parent()
	if p.IsRoot() {
		i.finish()
		return
	}
	i.raise(domain.DoneState(p.Path()))

	for anc := p.Parent(); anc != nil && anc.Kind == domain.KindParallel; anc = anc.Parent() {
		if !i.regionsComplete(anc) {
			return
		}
		activation := i.config[anc]
		if done, ok := i.completed[anc]; ok && done == activation {
			return
		}
		i.completed[anc] = activation
		if anc.IsRoot() {
			i.finish()
			return
		}
		i.raise(domain.DoneState(anc.Path()))
	}
}

func (i *Interpreter) regionsComplete(p *domain.Node) bool {
	for _, region := range p.Children {
		if !i.isComplete(region) {
			return false
		}
	}
	return true
}

func (i *Interpreter) isComplete(n *domain.Node) bool {
	switch n.Kind {
	case domain.KindCompound:
		for _, c := range n.Children {
			if _, active := i.config[c]; active {
				return c.Kind == domain.KindFinal
			}
		}
		return false
	case domain.KindParallel:
		return i.regionsComplete(n)
	default:
		return false
	}
}

func (i *Interpreter) raise(eventType string) {
	i.internal = append(i.internal, domain.Event{Type: eventType, Kind: domain.EventInternal})
}

// startInvocations starts the invokes of states entered during the macrostep that
// still hold the activation they were entered with.
// A faulting input mapper stops the remaining invocations from starting.
func (i *Interpreter) startInvocations() error {
	pending := i.pending
	i.pending = nil
	for _, p := range pending {
		if i.config[p.node] != p.activation {
			continue
		}
		input, err := i.invokeInput(p)
		if err != nil {
			return err
		}
		i.invoker.start(p.node, p.activation, input)
	}
	return nil
}

func (i *Interpreter) invokeInput(p pendingInvoke) (input any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.FaultError{
				Phase:   domain.PhaseAction,
				Machine: i.machine.ID,
				State:   p.node.Path(),
				Event:   p.event.Type,
				Action:  "input:" + p.node.Invoke.ID,
				Context: i.ctx,
				Err:     &domain.PanicError{Value: r},
			}
		}
	}()
	return p.node.Invoke.BuildInput(i.ctx, p.event), nil
}

func (i *Interpreter) stateEvent(ts time.Time, n *domain.Node, activation uint64) *domain.StateEvent {
	return &domain.StateEvent{
		Timestamp:  ts,
		Machine:    i.machine.ID,
		InstanceID: i.id,
		Path:       n.Path(),
		Kind:       n.Kind,
		Activation: activation,
	}
}

func (i *Interpreter) settleHook(ev domain.Event, t *task, stale bool) {
	if i.hooks.OnInvokeSettle == nil {
		return
	}
	he := &domain.InvokeEvent{
		Timestamp:  now(),
		Machine:    i.machine.ID,
		InstanceID: i.id,
		InvokeID:   ev.Source,
		Activation: ev.Instance,
		Output:     ev.Output,
		Err:        ev.Err,
		Stale:      stale,
	}
	if t != nil {
		he.State = t.state
		he.Duration = he.Timestamp.Sub(t.started)
	}
	i.hooks.OnInvokeSettle(i.loopCtx, he)
}
