package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
)

type task struct {
	invokeID string
	state    string
	started  time.Time
	cancel   context.CancelFunc
}

// serviceInvoker runs the Service bound to each state activation. Results are posted
// back to the interpreter mailbox tagged with the activation; a result whose activation
// is no longer tracked is stale.
//
// Only the interpreter loop calls its methods.
type serviceInvoker struct {
	interp *Interpreter
	base   context.Context
	tasks  map[uint64]*task
}

func newServiceInvoker(interp *Interpreter, base context.Context) *serviceInvoker {
	return &serviceInvoker{
		interp: interp,
		base:   base,
		tasks:  make(map[uint64]*task),
	}
}

// start launches the invoke of node for the given activation.
func (s *serviceInvoker) start(node *domain.Node, activation uint64, input any) {
	inv := node.Invoke
	ctx, cancel := context.WithCancel(s.base)
	t := &task{
		invokeID: inv.ID,
		state:    node.Path(),
		started:  time.Now(),
		cancel:   cancel,
	}
	s.tasks[activation] = t

	s.interp.logger.Debug("invoke started", "invoke", inv.ID, "state", t.state, "activation", activation)
	if s.interp.hooks.OnInvokeStart != nil {
		s.interp.hooks.OnInvokeStart(s.interp.loopCtx, &domain.InvokeEvent{
			Timestamp:  t.started,
			Machine:    s.interp.machine.ID,
			InstanceID: s.interp.id,
			InvokeID:   inv.ID,
			State:      t.state,
			Activation: activation,
			Input:      input,
		})
	}

	go func() {
		out, err := callService(ctx, inv.Src, input)
		ev := domain.Event{
			Type:     domain.DoneInvoke(inv.ID),
			Kind:     domain.EventInvocationDone,
			Source:   inv.ID,
			Instance: activation,
			Output:   out,
		}
		if err != nil {
			ev.Type = domain.ErrorInvoke(inv.ID)
			ev.Kind = domain.EventInvocationError
			ev.Output = nil
			ev.Err = &domain.InvocationError{InvokeID: inv.ID, State: t.state, Err: err}
		}
		// A stopped interpreter no longer wants the result.
		_ = s.interp.Post(ev)
	}()
}

// settle claims the task of an activation. It reports false for stale results.
func (s *serviceInvoker) settle(ev domain.Event) (*task, bool) {
	t, ok := s.tasks[ev.Instance]
	if !ok || t.invokeID != ev.Source {
		return nil, false
	}
	delete(s.tasks, ev.Instance)
	t.cancel()
	return t, true
}

// cancel aborts the task of an exited activation. Any late result becomes stale.
func (s *serviceInvoker) cancel(activation uint64) {
	if t, ok := s.tasks[activation]; ok {
		s.interp.logger.Debug("invoke cancelled", "invoke", t.invokeID, "state", t.state, "activation", activation)
		t.cancel()
		delete(s.tasks, activation)
	}
}

func (s *serviceInvoker) cancelAll() {
	for activation := range s.tasks {
		s.cancel(activation)
	}
}

func callService(ctx context.Context, svc domain.Service, input any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &domain.PanicError{Value: r}
		}
	}()
	out, err = svc(ctx, input)
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("invocation cancelled: %w", ctx.Err())
	}
	return out, err
}
