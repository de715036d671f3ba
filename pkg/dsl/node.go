package dsl

import "github.com/aretw0/arbor/pkg/domain"

// NodeBuilder provides a fluent API for configuring a state.
type NodeBuilder struct {
	node     *domain.Node
	parent   *NodeBuilder
	children map[string]*NodeBuilder
	builder  *Builder
}

// Add creates a child state, making this one compound unless it is parallel.
// If the child already exists, it returns the existing builder.
func (n *NodeBuilder) Add(id string) *NodeBuilder {
	if c, ok := n.children[id]; ok {
		return c
	}
	if n.children == nil {
		n.children = make(map[string]*NodeBuilder)
	}
	c := &NodeBuilder{node: &domain.Node{ID: id}, parent: n, builder: n.builder}
	n.children[id] = c
	n.node.Children = append(n.node.Children, c.node)
	return c
}

// Up returns the parent state builder, or nil for a top-level state.
func (n *NodeBuilder) Up() *NodeBuilder {
	if n.parent == nil || n.parent == n.builder.root {
		return nil
	}
	return n.parent
}

// Parallel marks the state as parallel: every child is a region active at once.
func (n *NodeBuilder) Parallel() *NodeBuilder {
	n.node.Kind = domain.KindParallel
	return n
}

// Terminal marks the state as final. Entering it completes the parent.
func (n *NodeBuilder) Terminal() *NodeBuilder {
	n.node.Kind = domain.KindFinal
	return n
}

// Initial names the child entered by default.
func (n *NodeBuilder) Initial(id string) *NodeBuilder {
	n.node.Initial = id
	return n
}

// Entry appends entry actions.
func (n *NodeBuilder) Entry(actions ...domain.Action) *NodeBuilder {
	n.node.Entry = append(n.node.Entry, actions...)
	return n
}

// Exit appends exit actions.
func (n *NodeBuilder) Exit(actions ...domain.Action) *NodeBuilder {
	n.node.Exit = append(n.node.Exit, actions...)
	return n
}

// On adds an event transition to the target states.
func (n *NodeBuilder) On(event string, targets ...string) *NodeBuilder {
	return n.Handle(domain.On(event, targets...))
}

// Handle adds a fully configured event transition.
func (n *NodeBuilder) Handle(t *domain.Transition) *NodeBuilder {
	n.node.On = append(n.node.On, t)
	return n
}

// Go adds an unconditional eventless transition.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	n.node.Always = append(n.node.Always, domain.Always(target))
	return n
}

// Branch adds a guarded eventless transition.
func (n *NodeBuilder) Branch(name string, guard domain.Guard, target string) *NodeBuilder {
	t := domain.Always(target).If(guard)
	t.GuardName = name
	n.node.Always = append(n.node.Always, t)
	return n
}

// Done adds a completion transition.
func (n *NodeBuilder) Done(targets ...string) *NodeBuilder {
	return n.DoneWith(domain.To(targets...))
}

// DoneWith adds a fully configured completion transition.
func (n *NodeBuilder) DoneWith(t *domain.Transition) *NodeBuilder {
	n.node.OnDone = append(n.node.OnDone, t)
	return n
}

// Invoke binds a service to the state. Its ID defaults to the state path.
func (n *NodeBuilder) Invoke(svc domain.Service) *InvokeBuilder {
	if n.node.Invoke == nil {
		n.node.Invoke = &domain.Invoke{}
	}
	n.node.Invoke.Src = svc
	return &InvokeBuilder{inv: n.node.Invoke, node: n}
}

// Meta attaches an opaque value, kept for rendering.
func (n *NodeBuilder) Meta(key string, value any) *NodeBuilder {
	if n.node.Meta == nil {
		n.node.Meta = make(map[string]any)
	}
	n.node.Meta[key] = value
	return n
}

// Build returns the underlying domain.Node.
// This is primarily used by the Builder, but exposed for advanced usage.
func (n *NodeBuilder) Build() *domain.Node {
	return n.node
}

// InvokeBuilder configures the invocation of a state.
type InvokeBuilder struct {
	inv  *domain.Invoke
	node *NodeBuilder
}

// ID names the invocation in done.invoke.<id> and error.invoke.<id>.
func (b *InvokeBuilder) ID(id string) *InvokeBuilder {
	b.inv.ID = id
	return b
}

// Input sets the input mapper.
func (b *InvokeBuilder) Input(fn func(ctx domain.Context, ev domain.Event) any) *InvokeBuilder {
	b.inv.Input = fn
	return b
}

// OnDone adds a transition taken when the service resolves.
func (b *InvokeBuilder) OnDone(t *domain.Transition) *InvokeBuilder {
	b.inv.OnDone = append(b.inv.OnDone, t)
	return b
}

// Error adds a transition to target taken when the service fails.
func (b *InvokeBuilder) Error(target string, actions ...domain.Action) *InvokeBuilder {
	return b.OnError(domain.To(target).Do(actions...))
}

// OnError adds a transition taken when the service fails.
func (b *InvokeBuilder) OnError(t *domain.Transition) *InvokeBuilder {
	b.inv.OnError = append(b.inv.OnError, t)
	return b
}

// End returns the state builder owning the invocation.
func (b *InvokeBuilder) End() *NodeBuilder {
	return b.node
}
