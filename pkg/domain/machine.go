package domain

import (
	"fmt"
	"strings"
)

// Machine is an indexed and validated statechart definition.
// It is immutable once built and safe to share across interpreters.
type Machine struct {
	ID   string
	Root *Node

	// Context builds the initial context from the interpreter input.
	Context func(input any) (Context, error)
	// Output computes the value published when the machine reaches a top-level final state.
	Output func(ctx Context) any

	nodes   map[string]*Node
	order   []*Node
	invokes map[string]*Node
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithContext sets the context factory.
func WithContext(fn func(input any) (Context, error)) MachineOption {
	return func(m *Machine) {
		m.Context = fn
	}
}

// WithInitialContext merges the input (when it is a map) over a fixed initial context.
func WithInitialContext(initial Context) MachineOption {
	return func(m *Machine) {
		m.Context = func(input any) (Context, error) {
			in, err := DefaultContext(input)
			if err != nil {
				return nil, err
			}
			return initial.With(in), nil
		}
	}
}

// WithOutput sets the output function.
func WithOutput(fn func(ctx Context) any) MachineOption {
	return func(m *Machine) {
		m.Output = fn
	}
}

// NewMachine indexes the node tree rooted at root, resolves every transition target and
// validates the structure. The returned error is a *ValidationError listing every issue.
//
// The node tree is owned by the machine afterwards and must not be reused for another one.
func NewMachine(root *Node, opts ...MachineOption) (*Machine, error) {
	if root == nil {
		v := &ValidationError{}
		v.AddIssue(ErrCodeNoStates, "machine has no root")
		return nil, v
	}
	m := &Machine{
		ID:      root.ID,
		Root:    root,
		nodes:   make(map[string]*Node),
		invokes: make(map[string]*Node),
	}
	for _, opt := range opts {
		opt(m)
	}

	v := &ValidationError{}
	m.index(v)
	if v.HasIssues() {
		return nil, v
	}
	m.bind(v)
	if v.HasIssues() {
		return nil, v
	}
	return m, nil
}

// Node returns the node at path. The empty path is the root.
func (m *Machine) Node(path string) (*Node, bool) {
	n, ok := m.nodes[path]
	return n, ok
}

// Nodes returns every node except the root, in document order.
func (m *Machine) Nodes() []*Node {
	return m.order[1:]
}

// InvokeOwner returns the node owning the invoke with the given ID.
func (m *Machine) InvokeOwner(invokeID string) (*Node, bool) {
	n, ok := m.invokes[invokeID]
	return n, ok
}

// InitialContext builds the context for a new interpreter.
func (m *Machine) InitialContext(input any) (Context, error) {
	if m.Context == nil {
		return DefaultContext(input)
	}
	ctx, err := m.Context(input)
	if err != nil {
		return nil, fmt.Errorf("failed to build initial context for machine '%s': %w", m.ID, err)
	}
	if ctx == nil {
		ctx = Context{}
	}
	return ctx, nil
}

// ComputeOutput returns the machine output for a final context.
func (m *Machine) ComputeOutput(ctx Context) any {
	if m.Output == nil {
		return nil
	}
	return m.Output(ctx)
}

// index assigns paths, parents, depths and document order, and infers kinds.
func (m *Machine) index(v *ValidationError) {
	root := m.Root
	if root.Kind == "" {
		root.Kind = KindCompound
	}
	if root.Kind != KindCompound && root.Kind != KindParallel {
		v.AddIssue(ErrCodeRootKind, fmt.Sprintf("root must be compound or parallel, got %q", root.Kind))
	}
	if len(root.Children) == 0 {
		v.AddIssue(ErrCodeNoStates, "machine must declare at least one state")
		return
	}
	if len(root.OnDone) > 0 {
		v.AddIssue(ErrCodeInvalidKind, "root cannot declare completion transitions; use a top-level final state")
	}

	seen := make(map[*Node]bool)
	var walk func(n, parent *Node, depth int)
	walk = func(n, parent *Node, depth int) {
		if seen[n] {
			v.AddIssue(ErrCodeDuplicateState, "node is declared more than once", n.ID)
			return
		}
		seen[n] = true

		n.parent = parent
		n.depth = depth
		n.order = len(m.order)
		n.handlers = nil
		if parent != nil {
			if err := checkID(n.ID); err != nil {
				v.AddIssue(ErrCodeInvalidID, err.Error(), parent.path, n.ID)
			}
			n.path = JoinPath(parent.path, n.ID)
		} else {
			n.path = ""
		}
		m.order = append(m.order, n)

		if _, dup := m.nodes[n.path]; dup {
			v.AddIssue(ErrCodeDuplicateState, fmt.Sprintf("duplicate state '%s'", n.path), n.path)
		}
		m.nodes[n.path] = n

		if n.Kind == "" {
			if len(n.Children) > 0 {
				n.Kind = KindCompound
			} else {
				n.Kind = KindAtomic
			}
		}
		m.checkKind(n, v)

		for _, c := range n.Children {
			if c == nil {
				v.AddIssue(ErrCodeInvalidChild, "nil child", n.path)
				continue
			}
			walk(c, n, depth+1)
		}
	}
	walk(root, nil, 0)
}

func (m *Machine) checkKind(n *Node, v *ValidationError) {
	switch n.Kind {
	case KindAtomic, KindFinal:
		if len(n.Children) > 0 {
			v.AddIssue(ErrCodeInvalidKind, fmt.Sprintf("%s state cannot have children", n.Kind), n.path)
		}
		if len(n.OnDone) > 0 {
			v.AddIssue(ErrCodeInvalidKind, fmt.Sprintf("%s state cannot declare completion transitions", n.Kind), n.path)
		}
		if n.Kind == KindFinal && (len(n.On) > 0 || len(n.Always) > 0 || n.Invoke != nil) {
			v.AddIssue(ErrCodeFinalTransitions, "final state cannot declare transitions or invocations", n.path)
		}
	case KindCompound:
		if len(n.Children) == 0 {
			v.AddIssue(ErrCodeInvalidKind, "compound state must have children", n.path)
		} else if n.InitialChild() == nil {
			v.AddIssue(ErrCodeCompoundInvalidInitial, fmt.Sprintf("initial state '%s' is not a child", n.Initial), n.path)
		}
	case KindParallel:
		if len(n.Children) == 0 {
			v.AddIssue(ErrCodeInvalidKind, "parallel state must have regions", n.path)
		}
		for _, c := range n.Children {
			if c != nil && c.Kind == KindFinal {
				v.AddIssue(ErrCodeInvalidKind, "parallel region cannot be a final state", n.path, c.ID)
			}
		}
	default:
		v.AddIssue(ErrCodeInvalidKind, fmt.Sprintf("unknown kind %q", n.Kind), n.path)
	}
}

// bind resolves targets, registers invoke handlers and checks actions.
func (m *Machine) bind(v *ValidationError) {
	for _, n := range m.order {
		for _, a := range n.Entry {
			m.checkAction(a, v, n.path, "entry")
		}
		for _, a := range n.Exit {
			m.checkAction(a, v, n.path, "exit")
		}

		for i, t := range n.On {
			m.bindTransition(n, t, v, "on", i)
			if t != nil && t.Event == "" {
				v.AddIssue(ErrCodeInvalidTarget, "event transition requires an event type", n.path, "on", fmt.Sprint(i))
			}
			n.handlers = append(n.handlers, t)
		}

		if inv := n.Invoke; inv != nil {
			if inv.ID == "" {
				inv.ID = n.path
			}
			if inv.Src == nil {
				msg := fmt.Sprintf("invoke '%s' has no service", inv.ID)
				if inv.SrcName != "" {
					msg = fmt.Sprintf("invoke '%s': service '%s' is not bound", inv.ID, inv.SrcName)
				}
				v.AddIssue(ErrCodeInvalidInvoke, msg, n.path, "invoke")
			}
			if owner, dup := m.invokes[inv.ID]; dup {
				v.AddIssue(ErrCodeDuplicateInvoke, fmt.Sprintf("invoke '%s' already declared by '%s'", inv.ID, owner.path), n.path, "invoke")
			}
			m.invokes[inv.ID] = n
			for i, t := range inv.OnDone {
				m.bindTransition(n, t, v, "invoke.on_done", i)
				if t != nil {
					t.Event = DoneInvoke(inv.ID)
					n.handlers = append(n.handlers, t)
				}
			}
			for i, t := range inv.OnError {
				m.bindTransition(n, t, v, "invoke.on_error", i)
				if t != nil {
					t.Event = ErrorInvoke(inv.ID)
					n.handlers = append(n.handlers, t)
				}
			}
		}

		for i, t := range n.OnDone {
			m.bindTransition(n, t, v, "on_done", i)
			if t != nil {
				t.Event = DoneState(n.path)
				n.handlers = append(n.handlers, t)
			}
		}

		for i, t := range n.Always {
			m.bindTransition(n, t, v, "always", i)
		}
	}
}

func (m *Machine) bindTransition(src *Node, t *Transition, v *ValidationError, field string, i int) {
	loc := []string{src.path, field, fmt.Sprint(i)}
	if t == nil {
		v.AddIssue(ErrCodeInvalidTarget, "nil transition", loc...)
		return
	}
	t.source = src
	t.resolved = t.resolved[:0]
	if t.Guard == nil && t.GuardName != "" {
		v.AddIssue(ErrCodeMissingGuard, fmt.Sprintf("guard '%s' is not bound", t.GuardName), loc...)
	}
	for _, a := range t.Actions {
		m.checkAction(a, v, loc...)
	}
	for _, target := range t.Targets {
		n := m.resolve(src, target)
		if n == nil || n.IsRoot() {
			v.AddIssue(ErrCodeInvalidTarget, fmt.Sprintf("target '%s' not found", target), loc...)
			continue
		}
		t.resolved = append(t.resolved, n)
	}
	if len(t.resolved) > 1 && !compatibleTargets(t.resolved) {
		v.AddIssue(ErrCodeInvalidTarget, fmt.Sprintf("targets %v cannot be active together", t.Targets), loc...)
	}
}

func (m *Machine) checkAction(a Action, v *ValidationError, loc ...string) {
	if err := a.check(); err != nil {
		v.AddIssue(ErrCodeMissingAction, err.Error(), loc...)
		return
	}
	if a.Kind == ActionSpawn && a.Spawn.Machine == nil {
		v.AddIssue(ErrCodeInvalidSpawn, fmt.Sprintf("spawn '%s' has no machine", a.Spawn.ID), loc...)
	}
}

// resolve finds the node a target string refers to, relative to src.
func (m *Machine) resolve(src *Node, target string) *Node {
	switch {
	case target == "":
		return nil
	case strings.HasPrefix(target, "#"):
		return m.nodes[strings.TrimPrefix(target, "#")]
	case strings.HasPrefix(target, PathSeparator):
		return m.nodes[JoinPath(src.path, strings.TrimPrefix(target, PathSeparator))]
	}
	start := src.parent
	if start == nil {
		start = src
	}
	for anc := start; anc != nil; anc = anc.parent {
		if n, ok := m.nodes[JoinPath(anc.path, target)]; ok {
			return n
		}
	}
	return nil
}

// compatibleTargets reports whether every pair of targets can be active at once:
// one contains the other, or they part ways below a parallel node.
func compatibleTargets(nodes []*Node) bool {
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			a, b := nodes[i], nodes[j]
			if a == b || a.IsDescendantOf(b) || b.IsDescendantOf(a) {
				continue
			}
			if lca := LCA(a, b); lca == nil || lca.Kind != KindParallel {
				return false
			}
		}
	}
	return true
}

// LCA returns the deepest node that is a proper ancestor of both a and b, or a
// common node when one contains the other.
func LCA(a, b *Node) *Node {
	for a.depth > b.depth {
		a = a.parent
	}
	for b.depth > a.depth {
		b = b.parent
	}
	for a != b {
		a, b = a.parent, b.parent
		if a == nil || b == nil {
			return nil
		}
	}
	return a
}

func checkID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("state id is required")
	case strings.Contains(id, PathSeparator):
		return fmt.Errorf("state id '%s' must not contain '%s'", id, PathSeparator)
	case strings.HasPrefix(id, "#"), id == Wildcard:
		return fmt.Errorf("state id '%s' is reserved", id)
	}
	return nil
}
