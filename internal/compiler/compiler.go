package compiler

import (
	"fmt"
	"maps"
	"os"

	"github.com/aretw0/arbor/internal/dto"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/registry"
)

// Compiler turns machine documents into validated machines, binding every guard,
// action, service, input and output name against a registry.
type Compiler struct {
	registry *registry.Registry
	parser   *Parser
}

// New creates a compiler. A nil registry only allows the built-in actions.
func New(reg *registry.Registry) *Compiler {
	if reg == nil {
		reg = registry.NewRegistry()
	}
	return &Compiler{registry: reg, parser: NewParser()}
}

// Compile parses and builds a document.
func (c *Compiler) Compile(data []byte) (*domain.Machine, error) {
	doc, err := c.parser.Parse(data)
	if err != nil {
		return nil, err
	}
	return c.Build(doc)
}

// CompileFile reads, parses and builds the document at path.
func (c *Compiler) CompileFile(path string) (*domain.Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read machine document: %w", err)
	}
	m, err := c.Compile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Build binds a parsed document. Child machines declared under machines are built
// first, each one visible to the machines declared after it.
func (c *Compiler) Build(doc *dto.MachineDocument) (*domain.Machine, error) {
	return c.build(doc, map[string]*domain.Machine{})
}

type binder struct {
	c      *Compiler
	locals map[string]*domain.Machine
	issues *domain.ValidationError
}

func (c *Compiler) build(doc *dto.MachineDocument, locals map[string]*domain.Machine) (*domain.Machine, error) {
	scope := maps.Clone(locals)
	for i := range doc.Machines {
		child, err := c.build(&doc.Machines[i], scope)
		if err != nil {
			return nil, fmt.Errorf("machine '%s': %w", doc.Machines[i].ID, err)
		}
		scope[child.ID] = child
	}

	b := &binder{c: c, locals: scope, issues: &domain.ValidationError{}}
	root := &domain.Node{
		ID:      doc.ID,
		Kind:    domain.Kind(doc.Type),
		Initial: doc.Initial,
	}
	for _, s := range doc.States {
		root.Children = append(root.Children, b.node(s))
	}

	var opts []domain.MachineOption
	if doc.Context != nil {
		opts = append(opts, domain.WithInitialContext(domain.Context(doc.Context)))
	}
	if doc.Output != "" {
		out, err := c.registry.Output(doc.Output)
		if err != nil {
			b.issues.AddIssue(domain.ErrCodeMissingAction, err.Error(), "output")
		} else {
			opts = append(opts, domain.WithOutput(out))
		}
	}

	if b.issues.HasIssues() {
		return nil, b.issues
	}
	return domain.NewMachine(root, opts...)
}

func (b *binder) node(s dto.StateDocument) *domain.Node {
	n := &domain.Node{
		ID:      s.ID,
		Kind:    domain.Kind(s.Type),
		Initial: s.Initial,
		Meta:    s.Meta,
	}
	if s.Description != "" {
		if n.Meta == nil {
			n.Meta = make(map[string]any)
		}
		n.Meta["description"] = s.Description
	}

	n.Entry = b.actions(s.Entry, s.ID, "entry")
	n.Exit = b.actions(s.Exit, s.ID, "exit")
	n.On = b.transitions(s.On, s.ID, "on")
	n.Always = b.transitions(s.Always, s.ID, "always")
	n.OnDone = b.transitions(s.OnDone, s.ID, "on_done")

	if inv := s.Invoke; inv != nil {
		n.Invoke = &domain.Invoke{
			ID:      inv.ID,
			SrcName: inv.Src,
			OnDone:  b.transitions(inv.OnDone, s.ID, "invoke.on_done"),
			OnError: b.transitions(inv.OnError, s.ID, "invoke.on_error"),
		}
		// An unknown service leaves Src nil and is reported by the machine validation.
		if svc, err := b.c.registry.Service(inv.Src); err == nil {
			n.Invoke.Src = svc
		}
		if inv.Input != "" {
			if in, err := b.c.registry.Input(inv.Input); err != nil {
				b.issues.AddIssue(domain.ErrCodeInvalidInvoke, err.Error(), s.ID, "invoke.input")
			} else {
				n.Invoke.Input = in
			}
		}
	}

	for _, child := range s.States {
		n.Children = append(n.Children, b.node(child))
	}
	return n
}

func (b *binder) transitions(in []dto.Transition, loc ...string) []*domain.Transition {
	out := make([]*domain.Transition, 0, len(in))
	for _, t := range in {
		dt := &domain.Transition{
			Event:     t.Event,
			Targets:   t.AllTargets(),
			GuardName: t.Guard,
			Reenter:   t.Reenter,
			Actions:   b.actions(t.Actions, loc...),
		}
		// An unknown guard is reported by the machine validation.
		if t.Guard != "" {
			if g, err := b.c.registry.Guard(t.Guard); err == nil {
				dt.Guard = g
			}
		}
		out = append(out, dt)
	}
	return out
}

func (b *binder) actions(in []dto.Action, loc ...string) []domain.Action {
	out := make([]domain.Action, 0, len(in))
	for _, a := range in {
		act, err := b.action(a)
		if err != nil {
			b.issues.AddIssue(domain.ErrCodeMissingAction, err.Error(), loc...)
			continue
		}
		out = append(out, act)
	}
	return out
}

func (b *binder) action(a dto.Action) (domain.Action, error) {
	set := 0
	for _, ok := range []bool{a.Name != "", a.Assign != nil, a.Raise != "", a.Emit != "", a.Spawn != nil, a.SendTo != "", a.Forward != "", a.Stop != ""} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return domain.Action{}, fmt.Errorf("action must declare exactly one of name, assign, raise, emit, spawn, send_to, forward or stop")
	}

	switch {
	case a.Name != "":
		return b.c.registry.Action(a.Name)

	case a.Assign != nil:
		patch := maps.Clone(a.Assign)
		return domain.Assign(func(domain.Context, domain.Event) (map[string]any, error) {
			return maps.Clone(patch), nil
		}), nil

	case a.Raise != "":
		return domain.RaiseStatic(a.Raise), nil

	case a.Emit != "":
		return domain.EmitStatic(a.Emit, a.Data), nil

	case a.Spawn != nil:
		return b.spawn(a.Spawn)

	case a.SendTo != "":
		eventType := a.Event
		return domain.SendTo(a.SendTo, func(_ domain.Context, ev domain.Event) (domain.Event, error) {
			out := domain.NewEvent(ev.Type, ev.Payload)
			if eventType != "" {
				out.Type = eventType
			}
			return out, nil
		}), nil

	case a.Forward != "":
		return domain.Forward(a.Forward), nil

	default:
		return domain.StopChild(a.Stop), nil
	}
}

func (b *binder) spawn(s *dto.Spawn) (domain.Action, error) {
	spec := domain.SpawnSpec{
		ID:          s.ID,
		SaveTo:      s.SaveTo,
		AutoForward: s.AutoForward,
		Relay:       s.Relay,
	}
	if m, ok := b.locals[s.Machine]; ok {
		spec.Machine = m
	} else if m, err := b.c.registry.Machine(s.Machine); err == nil {
		spec.Machine = m
	} else {
		return domain.Action{}, fmt.Errorf("spawn: %w", err)
	}
	if s.Input != "" {
		in, err := b.c.registry.Input(s.Input)
		if err != nil {
			return domain.Action{}, fmt.Errorf("spawn: %w", err)
		}
		spec.Input = in
	}
	return domain.SpawnActor(spec), nil
}
