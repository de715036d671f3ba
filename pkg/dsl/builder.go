package dsl

import (
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
)

// Builder manages the construction of one machine.
type Builder struct {
	root    *NodeBuilder
	context domain.Context
	opts    []domain.MachineOption
}

// New creates a builder for a machine with the given ID.
func New(id string) *Builder {
	b := &Builder{}
	b.root = &NodeBuilder{node: &domain.Node{ID: id}, builder: b}
	return b
}

// Add creates a top-level state.
// If the state already exists, it returns the existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	return b.root.Add(id)
}

// Parallel makes every top-level state a region active at once.
func (b *Builder) Parallel() *Builder {
	b.root.node.Kind = domain.KindParallel
	return b
}

// Initial sets the top-level state entered first. Defaults to the first one added.
func (b *Builder) Initial(id string) *Builder {
	b.root.node.Initial = id
	return b
}

// Context adds a default context value. Map inputs are merged over the defaults.
func (b *Builder) Context(key string, value any) *Builder {
	if b.context == nil {
		b.context = make(domain.Context)
	}
	b.context[key] = value
	return b
}

// ContextFunc replaces the default context with a factory over the input.
func (b *Builder) ContextFunc(fn func(input any) (domain.Context, error)) *Builder {
	b.opts = append(b.opts, domain.WithContext(fn))
	return b
}

// Output sets the function computing the machine output.
func (b *Builder) Output(fn func(ctx domain.Context) any) *Builder {
	b.opts = append(b.opts, domain.WithOutput(fn))
	return b
}

// Build validates the tree and returns the machine. The builder must not be reused.
func (b *Builder) Build() (*domain.Machine, error) {
	opts := b.opts
	if b.context != nil {
		opts = append([]domain.MachineOption{domain.WithInitialContext(b.context)}, opts...)
	}
	m, err := domain.NewMachine(b.root.node, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build machine '%s': %w", b.root.node.ID, err)
	}
	return m, nil
}

// MustBuild is like Build but panics on an invalid machine.
func (b *Builder) MustBuild() *domain.Machine {
	m, err := b.Build()
	if err != nil {
		panic(err)
	}
	return m
}
