// Package registry holds the named guards, actions, services and machines that a
// machine document refers to.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// ErrNotFound is wrapped by every lookup of an unregistered name.
var ErrNotFound = errors.New("not registered")

// InputFunc maps the context and the triggering event to an invoke or spawn input.
type InputFunc func(ctx domain.Context, ev domain.Event) any

// OutputFunc computes a machine output from its final context.
type OutputFunc func(ctx domain.Context) any

// Registry manages named implementations. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	guards   map[string]domain.Guard
	actions  map[string]domain.Action
	services map[string]domain.Service
	inputs   map[string]InputFunc
	outputs  map[string]OutputFunc
	machines map[string]*domain.Machine
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		guards:   make(map[string]domain.Guard),
		actions:  make(map[string]domain.Action),
		services: make(map[string]domain.Service),
		inputs:   make(map[string]InputFunc),
		outputs:  make(map[string]OutputFunc),
		machines: make(map[string]*domain.Machine),
	}
}

// RegisterGuard adds a guard. An existing guard with the same name is overwritten.
func (r *Registry) RegisterGuard(name string, g domain.Guard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guards[name] = g
}

// RegisterAction adds an action under name. The action's own name is replaced so
// faults report the registered one.
func (r *Registry) RegisterAction(name string, a domain.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = a.Named(name)
}

// RegisterService adds an invoke source.
func (r *Registry) RegisterService(name string, svc domain.Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[name] = svc
}

// RegisterInput adds an input mapper.
func (r *Registry) RegisterInput(name string, fn InputFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs[name] = fn
}

// RegisterOutput adds an output function.
func (r *Registry) RegisterOutput(name string, fn OutputFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[name] = fn
}

// RegisterMachine adds a machine that spawn actions can refer to by name.
func (r *Registry) RegisterMachine(name string, m *domain.Machine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.machines[name] = m
}

func (r *Registry) Guard(name string) (domain.Guard, error) {
	return lookup(r, r.guards, "guard", name)
}

func (r *Registry) Action(name string) (domain.Action, error) {
	return lookup(r, r.actions, "action", name)
}

func (r *Registry) Service(name string) (domain.Service, error) {
	return lookup(r, r.services, "service", name)
}

func (r *Registry) Input(name string) (InputFunc, error) {
	return lookup(r, r.inputs, "input", name)
}

func (r *Registry) Output(name string) (OutputFunc, error) {
	return lookup(r, r.outputs, "output", name)
}

func (r *Registry) Machine(name string) (*domain.Machine, error) {
	return lookup(r, r.machines, "machine", name)
}

// Execute looks up a service by name and runs it.
func (r *Registry) Execute(ctx context.Context, name string, input any) (any, error) {
	svc, err := r.Service(name)
	if err != nil {
		return nil, err
	}
	return svc(ctx, input)
}

// Names lists the registered names per category, sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		"guards":   keys(r.guards),
		"actions":  keys(r.actions),
		"services": keys(r.services),
		"inputs":   keys(r.inputs),
		"outputs":  keys(r.outputs),
		"machines": keys(r.machines),
	}
}

func lookup[T any](r *Registry, m map[string]T, kind, name string) (T, error) {
	r.mu.RLock()
	v, ok := m[name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s '%s': %w", kind, name, ErrNotFound)
	}
	return v, nil
}

func keys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
