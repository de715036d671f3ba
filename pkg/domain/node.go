package domain

import "strings"

// Kind defines how a node composes its children.
type Kind string

const (
	// KindAtomic is a leaf state.
	KindAtomic Kind = "atomic"
	// KindCompound has exactly one active child while active.
	KindCompound Kind = "compound"
	// KindParallel has all of its children (regions) active while active.
	KindParallel Kind = "parallel"
	// KindFinal is a leaf that completes its parent.
	KindFinal Kind = "final"
)

// Node represents one state of a statechart.
//
// Kind may be left empty: NewMachine infers KindCompound for nodes with children
// and KindAtomic otherwise.
type Node struct {
	ID   string `json:"id" yaml:"id"`
	Kind Kind   `json:"kind,omitempty" yaml:"kind,omitempty"`

	// Initial names the child entered by default. Defaults to the first child.
	Initial  string  `json:"initial,omitempty" yaml:"initial,omitempty"`
	Children []*Node `json:"children,omitempty" yaml:"children,omitempty"`

	Invoke *Invoke `json:"invoke,omitempty" yaml:"invoke,omitempty"`

	// On holds event transitions, matched in declaration order.
	On []*Transition `json:"on,omitempty" yaml:"on,omitempty"`
	// Always holds eventless transitions, checked after every microstep.
	Always []*Transition `json:"always,omitempty" yaml:"always,omitempty"`
	// OnDone holds transitions taken when a compound child reaches a final state or
	// every region of a parallel node is complete.
	OnDone []*Transition `json:"on_done,omitempty" yaml:"on_done,omitempty"`

	Entry []Action `json:"-" yaml:"-"`
	Exit  []Action `json:"-" yaml:"-"`

	Meta map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`

	path     string
	parent   *Node
	depth    int
	order    int
	handlers []*Transition
}

// Path returns the dot-joined chain of IDs from the top-level state to this node.
// The machine root has an empty path. Only valid after NewMachine.
func (n *Node) Path() string { return n.path }

// Parent returns the enclosing node, or nil for the machine root.
func (n *Node) Parent() *Node { return n.parent }

// Depth is 0 for the root, 1 for top-level states and so on.
func (n *Node) Depth() int { return n.depth }

// Order is the position of the node in document order (pre-order traversal).
func (n *Node) Order() int { return n.order }

// Handlers returns every event transition of the node in matching order: On,
// then the invoke's OnDone/OnError, then OnDone.
func (n *Node) Handlers() []*Transition { return n.handlers }

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// IsRoot reports whether the node is the machine root.
func (n *Node) IsRoot() bool { return n.parent == nil }

// Child returns the direct child with the given ID.
func (n *Node) Child(id string) *Node {
	for _, c := range n.Children {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// InitialChild returns the child entered by default for a compound node.
func (n *Node) InitialChild() *Node {
	if len(n.Children) == 0 {
		return nil
	}
	if n.Initial == "" {
		return n.Children[0]
	}
	return n.Child(n.Initial)
}

// IsDescendantOf reports whether n is a strict descendant of anc.
func (n *Node) IsDescendantOf(anc *Node) bool {
	for p := n.parent; p != nil; p = p.parent {
		if p == anc {
			return true
		}
	}
	return false
}

// Ancestors returns the chain of proper ancestors from the parent up to the root.
func (n *Node) Ancestors() []*Node {
	var out []*Node
	for p := n.parent; p != nil; p = p.parent {
		out = append(out, p)
	}
	return out
}

// JoinPath joins node IDs into a state path.
func JoinPath(ids ...string) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			parts = append(parts, id)
		}
	}
	return strings.Join(parts, PathSeparator)
}

// IsPathWithin reports whether path equals prefix or is nested below it.
func IsPathWithin(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+PathSeparator)
}
