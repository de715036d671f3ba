package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	// VisitedStates are paths entered at some point of the run.
	VisitedStates []string
	// Active is the current configuration.
	Active []string
}

// GenerateMermaid renders a machine as a Mermaid stateDiagram-v2.
// Compound states nest, parallel regions are separated by "--", final states
// point at [*] and invocations appear as state descriptions.
// Overlay styles (visited/current) are applied when overlay is not nil.
func GenerateMermaid(m *domain.Machine, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("stateDiagram-v2\n")

	w := &writer{sb: &sb}
	w.children(m.Root, 1)

	for _, n := range m.Nodes() {
		w.transitions(n)
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000\n")

		active := make(map[string]bool, len(overlay.Active))
		for _, p := range overlay.Active {
			if _, ok := m.Node(p); ok && p != "" {
				active[p] = true
			}
		}

		seen := make(map[string]bool)
		for _, p := range overlay.VisitedStates {
			if _, ok := m.Node(p); !ok || p == "" || seen[p] || active[p] {
				continue
			}
			seen[p] = true
			fmt.Fprintf(&sb, "    class %s visited\n", sanitizeMermaidID(p))
		}
		for _, p := range overlay.Active {
			if active[p] {
				fmt.Fprintf(&sb, "    class %s current\n", sanitizeMermaidID(p))
			}
		}
	}

	return sb.String()
}

type writer struct {
	sb *strings.Builder
}

func (w *writer) indent(depth int) string {
	return strings.Repeat("    ", depth)
}

// children declares the children of n. Parallel regions are separated with "--"
// and compound states get an initial pseudo-state arrow.
func (w *writer) children(n *domain.Node, depth int) {
	pad := w.indent(depth)
	if n.Kind != domain.KindParallel {
		if init := n.InitialChild(); init != nil {
			fmt.Fprintf(w.sb, "%s[*] --> %s\n", pad, sanitizeMermaidID(init.Path()))
		}
	}
	for i, c := range n.Children {
		if i > 0 && n.Kind == domain.KindParallel {
			fmt.Fprintf(w.sb, "%s--\n", pad)
		}
		w.state(c, depth)
	}
}

func (w *writer) state(n *domain.Node, depth int) {
	pad := w.indent(depth)
	id := sanitizeMermaidID(n.Path())

	fmt.Fprintf(w.sb, "%sstate \"%s\" as %s\n", pad, escape(n.ID), id)
	if n.Kind == domain.KindParallel {
		fmt.Fprintf(w.sb, "%s%s : parallel\n", pad, id)
	}
	if inv := n.Invoke; inv != nil {
		src := inv.SrcName
		if src == "" {
			src = inv.ID
		}
		fmt.Fprintf(w.sb, "%s%s : invoke %s\n", pad, id, escape(src))
	}
	if n.Kind == domain.KindFinal {
		fmt.Fprintf(w.sb, "%s%s --> [*]\n", pad, id)
	}

	if !n.IsLeaf() {
		fmt.Fprintf(w.sb, "%sstate %s {\n", pad, id)
		w.children(n, depth+1)
		fmt.Fprintf(w.sb, "%s}\n", pad)
	}
}

// transitions draws every targeted transition of n. Targetless transitions do not
// change the configuration and are left out.
func (w *writer) transitions(n *domain.Node) {
	from := sanitizeMermaidID(n.Path())
	draw := func(label string, t *domain.Transition) {
		if t.GuardName != "" {
			label = fmt.Sprintf("%s [%s]", label, t.GuardName)
		} else if t.Guard != nil {
			label += " [guard]"
		}
		for _, target := range t.TargetNodes() {
			fmt.Fprintf(w.sb, "    %s --> %s : %s\n", from, sanitizeMermaidID(target.Path()), escape(label))
		}
	}

	for _, t := range n.Handlers() {
		draw(t.Event, t)
	}
	for _, t := range n.Always {
		draw("always", t)
	}
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.ReplaceAll(s, ":", "#58;")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
