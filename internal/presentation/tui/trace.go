package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/muesli/termenv"
)

// Tracer prints the evolution of a running interpreter: the states entered and
// exited at each macrostep, context changes and emitted signals.
type Tracer struct {
	mu      sync.Mutex
	out     io.Writer
	profile termenv.Profile
	render  func(string) (string, error)
	last    map[string]*domain.Snapshot
	visited map[string][]string
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithProfile sets the color profile. Defaults to termenv.Ascii.
func WithProfile(p termenv.Profile) TracerOption {
	return func(t *Tracer) { t.profile = p }
}

// WithMarkdown renders string signal data and string outputs through render.
func WithMarkdown(render func(string) (string, error)) TracerOption {
	return func(t *Tracer) { t.render = render }
}

// NewTracer creates a tracer writing to out.
func NewTracer(out io.Writer, opts ...TracerOption) *Tracer {
	t := &Tracer{
		out:     out,
		profile: termenv.Ascii,
		last:    make(map[string]*domain.Snapshot),
		visited: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracer) paint(s, color string) termenv.Style {
	return t.profile.String(s).Foreground(t.profile.Color(color))
}

// Snapshot prints what changed since the previous snapshot of the same interpreter.
func (t *Tracer) Snapshot(snap domain.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.last[snap.ID]
	diff := domain.Diff(prev, &snap)
	t.last[snap.ID] = &snap
	if diff == nil {
		return
	}

	for _, p := range diff.Entered {
		if !slices.Contains(t.visited[snap.ID], p) {
			t.visited[snap.ID] = append(t.visited[snap.ID], p)
		}
	}

	label := snap.Machine
	if label == "" {
		label = snap.ID
	}
	fmt.Fprintf(t.out, "%s %s\n", t.paint("●", "#60a5fa"), t.paint(label, "#94a3b8"))
	for _, p := range diff.Exited {
		fmt.Fprintf(t.out, "  %s %s\n", t.paint("-", "#f87171"), p)
	}
	for _, p := range diff.Entered {
		fmt.Fprintf(t.out, "  %s %s\n", t.paint("+", "#34d399"), p)
	}
	for _, k := range slices.Sorted(maps.Keys(diff.Context)) {
		fmt.Fprintf(t.out, "  %s %s = %s\n", t.paint("~", "#fbbf24"), k, compact(diff.Context[k]))
	}

	if diff.Status != nil && *diff.Status != domain.StatusActive {
		color := "#34d399"
		if *diff.Status != domain.StatusDone {
			color = "#f87171"
		}
		fmt.Fprintf(t.out, "  %s %s\n", t.paint("status", color).Bold(), *diff.Status)
		if snap.Error != "" {
			fmt.Fprintf(t.out, "  %s %s\n", t.paint("error", "#f87171"), snap.Error)
		}
		if snap.Output != nil {
			fmt.Fprintf(t.out, "  %s %s\n", t.paint("output", "#34d399"), t.text(snap.Output))
		}
	}
}

// Signal prints an emitted signal.
func (t *Tracer) Signal(sig domain.Signal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	src := ""
	if sig.Source != "" {
		src = " " + t.paint("("+sig.Source+")", "#94a3b8").String()
	}
	fmt.Fprintf(t.out, "%s %s%s", t.paint("⚡", "#c084fc"), t.paint(sig.Type, "#c084fc").Bold(), src)
	if sig.Data != nil {
		fmt.Fprintf(t.out, " %s", t.text(sig.Data))
	}
	fmt.Fprintln(t.out)
}

// Visited returns the paths entered so far by the interpreter with the given ID,
// in the order they were first entered.
func (t *Tracer) Visited(id string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.visited[id])
}

func (t *Tracer) text(v any) string {
	s, ok := v.(string)
	if !ok || t.render == nil {
		return compact(v)
	}
	out, err := t.render(s)
	if err != nil {
		return s
	}
	return "\n" + strings.TrimRight(out, "\n")
}

func compact(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
