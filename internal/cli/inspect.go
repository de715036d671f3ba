package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/arbor/internal/presentation/graph"
	"github.com/aretw0/arbor/pkg/domain"
)

// InspectOptions configures validate and graph.
type InspectOptions struct {
	MachinePath string
	ConfigPath  string
	// Active and Visited paths are highlighted by graph.
	Active  []string
	Visited []string
}

// Validate compiles the document and reports every structural issue to w.
func Validate(ctx context.Context, opts InspectOptions, w io.Writer) error {
	m, err := inspectMachine(ctx, opts)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			for _, issue := range verr.Issues {
				fmt.Fprintf(w, "  - %s\n", issue)
			}
		}
		return err
	}
	fmt.Fprintf(w, "Machine '%s' is valid! ✅ (%d states)\n", m.ID, len(m.Nodes()))
	return nil
}

// Graph writes the Mermaid diagram of the document to w.
func Graph(ctx context.Context, opts InspectOptions, w io.Writer) error {
	m, err := inspectMachine(ctx, opts)
	if err != nil {
		return err
	}
	var overlay *graph.GraphOverlay
	if len(opts.Active) > 0 || len(opts.Visited) > 0 {
		overlay = &graph.GraphOverlay{Active: opts.Active, VisitedStates: opts.Visited}
	}
	_, err = io.WriteString(w, graph.GenerateMermaid(m, overlay))
	return err
}

func inspectMachine(ctx context.Context, opts InspectOptions) (*domain.Machine, error) {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	logger, err := createLogger(cfg, io.Discard)
	if err != nil {
		return nil, err
	}
	// Validation must not reach the cache backend.
	cfg.Completion.Cache = ""
	reg, closeCache, err := createRegistry(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer closeCache()
	return compileMachine(opts.MachinePath, reg)
}
