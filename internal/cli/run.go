package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aretw0/arbor/internal/presentation/graph"
	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/runner"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// RunOptions contains all the configuration for the run command.
// Flag values override the configuration file.
type RunOptions struct {
	MachinePath string
	ConfigPath  string
	// Input is the machine input as JSON, or @file.
	Input string
	// JSON switches both the event input and the trace output to JSON lines.
	JSON   bool
	Script string
	// Tools is a tools file bound as the run_tool service.
	Tools       string
	LogLevel    string
	MetricsAddr string
	// Wait bounds how long a machine may keep running once the input ends.
	Wait time.Duration
	// GraphOut, when set, receives a Mermaid diagram of the run.
	GraphOut string
	Quiet    bool
}

// Streams are the process streams a command uses.
type Streams struct {
	In       io.Reader
	Out      io.Writer
	Err      io.Writer
	Terminal tui.Terminal
}

// StdStreams returns the process streams.
func StdStreams() Streams {
	return Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr, Terminal: tui.Detect(os.Stdout)}
}

// Execute runs a machine document, feeding it the events read from s.In.
func Execute(ctx context.Context, opts RunOptions, s Streams) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.MetricsAddr != "" {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	if opts.Script != "" {
		cfg.Completion.Script = opts.Script
	}
	if opts.Tools != "" {
		cfg.Tools = opts.Tools
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := createLogger(cfg, s.Err)
	if err != nil {
		return err
	}

	reg, closeCache, err := createRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeCache(); err != nil {
			logger.Warn("failed to close completion cache", "err", err)
		}
	}()

	machine, err := compileMachine(opts.MachinePath, reg)
	if err != nil {
		return err
	}
	input, err := parseInput(opts.Input)
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(promReg)
	if err != nil {
		return err
	}
	hooks := observability.Combine(metrics.Hooks(), observability.LogHooks(logger))
	interp := runtime.New(machine, input, interpreterOptions(cfg, logger, hooks)...)

	source, observer, tracer, err := createIO(opts, s)
	if err != nil {
		return err
	}
	r := runner.NewRunner(
		runner.WithSource(source),
		runner.WithObserver(observer),
		runner.WithLogger(logger),
		runner.WithWait(opts.Wait),
	)

	if !opts.JSON && !opts.Quiet {
		printSystemMessage(s.Out, "Running '%s' (%s).", machine.ID, interp.ID())
	}

	var final domain.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	runCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	g.Go(func() error {
		defer stopServer()
		var runErr error
		final, runErr = r.Run(gctx, interp)
		return runErr
	})

	if cfg.MetricsAddr != "" {
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: newRouter(promReg), ReadHeaderTimeout: 5 * time.Second}
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
		g.Go(func() error {
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()

	if opts.GraphOut != "" {
		overlay := &graph.GraphOverlay{VisitedStates: tracer.Visited(interp.ID()), Active: final.Configuration}
		if err := os.WriteFile(opts.GraphOut, []byte(graph.GenerateMermaid(machine, overlay)), 0o644); err != nil {
			return fmt.Errorf("failed to write graph: %w", err)
		}
	}

	return handleExecutionError(runErr)
}

// createIO picks the event source and the observers. The tracer always runs, even
// with JSON output, because it records the visited states for the graph overlay.
func createIO(opts RunOptions, s Streams) (runner.EventSource, runner.Observer, *tui.Tracer, error) {
	if opts.JSON {
		tracer := tui.NewTracer(io.Discard)
		return runner.NewJSONSource(s.In), runner.Observers{runner.NewJSONObserver(s.Out), tracer}, tracer, nil
	}

	out := s.Out
	if opts.Quiet {
		out = io.Discard
	}
	tracerOpts := []tui.TracerOption{tui.WithProfile(s.Terminal.Profile)}
	if s.Terminal.Interactive {
		render, err := tui.NewRenderer(s.Terminal.Width)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create markdown renderer: %w", err)
		}
		tracerOpts = append(tracerOpts, tui.WithMarkdown(render))
	}
	tracer := tui.NewTracer(out, tracerOpts...)
	return runner.NewTextSource(s.In), tracer, tracer, nil
}
