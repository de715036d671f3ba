// Package process executes model tool calls as allow-listed local commands.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/mitchellh/mapstructure"
)

// ArgPrefix prefixes the environment variables carrying tool call arguments.
const ArgPrefix = "ARBOR_ARG_"

// ErrToolNotRegistered is returned for a tool call outside the allow-list.
var ErrToolNotRegistered = errors.New("tool not registered")

var argName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Result is the output of a tool invocation.
type Result struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Value is the decoded JSON stdout, or the trimmed text when it is not JSON.
	Value any `json:"value"`
}

// Message returns the tool message answering the call.
func (r Result) Message() ports.Message {
	content, ok := r.Value.(string)
	if !ok {
		data, _ := json.Marshal(r.Value)
		content = string(data)
	}
	return ports.Message{Role: ports.RoleTool, ToolCallID: r.ID, Name: r.Name, Content: content}
}

type registered struct {
	command string
	args    []string
	env     map[string]string
}

// Runner executes allow-listed commands. Arguments never reach the command line:
// each one is passed as an ARBOR_ARG_<NAME> environment variable.
type Runner struct {
	registry map[string]registered
	baseDir  string
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithTools populates the allow-list from a loaded config.
func WithTools(tools []ToolConfig) RunnerOption {
	return func(r *Runner) {
		for _, t := range tools {
			r.registry[t.Name] = registered{command: t.Command, args: t.Args, env: t.Environment}
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// NewRunner creates a process runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{registry: make(map[string]registered)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name, command string, args ...string) {
	r.registry[name] = registered{command: command, args: args}
}

// Names returns the allow-listed tool names, sorted.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.registry))
	for name := range r.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the command registered for call.Name. A non-zero exit is an error
// carrying stderr.
func (r *Runner) Execute(ctx context.Context, call ports.ToolCall) (Result, error) {
	proc, ok := r.registry[call.Name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrToolNotRegistered, call.Name)
	}

	env, err := argEnv(call.Arguments)
	if err != nil {
		return Result{}, fmt.Errorf("tool '%s': %w", call.Name, err)
	}

	cmd := exec.CommandContext(ctx, proc.command, proc.args...)
	cmd.Dir = r.baseDir
	cmd.Env = cmd.Environ()
	for k, v := range proc.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Env = append(cmd.Env, env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, fmt.Errorf("tool '%s' failed: %w: %s", call.Name, err, strings.TrimSpace(stderr.String()))
	}
	return Result{ID: call.ID, Name: call.Name, Value: decodeOutput(stdout.String())}, nil
}

// Service returns an invoke source executing the tool call given as input. The
// input is a ports.ToolCall, a map decoded into one, or a *ports.CompletionResponse
// whose first tool call is run.
func (r *Runner) Service() domain.Service {
	return func(ctx context.Context, input any) (any, error) {
		call, err := DecodeCall(input)
		if err != nil {
			return nil, err
		}
		return r.Execute(ctx, call)
	}
}

// DecodeCall extracts the tool call from an invoke input.
func DecodeCall(input any) (ports.ToolCall, error) {
	switch v := input.(type) {
	case ports.ToolCall:
		return v, nil
	case *ports.CompletionResponse:
		if v == nil || len(v.Message.ToolCalls) == 0 {
			return ports.ToolCall{}, fmt.Errorf("completion response has no tool call")
		}
		return v.Message.ToolCalls[0], nil
	}
	var call ports.ToolCall
	if err := mapstructure.Decode(input, &call); err != nil {
		return ports.ToolCall{}, fmt.Errorf("invalid tool call: %w", err)
	}
	if call.Name == "" {
		return ports.ToolCall{}, fmt.Errorf("invalid tool call: missing name")
	}
	return call, nil
}

func argEnv(args map[string]any) ([]string, error) {
	env := make([]string, 0, len(args))
	for k, v := range args {
		if !argName.MatchString(k) {
			return nil, fmt.Errorf("invalid argument name %q", k)
		}
		var val string
		switch v.(type) {
		case nil:
		case string, bool, int, int64, float64:
			val = fmt.Sprint(v)
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("argument %s: %w", k, err)
			}
			val = string(data)
		}
		env = append(env, ArgPrefix+strings.ToUpper(k)+"="+val)
	}
	sort.Strings(env)
	return env, nil
}

func decodeOutput(out string) any {
	trimmed := strings.TrimSpace(out)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return trimmed
}
