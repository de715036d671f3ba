package completion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/arbor/pkg/ports"
	"gopkg.in/yaml.v3"
)

// ErrScriptExhausted is returned when no scripted step matches a request.
var ErrScriptExhausted = errors.New("no scripted completion left for request")

// ScriptToolCall is a tool call in a script file.
type ScriptToolCall struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	Arguments map[string]any `yaml:"arguments"`
}

// ScriptStep is one canned response.
type ScriptStep struct {
	// Match, when set, restricts the step to requests whose last user message contains it.
	Match     string           `yaml:"match"`
	Content   string           `yaml:"content"`
	ToolCalls []ScriptToolCall `yaml:"tool_calls"`
	// Error makes the step fail with this message.
	Error string        `yaml:"error"`
	Delay time.Duration `yaml:"delay"`
}

// Script is the on-disk format of a scripted provider.
type Script struct {
	Steps []ScriptStep `yaml:"steps"`
}

// Scripted is a deterministic CompletionService. Each step answers at most one
// request; steps are tried in declaration order.
type Scripted struct {
	mu    sync.Mutex
	steps []ScriptStep
	used  []bool
	calls []ports.CompletionRequest
}

// NewScripted creates a provider replaying steps.
func NewScripted(steps ...ScriptStep) *Scripted {
	return &Scripted{steps: steps, used: make([]bool, len(steps))}
}

// LoadScript reads a YAML script file.
func LoadScript(path string) (*Scripted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript parses a YAML script.
func ParseScript(data []byte) (*Scripted, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	return NewScripted(s.Steps...), nil
}

// Complete answers req with the first unused matching step.
func (s *Scripted) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	step, err := s.next(req)
	if err != nil {
		return nil, err
	}

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if step.Error != "" {
		return nil, errors.New(step.Error)
	}

	resp := &ports.CompletionResponse{
		Message:      ports.Message{Role: ports.RoleAssistant, Content: step.Content},
		FinishReason: "stop",
	}
	for _, tc := range step.ToolCalls {
		resp.Message.ToolCalls = append(resp.Message.ToolCalls, ports.ToolCall{
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: tc.Arguments,
		})
	}
	if len(resp.Message.ToolCalls) > 0 {
		resp.FinishReason = "tool_calls"
	}
	return resp, nil
}

// Calls returns every request received so far.
func (s *Scripted) Calls() []ports.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.CompletionRequest(nil), s.calls...)
}

func (s *Scripted) next(req ports.CompletionRequest) (ScriptStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)

	prompt := lastUserMessage(req)
	for i, step := range s.steps {
		if s.used[i] {
			continue
		}
		if step.Match != "" && !strings.Contains(prompt, step.Match) {
			continue
		}
		s.used[i] = true
		return step, nil
	}
	return ScriptStep{}, fmt.Errorf("%w: %q", ErrScriptExhausted, prompt)
}

func lastUserMessage(req ports.CompletionRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ports.RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}
