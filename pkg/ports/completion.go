package ports

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one chat message.
type Message struct {
	Role       string     `json:"role" mapstructure:"role"`
	Content    string     `json:"content,omitempty" mapstructure:"content"`
	Name       string     `json:"name,omitempty" mapstructure:"name"`
	ToolCallID string     `json:"tool_call_id,omitempty" mapstructure:"tool_call_id"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty" mapstructure:"tool_calls"`
}

// Tool describes a function the model may call.
type Tool struct {
	Name        string         `json:"name" mapstructure:"name"`
	Description string         `json:"description,omitempty" mapstructure:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" mapstructure:"parameters"`
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID        string         `json:"id" mapstructure:"id"`
	Name      string         `json:"name" mapstructure:"name"`
	Arguments map[string]any `json:"arguments,omitempty" mapstructure:"arguments"`
}

// CompletionRequest is the provider-neutral request.
type CompletionRequest struct {
	Model       string    `json:"model,omitempty" mapstructure:"model"`
	Messages    []Message `json:"messages" mapstructure:"messages"`
	Tools       []Tool    `json:"tools,omitempty" mapstructure:"tools"`
	Temperature *float64  `json:"temperature,omitempty" mapstructure:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty" mapstructure:"max_tokens"`
}

// Usage reports token accounting when the provider exposes it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// CompletionResponse is the provider-neutral response.
type CompletionResponse struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Usage        Usage   `json:"usage"`
}

// Fingerprint returns a stable hex digest of the request, used as a cache key.
func (r CompletionRequest) Fingerprint() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// CompletionService performs one completion round trip.
// Implementations must honour ctx cancellation.
type CompletionService interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionFunc adapts a function to CompletionService.
type CompletionFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

// Complete calls f.
func (f CompletionFunc) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return f(ctx, req)
}
