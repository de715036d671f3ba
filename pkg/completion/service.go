package completion

import (
	"context"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/mitchellh/mapstructure"
)

// RequestBuilder maps an invoke input to a completion request.
type RequestBuilder func(input any) (ports.CompletionRequest, error)

// ResultMapper maps the provider response to the invocation output.
type ResultMapper func(resp *ports.CompletionResponse) (any, error)

type binding struct {
	build  RequestBuilder
	result ResultMapper
	model  string
}

// BindOption configures Bind.
type BindOption func(*binding)

// WithRequest sets how the invoke input becomes a request.
func WithRequest(fn RequestBuilder) BindOption {
	return func(b *binding) {
		b.build = fn
	}
}

// WithResult sets how the response becomes the invocation output.
func WithResult(fn ResultMapper) BindOption {
	return func(b *binding) {
		b.result = fn
	}
}

// WithModel fills the request model when the input leaves it empty.
func WithModel(model string) BindOption {
	return func(b *binding) {
		b.model = model
	}
}

// Bind returns an invoke source calling svc. By default the input is decoded into a
// ports.CompletionRequest and the output is the *ports.CompletionResponse.
func Bind(svc ports.CompletionService, opts ...BindOption) domain.Service {
	b := &binding{
		build:  DecodeRequest,
		result: func(resp *ports.CompletionResponse) (any, error) { return resp, nil },
	}
	for _, opt := range opts {
		opt(b)
	}

	return func(ctx context.Context, input any) (any, error) {
		req, err := b.build(input)
		if err != nil {
			return nil, fmt.Errorf("failed to build completion request: %w", err)
		}
		if req.Model == "" {
			req.Model = b.model
		}
		resp, err := svc.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, fmt.Errorf("completion service returned no response")
		}
		return b.result(resp)
	}
}

// DecodeRequest accepts a CompletionRequest, a pointer to one, or a map decoded with
// mapstructure. A domain.Context with a "request" key is decoded from that key.
func DecodeRequest(input any) (ports.CompletionRequest, error) {
	switch v := input.(type) {
	case ports.CompletionRequest:
		return v, nil
	case *ports.CompletionRequest:
		if v == nil {
			return ports.CompletionRequest{}, fmt.Errorf("nil request")
		}
		return *v, nil
	case domain.Context:
		if req, ok := v["request"]; ok {
			return DecodeRequest(req)
		}
		input = map[string]any(v)
	}

	var req ports.CompletionRequest
	if err := mapstructure.Decode(input, &req); err != nil {
		return ports.CompletionRequest{}, err
	}
	return req, nil
}

// Content is a ResultMapper returning the assistant text.
func Content(resp *ports.CompletionResponse) (any, error) {
	return resp.Message.Content, nil
}
