package domain

// Invoke binds an asynchronous Service to the lifetime of one state activation.
// Entering the state starts the service, exiting it cancels the service and discards
// any late result.
type Invoke struct {
	// ID names the invocation in done.invoke.<id> and error.invoke.<id>.
	// Defaults to the path of the owning state.
	ID  string  `json:"id,omitempty" yaml:"id,omitempty"`
	Src Service `json:"-" yaml:"-"`
	// SrcName is the registered name of Src, kept for rendering.
	SrcName string `json:"src,omitempty" yaml:"src,omitempty"`

	// Input maps the context and the entering event to the service input.
	// Defaults to the context itself.
	Input func(ctx Context, ev Event) any `json:"-" yaml:"-"`

	OnDone  []*Transition `json:"on_done,omitempty" yaml:"on_done,omitempty"`
	OnError []*Transition `json:"on_error,omitempty" yaml:"on_error,omitempty"`
}

// BuildInput computes the service input.
func (inv *Invoke) BuildInput(ctx Context, ev Event) any {
	if inv.Input == nil {
		return ctx.Clone()
	}
	return inv.Input(ctx, ev)
}
