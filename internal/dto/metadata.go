// Package dto holds the shape of machine documents before they are bound to a
// registry. Field names follow the snake_case keys of the YAML and JSON documents.
package dto

// MachineDocument is the top level of a machine document.
type MachineDocument struct {
	ID          string         `json:"id" mapstructure:"id"`
	Description string         `json:"description,omitempty" mapstructure:"description"`
	Type        string         `json:"type,omitempty" mapstructure:"type"`
	Initial     string         `json:"initial,omitempty" mapstructure:"initial"`
	Context     map[string]any `json:"context,omitempty" mapstructure:"context"`
	// Output names a registered output function.
	Output string `json:"output,omitempty" mapstructure:"output"`

	States []StateDocument `json:"states" mapstructure:"-"`
	// Machines are child machine documents that spawn actions can refer to by ID.
	Machines []MachineDocument `json:"machines,omitempty" mapstructure:"-"`
}

// StateDocument represents one state. Children and event transitions are decoded
// from ordered YAML nodes, the rest through mapstructure.
type StateDocument struct {
	ID          string         `json:"id" mapstructure:"-"`
	Type        string         `json:"type,omitempty" mapstructure:"type"`
	Description string         `json:"description,omitempty" mapstructure:"description"`
	Initial     string         `json:"initial,omitempty" mapstructure:"initial"`
	Entry       []Action       `json:"entry,omitempty" mapstructure:"entry"`
	Exit        []Action       `json:"exit,omitempty" mapstructure:"exit"`
	Always      []Transition   `json:"always,omitempty" mapstructure:"always"`
	OnDone      []Transition   `json:"on_done,omitempty" mapstructure:"on_done"`
	Invoke      *Invoke        `json:"invoke,omitempty" mapstructure:"invoke"`
	Meta        map[string]any `json:"meta,omitempty" mapstructure:"meta"`

	On     []Transition    `json:"on,omitempty" mapstructure:"-"`
	States []StateDocument `json:"states,omitempty" mapstructure:"-"`
}

// Transition is written either as a bare target or as a mapping.
type Transition struct {
	Event   string   `json:"event,omitempty" mapstructure:"event"`
	Target  string   `json:"target,omitempty" mapstructure:"target"`
	Targets []string `json:"targets,omitempty" mapstructure:"targets"`
	Guard   string   `json:"guard,omitempty" mapstructure:"guard"`
	Actions []Action `json:"actions,omitempty" mapstructure:"actions"`
	Reenter bool     `json:"reenter,omitempty" mapstructure:"reenter"`
}

// AllTargets merges Target and Targets.
func (t Transition) AllTargets() []string {
	if t.Target == "" {
		return t.Targets
	}
	return append([]string{t.Target}, t.Targets...)
}

// Invoke binds a registered service to a state.
type Invoke struct {
	ID      string       `json:"id,omitempty" mapstructure:"id"`
	Src     string       `json:"src" mapstructure:"src"`
	Input   string       `json:"input,omitempty" mapstructure:"input"`
	OnDone  []Transition `json:"on_done,omitempty" mapstructure:"on_done"`
	OnError []Transition `json:"on_error,omitempty" mapstructure:"on_error"`
}

// Action is written either as a registered action name or as a mapping holding
// exactly one built-in action.
type Action struct {
	Name string `json:"name,omitempty" mapstructure:"name"`

	Assign map[string]any `json:"assign,omitempty" mapstructure:"assign"`
	Raise  string         `json:"raise,omitempty" mapstructure:"raise"`
	Emit   string         `json:"emit,omitempty" mapstructure:"emit"`
	Data   any            `json:"data,omitempty" mapstructure:"data"`

	Spawn   *Spawn `json:"spawn,omitempty" mapstructure:"spawn"`
	SendTo  string `json:"send_to,omitempty" mapstructure:"send_to"`
	Event   string `json:"event,omitempty" mapstructure:"event"`
	Forward string `json:"forward,omitempty" mapstructure:"forward"`
	Stop    string `json:"stop,omitempty" mapstructure:"stop"`
}

// Spawn starts a child machine.
type Spawn struct {
	ID          string `json:"id,omitempty" mapstructure:"id"`
	Machine     string `json:"machine" mapstructure:"machine"`
	Input       string `json:"input,omitempty" mapstructure:"input"`
	SaveTo      string `json:"save_to,omitempty" mapstructure:"save_to"`
	AutoForward bool   `json:"auto_forward,omitempty" mapstructure:"auto_forward"`
	Relay       bool   `json:"relay,omitempty" mapstructure:"relay"`
}
