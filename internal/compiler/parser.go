package compiler

import (
	"fmt"
	"reflect"

	"github.com/aretw0/arbor/internal/dto"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Parser converts YAML or JSON machine documents into dto.MachineDocument.
// Document order of states and event transitions is preserved: the first state is
// the default initial one and transitions are matched in the order written.
type Parser struct{}

// NewParser creates a new parser instance.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes a document. JSON is accepted as the YAML subset it is.
func (p *Parser) Parse(data []byte) (*dto.MachineDocument, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse machine document: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("failed to parse machine document: empty document")
	}
	doc, err := p.machine(root.Content[0])
	if err != nil {
		return nil, err
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("machine document missing id")
	}
	return doc, nil
}

func (p *Parser) machine(n *yaml.Node) (*dto.MachineDocument, error) {
	if n.Kind != yaml.MappingNode {
		return nil, errorAt(n, "machine must be a mapping")
	}
	doc := &dto.MachineDocument{}
	rest := make(map[string]any)

	for _, kv := range pairs(n) {
		key, value := kv[0], kv[1]
		switch key.Value {
		case "states":
			states, err := p.states(value)
			if err != nil {
				return nil, err
			}
			doc.States = states
		case "machines":
			if value.Kind != yaml.MappingNode {
				return nil, errorAt(value, "machines must be a mapping of machine documents")
			}
			for _, child := range pairs(value) {
				m, err := p.machine(child[1])
				if err != nil {
					return nil, err
				}
				if m.ID == "" {
					m.ID = child[0].Value
				}
				doc.Machines = append(doc.Machines, *m)
			}
		default:
			var raw any
			if err := value.Decode(&raw); err != nil {
				return nil, errorAt(value, err.Error())
			}
			rest[key.Value] = raw
		}
	}

	if err := decode(rest, doc); err != nil {
		return nil, errorAt(n, err.Error())
	}
	return doc, nil
}

func (p *Parser) states(n *yaml.Node) ([]dto.StateDocument, error) {
	if n.Kind != yaml.MappingNode {
		return nil, errorAt(n, "states must be a mapping of state id to state")
	}
	var out []dto.StateDocument
	for _, kv := range pairs(n) {
		s, err := p.state(kv[0].Value, kv[1])
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (p *Parser) state(id string, n *yaml.Node) (dto.StateDocument, error) {
	s := dto.StateDocument{ID: id}
	if n.Tag == "!!null" {
		return s, nil
	}
	if n.Kind != yaml.MappingNode {
		return s, errorAt(n, fmt.Sprintf("state '%s' must be a mapping", id))
	}

	rest := make(map[string]any)
	for _, kv := range pairs(n) {
		key, value := kv[0], kv[1]
		switch key.Value {
		case "states":
			children, err := p.states(value)
			if err != nil {
				return s, err
			}
			s.States = children
		case "on":
			on, err := p.on(value)
			if err != nil {
				return s, err
			}
			s.On = on
		default:
			var raw any
			if err := value.Decode(&raw); err != nil {
				return s, errorAt(value, err.Error())
			}
			rest[key.Value] = raw
		}
	}

	if err := decode(rest, &s); err != nil {
		return s, errorAt(n, fmt.Sprintf("state '%s': %v", id, err))
	}
	return s, nil
}

// on decodes an event-to-transitions mapping, keeping the order of events.
func (p *Parser) on(n *yaml.Node) ([]dto.Transition, error) {
	if n.Kind != yaml.MappingNode {
		return nil, errorAt(n, "on must be a mapping of event to transitions")
	}
	var out []dto.Transition
	for _, kv := range pairs(n) {
		var raw any
		if err := kv[1].Decode(&raw); err != nil {
			return nil, errorAt(kv[1], err.Error())
		}
		var ts []dto.Transition
		if err := decode(raw, &ts); err != nil {
			return nil, errorAt(kv[1], fmt.Sprintf("event '%s': %v", kv[0].Value, err))
		}
		for i := range ts {
			ts[i].Event = kv[0].Value
		}
		out = append(out, ts...)
	}
	return out, nil
}

func pairs(n *yaml.Node) [][2]*yaml.Node {
	out := make([][2]*yaml.Node, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out = append(out, [2]*yaml.Node{n.Content[i], n.Content[i+1]})
	}
	return out
}

func errorAt(n *yaml.Node, msg string) error {
	return fmt.Errorf("line %d: %s", n.Line, msg)
}

// decode runs mapstructure with the document shorthands: a bare string stands for a
// transition target, an action name or an invoke source, and a single value stands
// for a one-element list.
func decode(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       shorthand,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

var (
	transitionType = reflect.TypeOf(dto.Transition{})
	actionType     = reflect.TypeOf(dto.Action{})
	invokeType     = reflect.TypeOf(dto.Invoke{})
)

func shorthand(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	s, _ := data.(string)
	switch to {
	case transitionType:
		return dto.Transition{Target: s}, nil
	case actionType:
		return dto.Action{Name: s}, nil
	case invokeType:
		return dto.Invoke{Src: s}, nil
	}
	return data, nil
}
