package conversation

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// TurnSpec is the declarative YAML form of a single turn.
type TurnSpec struct {
	Role        Role           `yaml:"role"`
	Content     string         `yaml:"content"`
	Placeholder string         `yaml:"placeholder,omitempty"`
	Metadata    map[string]any `yaml:"metadata,omitempty"`
}

// Definition is the declarative YAML form of a whole sequence: an argument
// mapping plus an ordered turn list.
//
//	args:
//	  name: Ada
//	turns:
//	  - role: system
//	    content: "You are helping {{name}}."
//	  - role: user
//	    content: "Hello"
//	    placeholder: "<greeting>"
type Definition struct {
	Args  map[string]any `yaml:"args,omitempty"`
	Turns []TurnSpec     `yaml:"turns"`
}

// ParseDefinition decodes a YAML definition from raw bytes.
func ParseDefinition(data []byte) (*Definition, error) {
	def := &Definition{}
	if err := yaml.Unmarshal(data, def); err != nil {
		return nil, errors.Wrap(err, "failed to parse sequence definition")
	}
	return def, nil
}

// Sequencer instantiates the definition: every turn is appended in order,
// with the definition's args as the sequencer mapping.
func (d *Definition) Sequencer() (*Sequencer, error) {
	seq := NewSequencer(WithArgs(d.Args))
	for i, spec := range d.Turns {
		options := []MessageOption{}
		if spec.Placeholder != "" {
			options = append(options, WithPlaceholder(spec.Placeholder))
		}
		if spec.Metadata != nil {
			options = append(options, WithMetadata(spec.Metadata))
		}

		var err error
		switch spec.Role {
		case RoleSystem:
			err = seq.SystemMessage(spec.Content, options...)
		case RoleUser:
			err = seq.UserMessage(spec.Content, options...)
		case RoleAssistant:
			err = seq.AssistantMessage(spec.Content, options...)
		default:
			err = errors.Errorf("unknown role %q", spec.Role)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "turn %d", i)
		}
	}
	return seq, nil
}

// ToYAML serializes build output ([]Message or AssistantInput) to YAML
// bytes. It performs no I/O.
func ToYAML(v any) ([]byte, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize to YAML")
	}
	return data, nil
}
