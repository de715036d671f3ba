package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/arbor/pkg/ports"
	"gopkg.in/yaml.v3"
)

// ToolConfig describes one allow-listed command.
type ToolConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
	// Parameters is the JSON schema advertised to the model.
	Parameters map[string]any `yaml:"parameters" json:"parameters"`
}

// ConfigFile is the structure of a tools file.
type ConfigFile struct {
	Tools []ToolConfig `yaml:"tools" json:"tools"`
}

// LoadTools reads a YAML or JSON tools file.
func LoadTools(path string) ([]ToolConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tools config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse tools config (%s): %w", path, err)
	}

	seen := make(map[string]bool, len(cfg.Tools))
	for i, tool := range cfg.Tools {
		switch {
		case tool.Name == "":
			return nil, fmt.Errorf("tool #%d has no name", i+1)
		case tool.Command == "":
			return nil, fmt.Errorf("tool '%s' has no command", tool.Name)
		case seen[tool.Name]:
			return nil, fmt.Errorf("tool '%s' is declared twice", tool.Name)
		}
		seen[tool.Name] = true
	}
	return cfg.Tools, nil
}

// Definitions returns the tools as advertised in completion requests.
func Definitions(tools []ToolConfig) []ports.Tool {
	out := make([]ports.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, ports.Tool{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return out
}
