package assistant

import (
	_ "embed"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed assistant.yaml
var definitionYAML []byte

// Definition describes the calendar assistant registered with OpenAI.
type Definition struct {
	Name         string `yaml:"name"`
	Model        string `yaml:"model"`
	Instructions string `yaml:"instructions"`
	Tools        []Tool `yaml:"tools"`
}

// Tool is one function the assistant may call.
type Tool struct {
	Name        string                `yaml:"name"`
	Description string                `yaml:"description"`
	Parameters  jsonschema.Definition `yaml:"parameters"`
}

// LoadDefinition parses the embedded assistant definition.
func LoadDefinition() (Definition, error) {
	return ParseDefinition(definitionYAML)
}

// ParseDefinition parses a YAML assistant definition.
func ParseDefinition(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("parse assistant definition: %w", err)
	}
	if def.Name == "" || def.Model == "" {
		return Definition{}, fmt.Errorf("parse assistant definition: name and model are required")
	}
	for i, t := range def.Tools {
		if t.Name == "" {
			return Definition{}, fmt.Errorf("parse assistant definition: tool %d has no name", i)
		}
		if t.Parameters.Type != jsonschema.Object {
			return Definition{}, fmt.Errorf("parse assistant definition: tool %q parameters must be an object schema", t.Name)
		}
	}
	return def, nil
}

func (d Definition) request() openai.AssistantRequest {
	tools := make([]openai.AssistantTool, 0, len(d.Tools))
	for _, t := range d.Tools {
		tools = append(tools, openai.AssistantTool{
			Type: openai.AssistantToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return openai.AssistantRequest{
		Model:        d.Model,
		Name:         &d.Name,
		Instructions: &d.Instructions,
		Tools:        tools,
	}
}
