// Package toolschema generates and validates the JSON Schema a tool presents
// to the model. Generation derives a schema from a Go argument struct so a
// tool author never hand-writes the map the provider adapters send upstream;
// validation checks a call's decoded arguments against that schema before the
// dispatcher ever invokes the tool.
package toolschema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/eren23/attocode-core/internal/agent"
)

// Generate derives an agent.Schema from a Go struct type T using its json and
// jsonschema struct tags. T is normally the tool's argument struct, given as
// the type argument, e.g. Generate[SearchArgs]().
func Generate[T any]() (agent.Schema, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return agent.Schema{}, fmt.Errorf("toolschema: marshal reflected schema: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return agent.Schema{}, fmt.Errorf("toolschema: decode reflected schema: %w", err)
	}

	properties, _ := raw["properties"].(map[string]any)
	var required []string
	if req, ok := raw["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				required = append(required, s)
			}
		}
	}
	return agent.Schema{Parameters: properties, Required: required}, nil
}
