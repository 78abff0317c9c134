package toolschema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/eren23/attocode-core/internal/agent"
)

// Validator compiles and caches schemas so repeated calls to the same tool
// don't pay recompilation cost on every dispatch.
type Validator struct {
	mu     sync.Mutex
	cached map[string]*jsonschema.Schema
}

// NewValidator returns an empty Validator.
func NewValidator() *Validator {
	return &Validator{cached: make(map[string]*jsonschema.Schema)}
}

// Validate checks args against schema, compiling and caching schema under
// cacheKey (typically the tool name) on first use.
func (v *Validator) Validate(cacheKey string, schema agent.Schema, args map[string]any) error {
	compiled, err := v.compile(cacheKey, schema)
	if err != nil {
		return fmt.Errorf("toolschema: compile schema for %q: %w", cacheKey, err)
	}

	// jsonschema validates against decoded JSON values (float64 for numbers,
	// []any for arrays); round-trip through JSON so Go-native map values
	// (e.g. int) match what the compiled schema expects.
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("toolschema: encode args for %q: %w", cacheKey, err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("toolschema: decode args for %q: %w", cacheKey, err)
	}

	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("toolschema: %q arguments invalid: %w", cacheKey, err)
	}
	return nil
}

func (v *Validator) compile(cacheKey string, schema agent.Schema) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if compiled, ok := v.cached[cacheKey]; ok {
		return compiled, nil
	}

	doc := map[string]any{
		"type":       "object",
		"properties": schema.Parameters,
	}
	if len(schema.Required) > 0 {
		doc["required"] = schema.Required
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	resourceName := cacheKey + ".schema.json"
	if err := compiler.AddResource(resourceName, jsonDecode(raw)); err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, err
	}
	v.cached[cacheKey] = compiled
	return compiled, nil
}

func jsonDecode(raw []byte) any {
	var v any
	_ = json.Unmarshal(raw, &v)
	return v
}
