package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/kpi-extractor/constants"
)

// BuildKPIJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// Every canonical name and alias is a known property; the model may emit numbers
// either as JSON numbers or strings, and any field may be null.
func BuildKPIJSONSchema(cat *constants.Catalog) map[string]any {
	props := map[string]any{}
	for _, f := range cat.Fields {
		var prop map[string]any
		switch f.Type {
		case constants.FieldNumber:
			prop = map[string]any{"type": []string{"number", "string", "null"}}
		default:
			prop = map[string]any{"type": []string{"string", "null"}}
		}
		props[f.Name] = prop
		for _, a := range f.Aliases {
			props[a] = prop
		}
	}
	props[constants.FileNameField] = map[string]any{"type": "string"}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}

// SchemaValidator holds a compiled schema.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// CompileSchema compiles schemaMap once for repeated validation.
func CompileSchema(schemaMap map[string]any) (*SchemaValidator, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("kpi.schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("kpi.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// Validate checks raw JSON against the compiled schema.
func (s *SchemaValidator) Validate(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := s.schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
