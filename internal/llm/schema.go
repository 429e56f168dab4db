package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/form-digitizer/internal/templates"
)

// BuildResponseSchema returns the JSON Schema of a well-formed reply for tpl.
// Sections and fields are optional since providers may omit what they cannot
// read, but everything present must be a string.
func BuildResponseSchema(tpl *templates.Template) map[string]any {
	sections := make(map[string]any, len(tpl.Sections))
	for _, s := range tpl.Sections {
		fields := make(map[string]any, len(s.Fields))
		for _, f := range s.Fields {
			fields[f.Name] = map[string]any{"type": "string"}
		}
		sections[s.Name] = map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties":           fields,
		}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           sections,
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
