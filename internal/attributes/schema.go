package attributes

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

const definitionSchema = `{
	"type": "object",
	"required": ["code", "type"],
	"properties": {
		"code": {"type": "string", "minLength": 1},
		"type": {"type": "string", "minLength": 1},
		"localizable": {"type": "boolean"},
		"scopable": {"type": "boolean"},
		"reference_data_name": {"type": ["string", "null"]}
	}
}`

func compileDefinitionSchema() (*jsonschema.Resolved, error) {
	var schema jsonschema.Schema
	if err := json.Unmarshal([]byte(definitionSchema), &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into jsonschema.Schema: %w", err)
	}
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve JSON schema: %w", err)
	}
	return resolved, nil
}

func validateDefinition(schema *jsonschema.Resolved, raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to unmarshal JSON data: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("JSON validation failed: %w", err)
	}
	return nil
}
