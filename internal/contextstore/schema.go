package contextstore

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// compileSchema compiles a declared JSON Schema map into a validator. A nil
// schema compiles to a validator that accepts everything.
func compileSchema(id string, schema map[string]interface{}) (*jsonschema.Schema, error) {
	if schema == nil {
		return nil, nil
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for context %q: %w", id, err)
	}

	decoded, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode schema for context %q: %w", id, err)
	}

	url := "mem://contexts/" + id
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, decoded); err != nil {
		return nil, fmt.Errorf("add schema resource for context %q: %w", id, err)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for context %q: %w", id, err)
	}
	return sch, nil
}

// validate checks value against sch, round-tripping through JSON so Go
// structs/maps are normalized to the plain interface{} shapes the
// validator expects.
func validate(sch *jsonschema.Schema, value interface{}) error {
	if sch == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for schema check: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("decode value for schema check: %w", err)
	}
	return sch.Validate(instance)
}
