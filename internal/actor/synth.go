package actor

// synthesizeFromSchema produces a deterministic value conforming to a JSON
// Schema's declared type, used by the ai_agent and robot strategies'
// simulation modes (§4.5: "returns a deterministic synthetic output
// matching the output schema").
func synthesizeFromSchema(schema map[string]interface{}) interface{} {
	if schema == nil {
		return map[string]interface{}{}
	}

	switch t, _ := schema["type"].(string); t {
	case "object":
		out := make(map[string]interface{})
		props, _ := schema["properties"].(map[string]interface{})
		for name, sub := range props {
			subSchema, _ := sub.(map[string]interface{})
			out[name] = synthesizeFromSchema(subSchema)
		}
		return out
	case "array":
		items, _ := schema["items"].(map[string]interface{})
		return []interface{}{synthesizeFromSchema(items)}
	case "string":
		if def, ok := schema["default"]; ok {
			return def
		}
		return "simulated"
	case "number":
		return 0.0
	case "integer":
		return 0
	case "boolean":
		return false
	default:
		return nil
	}
}

// synthesizeOutputs wraps synthesizeFromSchema for an activity's whole
// output schema, always returning a map even if the schema's root isn't
// typed "object".
func synthesizeOutputs(schema map[string]interface{}) map[string]interface{} {
	v := synthesizeFromSchema(schema)
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{"output": v}
}
