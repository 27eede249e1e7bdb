package extract

import (
	"github.com/joseph-ayodele/docufill/internal/schema"
)

// BuildFieldsJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass it to the model as a structured output constraint and
// also use it locally to validate whatever comes back.
func BuildFieldsJSONSchema(cs schema.CategorySchema) map[string]any {
	props := map[string]any{}
	for _, f := range cs.Fields {
		props[f.Name] = fieldProp()
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"fields": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties":           props,
			},
		},
		"required": []string{"fields"},
	}
}

func fieldProp() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"value":      map[string]any{"type": "string", "minLength": 1},
			"confidence": map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
			"raw_text":   map[string]any{"type": "string"},
		},
		"required": []string{"value", "confidence"},
	}
}
