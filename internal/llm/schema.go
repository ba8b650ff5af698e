package llm

// BuildClassificationJSONSchema returns a JSON-Schema (draft 2020-12 subset)
// as a generic map. We pass it to the model as a structured output constraint
// and also use it locally to validate the reply.
func BuildClassificationJSONSchema(candidates []string) map[string]any {
	formType := map[string]any{"type": "string", "minLength": 1}
	if len(candidates) > 0 {
		enum := make([]any, 0, len(candidates)+1)
		for _, c := range candidates {
			enum = append(enum, c)
		}
		enum = append(enum, "UNCLASSIFIED")
		formType = map[string]any{"type": "string", "enum": enum}
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"form_type":         formType,
			"swift_message_ref": map[string]any{"type": "string", "pattern": `^MT\d{3}$`},
			"confidence":        map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
		"required": []string{"form_type"},
	}
}
