package plan

// TodoSchema is the JSON schema of one todo as produced by the oracle.
func TodoSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":               map[string]any{"type": "string"},
			"details":             map[string]any{"type": "string"},
			"acceptance_criteria": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []any{"title", "details", "acceptance_criteria"},
	}
}

// Schema is the JSON schema for extracting a plan.
func Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"restatement": map[string]any{"type": "string"},
			"todos": map[string]any{
				"type":     "array",
				"items":    TodoSchema(),
				"minItems": 1,
			},
		},
		"required": []any{"restatement", "todos"},
	}
}
