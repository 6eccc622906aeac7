package team

import (
	"lowvibe/internal/agent"
	"lowvibe/internal/oracle"
)

func kindObject(kind string, props map[string]any, required ...string) map[string]any {
	p := map[string]any{"kind": map[string]any{"const": kind}}
	for k, v := range props {
		p[k] = v
	}
	req := []any{"kind"}
	for _, r := range required {
		req = append(req, r)
	}
	return map[string]any{"type": "object", "properties": p, "required": req}
}

var nonEmpty = map[string]any{"type": "string", "minLength": 1}

func implementTaskSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"type":             map[string]any{"type": "string", "enum": []any{TaskCreateFile, TaskEditFile, TaskDeleteFile}},
			"task_description": nonEmpty,
			"code":             map[string]any{"type": "string"},
			"file":             nonEmpty,
		},
		"required": []any{"type", "task_description", "file"},
	}
}

func testResultSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"successfully_implemented": map[string]any{"type": "boolean"},
			"successes":                map[string]any{"type": "string"},
			"mistakes":                 map[string]any{"type": "string"},
			"tests_to_keep":            map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []any{"successfully_implemented", "successes", "mistakes", "tests_to_keep"},
	}
}

// stepSchemas returns a role's open schema and its no-tool twin, used
// right after a tool call so the role has to say something first.
func stepSchemas(name string, tools []string, terminal ...map[string]any) (open, noTool oracle.Schema) {
	open = agent.Union(name, append([]map[string]any{agent.MessageVariant(), agent.ToolCallVariant(tools)}, terminal...)...)
	noTool = agent.Union(name+"_no_tool", append([]map[string]any{agent.MessageVariant()}, terminal...)...)
	return open, noTool
}

// ThinkerSchemas: message, tool call, implement batch or final answer.
func ThinkerSchemas(tools []string) (open, noTool oracle.Schema) {
	implement := kindObject(KindImplement, map[string]any{
		"description": nonEmpty,
		"tasks":       map[string]any{"type": "array", "minItems": 1, "items": implementTaskSchema()},
	}, "description", "tasks")
	final := kindObject(KindFinal, map[string]any{"summary": nonEmpty}, "summary")
	return stepSchemas("thinker_step", tools, implement, final)
}

// ImplementerSchemas: message, tool call, done or error.
func ImplementerSchemas(tools []string) (open, noTool oracle.Schema) {
	done := kindObject(KindDone, map[string]any{"summary": nonEmpty}, "summary")
	fail := kindObject(KindError, map[string]any{"reason": nonEmpty}, "reason")
	return stepSchemas("implementer_step", tools, done, fail)
}

// TesterSchemas: message, tool call or the test result.
func TesterSchemas(tools []string) (open, noTool oracle.Schema) {
	result := kindObject(KindResult, map[string]any{"payload": testResultSchema()}, "payload")
	return stepSchemas("tester_step", tools, result)
}

// FinisherSchema is the batch summary.
func FinisherSchema() oracle.Schema {
	return oracle.Schema{Name: "finisher_report", Definition: map[string]any{
		"type":       "object",
		"properties": map[string]any{"overall": nonEmpty},
		"required":   []any{"overall"},
	}}
}
