package agent

import (
	"encoding/json"
	"fmt"

	"lowvibe/internal/oracle"
)

// Output kinds of a step.
const (
	KindMessage  = "message"
	KindToolCall = "tool_call"
	KindFinal    = "final"
)

// Step is one decoded oracle reply of the step loop.
type Step struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message,omitempty"`
	Tool    string         `json:"tool,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
	Summary string         `json:"summary,omitempty"`
}

// Text returns the human-readable part of the step.
func (s Step) Text() string {
	switch s.Kind {
	case KindFinal:
		return s.Summary
	case KindToolCall:
		args, _ := json.Marshal(s.Args)
		return fmt.Sprintf("%s %s", s.Tool, args)
	}
	return s.Message
}

// MessageVariant is the schema branch for an explanatory message.
func MessageVariant() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"kind":    map[string]any{"const": KindMessage},
			"message": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []any{"kind", "message"},
	}
}

// ToolCallVariant is the schema branch for calling one of tools.
func ToolCallVariant(tools []string) map[string]any {
	names := make([]any, len(tools))
	for i, t := range tools {
		names[i] = t
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"kind": map[string]any{"const": KindToolCall},
			"tool": map[string]any{"type": "string", "enum": names},
			"args": map[string]any{"type": "object"},
		},
		"required": []any{"kind", "tool", "args"},
	}
}

// FinalVariant is the schema branch for declaring the task complete.
func FinalVariant() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"kind":    map[string]any{"const": KindFinal},
			"summary": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []any{"kind", "summary"},
	}
}

// Union builds a schema accepting any of variants.
func Union(name string, variants ...map[string]any) oracle.Schema {
	anyOf := make([]any, len(variants))
	for i, v := range variants {
		anyOf[i] = v
	}
	return oracle.Schema{Name: name, Definition: map[string]any{"anyOf": anyOf}}
}

// StepSchema allows a message, a tool call or a final answer.
func StepSchema(tools []string) oracle.Schema {
	return Union("agent_step", MessageVariant(), ToolCallVariant(tools), FinalVariant())
}

// RestrictedStepSchema is used right after a tool call: the oracle has to
// say something before it may call another tool.
func RestrictedStepSchema() oracle.Schema {
	return Union("agent_step_message_or_final", MessageVariant(), FinalVariant())
}

// VerdictSchema is the Supervisor's output.
func VerdictSchema() oracle.Schema {
	return oracle.Schema{Name: "supervisor_verdict", Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"loop_detected":        map[string]any{"type": "boolean"},
			"progress_made":        map[string]any{"type": "boolean"},
			"coding_advice":        map[string]any{"type": "string"},
			"debugging_tips":       map[string]any{"type": "string"},
			"next_step_suggestion": map[string]any{"type": "string"},
			"todos_to_complete":    map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
			"confidence":           map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		},
		"required": []any{
			"loop_detected", "progress_made", "coding_advice", "debugging_tips",
			"next_step_suggestion", "todos_to_complete", "confidence",
		},
	}}
}

// SmartEditSchema is the edit-recovery output.
func SmartEditSchema() oracle.Schema {
	return oracle.Schema{Name: "smart_edit", Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"found":            map[string]any{"type": "boolean"},
			"corrected_search": map[string]any{"type": "string"},
			"confidence":       map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"explanation":      map[string]any{"type": "string"},
		},
		"required": []any{"found", "corrected_search", "confidence"},
	}}
}
