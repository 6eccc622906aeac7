// Package tools holds the agent's tool set and the registry that
// dispatches oracle tool calls to it.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Result is what a tool returns. Tools never fail: a failure is a Result
// with Error set, fed back to the oracle like any other output.
type Result struct {
	Content string
	Data    map[string]any
	Error   string
}

// OK reports whether the tool succeeded.
func (r Result) OK() bool { return r.Error == "" }

// Success builds a successful result.
func Success(content string) Result {
	return Result{Content: content}
}

// Failure builds an error result.
func Failure(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Payload renders the result as the JSON object placed in the
// conversation: {"error": ...} on failure, otherwise content plus data.
func (r Result) Payload() string {
	m := make(map[string]any, len(r.Data)+1)
	if r.Error != "" {
		m["error"] = r.Error
	} else {
		m["content"] = r.Content
	}
	for k, v := range r.Data {
		m[k] = v
	}
	out, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(out)
}

// Args are the decoded arguments of one call.
type Args map[string]any

// String returns a string argument, or "" when missing.
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Int returns an integer argument. JSON numbers decode as float64.
func (a Args) Int(key string, def int) int {
	switch v := a[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

// Bool returns a boolean argument.
func (a Args) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

// Strings returns a string-array argument.
func (a Args) Strings(key string) []string {
	raw, _ := a[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Ints returns an integer-array argument.
func (a Args) Ints(key string) []int {
	raw, _ := a[key].([]any)
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			out = append(out, int(f))
		}
	}
	return out
}

// Handler executes a tool.
type Handler func(ctx context.Context, args Args) Result

// Spec declares a tool: its name, a description for the prompt, the JSON
// schema properties of its arguments and the handler.
type Spec struct {
	Name        string
	Description string
	Params      map[string]any
	Required    []string
	Handler     Handler
}

// schema is the JSON schema object for the tool's arguments.
func (s Spec) schema() map[string]any {
	params := s.Params
	if params == nil {
		params = map[string]any{}
	}
	required := s.Required
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": params,
		"required":   required,
	}
}

// usage renders "name(arg*, arg): description" for prompts.
func (s Spec) usage() string {
	req := make(map[string]bool, len(s.Required))
	for _, r := range s.Required {
		req[r] = true
	}
	names := make([]string, 0, len(s.Params))
	for name := range s.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, n := range names {
		if req[n] {
			names[i] = n + "*"
		}
	}
	return fmt.Sprintf("- %s(%s): %s", s.Name, strings.Join(names, ", "), s.Description)
}

// Small schema helpers.
func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func boolean(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

func stringArray(desc string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": desc}
}
