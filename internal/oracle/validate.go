package oracle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator compiles schemas once and checks oracle output against them.
type Validator struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

// NewValidator returns an empty validator.
func NewValidator() *Validator {
	return &Validator{compiled: make(map[string]*jsonschema.Schema)}
}

func (v *Validator) compile(s Schema) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if c, ok := v.compiled[s.Name]; ok {
		return c, nil
	}
	url := "mem://schemas/" + s.Name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(s.JSON())); err != nil {
		return nil, fmt.Errorf("schema %s: %w", s.Name, err)
	}
	c, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", s.Name, err)
	}
	v.compiled[s.Name] = c
	return c, nil
}

// Check extracts the JSON object from text and validates it. The returned
// raw message is the normalized object.
func (v *Validator) Check(s Schema, text string) (json.RawMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &EmptyResponseError{Schema: s.Name}
	}
	body := extractJSON(text)

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, &SchemaValidationError{Schema: s.Name, Raw: text, Err: err}
	}
	compiled, err := v.compile(s)
	if err != nil {
		return nil, err
	}
	if err := compiled.Validate(doc); err != nil {
		return nil, &SchemaValidationError{Schema: s.Name, Raw: text, Err: err}
	}
	return json.RawMessage(body), nil
}

// extractJSON strips markdown fences and surrounding prose some models add
// even in constrained mode.
func extractJSON(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```json")
		t = strings.TrimPrefix(t, "```")
		if i := strings.LastIndex(t, "```"); i >= 0 {
			t = t[:i]
		}
		t = strings.TrimSpace(t)
	}
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1]
	}
	return t
}
