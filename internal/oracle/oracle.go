// Package oracle wraps structured-output model endpoints. Every call is
// bound to a JSON schema and returns a validated JSON object.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"lowvibe/internal/chat"
)

// Schema is a named JSON schema the oracle output must satisfy.
type Schema struct {
	Name       string
	Definition map[string]any
}

// JSON returns the schema document.
func (s Schema) JSON() json.RawMessage {
	data, err := json.Marshal(s.Definition)
	if err != nil {
		// Definitions are built from maps of plain values.
		panic(fmt.Sprintf("oracle: schema %s is not serializable: %v", s.Name, err))
	}
	return data
}

// Usage is the token accounting reported by the endpoint.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates u into the receiver.
func (u *Usage) Add(o Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
}

// Oracle completes a conversation into a schema-valid JSON object.
//
// Errors are typed: *NetworkError, *EmptyResponseError,
// *SchemaValidationError and *OverflowError. Callers that can recover
// from a bad turn (the step loops) inject a corrective message and retry.
type Oracle interface {
	Complete(ctx context.Context, messages []chat.Message, schema Schema) (json.RawMessage, Usage, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, messages []chat.Message, schema Schema) (json.RawMessage, Usage, error)

func (f Func) Complete(ctx context.Context, messages []chat.Message, schema Schema) (json.RawMessage, Usage, error) {
	return f(ctx, messages, schema)
}

// Decode completes and unmarshals into T.
func Decode[T any](ctx context.Context, o Oracle, messages []chat.Message, schema Schema) (T, Usage, error) {
	var out T
	raw, usage, err := o.Complete(ctx, messages, schema)
	if err != nil {
		return out, usage, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, usage, &SchemaValidationError{Schema: schema.Name, Raw: string(raw), Err: err}
	}
	return out, usage, nil
}

func ptr[T any](v T) *T {
	return &v
}
