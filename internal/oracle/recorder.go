package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"lowvibe/internal/chat"
	"lowvibe/internal/logging"
)

type labelKey struct{}

// WithLabel tags oracle calls made under ctx for the call log.
func WithLabel(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, labelKey{}, label)
}

// Label returns the call label carried by ctx.
func Label(ctx context.Context) string {
	if v, ok := ctx.Value(labelKey{}).(string); ok {
		return v
	}
	return ""
}

// Recorder writes a CallRecord for every call it forwards.
type Recorder struct {
	inner   Oracle
	log     *logging.CallLog
	backend string
	model   string
}

// Record wraps inner so each call is persisted to log.
func Record(inner Oracle, log *logging.CallLog, backend, model string) *Recorder {
	return &Recorder{inner: inner, log: log, backend: backend, model: model}
}

// Complete implements Oracle.
func (r *Recorder) Complete(ctx context.Context, messages []chat.Message, schema Schema) (json.RawMessage, Usage, error) {
	start := time.Now()
	raw, usage, err := r.inner.Complete(ctx, messages, schema)

	rec := logging.CallRecord{
		Label:      Label(ctx),
		Backend:    r.backend,
		Model:      r.model,
		Schema:     schema.Name,
		StartedAt:  start,
		Duration:   time.Since(start),
		Request:    messages,
		Response:   string(raw),
		PromptToks: usage.PromptTokens,
		OutputToks: usage.CompletionTokens,
	}
	if err != nil {
		rec.Error = err.Error()
		var sv *SchemaValidationError
		if errors.As(err, &sv) {
			rec.Response = sv.Raw
		}
	}
	r.log.Write(rec)
	return raw, usage, err
}
