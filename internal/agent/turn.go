package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"lowvibe/internal/chat"
	ctxmgr "lowvibe/internal/context"
	"lowvibe/internal/events"
	"lowvibe/internal/logging"
	"lowvibe/internal/oracle"
)

// Turn performs one managed oracle call for a conversation: context
// management, the call itself, token accounting and the corrective
// message after an unusable reply. The single-agent loop and every team
// role share it.
type Turn struct {
	Oracle  oracle.Oracle
	Context *ctxmgr.Manager
	// Budget is the prompt-token budget the context manager works against.
	Budget int
	Sink   events.Sink
	Role   string

	// lastPrompt is the prompt size the endpoint reported for the previous
	// call; 0 until a call reports usage and again after a summary.
	lastPrompt int
}

// Call manages *history, asks the oracle and returns the raw reply.
// ok=false with a nil error means the reply was empty or failed the schema:
// a corrective message has been appended and the step is spent.
func (t *Turn) Call(ctx context.Context, st *State, history *[]chat.Message, schema oracle.Schema, step int) (raw json.RawMessage, ok bool, err error) {
	sink := events.OrDiscard(t.Sink)

	if t.Context != nil {
		out, err := t.Context.Manage(ctx, *history, t.lastPrompt, t.Budget)
		if err != nil {
			if errors.Is(err, ctxmgr.ErrMissingAnchor) {
				return nil, false, fmt.Errorf("internal consistency: %w", err)
			}
			return nil, false, err
		}
		*history = out.History
		if out.Summarized {
			t.lastPrompt = 0
		}
		if out.Summarized || out.Pruned > 0 {
			sink.Emit(events.Event{Type: events.ContextManaged, Role: t.Role, Step: step, Data: map[string]any{
				"summarized": out.Summarized,
				"mechanical": out.Mechanical,
				"pruned":     out.Pruned,
				"messages":   len(out.History),
				"estimate":   out.Estimate,
			}})
		}
	}

	label := schema.Name
	if t.Role != "" {
		label = t.Role + "-" + schema.Name
	}
	raw, usage, err := t.Oracle.Complete(oracle.WithLabel(ctx, label), *history, schema)
	t.account(st, *history, usage, step)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		if oracle.IsRecoverable(err) {
			logging.Warn("unusable oracle reply", "role", t.Role, "schema", schema.Name, "error", err)
			t.corrective(history, step, Corrective(schema, err))
			return nil, false, nil
		}
		return nil, false, err
	}
	return raw, true, nil
}

func (t *Turn) account(st *State, history []chat.Message, usage oracle.Usage, step int) {
	if usage.TotalTokens == 0 && usage.PromptTokens == 0 {
		return
	}
	st.Usage.Add(usage)
	if usage.PromptTokens > 0 {
		t.lastPrompt = usage.PromptTokens
		if t.Context != nil {
			t.Context.Observe(usage.PromptTokens, history)
		}
	}
	events.OrDiscard(t.Sink).Emit(events.Event{Type: events.TokenUsage, Role: t.Role, Step: step, Data: map[string]any{
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
		"total_tokens":      usage.TotalTokens,
		"run_total":         st.Usage.TotalTokens,
	}})
}

func (t *Turn) corrective(history *[]chat.Message, step int, text string) {
	*history = append(*history, chat.Corrective(text))
	events.OrDiscard(t.Sink).Emit(events.Event{Type: events.AgentCorrective, Role: t.Role, Step: step, Data: map[string]any{
		"message": text,
	}})
}

// Reject records a reply the loop refuses to act on: the reply itself as
// a plain assistant turn followed by a corrective instruction.
func (t *Turn) Reject(history *[]chat.Message, step int, raw json.RawMessage, text string) {
	*history = append(*history, chat.Assistant(string(raw)))
	t.corrective(history, step, text)
}

// Corrective is the instruction injected after an unusable reply.
func Corrective(schema oracle.Schema, err error) string {
	var empty *oracle.EmptyResponseError
	if errors.As(err, &empty) {
		return fmt.Sprintf("Your previous reply was empty. Reply with one JSON object matching the %s schema.", schema.Name)
	}
	return fmt.Sprintf("Your previous reply did not match the %s schema: %v. "+
		"Reply again with exactly one JSON object that satisfies the schema.", schema.Name, err)
}
