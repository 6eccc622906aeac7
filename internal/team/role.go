package team

import (
	"context"
	"encoding/json"

	"lowvibe/internal/agent"
	"lowvibe/internal/chat"
	"lowvibe/internal/events"
	"lowvibe/internal/oracle"
	"lowvibe/internal/tools"
)

// handler acts on a role-specific step kind at step n. prev is the kind of
// the previous step. Returning done ends the role loop.
type handler func(n int, s step, raw json.RawMessage, prev string) (done bool, err error)

// roleLoop is the bounded message/tool loop every role runs in.
type roleLoop struct {
	role     string
	turn     *agent.Turn
	tools    *tools.Registry
	schema   oracle.Schema
	noTool   oracle.Schema
	maxSteps int
	control  *agent.Control
	sink     events.Sink
}

const toolAfterToolCorrective = "You just called a tool. Explain what its result means before calling another one."

// run drives history until handle reports done. exhausted is set when the
// step budget ran out first. After a tool call the next step uses the
// no-tool schema.
func (r *roleLoop) run(ctx context.Context, st *agent.State, history *[]chat.Message, handle handler) (steps int, exhausted bool, err error) {
	prev := ""
	restricted := false
	for steps < r.maxSteps {
		guidance, err := r.control.Checkpoint(ctx)
		if err != nil {
			return steps, false, err
		}
		if guidance != "" {
			*history = append(*history, chat.User("Guidance from the user after a pause:\n"+guidance))
		}

		steps++
		schema := r.schema
		if restricted && r.noTool.Name != "" {
			schema = r.noTool
		}
		raw, ok, err := r.turn.Call(ctx, st, history, schema, steps)
		if err != nil {
			return steps, false, err
		}
		if !ok {
			continue
		}
		var s step
		if err := json.Unmarshal(raw, &s); err != nil {
			r.turn.Reject(history, steps, raw, agent.Corrective(schema, err))
			continue
		}
		if s.Kind == agent.KindToolCall && restricted {
			r.turn.Reject(history, steps, raw, toolAfterToolCorrective)
			continue
		}
		r.emit(steps, s)
		restricted = s.Kind == agent.KindToolCall

		switch s.Kind {
		case agent.KindMessage:
			*history = append(*history, chat.Assistant(string(raw)))
		case agent.KindToolCall:
			*history = append(*history, chat.ToolCall(s.Tool, string(raw)))
			res := r.tools.Dispatch(ctx, s.Tool, s.Args)
			*history = append(*history, chat.ToolResult(s.Tool, res.Payload()))
			r.sink.Emit(events.Event{Type: events.TeamStep, Role: r.role, Step: steps, Data: map[string]any{
				"kind":    "tool_result",
				"tool":    s.Tool,
				"ok":      res.OK(),
				"error":   res.Error,
				"content": chat.Truncate(res.Content, 2000),
			}})
		default:
			done, err := handle(steps, s, raw, prev)
			if err != nil || done {
				return steps, false, err
			}
		}
		prev = s.Kind
	}
	return steps, true, nil
}

func (r *roleLoop) emit(n int, s step) {
	data := map[string]any{"kind": s.Kind}
	switch s.Kind {
	case agent.KindMessage:
		data["message"] = s.Message
	case agent.KindToolCall:
		data["tool"] = s.Tool
		data["args"] = s.Args
	case KindImplement:
		data["description"] = s.Description
		data["tasks"] = s.Tasks
	case KindFinal, KindDone:
		data["summary"] = s.Summary
	case KindError:
		data["reason"] = s.Reason
	case KindResult:
		data["payload"] = s.Payload
	}
	r.sink.Emit(events.Event{Type: events.TeamStep, Role: r.role, Step: n, Data: data})
}
