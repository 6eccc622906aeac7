package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"lowvibe/internal/chat"
	ctxmgr "lowvibe/internal/context"
	"lowvibe/internal/events"
	"lowvibe/internal/interact"
	"lowvibe/internal/logging"
	"lowvibe/internal/oracle"
	"lowvibe/internal/tools"
)

const DefaultMaxSteps = 150

// LoopConfig wires a Loop.
type LoopConfig struct {
	Oracle  oracle.Oracle
	Tools   *tools.Registry
	Context *ctxmgr.Manager
	// Budget is the prompt-token budget, normally the model context length
	// minus the output reservation.
	Budget int
	// Supervisor is optional; nil disables supervision.
	Supervisor *Supervisor
	// SmartEdit is optional; without it a replace miss is an ordinary
	// tool failure.
	SmartEdit *SmartEdit
	// Asker collects feedback on final answers; nil accepts them.
	Asker    interact.Asker
	Control  *Control
	Sink     events.Sink
	MaxSteps int
}

// Loop is the single-agent step loop.
type Loop struct {
	cfg  LoopConfig
	turn *Turn
}

// NewLoop checks cfg and builds a loop.
func NewLoop(cfg LoopConfig) (*Loop, error) {
	if cfg.Oracle == nil {
		return nil, errors.New("agent: loop needs an oracle")
	}
	if cfg.Tools == nil {
		return nil, errors.New("agent: loop needs a tool registry")
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	cfg.Sink = events.OrDiscard(cfg.Sink)
	if cfg.Control == nil {
		cfg.Control = NewControl(cfg.Sink)
	}
	cfg.Asker = cfg.Control.Asker(cfg.Asker)
	return &Loop{
		cfg: cfg,
		turn: &Turn{
			Oracle:  cfg.Oracle,
			Context: cfg.Context,
			Budget:  cfg.Budget,
			Sink:    cfg.Sink,
		},
	}, nil
}

// Run drives st until the user accepts a final answer, the step budget is
// spent, the run is cancelled or a fatal error occurs.
func (l *Loop) Run(ctx context.Context, st *State) (Result, error) {
	if len(st.History) == 0 {
		st.History = []chat.Message{
			chat.System(SystemPrompt(l.cfg.Tools.Describe())),
			chat.Task(TaskMessage(st)),
		}
	}
	names := l.cfg.Tools.Names()
	logging.Info("agent loop started", "run", st.RunID, "max_steps", l.cfg.MaxSteps, "tools", len(names))

	for st.Step < l.cfg.MaxSteps {
		guidance, err := l.cfg.Control.Checkpoint(ctx)
		if err != nil {
			return l.stop(st, err)
		}
		if guidance != "" {
			st.History = append(st.History, chat.User(guidanceMessage(guidance)))
		}

		st.Step++
		step := st.Step

		if l.cfg.Supervisor != nil && l.cfg.Supervisor.Due(step) {
			if _, err := l.cfg.Supervisor.Run(ctx, st); err != nil {
				return l.stop(st, err)
			}
		}

		schema := StepSchema(names)
		if st.AntiLoop {
			schema = RestrictedStepSchema()
		}
		raw, ok, err := l.turn.Call(ctx, st, &st.History, schema, step)
		if err != nil {
			return l.stop(st, err)
		}
		if !ok {
			continue
		}

		var s Step
		if err := json.Unmarshal(raw, &s); err != nil {
			l.turn.Reject(&st.History, step, raw, Corrective(schema, err))
			continue
		}

		switch s.Kind {
		case KindMessage:
			st.History = append(st.History, chat.Assistant(string(raw)))
			st.AntiLoop = false
			l.cfg.Sink.Emit(events.Event{Type: events.AgentMessage, Step: step, Data: map[string]any{"message": s.Message}})

		case KindToolCall:
			if st.AntiLoop {
				l.turn.Reject(&st.History, step, raw, antiLoopCorrective)
				continue
			}
			if err := l.callTool(ctx, st, s, raw); err != nil {
				return l.stop(st, err)
			}

		case KindFinal:
			accepted, err := l.confirm(ctx, st, s, raw)
			if err != nil {
				return l.stop(st, err)
			}
			if accepted {
				return l.finish(st, Result{Success: true, Reason: ReasonAccepted, Summary: s.Summary}), nil
			}

		default:
			l.turn.Reject(&st.History, step, raw, fmt.Sprintf("Unknown kind %q. Use message, tool_call or final.", s.Kind))
		}
	}

	logging.Info("step budget exhausted", "run", st.RunID, "steps", st.Step)
	return l.finish(st, Result{Reason: ReasonExhausted, Summary: "step budget exhausted without an accepted answer"}), nil
}

func (l *Loop) callTool(ctx context.Context, st *State, s Step, raw json.RawMessage) error {
	step := st.Step
	st.History = append(st.History, chat.ToolCall(s.Tool, string(raw)))
	callIndex := len(st.History) - 1
	l.cfg.Sink.Emit(events.Event{Type: events.AgentToolCall, Step: step, Data: map[string]any{"tool": s.Tool, "args": s.Args}})

	res := l.cfg.Tools.Dispatch(ctx, s.Tool, s.Args)

	if s.Tool == "replace_in_file" && tools.SearchNotFound(res) && l.cfg.SmartEdit != nil {
		logging.Info("replace target not found, attempting recovery", "step", step, "path", tools.Args(s.Args).String("path"))
		corrected, fixed, err := l.cfg.SmartEdit.Recover(ctx, st, s.Args)
		if err != nil {
			return err
		}
		// Record the call as it succeeded so the oracle does not relearn the
		// wrong search text.
		s.Args = corrected
		rewritten, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to rewrite recovered call: %w", err)
		}
		st.History[callIndex].Content = string(rewritten)
		res = fixed
	}

	st.History = append(st.History, chat.ToolResult(s.Tool, res.Payload()))
	st.AntiLoop = true
	l.cfg.Sink.Emit(events.Event{Type: events.AgentToolResult, Step: step, Data: map[string]any{
		"tool":    s.Tool,
		"ok":      res.OK(),
		"error":   res.Error,
		"content": chat.Truncate(res.Content, 2000),
	}})
	return nil
}

// confirm presents a final answer for human review. A blank reply
// accepts; anything else is fed back and the loop continues.
func (l *Loop) confirm(ctx context.Context, st *State, s Step, raw json.RawMessage) (bool, error) {
	l.cfg.Sink.Emit(events.Event{Type: events.AgentFinal, Step: st.Step, Data: map[string]any{"summary": s.Summary}})
	if l.cfg.Asker == nil {
		return true, nil
	}

	answer, err := l.cfg.Asker.Ask(ctx, fmt.Sprintf(finalQuestion, s.Summary), interact.Options{Multiline: true})
	if l.cfg.Control.State() == Cancelled {
		return false, ErrCancelled
	}
	if err != nil {
		return false, err
	}
	feedback := strings.TrimSpace(answer)
	if feedback == "" {
		return true, nil
	}

	logging.Info("final answer rejected", "step", st.Step)
	st.History = append(st.History, chat.Assistant(string(raw)), chat.User(feedbackMessage(feedback)))
	st.AntiLoop = false
	return false, nil
}

func (l *Loop) stop(st *State, err error) (Result, error) {
	if errors.Is(err, ErrCancelled) {
		return l.finish(st, Result{Reason: ReasonCancelled, Summary: "cancelled"}), ErrCancelled
	}
	logging.Error("agent loop failed", "run", st.RunID, "step", st.Step, "error", err)
	return l.finish(st, Result{Reason: ReasonFailed, Summary: err.Error()}), err
}

func (l *Loop) finish(st *State, r Result) Result {
	r.Steps = st.Step
	st.Result = &r
	return r
}
