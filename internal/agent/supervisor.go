package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"lowvibe/internal/chat"
	ctxmgr "lowvibe/internal/context"
	"lowvibe/internal/events"
	"lowvibe/internal/logging"
	"lowvibe/internal/oracle"
	"lowvibe/internal/tools"
)

// SupervisorError aborts the run. Supervision is not best-effort: a run
// whose progress cannot be audited does not continue.
type SupervisorError struct {
	Step int
	Err  error
}

func (e *SupervisorError) Error() string {
	return fmt.Sprintf("supervisor failed at step %d: %v", e.Step, e.Err)
}

func (e *SupervisorError) Unwrap() error { return e.Err }

// SupervisorOptions tunes the Supervisor.
type SupervisorOptions struct {
	Interval          int
	ViewMessages      int
	PreserveFirst     int
	PreserveLast      int
	PreserveFloor     int
	OverflowRetries   int
	ValidationRetries int
	TruncateChars     int
}

// DefaultSupervisorOptions returns the stock tuning.
func DefaultSupervisorOptions() SupervisorOptions {
	return SupervisorOptions{
		Interval:          5,
		ViewMessages:      20,
		PreserveFirst:     2,
		PreserveLast:      10,
		PreserveFloor:     2,
		OverflowRetries:   5,
		ValidationRetries: 3,
		TruncateChars:     2000,
	}
}

// Verdict is the Supervisor's judgement of recent progress.
type Verdict struct {
	LoopDetected       bool    `json:"loop_detected"`
	ProgressMade       bool    `json:"progress_made"`
	CodingAdvice       string  `json:"coding_advice"`
	DebuggingTips      string  `json:"debugging_tips"`
	NextStepSuggestion string  `json:"next_step_suggestion"`
	TodosToComplete    []int   `json:"todos_to_complete"`
	Confidence         float64 `json:"confidence"`
}

// Supervisor periodically audits the loop from a bounded view of its
// history and steers it.
type Supervisor struct {
	oracle oracle.Oracle
	views  *ctxmgr.ViewBuilder
	opts   SupervisorOptions
	sink   events.Sink
}

// NewSupervisor builds a supervisor. Zero options take the defaults.
func NewSupervisor(o oracle.Oracle, views *ctxmgr.ViewBuilder, opts SupervisorOptions, sink events.Sink) *Supervisor {
	def := DefaultSupervisorOptions()
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.ViewMessages <= 0 {
		opts.ViewMessages = def.ViewMessages
	}
	if opts.PreserveLast <= 0 {
		opts.PreserveLast = def.PreserveLast
	}
	if opts.PreserveFloor <= 0 {
		opts.PreserveFloor = def.PreserveFloor
	}
	if opts.OverflowRetries <= 0 {
		opts.OverflowRetries = def.OverflowRetries
	}
	if opts.ValidationRetries <= 0 {
		opts.ValidationRetries = def.ValidationRetries
	}
	return &Supervisor{oracle: o, views: views, opts: opts, sink: events.OrDiscard(sink)}
}

// Due reports whether the supervisor runs before step.
func (s *Supervisor) Due(step int) bool {
	return step > 0 && step%s.opts.Interval == 0
}

// Run audits st and applies the verdict: completed todos are marked and
// the plan re-broadcast, a loop warning is injected when a loop is seen,
// and the advice is always injected. Any failure is a *SupervisorError.
func (s *Supervisor) Run(ctx context.Context, st *State) (Verdict, error) {
	s.sink.Emit(events.Event{Type: events.SupervisorStart, Step: st.Step})

	signals := collectSignals(st.History)
	spec := ctxmgr.ViewSpec{
		MaxMessages:   s.opts.ViewMessages,
		PreserveFirst: s.opts.PreserveFirst,
		PreserveLast:  s.opts.PreserveLast,
	}
	policy := ctxmgr.RetryPolicy{
		Attempts:      s.opts.OverflowRetries,
		Floor:         s.opts.PreserveFloor,
		TruncateChars: s.opts.TruncateChars,
	}

	var verdict Verdict
	err := s.views.WithRetry(ctx, st.History, spec, policy, func(ctx context.Context, v ctxmgr.View) error {
		var err error
		verdict, err = s.consult(ctx, st, v, signals)
		return err
	})
	if err != nil {
		s.sink.Emit(events.Event{Type: events.SupervisorError, Step: st.Step, Data: map[string]any{"error": err.Error()}})
		logging.Error("supervisor failed", "step", st.Step, "error", err)
		return Verdict{}, &SupervisorError{Step: st.Step, Err: err}
	}

	s.apply(st, verdict)
	return verdict, nil
}

// consult asks for a verdict, retrying unusable replies. Overflow errors
// are returned as-is so the view retry can shrink the excerpt.
func (s *Supervisor) consult(ctx context.Context, st *State, v ctxmgr.View, sig signals) (Verdict, error) {
	msgs := []chat.Message{
		chat.System(supervisorPrompt),
		chat.User(s.brief(st, v, sig)),
	}
	schema := VerdictSchema()

	var lastErr error
	for attempt := 0; attempt < s.opts.ValidationRetries; attempt++ {
		verdict, usage, err := oracle.Decode[Verdict](oracle.WithLabel(ctx, "supervisor"), s.oracle, msgs, schema)
		if usage.TotalTokens > 0 {
			st.Usage.Add(usage)
			s.sink.Emit(events.Event{Type: events.TokenUsage, Role: "supervisor", Step: st.Step, Data: map[string]any{
				"prompt_tokens":     usage.PromptTokens,
				"completion_tokens": usage.CompletionTokens,
				"total_tokens":      usage.TotalTokens,
				"run_total":         st.Usage.TotalTokens,
			}})
		}
		if err == nil {
			return verdict, nil
		}
		if !oracle.IsRecoverable(err) {
			return Verdict{}, err
		}
		lastErr = err
		logging.Warn("supervisor reply rejected", "attempt", attempt+1, "error", err)
		msgs = append(msgs, chat.Corrective(Corrective(schema, err)))
	}
	return Verdict{}, fmt.Errorf("no valid verdict after %d attempts: %w", s.opts.ValidationRetries, lastErr)
}

func (s *Supervisor) brief(st *State, v ctxmgr.View, sig signals) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task:\n%s\n\n", st.UserTask)
	if st.Plan != nil {
		fmt.Fprintf(&b, "Plan:\n%s\n", st.Plan.Format())
	}
	fmt.Fprintf(&b, "Step: %d\n\n", st.Step)
	if len(sig.errors) > 0 {
		fmt.Fprintf(&b, "Recent errors:\n- %s\n\n", strings.Join(sig.errors, "\n- "))
	}
	if len(sig.paths) > 0 {
		fmt.Fprintf(&b, "Recently touched paths: %s\n\n", strings.Join(sig.paths, ", "))
	}
	if len(sig.outputs) > 0 {
		fmt.Fprintf(&b, "Recent tool outputs:\n%s\n\n", strings.Join(sig.outputs, "\n---\n"))
	}
	if v.Summarized > 0 {
		fmt.Fprintf(&b, "(%d older messages are condensed into a summary.)\n", v.Summarized)
	}
	b.WriteString("Conversation excerpt:\n")
	b.WriteString(chat.Transcript(v.Messages))
	return b.String()
}

func (s *Supervisor) apply(st *State, v Verdict) {
	var completed []int
	if st.Plan != nil && len(v.TodosToComplete) > 0 {
		completed = st.Plan.Complete(v.TodosToComplete)
		if len(completed) > 0 {
			tools.NotifyPlan(s.sink, st.Plan)
		}
	}

	if v.LoopDetected {
		st.History = append(st.History, chat.System(
			"Supervisor warning: you are repeating yourself without making progress. "+
				"Stop and change your approach."))
	}
	st.History = append(st.History, chat.System(adviceText(v)))

	s.sink.Emit(events.Event{Type: events.SupervisorVerdict, Step: st.Step, Data: map[string]any{
		"loop_detected":   v.LoopDetected,
		"progress_made":   v.ProgressMade,
		"confidence":      v.Confidence,
		"todos_completed": completed,
		"advice":          adviceText(v),
	}})
	logging.Info("supervisor verdict", "step", st.Step, "loop", v.LoopDetected,
		"progress", v.ProgressMade, "completed", completed)
}

func adviceText(v Verdict) string {
	var b strings.Builder
	b.WriteString("Supervisor advice:")
	if v.CodingAdvice != "" {
		b.WriteString("\nCoding: " + v.CodingAdvice)
	}
	if v.DebuggingTips != "" {
		b.WriteString("\nDebugging: " + v.DebuggingTips)
	}
	if v.NextStepSuggestion != "" {
		b.WriteString("\nNext step: " + v.NextStepSuggestion)
	}
	return b.String()
}

// signals are cheap facts scraped from recent history for the brief.
type signals struct {
	errors  []string
	paths   []string
	outputs []string
}

const (
	signalWindow  = 20
	maxSignals    = 5
	maxOutputChar = 600
)

var errorLine = regexp.MustCompile(`(?im)^.*\b(error|failed|failure|panic|exception|traceback|not found|undefined)\b.*$`)

func collectSignals(history []chat.Message) signals {
	var sig signals
	seenErr := make(map[string]bool)
	seenPath := make(map[string]bool)

	start := max(0, len(history)-signalWindow)
	for i := len(history) - 1; i >= start; i-- {
		m := history[i]
		switch m.Kind {
		case chat.KindToolResult:
			if len(sig.outputs) < 3 {
				sig.outputs = append(sig.outputs, chat.Truncate(m.Content, maxOutputChar))
			}
			for _, line := range errorLine.FindAllString(m.Content, -1) {
				line = chat.Truncate(strings.TrimSpace(line), 200)
				if !seenErr[line] && len(sig.errors) < maxSignals {
					seenErr[line] = true
					sig.errors = append(sig.errors, line)
				}
			}
		case chat.KindToolCall:
			var step Step
			if json.Unmarshal([]byte(m.Content), &step) != nil {
				continue
			}
			for _, key := range []string{"path", "cwd"} {
				if p, ok := step.Args[key].(string); ok && p != "" && !seenPath[p] && len(sig.paths) < maxSignals {
					seenPath[p] = true
					sig.paths = append(sig.paths, p)
				}
			}
		}
	}
	return sig
}
