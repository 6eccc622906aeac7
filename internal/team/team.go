// Package team runs the multi-agent variant: a Thinker plans and inspects,
// Implementers carry out one task each, Testers check every implemented
// task and a Finisher reports each batch back to the Thinker.
package team

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"lowvibe/internal/agent"
	"lowvibe/internal/chat"
	ctxmgr "lowvibe/internal/context"
	"lowvibe/internal/events"
	"lowvibe/internal/interact"
	"lowvibe/internal/logging"
	"lowvibe/internal/oracle"
	"lowvibe/internal/security"
	"lowvibe/internal/tools"
)

// Toolsets are the registries each role may use.
type Toolsets struct {
	Thinker     *tools.Registry
	Implementer *tools.Registry
	Tester      *tools.Registry
}

// Limits are per-role step budgets.
type Limits struct {
	Thinker     int
	Implementer int
	Tester      int
}

// DefaultLimits returns the stock budgets.
func DefaultLimits() Limits {
	return Limits{Thinker: 60, Implementer: 40, Tester: 30}
}

const finisherAttempts = 3

// Config wires an Orchestrator.
type Config struct {
	Oracle  oracle.Oracle
	Context *ctxmgr.Manager
	Budget  int
	Tools   Toolsets
	// Owned is the set of files the Tester created. Files a Tester run
	// creates and does not keep are removed when it reports.
	Owned   *tools.Owned
	Scope   *security.Scope
	Asker   interact.Asker
	Control *agent.Control
	Sink    events.Sink
	Limits  Limits
}

// Orchestrator runs the team against one state.
type Orchestrator struct {
	cfg     Config
	results []TaskResultEntry
}

// New checks cfg and builds an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Oracle == nil {
		return nil, errors.New("team: orchestrator needs an oracle")
	}
	if cfg.Tools.Thinker == nil || cfg.Tools.Implementer == nil || cfg.Tools.Tester == nil {
		return nil, errors.New("team: every role needs a tool registry")
	}
	def := DefaultLimits()
	if cfg.Limits.Thinker <= 0 {
		cfg.Limits.Thinker = def.Thinker
	}
	if cfg.Limits.Implementer <= 0 {
		cfg.Limits.Implementer = def.Implementer
	}
	if cfg.Limits.Tester <= 0 {
		cfg.Limits.Tester = def.Tester
	}
	cfg.Sink = events.OrDiscard(cfg.Sink)
	if cfg.Control == nil {
		cfg.Control = agent.NewControl(cfg.Sink)
	}
	cfg.Asker = cfg.Control.Asker(cfg.Asker)
	return &Orchestrator{cfg: cfg}, nil
}

func (o *Orchestrator) role(name string, reg *tools.Registry, schema, noTool oracle.Schema, limit int) *roleLoop {
	return &roleLoop{
		role: name,
		turn: &agent.Turn{
			Oracle:  o.cfg.Oracle,
			Context: o.cfg.Context,
			Budget:  o.cfg.Budget,
			Sink:    o.cfg.Sink,
			Role:    name,
		},
		tools:    reg,
		schema:   schema,
		noTool:   noTool,
		maxSteps: limit,
		control:  o.cfg.Control,
		sink:     o.cfg.Sink,
	}
}

// Run drives the Thinker until it finishes, runs out of steps, is
// cancelled or hits a fatal error. st.History is the Thinker's conversation.
func (o *Orchestrator) Run(ctx context.Context, st *agent.State) (agent.Result, error) {
	reg := o.cfg.Tools.Thinker
	if len(st.History) == 0 {
		st.History = []chat.Message{
			chat.System(fmt.Sprintf(thinkerPrompt, reg.Describe())),
			chat.Task(agent.TaskMessage(st)),
		}
	}
	open, noTool := ThinkerSchemas(reg.Names())
	thinker := o.role(RoleThinker, reg, open, noTool, o.cfg.Limits.Thinker)
	logging.Info("team run started", "run", st.RunID, "limits", o.cfg.Limits)

	var final *agent.Result
	steps, exhausted, err := thinker.run(ctx, st, &st.History, func(n int, s step, raw json.RawMessage, prev string) (bool, error) {
		switch s.Kind {
		case KindImplement:
			if prev == KindImplement {
				thinker.turn.Reject(&st.History, n, raw, implementTwiceCorrective)
				return false, nil
			}
			st.History = append(st.History, chat.Assistant(string(raw)))
			report, err := o.batch(ctx, st, s)
			if err != nil {
				return false, err
			}
			st.History = append(st.History, chat.User(report.Message()))
			return false, nil

		case KindFinal:
			accepted, err := o.confirm(ctx, st, s, raw)
			if err != nil || !accepted {
				return false, err
			}
			final = &agent.Result{Success: true, Reason: agent.ReasonAccepted, Summary: s.Summary}
			return true, nil
		}
		thinker.turn.Reject(&st.History, n, raw, fmt.Sprintf("Unknown kind %q.", s.Kind))
		return false, nil
	})
	st.Step = steps

	var res agent.Result
	switch {
	case errors.Is(err, agent.ErrCancelled):
		res = agent.Result{Reason: agent.ReasonCancelled, Summary: "cancelled"}
	case err != nil:
		logging.Error("team run failed", "run", st.RunID, "error", err)
		res = agent.Result{Reason: agent.ReasonFailed, Summary: err.Error()}
	case exhausted:
		res = agent.Result{Reason: agent.ReasonExhausted, Summary: "thinker step budget exhausted"}
	default:
		res = *final
	}
	res.Steps = steps
	st.Result = &res
	return res, err
}

func (o *Orchestrator) confirm(ctx context.Context, st *agent.State, s step, raw json.RawMessage) (bool, error) {
	if o.cfg.Asker == nil {
		return true, nil
	}
	q := fmt.Sprintf("The team reports the task complete:\n\n%s\n\n"+
		"Press Enter to accept, or describe what is still wrong (end with an empty line).", s.Summary)
	answer, err := o.cfg.Asker.Ask(ctx, q, interact.Options{Multiline: true})
	if o.cfg.Control.State() == agent.Cancelled {
		return false, agent.ErrCancelled
	}
	if err != nil {
		return false, err
	}
	feedback := strings.TrimSpace(answer)
	if feedback == "" {
		return true, nil
	}
	st.History = append(st.History, chat.Assistant(string(raw)), chat.User(
		"The user reviewed your completion and rejected it:\n"+feedback+
			"\nAddress this feedback before declaring the task complete again."))
	return false, nil
}

// batch implements and tests each task in order, then has the Finisher
// report. An implementer failure stops the batch; the Finisher still
// reports what was done.
func (o *Orchestrator) batch(ctx context.Context, st *agent.State, s step) (Report, error) {
	logging.Info("implement batch", "description", s.Description, "tasks", len(s.Tasks))
	var failure string
	for i, task := range s.Tasks {
		summary, ok, err := o.implement(ctx, st, s.Description, task)
		if err != nil {
			return Report{}, err
		}
		if !ok {
			failure = fmt.Sprintf("task %d (%s) was not implemented: %s", i+1, task.File, summary)
			o.results = append(o.results, TaskResultEntry{
				Task:       task,
				TestResult: TestResult{Mistakes: summary, TestsToKeep: []string{}},
			})
			logging.Warn("batch stopped", "task", i+1, "reason", summary)
			break
		}
		result, err := o.test(ctx, st, task, summary)
		if err != nil {
			return Report{}, err
		}
		o.results = append(o.results, TaskResultEntry{Task: task, TestResult: result})
	}

	report, err := o.finish(ctx, st, s.Description, failure)
	o.results = nil
	return report, err
}

// implement runs one Implementer. ok=false carries the reason the task was
// not done.
func (o *Orchestrator) implement(ctx context.Context, st *agent.State, batch string, task ImplementTask) (string, bool, error) {
	reg := o.cfg.Tools.Implementer
	history := []chat.Message{
		chat.System(fmt.Sprintf(implementerPrompt, reg.Describe())),
		chat.Task(implementerTask(st.UserTask, batch, task)),
	}
	open, noTool := ImplementerSchemas(reg.Names())
	r := o.role(RoleImplementer, reg, open, noTool, o.cfg.Limits.Implementer)

	var text string
	var ok bool
	_, exhausted, err := r.run(ctx, st, &history, func(_ int, s step, _ json.RawMessage, _ string) (bool, error) {
		switch s.Kind {
		case KindDone:
			text, ok = s.Summary, true
		case KindError:
			text, ok = s.Reason, false
		default:
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return "", false, err
	}
	if exhausted {
		return "implementer step budget exhausted", false, nil
	}
	return text, ok, nil
}

// test runs one Tester on an implemented task and removes the test files
// it created but did not keep.
func (o *Orchestrator) test(ctx context.Context, st *agent.State, task ImplementTask, summary string) (TestResult, error) {
	before := make(map[string]bool)
	if o.cfg.Owned != nil {
		for _, f := range o.cfg.Owned.Files() {
			before[f] = true
		}
	}

	reg := o.cfg.Tools.Tester
	history := []chat.Message{
		chat.System(fmt.Sprintf(testerPrompt, reg.Describe())),
		chat.Task(testerTask(st.UserTask, task, summary)),
	}
	open, noTool := TesterSchemas(reg.Names())
	r := o.role(RoleTester, reg, open, noTool, o.cfg.Limits.Tester)

	var result TestResult
	_, exhausted, err := r.run(ctx, st, &history, func(_ int, s step, _ json.RawMessage, _ string) (bool, error) {
		if s.Kind != KindResult || s.Payload == nil {
			return false, nil
		}
		result = *s.Payload
		return true, nil
	})
	if err != nil {
		return TestResult{}, err
	}
	if exhausted {
		result = TestResult{Mistakes: "tester step budget exhausted before reporting", TestsToKeep: []string{}}
	}
	o.sweep(before, result.TestsToKeep)
	return result, nil
}

func (o *Orchestrator) sweep(before map[string]bool, keep []string) {
	if o.cfg.Owned == nil || o.cfg.Scope == nil {
		return
	}
	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		if abs, err := o.cfg.Scope.Resolve(k); err == nil {
			kept[abs] = true
		}
	}
	for _, f := range o.cfg.Owned.Files() {
		if before[f] || kept[f] {
			continue
		}
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			logging.Warn("failed to remove scratch test file", "path", f, "error", err)
			continue
		}
		logging.Debug("removed scratch test file", "path", o.cfg.Scope.Rel(f))
	}
}

// finish asks the Finisher for the batch summary. Unusable replies fall
// back to a mechanical summary; transport failures are fatal.
func (o *Orchestrator) finish(ctx context.Context, st *agent.State, description, failure string) (Report, error) {
	report := Report{TaskResults: append([]TaskResultEntry(nil), o.results...)}
	history := []chat.Message{
		chat.System(finisherPrompt),
		chat.Task(finisherBrief(description, report.TaskResults, failure)),
	}
	turn := &agent.Turn{Oracle: o.cfg.Oracle, Sink: o.cfg.Sink, Role: RoleFinisher}
	schema := FinisherSchema()

	for attempt := 1; attempt <= finisherAttempts && report.Overall == ""; attempt++ {
		raw, ok, err := turn.Call(ctx, st, &history, schema, attempt)
		if err != nil {
			return Report{}, err
		}
		if !ok {
			continue
		}
		var out struct {
			Overall string `json:"overall"`
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			turn.Reject(&history, attempt, raw, agent.Corrective(schema, err))
			continue
		}
		report.Overall = out.Overall
	}
	if report.Overall == "" {
		report.Overall = mechanicalOverall(report.TaskResults, failure)
		logging.Warn("finisher gave no usable report, using mechanical summary")
	}

	o.cfg.Sink.Emit(events.Event{Type: events.TeamResult, Role: RoleFinisher, Data: map[string]any{
		"overall":      report.Overall,
		"task_results": report.TaskResults,
		"stopped":      failure,
	}})
	return report, nil
}

func mechanicalOverall(entries []TaskResultEntry, failure string) string {
	passed := 0
	for _, e := range entries {
		if e.TestResult.SuccessfullyImplemented {
			passed++
		}
	}
	msg := fmt.Sprintf("%d of %d tasks passed their tests.", passed, len(entries))
	if failure != "" {
		msg += " " + failure
	}
	return msg
}
