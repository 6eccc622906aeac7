package app

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"lowvibe/internal/agent"
	"lowvibe/internal/audit"
	"lowvibe/internal/config"
	ctxmgr "lowvibe/internal/context"
	"lowvibe/internal/events"
	"lowvibe/internal/interact"
	"lowvibe/internal/logging"
	"lowvibe/internal/oracle"
	"lowvibe/internal/permission"
	"lowvibe/internal/pipeline"
	"lowvibe/internal/security"
	"lowvibe/internal/shell"
	"lowvibe/internal/team"
	"lowvibe/internal/tools"
	"lowvibe/internal/ui"
	"lowvibe/internal/workspace"
)

// App is one assembled run.
type App struct {
	cfg   *config.Config
	runID string

	oracle  oracle.Oracle
	scope   *security.Scope
	tree    *workspace.Cache
	env     *tools.Env
	gate    *permission.Gate
	runner  *shell.Runner
	control *agent.Control
	handoff *interact.Handoff
	asker   interact.Asker

	channel *events.Channel
	bridge  *events.Bridge
	trail   *audit.Trail
	sink    events.Sink

	context   *ctxmgr.Manager
	views     *ctxmgr.ViewBuilder
	presenter *ui.Presenter
	watch     bool
}

// RunID identifies the run in events and logs.
func (a *App) RunID() string { return a.runID }

// Control is the run's pause/resume/cancel handle.
func (a *App) Control() *agent.Control { return a.control }

// Run executes the pipeline for task while the console presenter, the
// workspace watcher and the event bridge run alongside it. Auxiliaries
// stop when the pipeline ends.
func (a *App) Run(ctx context.Context, task string) (agent.Result, error) {
	st := agent.NewState(a.runID, a.scope.Root(), task)
	runner := pipeline.NewRunner(a.sink, a.stages()...)
	logging.Info("run started", "run", a.runID, "multi", a.cfg.Agent.Multi, "stages", runner.Stages())

	g, gctx := errgroup.WithContext(ctx)
	aux, stopAux := context.WithCancel(gctx)
	defer stopAux()

	var runErr error
	g.Go(func() error {
		defer stopAux()
		defer a.channel.Close()
		runErr = runner.Run(gctx, st)
		return nil
	})

	// The presenter drains until the channel closes so the last events
	// are always printed.
	g.Go(func() error {
		return a.presenter.Present(ctx, a.channel.Events())
	})

	if a.watch {
		g.Go(func() error {
			if err := a.tree.Watch(aux); err != nil {
				logging.Warn("workspace watcher stopped", "error", err)
			}
			return nil
		})
	}

	if a.bridge != nil {
		g.Go(func() error {
			return a.bridge.Serve(aux, a.cfg.Events.Listen)
		})
	}

	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	if a.trail != nil {
		if err := a.trail.Close(); err != nil {
			logging.Warn("failed to close audit trail", "error", err)
		}
	}
	return outcome(st, runErr)
}

// outcome turns the pipeline's end state into a Result. A run that
// failed before an executor finished still gets one.
func outcome(st *agent.State, err error) (agent.Result, error) {
	switch {
	case st.Result != nil:
	case errors.Is(err, agent.ErrCancelled), errors.Is(err, context.Canceled):
		st.Result = &agent.Result{Reason: agent.ReasonCancelled, Steps: st.Step}
	case err != nil:
		st.Result = &agent.Result{Reason: agent.ReasonFailed, Summary: err.Error(), Steps: st.Step}
	default:
		st.Result = &agent.Result{Reason: agent.ReasonFailed, Summary: "pipeline ended without a result", Steps: st.Step}
	}
	res := *st.Result
	logging.Info("run finished", "run", st.RunID, "success", res.Success, "reason", res.Reason, "steps", res.Steps,
		"prompt_tokens", st.Usage.PromptTokens, "completion_tokens", st.Usage.CompletionTokens)
	if res.Reason == agent.ReasonCancelled {
		return res, agent.ErrCancelled
	}
	return res, err
}

func (a *App) stages() []pipeline.Stage {
	ac := a.cfg.Agent
	return pipeline.Default(pipeline.Config{
		Oracle:      a.oracle,
		Tree:        a.tree,
		Scope:       a.scope,
		MaxSelected: ac.MaxSelectedFiles,
		AttachBytes: ac.MaxAttachBytes,
		Sink:        a.sink,
		MultiAgent:  ac.Multi,
		SkipSelect:  !ac.SelectFiles,
		Single:      a.single,
		Team:        a.team,
	})
}

// budget is the prompt-token budget: the window minus the reply reservation.
func (a *App) budget() int {
	oc := a.cfg.Oracle
	if b := oc.ContextLength - oc.MaxTokens; b > 0 {
		return b
	}
	return oc.ContextLength
}

func (a *App) single(st *agent.State) (pipeline.Executor, error) {
	reg, err := singleTools(a.env, a.gate, a.runner, st.Plan, a.sink)
	if err != nil {
		return nil, err
	}
	var sup *agent.Supervisor
	if sc := a.cfg.Supervisor; sc.Enabled {
		sup = agent.NewSupervisor(a.oracle, a.views, agent.SupervisorOptions{
			Interval:          sc.Interval,
			ViewMessages:      sc.ViewMessages,
			PreserveFirst:     sc.PreserveFirst,
			PreserveLast:      sc.PreserveLast,
			PreserveFloor:     sc.PreserveFloor,
			OverflowRetries:   sc.OverflowRetries,
			ValidationRetries: sc.ValidationRetries,
			TruncateChars:     sc.TruncateChars,
		}, a.sink)
	}
	loop, err := agent.NewLoop(agent.LoopConfig{
		Oracle:     a.oracle,
		Tools:      reg,
		Context:    a.context,
		Budget:     a.budget(),
		Supervisor: sup,
		SmartEdit:  agent.NewSmartEdit(a.oracle, a.scope, reg),
		Asker:      a.asker,
		Control:    a.control,
		Sink:       a.sink,
		MaxSteps:   a.cfg.Agent.MaxSteps,
	})
	if err != nil {
		return nil, err
	}
	return loop, nil
}

func (a *App) team(st *agent.State) (pipeline.Executor, error) {
	owned := tools.NewOwned()
	ts, err := teamTools(a.env, a.gate, a.runner, st.Plan, a.sink, owned)
	if err != nil {
		return nil, err
	}
	ac := a.cfg.Agent
	orch, err := team.New(team.Config{
		Oracle:  a.oracle,
		Context: a.context,
		Budget:  a.budget(),
		Tools:   ts,
		Owned:   owned,
		Scope:   a.scope,
		Asker:   a.asker,
		Control: a.control,
		Sink:    a.sink,
		Limits: team.Limits{
			Thinker:     ac.ThinkerSteps,
			Implementer: ac.ImplementerSteps,
			Tester:      ac.TesterSteps,
		},
	})
	if err != nil {
		return nil, err
	}
	return orch, nil
}
