// Package pipeline sequences the stages of a run over one shared state.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"lowvibe/internal/agent"
	"lowvibe/internal/events"
	"lowvibe/internal/logging"
)

// Stage is one named step of a pipeline. A stage owns the state while it
// runs.
type Stage struct {
	Name string
	Run  func(ctx context.Context, st *agent.State) error
}

// StageError reports which stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Runner executes stages in order. It never retries: the first failing
// stage aborts the rest.
type Runner struct {
	stages []Stage
	sink   events.Sink
}

// NewRunner returns a runner over stages.
func NewRunner(sink events.Sink, stages ...Stage) *Runner {
	return &Runner{stages: stages, sink: events.OrDiscard(sink)}
}

// Stages returns the stage names in order.
func (r *Runner) Stages() []string {
	names := make([]string, len(r.stages))
	for i, s := range r.stages {
		names[i] = s.Name
	}
	return names
}

// Run executes every stage against st. A failure is returned as a
// *StageError.
func (r *Runner) Run(ctx context.Context, st *agent.State) (err error) {
	start := time.Now()
	r.sink.Emit(events.Event{Type: events.PipelineStart, Data: map[string]any{
		"task":   st.UserTask,
		"stages": r.Stages(),
	}})
	defer func() {
		data := map[string]any{"ok": err == nil, "duration_ms": time.Since(start).Milliseconds()}
		if st.Result != nil {
			data["result"] = *st.Result
		}
		r.sink.Emit(events.Event{Type: events.PipelineEnd, Data: data})
	}()

	for _, stage := range r.stages {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: stage.Name, Err: err}
		}

		logging.Info("stage started", "stage", stage.Name)
		r.sink.Emit(events.Event{Type: events.StageEnter, Stage: stage.Name})
		began := time.Now()

		if err := stage.Run(ctx, st); err != nil {
			logging.Error("stage failed", "stage", stage.Name, "error", err)
			r.sink.Emit(events.Event{Type: events.StageError, Stage: stage.Name, Data: map[string]any{"error": err.Error()}})
			return &StageError{Stage: stage.Name, Err: err}
		}

		logging.Info("stage finished", "stage", stage.Name, "duration", time.Since(began))
		r.sink.Emit(events.Event{Type: events.StageExit, Stage: stage.Name, Data: snapshot(st)})
	}
	return nil
}

// snapshot is the state summary attached to stage_exit.
func snapshot(st *agent.State) map[string]any {
	data := map[string]any{
		"files":       len(st.Files),
		"selected":    st.Selected,
		"attachments": len(st.Attachments),
		"steps":       st.Step,
		"tokens":      st.Usage.TotalTokens,
	}
	if st.Plan != nil {
		data["todos"] = st.Plan.Len()
		data["pending"] = st.Plan.PendingCount()
	}
	if st.Result != nil {
		data["result"] = *st.Result
	}
	return data
}
