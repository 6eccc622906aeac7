package tools

import (
	"context"
	"fmt"

	"lowvibe/internal/events"
	"lowvibe/internal/plan"
)

// NotifyPlan emits a full plan snapshot.
func NotifyPlan(sink events.Sink, p *plan.Plan) {
	snap := p.Snapshot()
	events.OrDiscard(sink).Emit(events.Event{Type: events.PlanUpdated, Data: map[string]any{
		"restatement": snap.Restatement,
		"todos":       snap.Todos,
		"pending":     snap.PendingCount(),
		"markdown":    snap.Markdown(),
	}})
}

// TodoTools returns mark_todo_done, add_todo and update_todo bound to p.
// Every mutation re-broadcasts the plan.
func TodoTools(p *plan.Plan, sink events.Sink) []Spec {
	t := todos{plan: p, sink: sink}
	return []Spec{
		{
			Name:        "mark_todo_done",
			Description: "Mark the todo at the given zero-based index as completed.",
			Params:      map[string]any{"index": integer("zero-based todo index")},
			Required:    []string{"index"},
			Handler: func(ctx context.Context, args Args) Result {
				return t.complete(args.Int("index", -1))
			},
		},
		{
			Name:        "add_todo",
			Description: "Append a new pending todo to the plan.",
			Params:      todoParams(),
			Required:    []string{"title"},
			Handler: func(ctx context.Context, args Args) Result {
				return t.add(args)
			},
		},
		{
			Name:        "update_todo",
			Description: "Change fields of the todo at the given zero-based index.",
			Params:      withIndex(todoParams()),
			Required:    []string{"index"},
			Handler: func(ctx context.Context, args Args) Result {
				return t.update(args)
			},
		},
	}
}

// ManageTodos is the single combined todo tool given to planning roles.
func ManageTodos(p *plan.Plan, sink events.Sink) Spec {
	t := todos{plan: p, sink: sink}
	params := withIndex(todoParams())
	params["action"] = map[string]any{
		"type":        "string",
		"enum":        []any{"list", "add", "update", "complete"},
		"description": "what to do with the todo list",
	}
	return Spec{
		Name:        "manage_todos",
		Description: "List, add, update or complete todos. Indices are zero-based.",
		Params:      params,
		Required:    []string{"action"},
		Handler: func(ctx context.Context, args Args) Result {
			switch args.String("action") {
			case "list":
				return Success(p.Format())
			case "add":
				return t.add(args)
			case "update":
				return t.update(args)
			case "complete":
				return t.complete(args.Int("index", -1))
			}
			return Failure("unknown action %q", args.String("action"))
		},
	}
}

type todos struct {
	plan *plan.Plan
	sink events.Sink
}

func (t todos) complete(index int) Result {
	if err := t.plan.MarkDone(index); err != nil {
		return Failure("%v", err)
	}
	NotifyPlan(t.sink, t.plan)
	return Success(fmt.Sprintf("todo %d completed; %d remaining\n%s", index, t.plan.PendingCount(), t.plan.Format()))
}

func (t todos) add(args Args) Result {
	title := args.String("title")
	if title == "" {
		return Failure("title is required")
	}
	i := t.plan.Add(plan.Todo{
		Title:              title,
		Details:            args.String("details"),
		AcceptanceCriteria: args.Strings("acceptance_criteria"),
	})
	NotifyPlan(t.sink, t.plan)
	return Success(fmt.Sprintf("added todo %d\n%s", i, t.plan.Format()))
}

func (t todos) update(args Args) Result {
	index := args.Int("index", -1)
	var patch plan.Patch
	if _, ok := args["title"]; ok {
		s := args.String("title")
		patch.Title = &s
	}
	if _, ok := args["details"]; ok {
		s := args.String("details")
		patch.Details = &s
	}
	if _, ok := args["acceptance_criteria"]; ok {
		patch.AcceptanceCriteria = args.Strings("acceptance_criteria")
	}
	if _, ok := args["status"]; ok {
		s := plan.Status(args.String("status"))
		patch.Status = &s
	}
	if err := t.plan.Update(index, patch); err != nil {
		return Failure("%v", err)
	}
	NotifyPlan(t.sink, t.plan)
	return Success(fmt.Sprintf("updated todo %d\n%s", index, t.plan.Format()))
}

func todoParams() map[string]any {
	return map[string]any{
		"title":               str("short todo title"),
		"details":             str("what the todo involves"),
		"acceptance_criteria": stringArray("conditions that make the todo done"),
		"status": map[string]any{
			"type": "string",
			"enum": []any{string(plan.StatusPending), string(plan.StatusCompleted), string(plan.StatusFailed)},
		},
	}
}

func withIndex(params map[string]any) map[string]any {
	params["index"] = integer("zero-based todo index")
	return params
}
