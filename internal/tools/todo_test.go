package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lowvibe/internal/events"
	"lowvibe/internal/plan"
)

func newPlan() *plan.Plan {
	return plan.New("do things", []plan.Todo{{Title: "first"}, {Title: "second"}})
}

func TestTodoTools(t *testing.T) {
	p := newPlan()
	rec := &events.Recorder{}
	r, err := NewRegistry(TodoTools(p, rec)...)
	require.NoError(t, err)
	ctx := context.Background()

	res := r.Dispatch(ctx, "mark_todo_done", map[string]any{"index": 1.0})
	require.True(t, res.OK(), res.Error)
	todo, _ := p.Get(1)
	assert.Equal(t, plan.StatusCompleted, todo.Status)

	res = r.Dispatch(ctx, "mark_todo_done", map[string]any{"index": 9.0})
	assert.Contains(t, res.Error, "out of range")

	res = r.Dispatch(ctx, "add_todo", map[string]any{"title": "third", "acceptance_criteria": []any{"tests pass"}})
	require.True(t, res.OK(), res.Error)
	todo, _ = p.Get(2)
	assert.Equal(t, []string{"tests pass"}, todo.AcceptanceCriteria)

	res = r.Dispatch(ctx, "update_todo", map[string]any{"index": 0.0, "status": "failed", "details": "blocked"})
	require.True(t, res.OK(), res.Error)
	todo, _ = p.Get(0)
	assert.Equal(t, plan.StatusFailed, todo.Status)
	assert.Equal(t, "blocked", todo.Details)
	assert.Equal(t, "first", todo.Title)

	res = r.Dispatch(ctx, "update_todo", map[string]any{"index": 0.0, "status": "bogus"})
	assert.Contains(t, res.Error, "invalid arguments")

	assert.Equal(t, 3, rec.Count(events.PlanUpdated))
}

func TestManageTodos(t *testing.T) {
	p := newPlan()
	rec := &events.Recorder{}
	r, err := NewRegistry(ManageTodos(p, rec))
	require.NoError(t, err)
	ctx := context.Background()

	res := r.Dispatch(ctx, "manage_todos", map[string]any{"action": "list"})
	assert.Contains(t, res.Content, "[0]")
	assert.Zero(t, rec.Count(events.PlanUpdated))

	res = r.Dispatch(ctx, "manage_todos", map[string]any{"action": "complete", "index": 0.0})
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, 1, p.PendingCount())

	res = r.Dispatch(ctx, "manage_todos", map[string]any{"action": "add", "title": "x"})
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, 3, p.Len())

	res = r.Dispatch(ctx, "manage_todos", map[string]any{"action": "explode"})
	assert.Contains(t, res.Error, "invalid arguments")

	got := rec.Events()
	last := got[len(got)-1]
	assert.Equal(t, 2, last.Data["pending"])
}
