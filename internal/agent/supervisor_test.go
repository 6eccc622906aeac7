package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lowvibe/internal/chat"
	ctxmgr "lowvibe/internal/context"
	"lowvibe/internal/events"
	"lowvibe/internal/oracle"
	"lowvibe/internal/oracle/oracletest"
)

const okVerdict = `{"loop_detected":false,"progress_made":true,"coding_advice":"keep going",` +
	`"debugging_tips":"","next_step_suggestion":"","todos_to_complete":[],"confidence":0.7}`

func TestSupervisorDue(t *testing.T) {
	s := NewSupervisor(oracletest.New(), ctxmgr.NewViewBuilder(nil), SupervisorOptions{}, nil)
	var due []int
	for step := 0; step <= 16; step++ {
		if s.Due(step) {
			due = append(due, step)
		}
	}
	assert.Equal(t, []int{5, 10, 15}, due)
}

func TestSupervisorRetriesInvalidVerdict(t *testing.T) {
	o := oracletest.New(
		oracletest.JSON(`{"loop_detected":"maybe"}`),
		oracletest.JSON(okVerdict),
	)
	st := NewState("run", t.TempDir(), "task")
	st.History = []chat.Message{chat.System("sys"), chat.Task("task")}
	s := NewSupervisor(o, ctxmgr.NewViewBuilder(nil), SupervisorOptions{}, nil)

	v, err := s.Run(context.Background(), st)
	require.NoError(t, err)
	assert.True(t, v.ProgressMade)
	assert.Equal(t, "keep going", v.CodingAdvice)

	calls := o.Calls()
	require.Len(t, calls, 2)
	retry := calls[1].Messages
	assert.Equal(t, chat.KindCorrective, retry[len(retry)-1].Kind)

	// Advice lands in history even without a loop.
	last := st.History[len(st.History)-1]
	assert.Equal(t, chat.RoleSystem, last.Role)
	assert.Contains(t, last.Content, "keep going")
}

func TestSupervisorGivesUpAfterValidationRetries(t *testing.T) {
	o := oracletest.New()
	o.Fallback = &oracletest.Reply{JSON: `{}`}
	rec := &events.Recorder{}
	st := NewState("run", t.TempDir(), "task")
	st.Step = 5
	s := NewSupervisor(o, ctxmgr.NewViewBuilder(nil), SupervisorOptions{}, rec)

	_, err := s.Run(context.Background(), st)
	var se *SupervisorError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 5, se.Step)
	assert.Len(t, o.Calls(), 3)
	assert.Equal(t, []events.Type{events.SupervisorStart, events.SupervisorError}, rec.Types())
}

func TestSupervisorShrinksViewOnOverflow(t *testing.T) {
	o := oracletest.New(
		oracletest.Reply{Err: &oracle.OverflowError{PromptTokens: 9000, Limit: 8192}},
		oracletest.JSON(okVerdict),
	)
	st := NewState("run", t.TempDir(), "task")
	st.History = []chat.Message{chat.System("sys"), chat.Task("task")}
	for i := 0; i < 30; i++ {
		st.History = append(st.History, chat.Assistant(fmt.Sprintf("step %d", i)))
	}
	s := NewSupervisor(o, ctxmgr.NewViewBuilder(nil), SupervisorOptions{}, nil)

	_, err := s.Run(context.Background(), st)
	require.NoError(t, err)
	assert.Len(t, o.Calls(), 2)
}

func TestCollectSignals(t *testing.T) {
	history := []chat.Message{
		chat.System("sys"),
		chat.Task("task"),
		chat.ToolCall("run_cmd", `{"kind":"tool_call","tool":"run_cmd","args":{"command":"go test","cwd":"pkg"}}`),
		chat.ToolResult("run_cmd", "ok\n--- FAIL: TestX\nmain_test.go:12: undefined: Foo\n"),
		chat.ToolCall("read_file", `{"kind":"tool_call","tool":"read_file","args":{"path":"pkg/x.go"}}`),
		chat.ToolResult("read_file", "package pkg"),
	}

	sig := collectSignals(history)
	assert.ElementsMatch(t, []string{"pkg", "pkg/x.go"}, sig.paths)
	assert.Equal(t, []string{"main_test.go:12: undefined: Foo"}, sig.errors)
	assert.Len(t, sig.outputs, 2)
}
