package context

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lowvibe/internal/chat"
	"lowvibe/internal/oracle/oracletest"
)

// history builds [system, task, pairs x (call, result), trailing...].
func history(pairs int, trailing int) []chat.Message {
	h := []chat.Message{chat.System("you are an agent"), chat.Task("fix the build")}
	for i := 0; i < pairs; i++ {
		tool := fmt.Sprintf("tool%d", i)
		h = append(h, chat.ToolCall(tool, `{"type":"tool_call"}`), chat.ToolResult(tool, `{"ok":true}`))
	}
	for i := 0; i < trailing; i++ {
		h = append(h, chat.Assistant(fmt.Sprintf("thinking %d", i)))
	}
	return h
}

func TestPruneToolPairs(t *testing.T) {
	h := history(8, 12) // 2 + 16 + 12 = 30 messages
	require.Len(t, h, 30)

	out, n := PruneToolPairs(h, 5)
	assert.Equal(t, 3, n)
	assert.Len(t, out, 27)
	assert.Equal(t, h[0], out[0])
	assert.Equal(t, h[1], out[1])
	for i, tool := range []string{"tool0", "tool1", "tool2"} {
		assert.Equal(t, chat.KindArchived, out[2+i].Kind)
		assert.Equal(t, "[archived tool call: "+tool+"]", out[2+i].Content)
	}
	assert.Equal(t, chat.KindToolCall, out[5].Kind)
	assert.Equal(t, "tool3", out[5].Tool)

	again, n := PruneToolPairs(out, 5)
	assert.Zero(t, n)
	assert.Equal(t, out, again)
}

func TestPruneLeavesSmallHistoriesAlone(t *testing.T) {
	h := history(5, 0)
	out, n := PruneToolPairs(h, 5)
	assert.Zero(t, n)
	assert.Equal(t, h, out)
}

func budgetFor(h []chat.Message, ratio float64) int {
	return int(float64(EstimateTokens(h)) / ratio)
}

func TestManageBelowThreshold(t *testing.T) {
	h := history(0, 20)
	m := NewManager(DefaultOptions(), nil)

	out, err := m.Manage(context.Background(), h, 0, budgetFor(h, 0.5))
	require.NoError(t, err)
	assert.False(t, out.Summarized)
	assert.Equal(t, h, out.History)
}

func TestManageSummarizes(t *testing.T) {
	h := history(0, 28)
	o := oracletest.New(oracletest.JSON(`{"summary": "- looked at main.go"}`))
	m := NewManager(DefaultOptions(), NewSummarizer(o))

	out, err := m.Manage(context.Background(), h, 0, budgetFor(h, 0.8))
	require.NoError(t, err)
	require.True(t, out.Summarized)
	assert.False(t, out.Mechanical)
	require.Len(t, out.History, 3+10)
	assert.Equal(t, h[0], out.History[0])
	assert.Equal(t, h[1], out.History[1])
	assert.Equal(t, chat.KindSummary, out.History[2].Kind)
	assert.Contains(t, out.History[2].Content, "looked at main.go")
	assert.Equal(t, h[len(h)-10:], out.History[3:])
	assert.Equal(t, []string{"history_summary"}, o.Schemas())
}

func TestManageUsesCallerEstimate(t *testing.T) {
	h := history(0, 30)
	o := oracletest.New(oracletest.JSON(`{"summary": "Tried patching the parser; the build still fails."}`))
	m := NewManager(DefaultOptions(), NewSummarizer(o))
	require.Less(t, float64(EstimateTokens(h))/10000, 0.65)

	out, err := m.Manage(context.Background(), h, 8000, 10000)
	require.NoError(t, err)
	require.True(t, out.Summarized)
	assert.Len(t, out.History, 3+DefaultOptions().Recent)
	assert.Equal(t, chat.KindSummary, out.History[2].Kind)

	out, err = m.Manage(context.Background(), h, 6000, 10000)
	require.NoError(t, err)
	assert.False(t, out.Summarized)
	assert.Equal(t, h, out.History)
}

func TestSummarizerPromptAsksForProse(t *testing.T) {
	o := oracletest.New(oracletest.JSON(`{"summary": "Reading main.go worked; go vet is still failing."}`))
	s := NewSummarizer(o)

	got, err := s.Summarize(context.Background(), "earlier work", history(1, 2)[2:])
	require.NoError(t, err)
	assert.Equal(t, "Reading main.go worked; go vet is still failing.", got)

	calls := o.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Messages, 2)
	prompt := calls[0].Messages[0].Content
	assert.Equal(t, chat.RoleSystem, calls[0].Messages[0].Role)
	for _, want := range []string{"prose", "500 words", "tried", "failed", "worked", "current state"} {
		assert.Contains(t, prompt, want)
	}
	assert.NotContains(t, prompt, "bullet points")
	assert.Contains(t, calls[0].Messages[1].Content, "earlier work")
	assert.Contains(t, calls[0].Messages[1].Content, "tool0")
}

func TestManageFallsBackToMechanicalSummary(t *testing.T) {
	h := []chat.Message{chat.System("sys"), chat.Task("task")}
	h = append(h,
		chat.ToolCall("run_cmd", "{}"),
		chat.ToolResult("run_cmd", "compile error: undefined: foo\nok line"),
		chat.ToolCall("read_file", "{}"),
		chat.ToolResult("read_file", "package main"),
	)
	for i := 0; i < 10; i++ {
		h = append(h, chat.Assistant(strings.Repeat("x", 40)))
	}
	o := oracletest.New(oracletest.Reply{Err: errors.New("endpoint down")})
	m := NewManager(DefaultOptions(), NewSummarizer(o))

	out, err := m.Manage(context.Background(), h, 0, budgetFor(h, 0.9))
	require.NoError(t, err)
	require.True(t, out.Summarized)
	assert.True(t, out.Mechanical)
	s := out.History[2].Content
	assert.Contains(t, s, "Tools used: run_cmd, read_file")
	assert.Contains(t, s, "compile error: undefined: foo")
	assert.NotContains(t, s, "ok line")
}

func TestManageMissingAnchor(t *testing.T) {
	h := []chat.Message{chat.System("sys"), chat.User("not the task")}
	for i := 0; i < 20; i++ {
		h = append(h, chat.Assistant("step"))
	}
	m := NewManager(DefaultOptions(), nil)

	_, err := m.Manage(context.Background(), h, 0, budgetFor(h, 0.9))
	assert.ErrorIs(t, err, ErrMissingAnchor)
}

func TestEstimatorCalibrates(t *testing.T) {
	h := history(0, 4)
	var e Estimator
	base := e.Estimate(h)
	e.Observe(base*3/2, h)
	assert.InDelta(t, float64(base)*1.5, float64(e.Estimate(h)), 1)

	e.Observe(base*10, h)
	assert.Equal(t, base*2, e.Estimate(h))
}
