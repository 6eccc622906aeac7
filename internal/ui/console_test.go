package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lowvibe/internal/events"
)

func plain() *Presenter {
	return NewPresenter(&bytes.Buffer{}, Options{Plain: true})
}

func TestRenderEvents(t *testing.T) {
	p := plain()
	tests := []struct {
		name string
		e    events.Event
		want []string
	}{
		{"start", events.Event{Type: events.PipelineStart, Data: map[string]any{"task": "fix it"}}, []string{"lowvibe: fix it"}},
		{"stage", events.Event{Type: events.StageEnter, Stage: "scan_workspace"}, []string{"scan_workspace"}},
		{"stage error", events.Event{Type: events.StageError, Stage: "extract_plan", Data: map[string]any{"error": "boom"}}, []string{"extract_plan failed: boom"}},
		{"message", events.Event{Type: events.AgentMessage, Step: 3, Data: map[string]any{"message": "reading"}}, []string{"[3]", "reading"}},
		{"tool call", events.Event{Type: events.AgentToolCall, Step: 4, Data: map[string]any{"tool": "read_file", "args": map[string]any{"path": "a.go"}}}, []string{"read_file", `{"path":"a.go"}`}},
		{"tool failure", events.Event{Type: events.AgentToolResult, Data: map[string]any{"tool": "run_cmd", "error": "blocked"}}, []string{"run_cmd: blocked"}},
		{"approval", events.Event{Type: events.CommandApproval, Data: map[string]any{"command": "go test ./...", "cwd": "."}}, []string{"approval needed: go test ./..."}},
		{"plan", events.Event{Type: events.PlanUpdated, Data: map[string]any{"markdown": "- [ ] write tests"}}, []string{"write tests"}},
		{"loop", events.Event{Type: events.SupervisorVerdict, Data: map[string]any{"loop_detected": true, "advice": "Supervisor advice:"}}, []string{"loop detected", "Supervisor advice:"}},
		{"team", events.Event{Type: events.TeamStep, Role: "implementer", Data: map[string]any{"kind": "error", "reason": "no such file"}}, []string{"implementer", "no such file"}},
		{"end", events.Event{Type: events.PipelineEnd, Data: map[string]any{"ok": false}}, []string{"run failed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Render(tt.e)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
		})
	}
}

func TestRenderHidesNoiseUnlessVerbose(t *testing.T) {
	e := events.Event{Type: events.TokenUsage, Data: map[string]any{"prompt_tokens": 10, "completion_tokens": 2, "run_total": 12}}
	assert.Empty(t, plain().Render(e))

	verbose := NewPresenter(&bytes.Buffer{}, Options{Plain: true, Verbose: true})
	assert.Contains(t, verbose.Render(e), "12 total")
}

func TestToolResultIsClipped(t *testing.T) {
	p := NewPresenter(&bytes.Buffer{}, Options{Plain: true, ResultLines: 2})
	got := p.Render(events.Event{Type: events.AgentToolResult, Data: map[string]any{
		"tool": "read_file", "content": "one\ntwo\nthree\nfour",
	}})
	assert.Contains(t, got, "one")
	assert.Contains(t, got, "two")
	assert.NotContains(t, got, "three")
	assert.Contains(t, got, "(2 more lines)")
}

func TestPresentDrainsUntilClosed(t *testing.T) {
	var buf bytes.Buffer
	p := NewPresenter(&buf, Options{Plain: true})
	ch := make(chan events.Event, 3)
	ch <- events.Event{Type: events.StageEnter, Stage: "a"}
	ch <- events.Event{Type: events.TokenUsage}
	ch <- events.Event{Type: events.StageEnter, Stage: "b"}
	close(ch)

	require.NoError(t, p.Present(context.Background(), ch))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "a")
	assert.Contains(t, lines[1], "b")
}
