package team

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"lowvibe/internal/agent"
	"lowvibe/internal/chat"
	"lowvibe/internal/events"
	"lowvibe/internal/oracle/oracletest"
	"lowvibe/internal/plan"
	"lowvibe/internal/security"
	"lowvibe/internal/tools"
	"lowvibe/internal/undo"
	"lowvibe/internal/workspace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	root  string
	scope *security.Scope
	cfg   Config
	rec   *events.Recorder
	o     *oracletest.Scripted
}

func newFixture(t *testing.T, replies ...oracletest.Reply) *fixture {
	t.Helper()
	scope, err := security.NewScope(t.TempDir())
	require.NoError(t, err)
	scanner, err := workspace.NewScanner(scope.Root())
	require.NoError(t, err)
	env := &tools.Env{
		Scope:   scope,
		Backups: undo.NewStore(scope.Root(), ".lowvibe/backups", 5),
		Tree:    workspace.NewCache(scanner),
	}
	rec := &events.Recorder{}
	owned := tools.NewOwned()
	p := plan.New("greet", []plan.Todo{{Title: "add greeting"}})

	thinker, err := tools.NewRegistry(tools.ReadFile(env), tools.ManageTodos(p, rec))
	require.NoError(t, err)
	implementer, err := tools.NewRegistry(tools.ReadFile(env), tools.WriteFile(env))
	require.NoError(t, err)
	tester, err := tools.NewRegistry(tools.ReadFile(env), tools.CreateFile(env, owned))
	require.NoError(t, err)

	o := oracletest.New(replies...)
	return &fixture{
		root:  scope.Root(),
		scope: scope,
		rec:   rec,
		o:     o,
		cfg: Config{
			Oracle: o,
			Tools:  Toolsets{Thinker: thinker, Implementer: implementer, Tester: tester},
			Owned:  owned,
			Scope:  scope,
			Sink:   rec,
		},
	}
}

func (f *fixture) run(t *testing.T) (agent.Result, *agent.State, error) {
	t.Helper()
	orch, err := New(f.cfg)
	require.NoError(t, err)
	st := agent.NewState("run", f.root, "add a greeting file")
	res, err := orch.Run(context.Background(), st)
	return res, st, err
}

func (f *fixture) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(f.root, rel))
	return err == nil
}

const (
	implementHello = `{"kind":"implement","description":"add greeting","tasks":[` +
		`{"type":"create_file","task_description":"create hello.txt","file":"hello.txt"}]}`
	implDone   = `{"kind":"done","summary":"wrote hello.txt"}`
	testPassed = `{"kind":"result","payload":{"successfully_implemented":true,"successes":"file exists",` +
		`"mistakes":"","tests_to_keep":[]}}`
	finishOK    = `{"overall":"greeting added"}`
	thinkerMsg  = `{"kind":"message","message":"batch looks good"}`
	thinkerDone = `{"kind":"final","summary":"greeting in place"}`
)

func countSchema(names []string, schema string) int {
	n := 0
	for _, s := range names {
		if s == schema {
			n++
		}
	}
	return n
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	f := newFixture(t)
	cfg := f.cfg
	cfg.Tools.Tester = nil
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestOrchestratorBatch(t *testing.T) {
	f := newFixture(t,
		oracletest.JSON(implementHello),
		oracletest.JSON(`{"kind":"tool_call","tool":"write_file","args":{"path":"hello.txt","content":"hello"}}`),
		oracletest.JSON(implDone),
		oracletest.JSON(`{"kind":"tool_call","tool":"create_file","args":{"path":"hello_check.txt","content":"scratch"}}`),
		oracletest.JSON(`{"kind":"message","message":"scratch check written, now the one to keep"}`),
		oracletest.JSON(`{"kind":"tool_call","tool":"create_file","args":{"path":"hello_keep.txt","content":"keep"}}`),
		oracletest.JSON(`{"kind":"result","payload":{"successfully_implemented":true,"successes":"file exists",`+
			`"mistakes":"","tests_to_keep":["hello_keep.txt"]}}`),
		oracletest.JSON(finishOK),
		oracletest.JSON(thinkerMsg),
		oracletest.JSON(thinkerDone),
	)

	res, st, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, agent.Result{Success: true, Reason: agent.ReasonAccepted, Summary: "greeting in place", Steps: 3}, res)
	assert.Equal(t, []string{
		"thinker_step",
		"implementer_step", "implementer_step_no_tool",
		"tester_step", "tester_step_no_tool", "tester_step", "tester_step_no_tool",
		"finisher_report",
		"thinker_step", "thinker_step",
	}, f.o.Schemas())

	assert.True(t, f.exists("hello.txt"))
	assert.True(t, f.exists("hello_keep.txt"))
	assert.False(t, f.exists("hello_check.txt"), "unkept scratch test is removed")

	require.Equal(t, 1, f.rec.Count(events.TeamResult))
	var report chat.Message
	for _, m := range st.History {
		if m.Role == chat.RoleUser && m.Kind == chat.KindPlain {
			report = m
		}
	}
	assert.Contains(t, report.Content, "greeting added")
	assert.Contains(t, report.Content, "file exists")
	assert.Contains(t, report.Content, `"successfully_implemented": true`)
}

func TestRoleLoopNeedsMessageBetweenToolCalls(t *testing.T) {
	read := `{"kind":"tool_call","tool":"read_file","args":{"path":"hello.txt"}}`
	f := newFixture(t,
		oracletest.JSON(read),
		oracletest.JSON(read),
		oracletest.JSON(`{"kind":"message","message":"hello.txt is missing"}`),
		oracletest.JSON(read),
		oracletest.JSON(implDone),
	)
	orch, err := New(f.cfg)
	require.NoError(t, err)
	reg := f.cfg.Tools.Implementer
	open, noTool := ImplementerSchemas(reg.Names())
	r := orch.role(RoleImplementer, reg, open, noTool, 10)

	st := agent.NewState("run", f.root, "add a greeting file")
	history := []chat.Message{chat.System("sys"), chat.Task("create hello.txt")}
	steps, exhausted, err := r.run(context.Background(), st, &history, func(_ int, s step, _ json.RawMessage, _ string) (bool, error) {
		return s.Kind == KindDone, nil
	})
	require.NoError(t, err)
	assert.False(t, exhausted)
	assert.Equal(t, 5, steps)
	assert.Equal(t, []string{
		"implementer_step", "implementer_step_no_tool", "implementer_step_no_tool",
		"implementer_step", "implementer_step_no_tool",
	}, f.o.Schemas())
	assert.Equal(t, 1, f.rec.Count(events.AgentCorrective))
}

func TestOrchestratorRejectsBackToBackImplement(t *testing.T) {
	f := newFixture(t,
		oracletest.JSON(implementHello),
		oracletest.JSON(implDone),
		oracletest.JSON(testPassed),
		oracletest.JSON(finishOK),
		oracletest.JSON(implementHello),
		oracletest.JSON(thinkerMsg),
		oracletest.JSON(thinkerDone),
	)

	res, st, err := f.run(t)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 4, res.Steps)

	schemas := f.o.Schemas()
	assert.Equal(t, 1, countSchema(schemas, "implementer_step"))
	assert.Equal(t, 1, countSchema(schemas, "finisher_report"))

	var corrective []events.Event
	for _, e := range f.rec.Events() {
		if e.Type == events.AgentCorrective {
			corrective = append(corrective, e)
		}
	}
	require.Len(t, corrective, 1)
	assert.Equal(t, RoleThinker, corrective[0].Role)
	assert.Equal(t, 2, corrective[0].Step)

	var found bool
	for _, m := range st.History {
		if m.Kind == chat.KindCorrective && m.Content == implementTwiceCorrective {
			found = true
		}
	}
	assert.True(t, found)
}

func TestOrchestratorImplementerErrorShortCircuits(t *testing.T) {
	f := newFixture(t,
		oracletest.JSON(`{"kind":"implement","description":"two files","tasks":[`+
			`{"type":"create_file","task_description":"a","file":"a.txt"},`+
			`{"type":"create_file","task_description":"b","file":"b.txt"}]}`),
		oracletest.JSON(`{"kind":"error","reason":"a.txt is outside my reach"}`),
		oracletest.JSON(`{}`),
		oracletest.JSON(`{}`),
		oracletest.JSON(`{}`),
		oracletest.JSON(thinkerMsg),
		oracletest.JSON(thinkerDone),
	)

	res, st, err := f.run(t)
	require.NoError(t, err)
	assert.True(t, res.Success)

	schemas := f.o.Schemas()
	assert.Equal(t, 1, countSchema(schemas, "implementer_step"))
	assert.Zero(t, countSchema(schemas, "tester_step"))
	assert.Equal(t, 3, countSchema(schemas, "finisher_report"))

	var result map[string]any
	for _, e := range f.rec.Events() {
		if e.Type == events.TeamResult {
			result = e.Data
		}
	}
	require.NotNil(t, result)
	assert.Contains(t, result["overall"], "0 of 1 tasks passed")
	assert.Contains(t, result["stopped"], "a.txt is outside my reach")

	entries, ok := result["task_results"].([]TaskResultEntry)
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].Task.File)
	assert.False(t, entries[0].TestResult.SuccessfullyImplemented)
	assert.Len(t, st.History, 5)
}

func TestOrchestratorThinkerBudget(t *testing.T) {
	f := newFixture(t)
	f.o.Fallback = &oracletest.Reply{JSON: thinkerMsg}
	f.cfg.Limits = Limits{Thinker: 2}

	res, _, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, agent.ReasonExhausted, res.Reason)
	assert.Equal(t, 2, res.Steps)
}

func TestOrchestratorImplementerBudget(t *testing.T) {
	f := newFixture(t,
		oracletest.JSON(implementHello),
		oracletest.JSON(`{"kind":"message","message":"hmm"}`),
		oracletest.JSON(finishOK),
		oracletest.JSON(thinkerDone),
	)
	f.cfg.Limits = Limits{Implementer: 1}

	res, _, err := f.run(t)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, countSchema(f.o.Schemas(), "tester_step"))
}

func TestOrchestratorCancelled(t *testing.T) {
	f := newFixture(t)
	ctl := agent.NewControl(nil)
	ctl.Cancel()
	f.cfg.Control = ctl

	res, _, err := f.run(t)
	assert.ErrorIs(t, err, agent.ErrCancelled)
	assert.Equal(t, agent.ReasonCancelled, res.Reason)
	assert.Empty(t, f.o.Calls())
}

func TestReportMessage(t *testing.T) {
	r := Report{Overall: "fine", TaskResults: []TaskResultEntry{{
		Task:       ImplementTask{Type: TaskEditFile, File: "x.go", TaskDescription: "fix"},
		TestResult: TestResult{SuccessfullyImplemented: true, TestsToKeep: []string{"x_test.go"}},
	}}}
	msg := r.Message()
	assert.Contains(t, msg, "Overall: fine")
	assert.Contains(t, msg, `"file": "x.go"`)
	assert.Contains(t, msg, `"x_test.go"`)
}
