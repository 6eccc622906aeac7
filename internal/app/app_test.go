package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"lowvibe/internal/agent"
	"lowvibe/internal/audit"
	"lowvibe/internal/config"
	"lowvibe/internal/events"
	"lowvibe/internal/interact"
	"lowvibe/internal/logging"
	"lowvibe/internal/oracle/oracletest"
	"lowvibe/internal/pipeline"
	"lowvibe/internal/plan"
	"lowvibe/internal/tools"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Logging.ToFile = false
	cfg.Logging.RecordCalls = false
	cfg.Supervisor.Enabled = false
	cfg.Agent.SelectFiles = false
	cfg.Commands.SkipVerification = true
	return cfg
}

func testRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

var accept = interact.AskerFunc(func(context.Context, string, interact.Options) (string, error) {
	return "", nil
})

func build(t *testing.T, cfg *config.Config, repo string, o *oracletest.Scripted, rec *events.Recorder) (*App, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	a, err := NewBuilder(context.Background(), cfg, repo).
		WithOracle(o).
		WithAsker(accept).
		WithSink(rec).
		WithIO(strings.NewReader(""), &out).
		WithPresentation(true, false).
		WithoutWatcher().
		Build()
	require.NoError(t, err)
	return a, &out
}

func TestBuildRejectsMissingRepository(t *testing.T) {
	_, err := NewBuilder(context.Background(), testConfig(), filepath.Join(t.TempDir(), "nope")).
		WithOracle(oracletest.New()).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build app")
}

func TestRunSingleAgent(t *testing.T) {
	repo := testRepo(t, map[string]string{"greet.txt": "hello"})
	o := oracletest.New(
		oracletest.JSON(`{"restatement":"Say goodbye","todos":[{"title":"edit","details":"","acceptance_criteria":[]}]}`),
		oracletest.JSON(`{"kind":"tool_call","tool":"write_file","args":{"path":"greet.txt","content":"goodbye"}}`),
		oracletest.JSON(`{"kind":"message","message":"written"}`),
		oracletest.JSON(`{"kind":"final","summary":"greet.txt says goodbye"}`),
	)
	rec := &events.Recorder{}
	a, out := build(t, testConfig(), repo, o, rec)

	res, err := a.Run(context.Background(), "say goodbye")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, agent.ReasonAccepted, res.Reason)

	data, err := os.ReadFile(filepath.Join(repo, "greet.txt"))
	require.NoError(t, err)
	assert.Equal(t, "goodbye", string(data))

	types := rec.Types()
	require.NotEmpty(t, types)
	assert.Equal(t, events.PipelineStart, types[0])
	assert.Equal(t, events.PipelineEnd, types[len(types)-1])
	for _, e := range rec.Events() {
		assert.Equal(t, a.RunID(), e.RunID)
	}
	assert.Contains(t, out.String(), "lowvibe: say goodbye")
}

func TestRunWritesAuditTrail(t *testing.T) {
	repo := testRepo(t, map[string]string{"greet.txt": "hello"})
	o := oracletest.New(
		oracletest.JSON(`{"restatement":"Say goodbye","todos":[{"title":"edit","details":"","acceptance_criteria":[]}]}`),
		oracletest.JSON(`{"kind":"tool_call","tool":"write_file","args":{"path":"greet.txt","content":"goodbye"}}`),
		oracletest.JSON(`{"kind":"final","summary":"done"}`),
	)
	cfg := testConfig()
	cfg.Logging.ToFile = true
	cfg.Logging.Dir = t.TempDir()
	t.Cleanup(logging.Close)
	a, _ := build(t, cfg, repo, o, &events.Recorder{})

	_, err := a.Run(context.Background(), "say goodbye")
	require.NoError(t, err)

	entries, err := audit.Read(AuditDir(cfg, repo), a.RunID())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "write_file", entries[0].Tool)
	assert.True(t, entries[0].Success)
	assert.Equal(t, string(events.PipelineEnd), entries[1].Event)
}

func TestRunReportsStageFailure(t *testing.T) {
	repo := testRepo(t, map[string]string{"a.txt": "a"})
	o := oracletest.New(
		oracletest.JSON(`{"x":1}`),
		oracletest.JSON(`{"x":1}`),
		oracletest.JSON(`{"x":1}`),
	)
	a, _ := build(t, testConfig(), repo, o, &events.Recorder{})

	res, err := a.Run(context.Background(), "anything")
	var stageErr *pipeline.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, pipeline.ExtractPlanStage, stageErr.Stage)
	assert.Equal(t, agent.ReasonFailed, res.Reason)
	assert.False(t, res.Success)
}

func TestRunCancelledBeforeExecution(t *testing.T) {
	repo := testRepo(t, map[string]string{"a.txt": "a"})
	o := oracletest.New(
		oracletest.JSON(`{"restatement":"x","todos":[{"title":"t","details":"","acceptance_criteria":[]}]}`),
	)
	a, _ := build(t, testConfig(), repo, o, &events.Recorder{})
	a.Control().Cancel()

	res, err := a.Run(context.Background(), "anything")
	assert.True(t, errors.Is(err, agent.ErrCancelled))
	assert.Equal(t, agent.ReasonCancelled, res.Reason)
}

func TestOutcomeWithoutExecutorResult(t *testing.T) {
	st := agent.NewState("r", "/repo", "t")
	res, err := outcome(st, context.Canceled)
	assert.Equal(t, agent.ReasonCancelled, res.Reason)
	assert.ErrorIs(t, err, agent.ErrCancelled)

	st = agent.NewState("r", "/repo", "t")
	res, err = outcome(st, errors.New("boom"))
	assert.Equal(t, agent.ReasonFailed, res.Reason)
	assert.Equal(t, "boom", res.Summary)
	assert.EqualError(t, err, "boom")
}

func TestTeamToolsAreScopedPerRole(t *testing.T) {
	repo := testRepo(t, map[string]string{"a.txt": "a"})
	a, _ := build(t, testConfig(), repo, oracletest.New(), &events.Recorder{})

	ts, err := teamTools(a.env, a.gate, a.runner, plan.New("", nil), events.Discard, tools.NewOwned())
	require.NoError(t, err)

	assert.Contains(t, ts.Thinker.Names(), "manage_todos")
	assert.NotContains(t, ts.Thinker.Names(), "write_file")
	assert.Contains(t, ts.Implementer.Names(), "edit_function")
	assert.NotContains(t, ts.Implementer.Names(), "run_cmd")
	assert.Equal(t, []string{"read_file", "run_cmd", "create_file"}, ts.Tester.Names())
	assert.Equal(t, implementerTools, ts.Implementer.Names())
}

func TestTesterCreateFileRecordsOwnership(t *testing.T) {
	repo := testRepo(t, map[string]string{"a.txt": "a"})
	a, _ := build(t, testConfig(), repo, oracletest.New(), &events.Recorder{})
	owned := tools.NewOwned()

	ts, err := teamTools(a.env, a.gate, a.runner, plan.New("", nil), events.Discard, owned)
	require.NoError(t, err)

	res := ts.Tester.Dispatch(context.Background(), "create_file", map[string]any{"path": "a_test.txt", "content": "x"})
	require.True(t, res.OK(), res.Error)
	files := owned.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "a_test.txt", filepath.Base(files[0]))
}

func TestControllerForwardsCommands(t *testing.T) {
	control := agent.NewControl(nil)
	asked := make(chan interact.Question, 1)
	handoff := interact.NewHandoff(func(q interact.Question) { asked <- q })
	c := &controller{control: control, handoff: handoff}

	answers := make(chan string, 1)
	go func() {
		a, _ := handoff.Ask(context.Background(), "ok?", interact.Options{})
		answers <- a
	}()
	<-asked
	c.Answer("yes")
	assert.Equal(t, "yes", <-answers)

	c.Pause()
	assert.Equal(t, agent.Paused, control.State())
	c.Resume("go on")
	assert.Equal(t, agent.Running, control.State())
	c.Cancel()
	assert.Equal(t, agent.Cancelled, control.State())
}
