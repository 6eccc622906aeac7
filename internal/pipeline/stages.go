package pipeline

import (
	"context"
	"fmt"
	"path"
	"strings"

	"lowvibe/internal/agent"
	"lowvibe/internal/chat"
	"lowvibe/internal/events"
	"lowvibe/internal/logging"
	"lowvibe/internal/oracle"
	"lowvibe/internal/plan"
	"lowvibe/internal/security"
	"lowvibe/internal/tools"
	"lowvibe/internal/workspace"
)

// Stage names.
const (
	ScanWorkspaceStage = "scan_workspace"
	SelectFilesStage   = "select_files"
	AttachFilesStage   = "attach_files"
	ExtractPlanStage   = "extract_plan"
	ExecutePlanStage   = "execute_plan"
	MultiAgentStage    = "multi_agent"
)

const (
	DefaultMaxSelected = 12
	DefaultAttachBytes = 64 * 1024
	planAttempts       = 3
)

// ScanWorkspace lists the repository into st.Files and st.Tree.
func ScanWorkspace(cache *workspace.Cache) Stage {
	return Stage{Name: ScanWorkspaceStage, Run: func(ctx context.Context, st *agent.State) error {
		tree, err := cache.Tree()
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", st.RepoRoot, err)
		}
		st.Files = tree.Files
		st.Tree = tree.Render()
		logging.Info("workspace scanned", "files", len(tree.Files), "truncated", tree.Truncated)
		return nil
	}}
}

const selectPrompt = `You pick the files a coding agent should read before working on a task.
Choose only paths from the listing, at most %d, most relevant first. Choose none if the task needs no existing file.
Reply with one JSON object: {"files": ["path", ...]}.`

func selectSchema(max int) oracle.Schema {
	return oracle.Schema{Name: "select_files", Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"files": map[string]any{"type": "array", "maxItems": max, "items": map[string]any{"type": "string"}},
		},
		"required": []any{"files"},
	}}
}

// SelectFiles asks the oracle which files matter for the task. Any path
// outside the scanned tree voids the whole selection.
func SelectFiles(o oracle.Oracle, max int) Stage {
	if max <= 0 {
		max = DefaultMaxSelected
	}
	return Stage{Name: SelectFilesStage, Run: func(ctx context.Context, st *agent.State) error {
		st.Selected = nil
		if len(st.Files) == 0 {
			return nil
		}
		msgs := []chat.Message{
			chat.System(fmt.Sprintf(selectPrompt, max)),
			chat.User(fmt.Sprintf("Task:\n%s\n\nRepository files:\n%s", st.UserTask, st.Tree)),
		}
		out, usage, err := oracle.Decode[struct {
			Files []string `json:"files"`
		}](oracle.WithLabel(ctx, "select-files"), o, msgs, selectSchema(max))
		st.Usage.Add(usage)
		if err != nil {
			if oracle.IsRecoverable(err) {
				logging.Warn("file selection unusable, continuing without files", "error", err)
				return nil
			}
			return err
		}

		known := make(map[string]bool, len(st.Files))
		for _, f := range st.Files {
			known[f] = true
		}
		seen := make(map[string]bool)
		var picked []string
		for _, f := range out.Files {
			rel := path.Clean(strings.TrimPrefix(strings.TrimSpace(f), "./"))
			if !known[rel] {
				logging.Warn("file selection names unknown path, ignoring selection", "path", f)
				return nil
			}
			if !seen[rel] {
				seen[rel] = true
				picked = append(picked, rel)
			}
		}
		st.Selected = picked
		logging.Info("files selected", "files", picked)
		return nil
	}}
}

// AttachFiles reads the selected files for the task message.
func AttachFiles(scope *security.Scope, maxBytes int) Stage {
	if maxBytes <= 0 {
		maxBytes = DefaultAttachBytes
	}
	return Stage{Name: AttachFilesStage, Run: func(ctx context.Context, st *agent.State) error {
		st.Attachments = workspace.ReadAttachments(scope, st.Selected, maxBytes)
		for _, a := range st.Attachments {
			if a.Err != "" {
				logging.Warn("attachment unreadable", "path", a.Path, "error", a.Err)
			}
		}
		return nil
	}}
}

const planPrompt = `You turn a coding task into a plan for an autonomous agent.
Restate the task in your own words, then break it into a short ordered list of todos.
Each todo has a title, details, and acceptance criteria that can be checked by reading code or running commands.
Reply with one JSON object matching the schema.`

type planReply struct {
	Restatement string      `json:"restatement"`
	Todos       []plan.Todo `json:"todos"`
}

// ExtractPlan has the oracle produce the run's plan.
func ExtractPlan(o oracle.Oracle, sink events.Sink) Stage {
	return Stage{Name: ExtractPlanStage, Run: func(ctx context.Context, st *agent.State) error {
		var b strings.Builder
		fmt.Fprintf(&b, "Task:\n%s\n\nRepository files:\n%s", st.UserTask, st.Tree)
		if att := workspace.FormatAttachments(st.Attachments); att != "" {
			b.WriteString("\n" + att)
		}
		msgs := []chat.Message{chat.System(planPrompt), chat.User(b.String())}
		schema := oracle.Schema{Name: "plan", Definition: plan.Schema()}

		var lastErr error
		for attempt := 1; attempt <= planAttempts; attempt++ {
			reply, usage, err := oracle.Decode[planReply](oracle.WithLabel(ctx, "plan"), o, msgs, schema)
			st.Usage.Add(usage)
			if err == nil {
				st.Plan = plan.New(reply.Restatement, reply.Todos)
				tools.NotifyPlan(sink, st.Plan)
				logging.Info("plan extracted", "todos", st.Plan.Len())
				return nil
			}
			if !oracle.IsRecoverable(err) {
				return err
			}
			lastErr = err
			logging.Warn("plan reply rejected", "attempt", attempt, "error", err)
			msgs = append(msgs, chat.Corrective(agent.Corrective(schema, err)))
		}
		return fmt.Errorf("no usable plan after %d attempts: %w", planAttempts, lastErr)
	}}
}

// Executor runs the final, agentic stage.
type Executor interface {
	Run(ctx context.Context, st *agent.State) (agent.Result, error)
}

// Execute is the final stage. build creates the executor once the plan
// exists, since the tool set depends on it.
func Execute(name string, build func(st *agent.State) (Executor, error)) Stage {
	return Stage{Name: name, Run: func(ctx context.Context, st *agent.State) error {
		exec, err := build(st)
		if err != nil {
			return err
		}
		res, err := exec.Run(ctx, st)
		logging.Info("execution finished", "stage", name, "success", res.Success, "reason", res.Reason, "steps", res.Steps)
		return err
	}}
}

// Config selects the default stage sequence.
type Config struct {
	Oracle      oracle.Oracle
	Tree        *workspace.Cache
	Scope       *security.Scope
	MaxSelected int
	AttachBytes int
	Sink        events.Sink
	// MultiAgent picks the team executor over the single agent loop.
	MultiAgent bool
	// SkipSelect leaves st.Selected empty instead of asking the oracle.
	SkipSelect bool
	Single     func(st *agent.State) (Executor, error)
	Team       func(st *agent.State) (Executor, error)
}

// Default returns ScanWorkspace, SelectFiles, AttachFiles, ExtractPlan and
// then ExecutePlan or MultiAgent.
func Default(cfg Config) []Stage {
	stages := []Stage{ScanWorkspace(cfg.Tree)}
	if !cfg.SkipSelect {
		stages = append(stages, SelectFiles(cfg.Oracle, cfg.MaxSelected), AttachFiles(cfg.Scope, cfg.AttachBytes))
	}
	stages = append(stages, ExtractPlan(cfg.Oracle, cfg.Sink))
	if cfg.MultiAgent {
		return append(stages, Execute(MultiAgentStage, cfg.Team))
	}
	return append(stages, Execute(ExecutePlanStage, cfg.Single))
}
