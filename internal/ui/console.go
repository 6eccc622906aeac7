package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"lowvibe/internal/events"
	"lowvibe/internal/logging"
)

// Options tunes a Presenter.
type Options struct {
	// Plain disables colors and markdown rendering.
	Plain bool
	// Verbose also shows token usage and context management.
	Verbose bool
	// ResultLines caps how many lines of a tool result are shown.
	ResultLines int
}

// Presenter prints events as they arrive.
type Presenter struct {
	out    io.Writer
	opts   Options
	styles Styles
	md     *glamour.TermRenderer
}

// NewPresenter returns a presenter writing to out.
func NewPresenter(out io.Writer, opts Options) *Presenter {
	if opts.ResultLines <= 0 {
		opts.ResultLines = 8
	}
	p := &Presenter{out: out, opts: opts, styles: DefaultStyles()}
	if opts.Plain {
		p.styles = PlainStyles()
		return p
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		logging.Warn("markdown renderer unavailable", "error", err)
	} else {
		p.md = md
	}
	return p
}

// Present renders events until ch is closed or ctx is done.
func (p *Presenter) Present(ctx context.Context, ch <-chan events.Event) error {
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if line := p.Render(e); line != "" {
				fmt.Fprintln(p.out, line)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Render formats one event; "" means the event is not shown.
func (p *Presenter) Render(e events.Event) string {
	s := p.styles
	d := e.Data
	switch e.Type {
	case events.PipelineStart:
		return s.Header.Render("lowvibe: " + str(d, "task"))
	case events.StageEnter:
		return s.Stage.Render(Icons["stage"] + " " + e.Stage)
	case events.StageError:
		return s.Error.Render(fmt.Sprintf("%s %s failed: %s", Icons["fail"], e.Stage, str(d, "error")))
	case events.PipelineEnd:
		return p.end(d)

	case events.AgentMessage:
		return p.prefix(e) + s.Message.Render(str(d, "message"))
	case events.AgentToolCall:
		return p.prefix(e) + s.ToolCall.Render(fmt.Sprintf("%s %s %s", Icons["tool"], str(d, "tool"), compact(d["args"])))
	case events.AgentToolResult:
		return p.toolResult(d)
	case events.AgentFinal:
		return s.Success.Render(Icons["summary"]+" Completion reported") + "\n" + p.markdown(str(d, "summary"))
	case events.AgentCorrective:
		return p.prefix(e) + s.Warning.Render(Icons["warn"]+" "+firstLine(str(d, "message")))
	case events.AgentPaused:
		return s.Warning.Render(Icons["pause"] + " paused")
	case events.AgentResumed:
		if g := str(d, "guidance"); g != "" {
			return s.Warning.Render(Icons["resume"] + " resumed with guidance: " + g)
		}
		return s.Warning.Render(Icons["resume"] + " resumed")
	case events.AgentCancelled:
		return s.Error.Render(Icons["fail"] + " cancelled")

	case events.TokenUsage:
		if !p.opts.Verbose {
			return ""
		}
		return s.Muted.Render(fmt.Sprintf("tokens: +%v prompt, +%v completion, %v total",
			d["prompt_tokens"], d["completion_tokens"], d["run_total"]))
	case events.ContextManaged:
		if !p.opts.Verbose {
			return ""
		}
		return s.Muted.Render(fmt.Sprintf("context: pruned %v, summarized %v, %v messages", d["pruned"], d["summarized"], d["messages"]))

	case events.CommandApproval:
		return s.Warning.Render(fmt.Sprintf("%s approval needed: %s (in %s)", Icons["ask"], str(d, "command"), str(d, "cwd")))
	case events.PermissionsUpdated:
		return s.Muted.Render(fmt.Sprintf("allowed: types %v, commands %v", d["allowed_types"], d["allowed_exact"]))
	case events.PlanUpdated:
		return p.markdown(str(d, "markdown"))
	case events.Question:
		return s.Warning.Render(Icons["ask"] + " " + str(d, "query"))

	case events.SupervisorStart:
		return s.Muted.Render("supervisor reviewing progress")
	case events.SupervisorVerdict:
		line := str(d, "advice")
		if loop, _ := d["loop_detected"].(bool); loop {
			return s.Warning.Render(Icons["warn"]+" loop detected") + "\n" + s.Muted.Render(line)
		}
		return s.Muted.Render(line)
	case events.SupervisorError:
		return s.Error.Render("supervisor failed: " + str(d, "error"))

	case events.TeamStep:
		return p.teamStep(e)
	case events.TeamResult:
		return s.Role.Render(Icons["team"]+" batch report") + "\n" + p.markdown(str(d, "overall"))
	}
	return ""
}

func (p *Presenter) prefix(e events.Event) string {
	if e.Step == 0 {
		return ""
	}
	return p.styles.Muted.Render(fmt.Sprintf("[%d] ", e.Step))
}

func (p *Presenter) toolResult(d map[string]any) string {
	s := p.styles
	if errText := str(d, "error"); errText != "" {
		return s.Error.Render(fmt.Sprintf("  %s %s: %s", Icons["fail"], str(d, "tool"), errText))
	}
	head := s.Success.Render(fmt.Sprintf("  %s %s", Icons["ok"], str(d, "tool")))
	body := clip(str(d, "content"), p.opts.ResultLines)
	if body == "" {
		return head
	}
	return head + "\n" + s.ToolResult.Render(body)
}

func (p *Presenter) teamStep(e events.Event) string {
	s := p.styles
	d := e.Data
	role := s.Role.Render(fmt.Sprintf("%s %s", Icons["team"], e.Role))
	switch str(d, "kind") {
	case "message":
		return role + " " + s.Message.Render(str(d, "message"))
	case "tool_call":
		return role + " " + s.ToolCall.Render(fmt.Sprintf("%s %s %s", Icons["tool"], str(d, "tool"), compact(d["args"])))
	case "tool_result":
		return p.toolResult(d)
	case "implement":
		return role + " " + s.Header.Render("implement: "+str(d, "description"))
	case "done":
		return role + " " + s.Success.Render(Icons["ok"]+" "+str(d, "summary"))
	case "error":
		return role + " " + s.Error.Render(Icons["fail"]+" "+str(d, "reason"))
	case "result":
		return role + " " + s.Muted.Render("test result "+compact(d["payload"]))
	case "final":
		return role + " " + s.Success.Render(Icons["summary"]+" "+str(d, "summary"))
	}
	return ""
}

func (p *Presenter) end(d map[string]any) string {
	s := p.styles
	ok, _ := d["ok"].(bool)
	if !ok {
		return s.Error.Render(Icons["fail"] + " run failed")
	}
	return s.Success.Render(Icons["ok"] + " run finished")
}

func (p *Presenter) markdown(text string) string {
	if text == "" {
		return ""
	}
	if p.md == nil {
		return text
	}
	out, err := p.md.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func str(d map[string]any, key string) string {
	if d == nil {
		return ""
	}
	switch v := d[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func compact(v any) string {
	if v == nil {
		return ""
	}
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	if len(out) > 160 {
		return string(out[:157]) + "..."
	}
	return string(out)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func clip(s string, lines int) string {
	s = strings.TrimRight(s, "\n")
	parts := strings.Split(s, "\n")
	if len(parts) <= lines {
		return s
	}
	return strings.Join(parts[:lines], "\n") + fmt.Sprintf("\n... (%d more lines)", len(parts)-lines)
}
