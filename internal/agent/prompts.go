package agent

import (
	"fmt"
	"strings"

	"lowvibe/internal/workspace"
)

const systemPrompt = `You are an autonomous coding agent working inside a repository.
You act one step at a time. Every reply is a single JSON object of one of these kinds:

  {"kind": "message", "message": "..."}      think out loud: what you learned and what you will do next
  {"kind": "tool_call", "tool": "...", "args": {...}}   call exactly one tool
  {"kind": "final", "summary": "..."}        declare the task complete and summarize what changed

Rules:
- After every tool call you must send a message before calling another tool.
- Paths are relative to the repository root. Never use absolute paths or "..".
- Commands must be non-interactive and finish quickly.
- Mark todos done as you complete them. Declare final only when every todo is done and verified.

Tools (* = required argument):
%s`

// SystemPrompt is the single agent's system message.
func SystemPrompt(toolList string) string {
	return fmt.Sprintf(systemPrompt, toolList)
}

// TaskMessage is the anchor message in history slot 1: the user's task,
// the plan, the file tree and any attached files.
func TaskMessage(st *State) string {
	var b strings.Builder
	b.WriteString("Task:\n")
	b.WriteString(st.UserTask)
	b.WriteString("\n")
	if st.Plan != nil {
		b.WriteString("\nPlan:\n")
		b.WriteString(st.Plan.Format())
	}
	if st.Tree != "" {
		b.WriteString("\nRepository files:\n")
		b.WriteString(st.Tree)
	}
	if att := workspace.FormatAttachments(st.Attachments); att != "" {
		b.WriteString("\n")
		b.WriteString(att)
	}
	return b.String()
}

const supervisorPrompt = `You supervise an autonomous coding agent. Read the excerpt of its recent work and judge it.
- loop_detected: the agent repeats the same actions or errors without new information.
- progress_made: the last steps moved the task forward.
- coding_advice, debugging_tips, next_step_suggestion: short, concrete steering for the agent.
- todos_to_complete: zero-based indices of pending todos that the excerpt shows are already done.
- confidence: how sure you are, from 0 to 1.
Reply with one JSON object.`

const smartEditPrompt = `An exact search-and-replace edit failed because the search text does not occur in the file.
Find the block the author meant. Copy it verbatim from the file, character for character, including indentation.
If no block plausibly matches, reply with found=false.`

const finalQuestion = `The agent reports the task complete:

%s

Press Enter to accept, or describe what is still wrong (end with an empty line).`

func feedbackMessage(feedback string) string {
	return "The user reviewed your completion and rejected it:\n" + feedback +
		"\nAddress this feedback before declaring the task complete again."
}

func guidanceMessage(guidance string) string {
	return "Guidance from the user after a pause:\n" + guidance
}

const antiLoopCorrective = "You called a tool in your previous step. Reply with a message that " +
	"explains the result and your next move before calling another tool."
