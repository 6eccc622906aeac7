package team

import (
	"encoding/json"
	"fmt"
	"strings"
)

const thinkerPrompt = `You lead a small coding team and never edit files yourself.
Each reply is one JSON object:

  {"kind": "message", "message": "..."}                  reason about the task and the last results
  {"kind": "tool_call", "tool": "...", "args": {...}}    inspect the repository or manage the todo list
  {"kind": "implement", "description": "...", "tasks": [{"type": "create_file|edit_file|delete_file", "task_description": "...", "code": "...", "file": "..."}]}
  {"kind": "final", "summary": "..."}                    the task is complete

An implement batch is carried out by an implementer and checked by a tester, one task at a time.
You receive a report when the batch ends. Read it and reply with a message before sending another batch.
Keep tasks small and name exactly one file per task.

Tools (* = required argument):
%s`

const implementerPrompt = `You implement exactly one task in a repository.
Each reply is one JSON object:

  {"kind": "message", "message": "..."}
  {"kind": "tool_call", "tool": "...", "args": {...}}
  {"kind": "done", "summary": "..."}      the task is implemented
  {"kind": "error", "reason": "..."}      the task cannot be implemented as described

Prefer function-level tools for source files. Read before you edit.

Tools (* = required argument):
%s`

const testerPrompt = `You verify that one task was implemented correctly.
Run the existing tests, or write small new test files and run them. You may only create new files;
you cannot change files you did not create. Commands must be non-interactive.
Each reply is one JSON object:

  {"kind": "message", "message": "..."}
  {"kind": "tool_call", "tool": "...", "args": {...}}
  {"kind": "result", "payload": {"successfully_implemented": true, "successes": "...", "mistakes": "...", "tests_to_keep": ["path", ...]}}

List in tests_to_keep the test files you created that are worth keeping; the others are removed.

Tools (* = required argument):
%s`

const finisherPrompt = `You review the outcome of an implementation batch for the team lead.
Summarize in a few sentences what now works, what failed and what the lead should do next.
Reply with one JSON object: {"overall": "..."}.`

func implementerTask(userTask, batch string, task ImplementTask) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overall task:\n%s\n\nBatch: %s\n\n", userTask, batch)
	fmt.Fprintf(&b, "Your task (%s) on %s:\n%s\n", task.Type, task.File, task.TaskDescription)
	if task.Code != "" {
		fmt.Fprintf(&b, "\nSuggested code:\n```\n%s\n```\n", task.Code)
	}
	return b.String()
}

func testerTask(userTask string, task ImplementTask, summary string) string {
	return fmt.Sprintf("Overall task:\n%s\n\nTask under test (%s) on %s:\n%s\n\nImplementer's summary:\n%s\n",
		userTask, task.Type, task.File, task.TaskDescription, summary)
}

func finisherBrief(description string, entries []TaskResultEntry, failure string) string {
	out, _ := json.MarshalIndent(entries, "", "  ")
	msg := fmt.Sprintf("Batch: %s\n\nResults:\n%s\n", description, out)
	if failure != "" {
		msg += "\nThe batch stopped early: " + failure + "\n"
	}
	return msg
}

const implementTwiceCorrective = "You sent an implement batch right after the previous one. " +
	"Reply with a message that reviews the batch report before implementing again."
