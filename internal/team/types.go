package team

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role names.
const (
	RoleThinker     = "thinker"
	RoleImplementer = "implementer"
	RoleTester      = "tester"
	RoleFinisher    = "finisher"
)

// Step kinds beyond the shared message and tool_call.
const (
	KindImplement = "implement"
	KindFinal     = "final"
	KindDone      = "done"
	KindError     = "error"
	KindResult    = "result"
)

// Implement task types.
const (
	TaskCreateFile = "create_file"
	TaskEditFile   = "edit_file"
	TaskDeleteFile = "delete_file"
)

// ImplementTask is one unit of work handed to an Implementer.
type ImplementTask struct {
	Type            string `json:"type"`
	TaskDescription string `json:"task_description"`
	Code            string `json:"code,omitempty"`
	File            string `json:"file"`
}

func (t ImplementTask) String() string {
	return fmt.Sprintf("%s %s: %s", t.Type, t.File, t.TaskDescription)
}

// TestResult is the Tester's verdict on one task.
type TestResult struct {
	SuccessfullyImplemented bool     `json:"successfully_implemented"`
	Successes               string   `json:"successes"`
	Mistakes                string   `json:"mistakes"`
	TestsToKeep             []string `json:"tests_to_keep"`
}

// TaskResultEntry pairs a task with its test result.
type TaskResultEntry struct {
	Task       ImplementTask `json:"task"`
	TestResult TestResult    `json:"test_result"`
}

// Report is the Finisher's batch summary as injected into the Thinker.
type Report struct {
	Overall     string            `json:"overall"`
	TaskResults []TaskResultEntry `json:"task_results"`
}

// Message renders the report as the Thinker's next user turn.
func (r Report) Message() string {
	var b strings.Builder
	b.WriteString("Implementation batch finished.\n\nOverall: ")
	b.WriteString(r.Overall)
	b.WriteString("\n\nTask results:\n")
	out, err := json.MarshalIndent(r.TaskResults, "", "  ")
	if err != nil {
		out = []byte(err.Error())
	}
	b.Write(out)
	return b.String()
}

// step is the decoded reply of any role.
type step struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message,omitempty"`
	Tool    string         `json:"tool,omitempty"`
	Args    map[string]any `json:"args,omitempty"`

	Description string          `json:"description,omitempty"`
	Tasks       []ImplementTask `json:"tasks,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Payload     *TestResult     `json:"payload,omitempty"`
}
