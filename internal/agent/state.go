// Package agent runs the single-agent step loop: oracle turns, tool
// dispatch, periodic supervision and completion confirmation.
package agent

import (
	"lowvibe/internal/chat"
	"lowvibe/internal/oracle"
	"lowvibe/internal/plan"
	"lowvibe/internal/workspace"
)

// State is the run's evolving value. It is owned by the stage or loop
// currently executing; everyone else reads snapshots.
type State struct {
	RunID    string
	RepoRoot string
	UserTask string

	Tree        string
	Files       []string
	Selected    []string
	Attachments []workspace.Attachment

	Plan    *plan.Plan
	History []chat.Message
	Usage   oracle.Usage

	Step     int
	AntiLoop bool

	Result *Result
}

// NewState starts a run.
func NewState(runID, repoRoot, task string) *State {
	return &State{RunID: runID, RepoRoot: repoRoot, UserTask: task}
}

// Reason explains how a run ended.
type Reason string

const (
	ReasonAccepted  Reason = "accepted"
	ReasonExhausted Reason = "step_budget_exhausted"
	ReasonCancelled Reason = "cancelled"
	ReasonFailed    Reason = "failed"
)

// Result is the outcome of a loop. Running out of steps is an ordinary
// unsuccessful Result, not an error.
type Result struct {
	Success bool   `json:"success"`
	Reason  Reason `json:"reason"`
	Summary string `json:"summary,omitempty"`
	Steps   int    `json:"steps"`
}
