// Package events carries observable runtime events to explicit sinks.
// Emission is best-effort: a sink that nobody drains never blocks a run.
package events

import (
	"sync"
	"time"
)

// Type names an event.
type Type string

const (
	PipelineStart Type = "pipeline_start"
	StageEnter    Type = "stage_enter"
	StageExit     Type = "stage_exit"
	StageError    Type = "stage_error"
	PipelineEnd   Type = "pipeline_end"

	AgentMessage    Type = "agent_message"
	AgentToolCall   Type = "agent_tool_call"
	AgentToolResult Type = "agent_tool_result"
	AgentFinal      Type = "agent_final"
	AgentCorrective Type = "agent_corrective"
	AgentPaused     Type = "agent_paused"
	AgentResumed    Type = "agent_resumed"
	AgentCancelled  Type = "agent_cancelled"
	TokenUsage      Type = "token_usage"
	ContextManaged  Type = "context_summarized"

	CommandApproval    Type = "command_approval"
	PermissionsUpdated Type = "permissions_updated"
	PlanUpdated        Type = "plan_updated"
	Question           Type = "question"

	SupervisorStart   Type = "supervisor_start"
	SupervisorVerdict Type = "supervisor_verdict"
	SupervisorError   Type = "supervisor_error"

	TeamStep   Type = "team_step"
	TeamResult Type = "team_result"
)

// Event is one observable occurrence.
type Event struct {
	Type  Type           `json:"type"`
	Time  time.Time      `json:"time"`
	RunID string         `json:"run_id,omitempty"`
	Stage string         `json:"stage,omitempty"`
	Role  string         `json:"role,omitempty"`
	Step  int            `json:"step,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// Sink receives events. Emit must not block for long.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

type discard struct{}

func (discard) Emit(Event) {}

// Discard drops every event.
var Discard Sink = discard{}

// OrDiscard returns s, or Discard when s is nil.
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}

type multi []Sink

func (m multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Multi fans events out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	var out multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return Discard
	case 1:
		return out[0]
	}
	return out
}

type stamped struct {
	next  Sink
	runID string
}

func (s stamped) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.RunID == "" {
		e.RunID = s.runID
	}
	s.next.Emit(e)
}

// Stamp fills in Time and RunID before forwarding to next.
func Stamp(next Sink, runID string) Sink {
	return stamped{next: OrDiscard(next), runID: runID}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []Type {
	var out []Type
	for _, e := range r.Events() {
		out = append(out, e.Type)
	}
	return out
}

// Count returns how many events of type t were recorded.
func (r *Recorder) Count(t Type) int {
	n := 0
	for _, e := range r.Events() {
		if e.Type == t {
			n++
		}
	}
	return n
}
