package audit

import (
	"time"

	"github.com/google/uuid"

	"lowvibe/internal/events"
)

// Entry is one line of a run's audit trail.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Event     string    `json:"event"`
	Role      string    `json:"role,omitempty"`
	Step      int       `json:"step,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	Command   string    `json:"command,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Result    string    `json:"result,omitempty"` // truncated
}

// entryFor maps an event to an audit entry. Only events that act on the
// repository or change what the agent may do are audited.
func entryFor(e events.Event, maxResult int) (*Entry, bool) {
	d := e.Data
	entry := &Entry{
		ID:        uuid.New().String(),
		Timestamp: e.Time,
		RunID:     e.RunID,
		Event:     string(e.Type),
		Role:      e.Role,
		Step:      e.Step,
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	switch e.Type {
	case events.AgentToolResult:
	case events.TeamStep:
		if kind, _ := d["kind"].(string); kind != "tool_result" {
			return nil, false
		}
	case events.CommandApproval:
		entry.Command, _ = d["command"].(string)
		entry.Success = true
		return entry, true
	case events.PermissionsUpdated:
		entry.Success = true
		return entry, true
	case events.PipelineEnd:
		entry.Success, _ = d["ok"].(bool)
		return entry, true
	default:
		return nil, false
	}

	entry.Tool, _ = d["tool"].(string)
	entry.Success, _ = d["ok"].(bool)
	entry.Error, _ = d["error"].(string)
	content, _ := d["content"].(string)
	if maxResult > 0 && len(content) > maxResult {
		content = content[:maxResult] + "... (truncated)"
	}
	entry.Result = content
	return entry, true
}
