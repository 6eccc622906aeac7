package permission

import (
	"context"
	"fmt"
	"strings"

	"lowvibe/internal/events"
	"lowvibe/internal/logging"
	"lowvibe/internal/security"
)

// Outcome is the gate's verdict on a command. A blocked command is not an
// error: Reason is handed back to the agent as a tool result.
type Outcome struct {
	Allowed     bool
	Command     string
	Cwd         string
	CommandType string
	// Label is the verifier's category; it never decides allow-listing.
	Label     string
	Corrected bool
	Decision  Decision
	Reason    string
}

// Gate runs every command through, in order: the deterministic scope and
// blocklist checks, oracle verification (with correction), the
// allow-lists, and finally human approval.
type Gate struct {
	scope     *security.Scope
	validator *security.CommandValidator
	verifier  Verifier
	approver  Approver
	allow     *AllowList
	sink      events.Sink
}

// NewGate builds a gate. A nil verifier skips oracle verification; the
// deterministic checks always run.
func NewGate(scope *security.Scope, verifier Verifier, approver Approver, allow *AllowList, sink events.Sink) *Gate {
	if allow == nil {
		allow = NewAllowList(nil, nil)
	}
	return &Gate{
		scope:     scope,
		validator: security.NewCommandValidator(),
		verifier:  verifier,
		approver:  approver,
		allow:     allow,
		sink:      events.OrDiscard(sink),
	}
}

// AllowList returns the live allow-list.
func (g *Gate) AllowList() *AllowList { return g.allow }

// Check decides whether command may run from cwd. The returned error is
// non-nil only when ctx is done or the approver failed.
func (g *Gate) Check(ctx context.Context, command, cwd string) (Outcome, error) {
	command = strings.TrimSpace(command)
	if cwd == "" {
		cwd = "."
	}
	out := Outcome{Command: command, Cwd: cwd}

	if reason := g.deterministic(command, cwd); reason != "" {
		return g.block(out, reason), nil
	}

	var note string
	if g.verifier != nil {
		v, err := g.verifier.Verify(ctx, command, cwd)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			return g.block(out, fmt.Sprintf("command verification failed: %v", err)), nil
		}
		out.Label = v.CommandType
		note = v.Reason
		if !v.Valid {
			if v.CorrectedCommand == "" && v.CorrectedCwd == "" {
				return g.block(out, "command rejected by verification: "+v.Reason), nil
			}
			if v.CorrectedCommand != "" {
				out.Command = strings.TrimSpace(v.CorrectedCommand)
			}
			if v.CorrectedCwd != "" {
				out.Cwd = v.CorrectedCwd
			}
			out.Corrected = true
			logging.Info("command corrected by verifier",
				"from", command, "to", out.Command, "cwd", out.Cwd, "reason", v.Reason)
			// The correction is new input; it gets the same deterministic scrutiny.
			if reason := g.deterministic(out.Command, out.Cwd); reason != "" {
				return g.block(out, reason), nil
			}
		}
	}

	out.CommandType = CommandType(out.Command)
	if g.allow.Allows(out.Command, out.CommandType) {
		out.Allowed = true
		out.Decision = Allowed
		return out, nil
	}

	req := Request{Command: out.Command, Cwd: out.Cwd, CommandType: out.CommandType, Label: out.Label, Note: note}
	g.sink.Emit(events.Event{Type: events.CommandApproval, Data: map[string]any{
		"command": req.Command, "cwd": req.Cwd, "command_type": req.CommandType, "label": req.Label, "note": note,
	}})
	if g.approver == nil {
		return g.block(out, "command needs approval and no approver is configured"), nil
	}
	approval, err := g.approver.Approve(ctx, req)
	if err != nil {
		return out, err
	}

	out.Decision = approval.Decision
	switch approval.Decision {
	case AllowOnce:
		out.Allowed = true
	case AllowType:
		out.Allowed = true
		if g.allow.AddType(out.CommandType) {
			g.permissionsUpdated()
		}
	case AllowExact:
		out.Allowed = true
		if g.allow.AddExact(out.Command) {
			g.permissionsUpdated()
		}
	default:
		out.Decision = Reject
		out.Reason = "command rejected by the user"
		if approval.Feedback != "" {
			out.Reason += ": " + approval.Feedback
		}
	}
	return out, nil
}

func (g *Gate) deterministic(command, cwd string) string {
	if res := g.validator.Validate(command); !res.Valid {
		return "command blocked: " + res.Reason
	}
	if g.scope != nil {
		if err := g.scope.CheckCommand(command, cwd); err != nil {
			return "command blocked: " + err.Error()
		}
	}
	return ""
}

func (g *Gate) block(out Outcome, reason string) Outcome {
	out.Allowed = false
	out.Decision = Blocked
	out.Reason = reason
	logging.Info("command blocked", "command", out.Command, "cwd", out.Cwd, "reason", reason)
	return out
}

func (g *Gate) permissionsUpdated() {
	types, exact := g.allow.Snapshot()
	g.sink.Emit(events.Event{Type: events.PermissionsUpdated, Data: map[string]any{
		"allowed_types": types, "allowed_exact": exact,
	}})
}
