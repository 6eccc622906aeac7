package permission

import (
	"context"
	"strings"

	"lowvibe/internal/interact"
)

// Approver asks a human about a command.
type Approver interface {
	Approve(ctx context.Context, req Request) (Approval, error)
}

// AskApprover turns approval requests into interact questions.
type AskApprover struct {
	asker interact.Asker
}

// NewAskApprover returns an Approver backed by asker.
func NewAskApprover(asker interact.Asker) *AskApprover {
	return &AskApprover{asker: asker}
}

// Approve implements Approver.
func (a *AskApprover) Approve(ctx context.Context, req Request) (Approval, error) {
	reason := req.Note
	if req.Label != "" {
		reason = strings.TrimSpace("(" + req.Label + ") " + reason)
	}
	answer, err := a.asker.Ask(ctx, "The agent wants to run a command.", interact.Options{
		Command: &interact.CommandInfo{
			Command: req.Command,
			Cwd:     req.Cwd,
			Type:    req.CommandType,
			Reason:  reason,
		},
	})
	if err != nil {
		return Approval{}, err
	}

	decision := ParseDecision(answer)
	if decision != Reject {
		return Approval{Decision: decision}, nil
	}
	if answer == "" {
		// An empty answer (cancelled prompt) rejects without a reason.
		return Approval{Decision: Reject}, nil
	}
	reason, err = a.asker.Ask(ctx, "Why reject it? (optional, tells the agent what to do instead)", interact.Options{})
	if err != nil {
		return Approval{}, err
	}
	return Approval{Decision: Reject, Feedback: reason}, nil
}

// ParseDecision maps a typed answer to a Decision. Anything unrecognised
// rejects.
func ParseDecision(answer string) Decision {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "1", "y", "yes", "once", "allow_once":
		return AllowOnce
	case "2", "type", "allow_type":
		return AllowType
	case "3", "exact", "always", "allow_exact":
		return AllowExact
	default:
		return Reject
	}
}
