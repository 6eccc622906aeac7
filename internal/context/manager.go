// Package context keeps agent histories inside the model context window.
package context

import (
	"context"
	"errors"

	"lowvibe/internal/chat"
	"lowvibe/internal/logging"
)

// ErrMissingAnchor means a history needs summarizing but slot 1 does not
// hold the original task. Summarizing would lose the task, so it is fatal.
var ErrMissingAnchor = errors.New("context: history has no original-task anchor in slot 1")

// Options tunes a Manager.
type Options struct {
	// Threshold is the estimate/budget ratio that triggers summarization.
	Threshold float64
	// Recent is how many trailing messages survive summarization verbatim.
	Recent int
	// KeepPairs is how many tool-call/result pairs pruning keeps intact.
	KeepPairs int
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{Threshold: 0.65, Recent: 10, KeepPairs: 5}
}

// Outcome describes what Manage did.
type Outcome struct {
	History    []chat.Message
	Pruned     int
	Summarized bool
	// Mechanical is set when the oracle summary failed and the fallback ran.
	Mechanical bool
	Estimate   int
}

// Manager prunes and summarizes histories before every oracle call.
type Manager struct {
	opts       Options
	summarizer *Summarizer
	estimator  *Estimator
}

// NewManager creates a manager. A nil summarizer always uses the
// mechanical fallback.
func NewManager(opts Options, s *Summarizer) *Manager {
	return &Manager{opts: opts, summarizer: s, estimator: &Estimator{}}
}

// Observe feeds the endpoint's real prompt size back into the estimator.
func (m *Manager) Observe(promptTokens int, msgs []chat.Message) {
	m.estimator.Observe(promptTokens, msgs)
}

// Manage prunes stale tool pairs and, when the prompt estimate reaches
// the threshold share of budget, replaces the middle of history with a
// summary. Slots 0 and 1 always survive. promptTokens is the caller's
// current estimate (usually the last prompt size the endpoint reported,
// 0 when unknown); the larger of it and the calibrated estimate of the
// pruned history is compared against budget.
func (m *Manager) Manage(ctx context.Context, history []chat.Message, promptTokens, budget int) (Outcome, error) {
	pruned, n := PruneToolPairs(history, m.opts.KeepPairs)
	out := Outcome{History: pruned, Pruned: n, Estimate: max(promptTokens, m.estimator.Estimate(pruned))}

	if budget <= 0 || float64(out.Estimate)/float64(budget) < m.opts.Threshold {
		return out, nil
	}

	hasAnchor := len(pruned) >= reservedSlots && pruned[1].Kind == chat.KindTask
	head := reservedSlots
	if !hasAnchor {
		head = min(1, len(pruned))
	}
	tailStart := max(len(pruned)-m.opts.Recent, head)
	old := pruned[head:tailStart]

	if len(old) > 2 && !hasAnchor {
		return out, ErrMissingAnchor
	}
	if len(old) <= 2 {
		logging.Debug("context over threshold but nothing to summarize",
			"estimate", out.Estimate, "budget", budget, "messages", len(pruned))
		return out, nil
	}

	summary, mechanical := m.summarize(ctx, old)

	next := make([]chat.Message, 0, head+1+len(pruned)-tailStart)
	next = append(next, pruned[:head]...)
	next = append(next, SummaryMessage(summary))
	next = append(next, pruned[tailStart:]...)

	logging.Info("history summarized",
		"condensed", len(old), "before", len(pruned), "after", len(next), "mechanical", mechanical)

	out.History = next
	out.Summarized = true
	out.Mechanical = mechanical
	out.Estimate = m.estimator.Estimate(next)
	return out, nil
}

func (m *Manager) summarize(ctx context.Context, old []chat.Message) (string, bool) {
	if m.summarizer != nil {
		s, err := m.summarizer.Summarize(ctx, "", old)
		if err == nil {
			return s, false
		}
		if ctx.Err() == nil {
			logging.Warn("oracle summary failed, using mechanical summary", "error", err)
		}
	}
	return MechanicalSummary(old), true
}
