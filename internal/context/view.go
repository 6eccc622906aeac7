package context

import (
	"context"
	"errors"
	"fmt"

	"lowvibe/internal/chat"
	"lowvibe/internal/logging"
	"lowvibe/internal/oracle"
)

// ErrViewTooSmall means the preserved head and tail alone exceed the
// message budget of a view.
var ErrViewTooSmall = errors.New("context: preserved messages do not fit the view")

// ViewSpec sizes a count-bounded view.
type ViewSpec struct {
	MaxMessages   int
	PreserveFirst int
	PreserveLast  int
}

// View is a derived, bounded rendering of a history. The source history
// is never modified.
type View struct {
	Messages   []chat.Message
	Summary    string
	Summarized int
	// Spec is the sizing the view was built with.
	Spec ViewSpec
}

// ViewBuilder renders histories into count-bounded views by progressively
// folding the oldest middle messages into a running summary.
type ViewBuilder struct {
	summarizer *Summarizer
}

// NewViewBuilder creates a view builder.
func NewViewBuilder(s *Summarizer) *ViewBuilder {
	return &ViewBuilder{summarizer: s}
}

// foldChunk is how many middle messages are folded per summarization call.
const foldChunk = 2

// Build renders msgs into at most spec.MaxMessages messages.
func (b *ViewBuilder) Build(ctx context.Context, msgs []chat.Message, spec ViewSpec) (View, error) {
	if len(msgs) <= spec.MaxMessages {
		return View{Messages: chat.Clone(msgs), Spec: spec}, nil
	}

	first := min(spec.PreserveFirst, len(msgs))
	last := min(spec.PreserveLast, len(msgs)-first)
	if first+1+last > spec.MaxMessages {
		return View{}, fmt.Errorf("%w: %d head + summary + %d tail > %d",
			ErrViewTooSmall, first, last, spec.MaxMessages)
	}

	middle := msgs[first : len(msgs)-last]
	var summary string
	folded := 0
	for len(middle) > 0 && first+1+len(middle)+last > spec.MaxMessages {
		n := min(foldChunk, len(middle))
		var err error
		summary, err = b.fold(ctx, summary, middle[:n])
		if err != nil {
			return View{}, err
		}
		middle = middle[n:]
		folded += n
	}

	out := make([]chat.Message, 0, first+1+len(middle)+last)
	out = append(out, msgs[:first]...)
	out = append(out, SummaryMessage(summary))
	out = append(out, middle...)
	out = append(out, msgs[len(msgs)-last:]...)
	return View{Messages: out, Summary: summary, Summarized: folded, Spec: spec}, nil
}

func (b *ViewBuilder) fold(ctx context.Context, previous string, chunk []chat.Message) (string, error) {
	if b.summarizer == nil {
		mech := MechanicalSummary(chunk)
		if previous == "" {
			return mech, nil
		}
		return previous + "\n" + mech, nil
	}
	return b.summarizer.Summarize(ctx, previous, chunk)
}

// RetryPolicy bounds overflow recovery for views.
type RetryPolicy struct {
	Attempts      int
	Floor         int
	TruncateChars int
}

// WithRetry builds a view and hands it to use. When either step reports a
// context overflow, PreserveLast is halved down to Floor and the view is
// rebuilt; at the floor every message is truncated to TruncateChars as a
// last resort. Other errors are returned unchanged.
func (b *ViewBuilder) WithRetry(ctx context.Context, msgs []chat.Message, spec ViewSpec, policy RetryPolicy, use func(context.Context, View) error) error {
	attempts := max(policy.Attempts, 1)
	floor := max(policy.Floor, 1)
	truncated := false

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		view, err := b.Build(ctx, msgs, spec)
		if err == nil {
			err = use(ctx, view)
		}
		if err == nil {
			return nil
		}
		if !oracle.IsOverflow(err) && !errors.Is(err, ErrViewTooSmall) {
			return err
		}
		lastErr = err

		switch {
		case spec.PreserveLast > floor:
			spec.PreserveLast = max(spec.PreserveLast/2, floor)
			logging.Info("view overflow, shrinking tail", "attempt", attempt+1, "preserve_last", spec.PreserveLast)
		case !truncated && policy.TruncateChars > 0:
			msgs = TruncateMessages(msgs, policy.TruncateChars)
			truncated = true
			logging.Info("view overflow at floor, truncating messages", "attempt", attempt+1, "chars", policy.TruncateChars)
		default:
			return fmt.Errorf("context view still overflows after shrinking: %w", lastErr)
		}
	}
	return fmt.Errorf("context view overflow after %d attempts: %w", attempts, lastErr)
}

// BuildWithRetry is Build under the WithRetry overflow policy.
func (b *ViewBuilder) BuildWithRetry(ctx context.Context, msgs []chat.Message, spec ViewSpec, policy RetryPolicy) (View, error) {
	var out View
	err := b.WithRetry(ctx, msgs, spec, policy, func(_ context.Context, v View) error {
		out = v
		return nil
	})
	return out, err
}

// TruncateMessages returns a copy of msgs with each content cut to chars.
func TruncateMessages(msgs []chat.Message, chars int) []chat.Message {
	out := chat.Clone(msgs)
	for i := range out {
		out[i].Content = chat.Truncate(out[i].Content, chars)
	}
	return out
}
