// Package interact carries questions from the agent to a human.
package interact

import (
	"context"
	"sync"
)

// CommandInfo describes a command awaiting approval.
type CommandInfo struct {
	Command string `json:"command"`
	Cwd     string `json:"cwd"`
	Type    string `json:"type"`
	Reason  string `json:"reason,omitempty"`
}

// Options shape how a question is presented.
type Options struct {
	// Command is set for command-approval questions.
	Command *CommandInfo
	// Multiline answers end at the first blank line.
	Multiline bool
}

// Asker asks a human a question and waits for the answer. An empty answer
// with a nil error is a valid reply (it means "accept" for completion
// prompts).
type Asker interface {
	Ask(ctx context.Context, query string, opts Options) (string, error)
}

// AskerFunc adapts a function to Asker.
type AskerFunc func(ctx context.Context, query string, opts Options) (string, error)

func (f AskerFunc) Ask(ctx context.Context, query string, opts Options) (string, error) {
	return f(ctx, query, opts)
}

// Question is a pending request held by a Handoff.
type Question struct {
	Query   string
	Options Options
	reply   chan string
}

// Handoff is a single-slot mailbox between the run and a frontend that
// answers asynchronously (the websocket bridge, tests). A new question
// replaces an unanswered one, which resolves empty.
type Handoff struct {
	mu      sync.Mutex
	pending *Question
	notify  func(Question)
}

// NewHandoff returns a Handoff. notify, if set, is called for every new
// question.
func NewHandoff(notify func(Question)) *Handoff {
	return &Handoff{notify: notify}
}

// Ask implements Asker.
func (h *Handoff) Ask(ctx context.Context, query string, opts Options) (string, error) {
	q := &Question{Query: query, Options: opts, reply: make(chan string, 1)}

	h.mu.Lock()
	if h.pending != nil {
		h.pending.reply <- ""
	}
	h.pending = q
	notify := h.notify
	h.mu.Unlock()

	if notify != nil {
		notify(*q)
	}

	select {
	case answer := <-q.reply:
		return answer, nil
	case <-ctx.Done():
		h.mu.Lock()
		if h.pending == q {
			h.pending = nil
		}
		h.mu.Unlock()
		return "", ctx.Err()
	}
}

// Pending returns the unanswered question, if any.
func (h *Handoff) Pending() (Question, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return Question{}, false
	}
	return *h.pending, true
}

// Answer resolves the pending question. It reports whether one was waiting.
func (h *Handoff) Answer(text string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return false
	}
	h.pending.reply <- text
	h.pending = nil
	return true
}

// Cancel resolves any pending question with an empty answer so a waiting
// run can unwind.
func (h *Handoff) Cancel() {
	h.Answer("")
}
