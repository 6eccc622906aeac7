// Package oracletest provides a scripted oracle for tests.
package oracletest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"lowvibe/internal/chat"
	"lowvibe/internal/oracle"
)

// Reply is one scripted turn. Exactly one of JSON, Err or Fn is used.
type Reply struct {
	JSON  string
	Err   error
	Fn    func(messages []chat.Message, schema oracle.Schema) (string, error)
	Usage oracle.Usage
}

// Call is a recorded invocation.
type Call struct {
	Schema   string
	Messages []chat.Message
}

// Scripted replays replies in order and validates them against the
// requested schema, like a real backend would.
type Scripted struct {
	mu        sync.Mutex
	replies   []Reply
	calls     []Call
	validator *oracle.Validator
	// Fallback answers once the script runs out; nil fails the call.
	Fallback *Reply
}

// New returns a Scripted oracle.
func New(replies ...Reply) *Scripted {
	return &Scripted{replies: replies, validator: oracle.NewValidator()}
}

// JSON is shorthand for a literal reply.
func JSON(s string) Reply { return Reply{JSON: s} }

// Push appends replies to the script.
func (s *Scripted) Push(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

// Calls returns the recorded invocations.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Schemas returns the schema name of every call, in order.
func (s *Scripted) Schemas() []string {
	var names []string
	for _, c := range s.Calls() {
		names = append(names, c.Schema)
	}
	return names
}

// Remaining returns the number of unconsumed replies.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replies)
}

// Complete implements oracle.Oracle.
func (s *Scripted) Complete(ctx context.Context, messages []chat.Message, schema oracle.Schema) (json.RawMessage, oracle.Usage, error) {
	if err := ctx.Err(); err != nil {
		return nil, oracle.Usage{}, err
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{Schema: schema.Name, Messages: chat.Clone(messages)})
	var r Reply
	switch {
	case len(s.replies) > 0:
		r = s.replies[0]
		s.replies = s.replies[1:]
	case s.Fallback != nil:
		r = *s.Fallback
	default:
		s.mu.Unlock()
		return nil, oracle.Usage{}, fmt.Errorf("oracletest: script exhausted at schema %s", schema.Name)
	}
	s.mu.Unlock()

	if r.Err != nil {
		return nil, r.Usage, r.Err
	}
	text := r.JSON
	if r.Fn != nil {
		var err error
		if text, err = r.Fn(messages, schema); err != nil {
			return nil, r.Usage, err
		}
	}
	raw, err := s.validator.Check(schema, text)
	return raw, r.Usage, err
}
