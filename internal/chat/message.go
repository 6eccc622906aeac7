// Package chat holds the role/content messages exchanged with the oracle.
package chat

import (
	"fmt"
	"strings"
)

// Role is the speaker of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Kind tags messages the context manager and supervisor need to recognize.
// It is never sent to the oracle.
type Kind string

const (
	KindPlain      Kind = ""
	KindTask       Kind = "task"
	KindToolCall   Kind = "tool_call"
	KindToolResult Kind = "tool_result"
	KindArchived   Kind = "archived"
	KindSummary    Kind = "summary"
	KindCorrective Kind = "corrective"
)

// Message is one history entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Kind    Kind   `json:"kind,omitempty"`
	// Tool names the tool for tool_call, tool_result and archived messages.
	Tool string `json:"tool,omitempty"`
}

func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Task returns the user message that anchors history slot 1.
func Task(content string) Message {
	return Message{Role: RoleUser, Content: content, Kind: KindTask}
}

// Corrective returns a system instruction injected after a bad oracle turn.
func Corrective(content string) Message {
	return Message{Role: RoleSystem, Content: content, Kind: KindCorrective}
}

// ToolCall records the assistant turn that invoked tool.
func ToolCall(tool, raw string) Message {
	return Message{Role: RoleAssistant, Content: raw, Kind: KindToolCall, Tool: tool}
}

// ToolResult records the outcome of tool as a user turn.
func ToolResult(tool, payload string) Message {
	return Message{
		Role:    RoleUser,
		Content: fmt.Sprintf("Tool result (%s):\n%s", tool, payload),
		Kind:    KindToolResult,
		Tool:    tool,
	}
}

// Archived is the one-line marker that replaces a pruned tool pair.
func Archived(tool string) Message {
	return Message{
		Role:    RoleAssistant,
		Content: fmt.Sprintf("[archived tool call: %s]", tool),
		Kind:    KindArchived,
		Tool:    tool,
	}
}

// Clone returns an independent copy of msgs.
func Clone(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Chars returns the total content length of msgs.
func Chars(msgs []Message) int {
	n := 0
	for _, m := range msgs {
		n += len(m.Content)
	}
	return n
}

// Transcript renders msgs as plain text for summarization prompts.
func Transcript(msgs []Message) string {
	var sb strings.Builder
	for i, m := range msgs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("[")
		sb.WriteString(string(m.Role))
		if m.Tool != "" {
			sb.WriteString(" ")
			sb.WriteString(m.Tool)
		}
		sb.WriteString("] ")
		sb.WriteString(m.Content)
	}
	return sb.String()
}

// Truncate shortens content longer than max runes, keeping the head.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + fmt.Sprintf("\n...[truncated %d chars]", len(r)-max)
}
