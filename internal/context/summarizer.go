package context

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"lowvibe/internal/chat"
	"lowvibe/internal/oracle"
)

const summarizationPrompt = `Summarize this segment of an autonomous coding session so the agent can continue without it.

Write plain prose, at most 500 words. Cover, in this order:
1. Approaches tried that failed, and why they failed (quote the key error briefly)
2. Approaches that worked, naming the files and functions they touched
3. The current state: what is done, what is broken, and what comes next

Do not repeat raw tool output and do not list every step.`

var summarySchema = oracle.Schema{
	Name: "history_summary",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]any{"type": "string"},
		},
		"required": []any{"summary"},
	},
}

// Summarizer condenses history segments with the oracle.
type Summarizer struct {
	oracle oracle.Oracle
}

// NewSummarizer creates a new summarizer.
func NewSummarizer(o oracle.Oracle) *Summarizer {
	return &Summarizer{oracle: o}
}

// Summarize returns a summary of msgs, folding in previous when set.
func (s *Summarizer) Summarize(ctx context.Context, previous string, msgs []chat.Message) (string, error) {
	var sb strings.Builder
	if previous != "" {
		sb.WriteString("EXISTING SUMMARY (extend it, keep what still matters):\n")
		sb.WriteString(previous)
		sb.WriteString("\n\n")
	}
	sb.WriteString("CONVERSATION TO SUMMARIZE:\n")
	sb.WriteString(chat.Transcript(msgs))

	ctx = oracle.WithLabel(ctx, "summarize")
	out, _, err := oracle.Decode[struct {
		Summary string `json:"summary"`
	}](ctx, s.oracle, []chat.Message{
		chat.System(summarizationPrompt),
		chat.User(sb.String()),
	}, summarySchema)
	if err != nil {
		return "", fmt.Errorf("summarization request failed: %w", err)
	}
	if strings.TrimSpace(out.Summary) == "" {
		return "", &oracle.EmptyResponseError{Schema: summarySchema.Name}
	}
	return strings.TrimSpace(out.Summary), nil
}

var errorLine = regexp.MustCompile(`(?i)[^\n]*\b(error|exception|traceback|failed|panic)\b[^\n]*`)

const (
	maxFallbackErrors = 8
	maxErrorLineLen   = 160
)

// MechanicalSummary lists the tools used and the error lines seen in msgs.
// It needs no oracle and is used when summarization fails.
func MechanicalSummary(msgs []chat.Message) string {
	var tools []string
	seenTool := map[string]bool{}
	var errs []string
	seenErr := map[string]bool{}

	for _, m := range msgs {
		if m.Tool != "" && (m.Kind == chat.KindToolCall || m.Kind == chat.KindArchived) && !seenTool[m.Tool] {
			seenTool[m.Tool] = true
			tools = append(tools, m.Tool)
		}
		if m.Kind != chat.KindToolResult || len(errs) >= maxFallbackErrors {
			continue
		}
		for _, line := range errorLine.FindAllString(m.Content, -1) {
			line = chat.Truncate(strings.TrimSpace(line), maxErrorLineLen)
			if line == "" || seenErr[line] {
				continue
			}
			seenErr[line] = true
			errs = append(errs, line)
			if len(errs) >= maxFallbackErrors {
				break
			}
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d earlier messages were condensed.\n", len(msgs))
	if len(tools) > 0 {
		fmt.Fprintf(&sb, "Tools used: %s\n", strings.Join(tools, ", "))
	} else {
		sb.WriteString("Tools used: none\n")
	}
	if len(errs) > 0 {
		sb.WriteString("Errors seen:\n")
		for _, e := range errs {
			fmt.Fprintf(&sb, "- %s\n", e)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// SummaryMessage wraps summary text as a history entry.
func SummaryMessage(summary string) chat.Message {
	return chat.Message{
		Role:    chat.RoleUser,
		Content: fmt.Sprintf("[Previous conversation summary]\n%s\n[End of summary]", summary),
		Kind:    chat.KindSummary,
	}
}
