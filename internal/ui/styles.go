// Package ui renders run events on a terminal.
package ui

import "github.com/charmbracelet/lipgloss"

// Colors for the console theme.
var (
	ColorPrimary   = lipgloss.Color("#A78BFA") // Soft Purple
	ColorSecondary = lipgloss.Color("#22D3EE") // Cyan
	ColorSuccess   = lipgloss.Color("#059669") // Emerald
	ColorWarning   = lipgloss.Color("#D97706") // Amber
	ColorError     = lipgloss.Color("#DC2626") // Red
	ColorMuted     = lipgloss.Color("#9CA3AF") // Gray
	ColorInfo      = lipgloss.Color("#2DD4BF") // Teal
)

// Icons used in event lines.
var Icons = map[string]string{
	"stage":   "▸",
	"tool":    "⚙",
	"ok":      "✓",
	"fail":    "✗",
	"warn":    "⚠",
	"pause":   "⏸",
	"resume":  "▶",
	"ask":     "?",
	"team":    "◆",
	"summary": "✨",
}

// Styles holds the lipgloss styles of the console presenter.
type Styles struct {
	Header     lipgloss.Style
	Stage      lipgloss.Style
	Message    lipgloss.Style
	ToolCall   lipgloss.Style
	ToolResult lipgloss.Style
	Success    lipgloss.Style
	Error      lipgloss.Style
	Warning    lipgloss.Style
	Muted      lipgloss.Style
	Role       lipgloss.Style
}

// DefaultStyles returns the colored theme.
func DefaultStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary),
		Stage: lipgloss.NewStyle().
			Foreground(ColorSecondary),
		Message: lipgloss.NewStyle(),
		ToolCall: lipgloss.NewStyle().
			Foreground(ColorInfo),
		ToolResult: lipgloss.NewStyle().
			Foreground(ColorMuted).
			PaddingLeft(2),
		Success: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSuccess),
		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorError),
		Warning: lipgloss.NewStyle().
			Foreground(ColorWarning),
		Muted: lipgloss.NewStyle().
			Foreground(ColorMuted),
		Role: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary),
	}
}

// PlainStyles renders without any decoration.
func PlainStyles() Styles {
	s := lipgloss.NewStyle()
	return Styles{
		Header: s, Stage: s, Message: s, ToolCall: s, ToolResult: s.PaddingLeft(2),
		Success: s, Error: s, Warning: s, Muted: s, Role: s,
	}
}
