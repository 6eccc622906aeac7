package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"lowvibe/internal/chat"
	"lowvibe/internal/security"
)

// Attachment is a file's content prepared for the task message.
type Attachment struct {
	Path      string // relative to the repository root
	Content   string
	Truncated bool
	Err       string
}

// ReadAttachments reads each selected file, capped at maxBytes per file.
// Files that cannot be read are kept with Err set so the agent sees why.
func ReadAttachments(scope *security.Scope, files []string, maxBytes int) []Attachment {
	out := make([]Attachment, 0, len(files))
	for _, rel := range files {
		a := Attachment{Path: rel}
		abs, err := scope.Resolve(rel)
		if err != nil {
			a.Err = err.Error()
			out = append(out, a)
			continue
		}
		text, err := readText(abs)
		if err != nil {
			a.Err = err.Error()
			out = append(out, a)
			continue
		}
		if maxBytes > 0 && len(text) > maxBytes {
			a.Content = chat.Truncate(text, maxBytes)
			a.Truncated = true
		} else {
			a.Content = text
		}
		out = append(out, a)
	}
	return out
}

func readText(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return readPDF(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("binary file")
	}
	return string(data), nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to extract page %d: %w", i, err)
		}
		fmt.Fprintf(&b, "--- page %d ---\n%s\n", i, strings.TrimSpace(text))
	}
	return b.String(), nil
}

// FormatAttachments renders attachments for inclusion in the task message.
func FormatAttachments(atts []Attachment) string {
	if len(atts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Attached files:\n")
	for _, a := range atts {
		if a.Err != "" {
			fmt.Fprintf(&b, "\n### %s\n(unavailable: %s)\n", a.Path, a.Err)
			continue
		}
		fmt.Fprintf(&b, "\n### %s\n```\n%s\n```\n", a.Path, a.Content)
	}
	return b.String()
}
