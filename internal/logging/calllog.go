package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CallRecord is the diagnostic trace of one oracle call.
type CallRecord struct {
	ID         string        `json:"id"`
	Label      string        `json:"label"`
	Backend    string        `json:"backend"`
	Model      string        `json:"model"`
	Schema     string        `json:"schema"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	Request    any           `json:"request"`
	Response   string        `json:"response,omitempty"`
	Error      string        `json:"error,omitempty"`
	PromptToks int           `json:"prompt_tokens"`
	OutputToks int           `json:"completion_tokens"`
}

// CallLog writes one JSON file per oracle call. Failures are logged and
// swallowed; a broken diagnostics directory must never stop a run.
type CallLog struct {
	dir    string
	redact func(string) string
	mu     sync.Mutex
	seq    int
}

var unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// NewCallLog returns a CallLog rooted at dir. An empty dir disables it.
func NewCallLog(dir string) *CallLog {
	return &CallLog{dir: dir}
}

// SetRedactor masks every record through redact before it is written.
func (c *CallLog) SetRedactor(redact func(string) string) {
	c.redact = redact
}

// Enabled reports whether records are persisted.
func (c *CallLog) Enabled() bool { return c != nil && c.dir != "" }

// Write persists rec and returns the file path, or "" when nothing was written.
func (c *CallLog) Write(rec CallRecord) string {
	if !c.Enabled() {
		return ""
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		Warn("call log: create dir", "dir", c.dir, "error", err)
		return ""
	}
	label := unsafeLabel.ReplaceAllString(rec.Label, "_")
	if label == "" {
		label = "call"
	}
	name := fmt.Sprintf("%s-%04d-%s-%s.json", rec.StartedAt.UTC().Format("20060102T150405"), seq, label, rec.ID[:8])
	path := filepath.Join(c.dir, name)

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		Warn("call log: marshal", "label", rec.Label, "error", err)
		return ""
	}
	if c.redact != nil {
		data = []byte(c.redact(string(data)))
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		Warn("call log: write", "path", path, "error", err)
		return ""
	}
	return path
}
