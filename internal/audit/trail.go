// Package audit keeps a per-run JSONL trail of what the agent did to the
// repository.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"lowvibe/internal/events"
	"lowvibe/internal/logging"
)

// Config holds audit trail configuration.
type Config struct {
	Enabled       bool
	MaxResultLen  int
	RetentionDays int
}

// DefaultConfig returns the default audit configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		MaxResultLen:  1000,
		RetentionDays: 30,
	}
}

// Trail is an events.Sink appending audited events to <dir>/<runID>.jsonl.
type Trail struct {
	dir          string
	runID        string
	maxResultLen int
	retention    time.Duration
	redact       func(string) string

	mu      sync.Mutex
	file    *os.File
	entries int
	enabled bool
}

// NewTrail opens the trail for runID under dir.
func NewTrail(dir, runID string, cfg Config) (*Trail, error) {
	if !cfg.Enabled {
		return &Trail{}, nil
	}
	// Trails can contain command lines and file content.
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, runID+".jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit trail: %w", err)
	}
	return &Trail{
		dir:          dir,
		runID:        runID,
		maxResultLen: cfg.MaxResultLen,
		retention:    time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		file:         f,
		enabled:      true,
	}, nil
}

// SetRedactor masks every line through redact before it is written.
func (t *Trail) SetRedactor(redact func(string) string) {
	t.redact = redact
}

// Emit implements events.Sink. Write failures are logged and dropped.
func (t *Trail) Emit(e events.Event) {
	if !t.enabled {
		return
	}
	entry, ok := entryFor(e, t.maxResultLen)
	if !ok {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	line := string(data)
	if t.redact != nil {
		line = t.redact(line)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return
	}
	if _, err := t.file.WriteString(line + "\n"); err != nil {
		logging.Debug("audit write failed", "error", err)
		return
	}
	t.entries++
}

// Len returns how many entries were written.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries
}

// Close flushes and closes the trail file.
func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

// CleanupOldFiles removes other runs' trails older than the retention period.
func (t *Trail) CleanupOldFiles() (int, error) {
	if !t.enabled || t.retention <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-t.retention)
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".jsonl") || name == t.runID+".jsonl" {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(t.dir, name)); err == nil {
			removed++
		}
	}
	return removed, nil
}

// RunInfo summarizes one stored trail.
type RunInfo struct {
	RunID    string
	Modified time.Time
	Size     int64
}

// Runs lists the trails under dir, newest first.
func Runs(dir string) ([]RunInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var runs []RunInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		runs = append(runs, RunInfo{
			RunID:    strings.TrimSuffix(name, ".jsonl"),
			Modified: info.ModTime(),
			Size:     info.Size(),
		})
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Modified.After(runs[j].Modified) })
	return runs, nil
}

// Read loads every entry of a stored trail.
func Read(dir, runID string) ([]Entry, error) {
	data, err := os.ReadFile(filepath.Join(dir, runID+".jsonl"))
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return out, fmt.Errorf("corrupt audit line: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}
