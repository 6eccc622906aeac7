package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallLogWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "calls")
	log := NewCallLog(dir)

	path := log.Write(CallRecord{
		Label:     "step loop/full",
		Model:     "qwen",
		Schema:    "agent_step",
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Request:   []string{"hello"},
		Response:  `{"type":"final"}`,
	})
	require.NotEmpty(t, path)
	assert.Contains(t, filepath.Base(path), "20260102T030405-0001-step_loop_full-")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec CallRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "agent_step", rec.Schema)
	assert.NotEmpty(t, rec.ID)
}

func TestCallLogDisabled(t *testing.T) {
	var nilLog *CallLog
	assert.False(t, nilLog.Enabled())
	assert.Empty(t, nilLog.Write(CallRecord{Label: "x"}))
	assert.Empty(t, NewCallLog("").Write(CallRecord{Label: "x"}))
}

func TestCallLogUnwritableDirIsSwallowed(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	log := NewCallLog(filepath.Join(file, "calls"))
	assert.Empty(t, log.Write(CallRecord{Label: "x", StartedAt: time.Now()}))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestCallLogRedacts(t *testing.T) {
	log := NewCallLog(t.TempDir())
	log.SetRedactor(func(s string) string {
		return strings.ReplaceAll(s, "hunter2", "[REDACTED]")
	})

	path := log.Write(CallRecord{Label: "x", StartedAt: time.Now(), Response: "password hunter2"})
	require.NotEmpty(t, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
	assert.Contains(t, string(data), "[REDACTED]")
}
