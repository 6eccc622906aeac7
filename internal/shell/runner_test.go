package shell

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCapturesOutputAndExitCode(t *testing.T) {
	r := &Runner{Timeout: 5 * time.Second, OutputLimit: 1024}

	res, err := r.Run(context.Background(), "echo hello; echo oops >&2; exit 3", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.TimedOut)
	assert.Contains(t, res.Output, "hello")
	assert.Contains(t, res.Output, "oops")
}

func TestRunUsesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	r := &Runner{Timeout: 5 * time.Second}

	res, err := r.Run(context.Background(), "pwd -P", dir)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.NotEmpty(t, strings.TrimSpace(res.Output))
}

func TestRunTruncatesOutput(t *testing.T) {
	r := &Runner{Timeout: 5 * time.Second, OutputLimit: 10}

	res, err := r.Run(context.Background(), "printf '0123456789abcdefghij'", t.TempDir())
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.True(t, strings.HasPrefix(res.Output, "0123456789\n"))
	assert.Contains(t, res.Output, "[output truncated]")
}

func TestRunTimeoutKillsCommand(t *testing.T) {
	r := &Runner{Timeout: 300 * time.Millisecond}

	start := time.Now()
	res, err := r.Run(context.Background(), "sleep 30", t.TempDir())
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.NotEqual(t, StallNone, res.Stall)
	assert.NotEqual(t, 0, res.ExitCode)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.NotEmpty(t, res.Advice(r.Timeout))
}

func TestRunContextCancel(t *testing.T) {
	r := &Runner{Timeout: 30 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, "sleep 30", t.TempDir())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAdvice(t *testing.T) {
	assert.Empty(t, Result{}.Advice(time.Second))
	assert.Contains(t, Result{Stall: StallWaitingInput}.Advice(time.Second), "non-interactive")
	assert.Contains(t, Result{Stall: StallStillComputing}.Advice(20*time.Second), "20s")
}

func TestLimitedBuffer(t *testing.T) {
	b := &limitedBuffer{max: 4}
	n, err := b.Write([]byte("ab"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = b.Write([]byte("cdef"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcd\n...[output truncated]", b.String())
}
