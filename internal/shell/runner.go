// Package shell runs agent commands with a deadline, a hard kill and a
// diagnosis of why a command that hit the deadline was still running.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"

	"lowvibe/internal/logging"
)

// Stall classifies a command that was killed at its deadline.
type Stall string

const (
	StallNone           Stall = ""
	StallWaitingInput   Stall = "waiting_for_input"
	StallStillComputing Stall = "still_computing"
)

// Result is the outcome of one command.
type Result struct {
	Output    string
	ExitCode  int
	TimedOut  bool
	Stall     Stall
	Truncated bool
	Duration  time.Duration
}

// Advice returns remediation text for a timed-out command.
func (r Result) Advice(timeout time.Duration) string {
	switch r.Stall {
	case StallWaitingInput:
		return "The command was waiting for interactive input when it was killed. " +
			"Re-run it non-interactively: pass flags such as --yes or --non-interactive, " +
			"pipe the answers in, or use a batch mode."
	case StallStillComputing:
		return fmt.Sprintf("The command was still computing when it was killed after %s. "+
			"Narrow it to a smaller target, run a faster subset, or make it terminate on its own "+
			"(servers and watchers never do).", timeout)
	}
	return ""
}

// Runner executes commands through sh -c.
type Runner struct {
	Timeout     time.Duration
	OutputLimit int
	// UsePTY attaches a pseudo-terminal so tools that require a tty behave.
	UsePTY bool
	Env    []string
}

// Run executes command in dir. The error is non-nil only when the command
// could not be started or ctx was cancelled; a failing command is a
// normal Result with a non-zero ExitCode.
func (r *Runner) Run(ctx context.Context, command, dir string) (Result, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	out := &limitedBuffer{max: r.OutputLimit}

	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = dir
	if r.Env != nil {
		cmd.Env = r.Env
	}

	start := time.Now()
	cleanup, err := r.start(cmd, out)
	if err != nil {
		return Result{}, fmt.Errorf("failed to start command: %w", err)
	}
	defer cleanup()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	res := Result{}
	select {
	case err = <-done:
	case <-timer.C:
		res.TimedOut = true
		res.Stall = classify(cmd.Process.Pid)
		logging.Info("command timed out", "command", command, "timeout", timeout, "stall", res.Stall)
		killGroup(cmd.Process)
		err = <-done
	case <-ctx.Done():
		killGroup(cmd.Process)
		<-done
		return Result{}, ctx.Err()
	}

	cleanup()
	res.Duration = time.Since(start)
	res.Output = out.String()
	res.Truncated = out.truncated
	res.ExitCode = exitCode(err)
	return res, nil
}

func (r *Runner) start(cmd *exec.Cmd, out io.Writer) (func(), error) {
	if r.UsePTY {
		f, err := pty.Start(cmd)
		if err != nil {
			return nil, err
		}
		copied := make(chan struct{})
		go func() {
			// Reads end with EIO once the child side closes.
			io.Copy(out, f)
			close(copied)
		}()
		var once sync.Once
		return func() {
			once.Do(func() {
				f.Close()
				<-copied
			})
		}, nil
	}

	// Hold the write end of stdin open so a read blocks instead of seeing
	// EOF; that is what lets a stalled prompt be told apart from work.
	stdin, hold, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdin = stdin
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = 2 * time.Second
	setProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		stdin.Close()
		hold.Close()
		return nil, err
	}
	stdin.Close()
	var once sync.Once
	return func() { once.Do(func() { hold.Close() }) }, nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
	}
	return -1
}

// limitedBuffer keeps the first max bytes and counts the rest.
type limitedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.max > 0 && b.buf.Len()+len(p) > b.max {
		if room := b.max - b.buf.Len(); room > 0 {
			b.buf.Write(p[:room])
		}
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.String()
	if b.truncated {
		s += "\n...[output truncated]"
	}
	return s
}
