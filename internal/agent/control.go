package agent

import (
	"context"
	"errors"
	"sync"

	"lowvibe/internal/events"
	"lowvibe/internal/interact"
	"lowvibe/internal/logging"
)

// ErrCancelled is returned by a loop stopped through Control.Cancel.
var ErrCancelled = errors.New("run cancelled")

// RunState is the control state of a run.
type RunState int

const (
	Running RunState = iota
	Paused
	Cancelled
)

func (s RunState) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Control pauses, resumes and cancels a run. The loop observes it only at
// step boundaries through Checkpoint; an in-flight oracle call or tool is
// never interrupted. Cancelled is terminal.
type Control struct {
	sink events.Sink

	mu       sync.Mutex
	state    RunState
	guidance string
	wake     chan struct{}
	done     chan struct{}
}

// NewControl returns a control in the Running state.
func NewControl(sink events.Sink) *Control {
	return &Control{
		sink: events.OrDiscard(sink),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// State returns the current state.
func (c *Control) State() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pause asks the run to stop at the next step boundary.
func (c *Control) Pause() {
	c.mu.Lock()
	if c.state != Running {
		c.mu.Unlock()
		return
	}
	c.state = Paused
	c.mu.Unlock()
	logging.Info("run paused")
	c.sink.Emit(events.Event{Type: events.AgentPaused})
}

// Resume continues a paused run. Non-empty guidance is handed to the loop
// as a user message before its next oracle call.
func (c *Control) Resume(guidance string) {
	c.mu.Lock()
	if c.state != Paused {
		c.mu.Unlock()
		return
	}
	c.state = Running
	c.guidance = guidance
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	logging.Info("run resumed", "guidance", guidance != "")
	c.sink.Emit(events.Event{Type: events.AgentResumed, Data: map[string]any{"guidance": guidance}})
}

// Cancel stops the run at the next boundary and releases any human
// interaction waiting through Asker.
func (c *Control) Cancel() {
	c.mu.Lock()
	if c.state == Cancelled {
		c.mu.Unlock()
		return
	}
	c.state = Cancelled
	close(c.done)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	logging.Info("run cancelled")
	c.sink.Emit(events.Event{Type: events.AgentCancelled})
}

// Done is closed once the run is cancelled.
func (c *Control) Done() <-chan struct{} { return c.done }

// Checkpoint blocks while paused. It returns pending resume guidance, or
// ErrCancelled once cancelled.
func (c *Control) Checkpoint(ctx context.Context) (string, error) {
	for {
		c.mu.Lock()
		switch c.state {
		case Cancelled:
			c.mu.Unlock()
			return "", ErrCancelled
		case Running:
			g := c.guidance
			c.guidance = ""
			c.mu.Unlock()
			return g, nil
		}
		c.mu.Unlock()

		select {
		case <-c.wake:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Asker wraps inner so a cancel resolves a pending question with an empty
// answer instead of leaving it dangling.
func (c *Control) Asker(inner interact.Asker) interact.Asker {
	if inner == nil {
		return nil
	}
	return interact.AskerFunc(func(ctx context.Context, query string, opts interact.Options) (string, error) {
		if c.State() == Cancelled {
			return "", nil
		}
		askCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-c.done:
				cancel()
			case <-askCtx.Done():
			}
		}()
		answer, err := inner.Ask(askCtx, query, opts)
		if err != nil && ctx.Err() == nil && c.State() == Cancelled {
			return "", nil
		}
		return answer, err
	})
}
