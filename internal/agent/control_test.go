package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lowvibe/internal/events"
	"lowvibe/internal/interact"
)

func TestControlTransitions(t *testing.T) {
	rec := &events.Recorder{}
	c := NewControl(rec)
	assert.Equal(t, Running, c.State())

	c.Resume("ignored while running")
	assert.Equal(t, Running, c.State())

	c.Pause()
	c.Pause()
	assert.Equal(t, Paused, c.State())

	c.Resume("go")
	assert.Equal(t, Running, c.State())

	c.Cancel()
	c.Cancel()
	c.Pause()
	c.Resume("")
	assert.Equal(t, Cancelled, c.State())
	assert.Equal(t, []events.Type{events.AgentPaused, events.AgentResumed, events.AgentCancelled}, rec.Types())

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after Cancel")
	}
}

func TestControlCheckpointReturnsGuidanceOnce(t *testing.T) {
	c := NewControl(nil)
	ctx := context.Background()

	g, err := c.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Empty(t, g)

	c.Pause()
	c.Resume("use the helper")
	g, err = c.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, "use the helper", g)

	g, err = c.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Empty(t, g)
}

func TestControlCheckpointBlocksWhilePaused(t *testing.T) {
	c := NewControl(nil)
	c.Pause()

	errc := make(chan error, 1)
	go func() {
		_, err := c.Checkpoint(context.Background())
		errc <- err
	}()

	select {
	case <-errc:
		t.Fatal("checkpoint returned while paused")
	case <-time.After(30 * time.Millisecond):
	}

	c.Cancel()
	assert.ErrorIs(t, <-errc, ErrCancelled)
}

func TestControlWakeDoesNotBlock(t *testing.T) {
	c := NewControl(nil)
	// Nobody drains the wake slot; repeated cycles must not block.
	for i := 0; i < 5; i++ {
		c.Pause()
		c.Resume("")
	}
	_, err := c.Checkpoint(context.Background())
	assert.NoError(t, err)
}

func TestControlCheckpointHonoursContext(t *testing.T) {
	c := NewControl(nil)
	c.Pause()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Checkpoint(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestControlAsker(t *testing.T) {
	c := NewControl(nil)
	assert.Nil(t, c.Asker(nil))

	plain := c.Asker(interact.AskerFunc(func(context.Context, string, interact.Options) (string, error) {
		return "yes", nil
	}))
	got, err := plain.Ask(context.Background(), "ok?", interact.Options{})
	require.NoError(t, err)
	assert.Equal(t, "yes", got)

	blocking := c.Asker(interact.AskerFunc(func(ctx context.Context, _ string, _ interact.Options) (string, error) {
		<-ctx.Done()
		return "", errors.New("interrupted")
	}))
	go func() {
		time.Sleep(20 * time.Millisecond)
		c.Cancel()
	}()
	got, err = blocking.Ask(context.Background(), "waiting", interact.Options{})
	require.NoError(t, err)
	assert.Empty(t, got)

	// Already cancelled: no question is asked.
	got, err = plain.Ask(context.Background(), "again?", interact.Options{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRunStateString(t *testing.T) {
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "paused", Paused.String())
	assert.Equal(t, "cancelled", Cancelled.String())
	assert.Equal(t, "unknown", RunState(9).String())
}
