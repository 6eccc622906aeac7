package events

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStampAndMulti(t *testing.T) {
	var a, b Recorder
	sink := Stamp(Multi(&a, nil, &b), "run-1")
	sink.Emit(Event{Type: StageEnter, Stage: "ScanWorkspace"})

	require.Len(t, a.Events(), 1)
	assert.Equal(t, "run-1", a.Events()[0].RunID)
	assert.False(t, a.Events()[0].Time.IsZero())
	assert.Equal(t, []Type{StageEnter}, b.Types())
}

func TestMultiOfNothingIsDiscard(t *testing.T) {
	assert.Equal(t, Discard, Multi())
	assert.Equal(t, Discard, OrDiscard(nil))
}

func TestChannelDropsWhenFull(t *testing.T) {
	c := NewChannel(2)
	for i := 0; i < 5; i++ {
		c.Emit(Event{Type: AgentMessage, Step: i})
	}
	assert.EqualValues(t, 3, c.Dropped())

	c.Close()
	c.Close()
	c.Emit(Event{Type: AgentMessage})

	var got []int
	for e := range c.Events() {
		got = append(got, e.Step)
	}
	assert.Equal(t, []int{0, 1}, got)
}

type fakeController struct {
	mu      sync.Mutex
	answers []string
	paused  bool
}

func (f *fakeController) Answer(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
}
func (f *fakeController) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
}
func (f *fakeController) Resume(string) {}
func (f *fakeController) Cancel()       {}

func TestBridgeStreamsAndForwards(t *testing.T) {
	ctl := &fakeController{}
	bridge := NewBridge(ctl)
	srv := httptest.NewServer(bridge)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return bridge.Clients() == 1 }, time.Second, 10*time.Millisecond)

	bridge.Emit(Event{Type: PlanUpdated, Data: map[string]any{"pending": 2}})
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, PlanUpdated, got.Type)

	require.NoError(t, conn.WriteJSON(Command{Type: "answer", Text: "yes"}))
	require.NoError(t, conn.WriteJSON(Command{Type: "pause"}))
	require.Eventually(t, func() bool {
		ctl.mu.Lock()
		defer ctl.mu.Unlock()
		return ctl.paused && len(ctl.answers) == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return bridge.Clients() == 0 }, time.Second, 10*time.Millisecond)
}

func TestBridgeServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewBridge(nil).serve(ctx, ln) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("bridge did not stop")
	}
}
