package events

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lowvibe/internal/logging"
)

// Controller receives commands from bridge clients.
type Controller interface {
	Answer(text string)
	Pause()
	Resume(guidance string)
	Cancel()
}

// Command is a client-to-server websocket frame.
type Command struct {
	Type string `json:"type"` // answer, pause, resume, cancel
	Text string `json:"text,omitempty"`
}

const clientBuffer = 64

// Bridge streams events to websocket clients and forwards their commands
// to a Controller.
type Bridge struct {
	upgrader websocket.Upgrader
	ctl      Controller

	mu      sync.Mutex
	clients map[*websocket.Conn]chan Event
}

// NewBridge returns a bridge. ctl may be nil for a read-only stream.
func NewBridge(ctl Controller) *Bridge {
	return &Bridge{
		upgrader: websocket.Upgrader{
			// Only loopback listeners are expected; see Serve.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctl:     ctl,
		clients: make(map[*websocket.Conn]chan Event),
	}
}

// Emit implements Sink. Slow clients lose events rather than stall the run.
func (b *Bridge) Emit(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.clients {
		select {
		case ch <- e:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (b *Bridge) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// ServeHTTP upgrades the request and serves one client.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("event bridge: upgrade failed", "error", err)
		return
	}
	ch := make(chan Event, clientBuffer)
	b.mu.Lock()
	b.clients[conn] = ch
	b.mu.Unlock()

	done := make(chan struct{})
	go b.writeLoop(conn, ch, done)
	b.readLoop(conn)

	b.mu.Lock()
	delete(b.clients, conn)
	b.mu.Unlock()
	close(done)
	conn.Close()
}

func (b *Bridge) writeLoop(conn *websocket.Conn, ch <-chan Event, done <-chan struct{}) {
	for {
		select {
		case e := <-ch:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(e); err != nil {
				logging.Debug("event bridge: write failed", "error", err)
				return
			}
		case <-done:
			return
		}
	}
}

func (b *Bridge) readLoop(conn *websocket.Conn) {
	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		if b.ctl == nil {
			continue
		}
		switch cmd.Type {
		case "answer":
			b.ctl.Answer(cmd.Text)
		case "pause":
			b.ctl.Pause()
		case "resume":
			b.ctl.Resume(cmd.Text)
		case "cancel":
			b.ctl.Cancel()
		default:
			logging.Debug("event bridge: unknown command", "type", cmd.Type)
		}
	}
}

// Serve listens on addr until ctx is done.
func (b *Bridge) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return b.serve(ctx, ln)
}

func (b *Bridge) serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/events", b)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logging.Info("event bridge listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		b.closeClients()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (b *Bridge) closeClients() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		conn.Close()
	}
}
