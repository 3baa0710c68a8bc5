package voice

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Path is where the bridge is mounted by the HTTP server.
const Path = "/ws/voice"

// Bridge carries Channel traffic over a WebSocket to the browser voice
// widget. Only one connection is active; a new one replaces the old.
// Commands sent while disconnected are delivered on the next connect.
type Bridge struct {
	channel *Channel
	logger  *slog.Logger

	mu      sync.RWMutex
	conn    *websocket.Conn
	done    chan struct{}
	writeMu sync.Mutex
}

// NewBridge creates a bridge for channel.
func NewBridge(channel *Channel, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{channel: channel, logger: logger}
}

// Connected reports whether a peer is attached.
func (b *Bridge) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conn != nil
}

// WaitForConnected polls until a peer attaches or timeout elapses.
func (b *Bridge) WaitForConnected(ctx context.Context, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if b.Connected() {
			return nil
		}
		select {
		case <-waitCtx.Done():
			return waitCtx.Err()
		case <-ticker.C:
		}
	}
}

func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("voice upgrade failed", "error", err)
		return
	}

	done := make(chan struct{})
	b.mu.Lock()
	if b.conn != nil {
		_ = b.conn.Close()
		close(b.done)
	}
	b.conn = conn
	b.done = done
	b.mu.Unlock()
	b.logger.Info("voice peer connected", "remote", r.RemoteAddr)

	go b.pump(conn, done)
	b.readLoop(conn)
}

func (b *Bridge) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			b.logger.Warn("voice frame dropped", "error", err)
			continue
		}
		b.channel.Deliver(ev)
	}

	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
		close(b.done)
		b.done = nil
		b.channel.Deliver(Event{Type: EventClosed})
		b.logger.Info("voice peer disconnected")
	}
	b.mu.Unlock()
	_ = conn.Close()
}

// pump writes queued commands to conn until done is closed.
func (b *Bridge) pump(conn *websocket.Conn, done <-chan struct{}) {
	for {
		cmds := b.channel.TakeCommands()
		for i, cmd := range cmds {
			if err := b.writeJSON(conn, cmd); err != nil {
				b.channel.Requeue(cmds[i:])
				return
			}
		}
		select {
		case <-done:
			return
		case <-b.channel.Ready():
		}
	}
}

// Close drops the active connection, if any.
func (b *Bridge) Close() error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (b *Bridge) writeJSON(conn *websocket.Conn, v any) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(v)
}
