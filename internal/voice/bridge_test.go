package voice

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialBridge(t *testing.T, b *Bridge) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := b.WaitForConnected(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("bridge never saw the connection: %v", err)
	}
	return conn
}

func TestBridgeDeliversQueuedCommandsOnConnect(t *testing.T) {
	ch := NewChannel()
	ch.Send(Command{Type: CmdPauseAssistant})
	b := NewBridge(ch, nil)

	conn := dialBridge(t, b)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var cmd Command
	if err := conn.ReadJSON(&cmd); err != nil {
		t.Fatalf("read: %v", err)
	}
	if cmd.Type != CmdPauseAssistant {
		t.Errorf("expected pauseAssistant, got %s", cmd.Type)
	}

	ch.Send(SpeakCommand("done"))
	if err := conn.ReadJSON(&cmd); err != nil {
		t.Fatalf("read: %v", err)
	}
	if cmd.Type != CmdSendAssistantInput || cmd.Message != "done" {
		t.Errorf("unexpected command %+v", cmd)
	}
}

func TestBridgeRecordsInboundEvents(t *testing.T) {
	ch := NewChannel()
	b := NewBridge(ch, nil)
	conn := dialBridge(t, b)

	if err := conn.WriteJSON(userEvent("open the browser")); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for ch.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	events := ch.EventsSince(0)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if text, _ := events[0].UserText(); text != "open the browser" {
		t.Errorf("unexpected text %q", text)
	}
}

func TestBridgeReportsClosed(t *testing.T) {
	ch := NewChannel()
	b := NewBridge(ch, nil)
	conn := dialBridge(t, b)
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for b.Connected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if b.Connected() {
		t.Fatal("expected bridge to notice the disconnect")
	}
	events := ch.EventsSince(0)
	if len(events) == 0 || events[len(events)-1].Type != EventClosed {
		t.Errorf("expected closed event, got %+v", events)
	}
}
