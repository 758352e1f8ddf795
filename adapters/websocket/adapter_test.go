package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"guildbot/core"
	"guildbot/realtime"
)

func TestHandlerStreamsEvents(t *testing.T) {
	hub := realtime.NewHub()
	server := httptest.NewServer(Handler(hub))
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):] // convert http->ws
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	// ensure subscriber goroutine is ready
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(context.Background(), core.NewLevelUp("alice", 3, 120))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}

	var received core.Event
	if err := json.Unmarshal(msg, &received); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if received.UserID != "alice" || received.Level != 3 {
		t.Fatalf("unexpected event: %#v", received)
	}
}
