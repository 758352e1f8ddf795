package realtime

import (
	"context"
	"testing"

	"guildbot/core"
)

func TestHubBroadcast(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(4)
	defer h.Unsubscribe(id)

	h.Broadcast(context.Background(), core.NewXPAwarded("u", 5, 5))
	ev := <-ch
	if ev.Type != core.EventXPAwarded || ev.UserID != core.UserID("u") {
		t.Fatalf("unexpected event: %#v", ev)
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1)
	h.Unsubscribe(id)
	if _, open := <-ch; open {
		t.Fatal("channel should be closed")
	}
	if h.SubscriberCount() != 0 {
		t.Fatal("subscriber not removed")
	}
}

func TestHubDropsWhenFull(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1)
	defer h.Unsubscribe(id)

	h.Broadcast(context.Background(), core.NewXPAwarded("u", 1, 1))
	h.Broadcast(context.Background(), core.NewXPAwarded("u", 2, 3)) // dropped

	ev := <-ch
	if ev.Delta != 1 {
		t.Fatalf("unexpected event: %#v", ev)
	}
	select {
	case ev := <-ch:
		t.Fatalf("second event should have been dropped: %#v", ev)
	default:
	}
}
