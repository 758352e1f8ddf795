package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"guildbot/core"
)

// Hub fans engine events out to live subscribers (websocket clients, the
// dashboard). Slow subscribers drop events rather than stall the engine.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]chan core.Event
	next int
}

func NewHub() *Hub { return &Hub{subs: map[int]chan core.Event{}} }

func (h *Hub) Subscribe(buffer int) (int, <-chan core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	ch := make(chan core.Event, buffer)
	h.subs[id] = ch
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// SubscriberCount reports the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Broadcast(_ context.Context, ev core.Event) {
	h.mu.RLock()
	// copy to avoid holding lock during send
	receivers := make([]chan core.Event, 0, len(h.subs))
	for _, ch := range h.subs {
		receivers = append(receivers, ch)
	}
	h.mu.RUnlock()
	for _, ch := range receivers {
		select {
		case ch <- ev:
		default: /* drop if full */
		}
	}
}

// MarshalJSON converts events to JSON bytes for WebSocket/SSE transport.
func MarshalJSON(ev core.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}
