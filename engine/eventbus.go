package engine

import (
	"context"
	"sync"

	"guildbot/core"
)

type DispatchMode int

const (
	DispatchSync DispatchMode = iota
	DispatchAsync
)

type busHandler func(context.Context, core.Event)

// EventBus is the in-process pub/sub spine: subsystems publish domain
// events, and announcers, the realtime bridge, and analytics hooks subscribe.
// Sync mode delivers inline before Publish returns; async mode hands events
// to a worker pool and drops on a full queue rather than block a publisher.
type EventBus struct {
	mode    DispatchMode
	queue   chan core.Event
	workers int

	mu     sync.RWMutex
	subs   map[core.EventType]map[int64]busHandler
	taps   map[int64]busHandler
	nextID int64

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// BusOption tunes the async dispatch machinery.
type BusOption func(*EventBus)

// BusWithQueueDepth sets the async queue capacity (default 2048).
func BusWithQueueDepth(n int) BusOption {
	return func(e *EventBus) {
		if n > 0 {
			e.queue = make(chan core.Event, n)
		}
	}
}

// BusWithWorkers sets the async worker count (default 4).
func BusWithWorkers(n int) BusOption {
	return func(e *EventBus) {
		if n > 0 {
			e.workers = n
		}
	}
}

func NewEventBus(mode DispatchMode, opts ...BusOption) *EventBus {
	eb := &EventBus{
		mode:    mode,
		queue:   make(chan core.Event, 2048),
		workers: 4,
		subs:    make(map[core.EventType]map[int64]busHandler),
		taps:    make(map[int64]busHandler),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(eb)
	}
	if mode == DispatchAsync {
		eb.startWorkers()
	}
	return eb
}

func (e *EventBus) startWorkers() {
	e.wg.Add(e.workers)
	for i := 0; i < e.workers; i++ {
		go func() {
			defer e.wg.Done()
			for {
				select {
				case ev := <-e.queue:
					e.dispatch(context.Background(), ev)
				case <-e.done:
					return
				}
			}
		}()
	}
}

// Close stops the async workers and waits for them to exit. Events still
// sitting in the queue are dropped. Safe to call more than once.
func (e *EventBus) Close() {
	e.once.Do(func() {
		close(e.done)
		e.wg.Wait()
	})
}

// Subscribe registers a handler for one event type. Returns unsubscribe func.
func (e *EventBus) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	if e.subs[typ] == nil {
		e.subs[typ] = make(map[int64]busHandler)
	}
	e.subs[typ][id] = handler
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if m := e.subs[typ]; m != nil {
			delete(m, id)
		}
	}
}

// SubscribeAll registers a handler for every event type. Used by the
// realtime bridge and analytics hooks, which tap the whole stream rather
// than pick types. Returns unsubscribe func.
func (e *EventBus) SubscribeAll(handler func(context.Context, core.Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.taps[id] = handler
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.taps, id)
	}
}

// Publish sends an event to subscribers.
func (e *EventBus) Publish(ctx context.Context, ev core.Event) {
	if e.mode == DispatchAsync {
		select {
		case e.queue <- ev:
		case <-e.done:
		default:
			// Drop if queue full to preserve latency; alternative is blocking
		}
		return
	}
	e.dispatch(ctx, ev)
}

func (e *EventBus) dispatch(ctx context.Context, ev core.Event) {
	e.mu.RLock()
	// copy to avoid holding lock during callbacks
	handlers := make([]busHandler, 0, len(e.subs[ev.Type])+len(e.taps))
	for _, h := range e.subs[ev.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range e.taps {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()
	for _, h := range handlers {
		h(ctx, ev)
	}
}
