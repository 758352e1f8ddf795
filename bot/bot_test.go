package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	mem "guildbot/adapters/memory"
	"guildbot/core"
	"guildbot/engine"
	"guildbot/realtime"
)

type recordingAnnouncer struct {
	mu   sync.Mutex
	msgs []engine.Announcement
}

func (a *recordingAnnouncer) Announce(_ context.Context, ann engine.Announcement) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, ann)
	return nil
}

func (a *recordingAnnouncer) all() []engine.Announcement {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]engine.Announcement(nil), a.msgs...)
}

func testConfig() Config {
	return Config{
		Leveling: engine.LevelingConfig{
			Message:         core.MessagePolicy{Enabled: true, BaseXP: 5},
			CooldownSeconds: 60,
			LevelPower:      0.25,
		},
		Counting: engine.CountingConfig{
			Enabled:          true,
			Channel:          "counting",
			Target:           2,
			SuccessXPPerUser: 10,
			LevelPower:       0.25,
		},
		Voice: engine.VoiceConfig{Enabled: true, XPPerMinute: 2, TickSeconds: 60},
	}
}

func TestHandleMessageAwardsXP(t *testing.T) {
	store := mem.New()
	b := New(testConfig(), WithStore(store), WithDispatchMode(engine.DispatchSync))

	msg := core.Message{Author: "alice", Channel: "general", Content: "hello", Timestamp: time.Unix(1_000_000, 0)}
	if err := b.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle message: %v", err)
	}

	rec, err := store.GetOrCreate(context.Background(), "alice")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.XP != 5 || rec.TotalMessages != 1 {
		t.Fatalf("unexpected record after message: %+v", rec)
	}
}

func TestHandleMessageRoutesCountingChannel(t *testing.T) {
	store := mem.New()
	b := New(testConfig(), WithStore(store), WithDispatchMode(engine.DispatchSync))

	ts := time.Unix(1_000_000, 0)
	if err := b.HandleMessage(context.Background(), core.Message{Author: "alice", Channel: "counting", Content: "1", Timestamp: ts}); err != nil {
		t.Fatalf("count 1: %v", err)
	}
	if err := b.HandleMessage(context.Background(), core.Message{Author: "bob", Channel: "counting", Content: "2", Timestamp: ts}); err != nil {
		t.Fatalf("count 2: %v", err)
	}

	// Target 2 reached: both participants earn success XP, and no message XP
	// was granted in the counting channel.
	for _, user := range []core.UserID{"alice", "bob"} {
		rec, err := store.GetOrCreate(context.Background(), user)
		if err != nil {
			t.Fatalf("get %s: %v", user, err)
		}
		if rec.XP != 10 || rec.TotalMessages != 0 || rec.CountingSuccessRounds != 1 {
			t.Fatalf("unexpected record for %s: %+v", user, rec)
		}
	}
}

func TestRealtimeBridge(t *testing.T) {
	hub := realtime.NewHub()
	b := New(testConfig(), WithDispatchMode(engine.DispatchSync), WithRealtime(hub))

	_, ch := hub.Subscribe(4)
	msg := core.Message{Author: "alice", Channel: "general", Content: "hi", Timestamp: time.Unix(1_000_000, 0)}
	if err := b.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle message: %v", err)
	}

	ev := <-ch
	if ev.Type != core.EventXPAwarded || ev.UserID != "alice" {
		t.Fatalf("unexpected bridged event: %+v", ev)
	}
}

func TestHandleMemberJoinWelcomes(t *testing.T) {
	ann := &recordingAnnouncer{}
	cfg := testConfig()
	cfg.Welcome = WelcomeRule{Enabled: true, Channel: "lobby", Message: "Welcome {user}!"}
	b := New(cfg, WithDispatchMode(engine.DispatchSync), WithAnnouncer(ann))

	joined := make(chan core.Event, 1)
	b.Bus.Subscribe(core.EventMemberJoined, func(_ context.Context, e core.Event) { joined <- e })

	b.HandleMemberJoin(context.Background(), "carol")

	msgs := ann.all()
	if len(msgs) != 1 || msgs[0].Channel != "lobby" || msgs[0].Mention != "carol" {
		t.Fatalf("unexpected welcome announcements: %+v", msgs)
	}
	select {
	case ev := <-joined:
		if ev.UserID != "carol" {
			t.Fatalf("unexpected join event: %+v", ev)
		}
	default:
		t.Fatal("member join event not published")
	}
}

func TestDefaultStorageFallback(t *testing.T) {
	b := New(testConfig(), WithDispatchMode(engine.DispatchSync))
	msg := core.Message{Author: "dave", Channel: "general", Content: "yo", Timestamp: time.Unix(1_000_000, 0)}
	if err := b.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle message with default storage: %v", err)
	}
	rec, err := b.Store.GetOrCreate(context.Background(), "dave")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.XP != 5 {
		t.Fatalf("expected 5 XP, got %d", rec.XP)
	}
}
