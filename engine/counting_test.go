package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"guildbot/core"
)

func baseCountingConfig() CountingConfig {
	return CountingConfig{
		Enabled:          true,
		Channel:          "counting",
		Target:           3,
		SuccessXPPerUser: 10,
		XPLossPercent:    50,
		LevelLossPercent: 20,
		LevelPower:       0.25,
	}
}

func countMsg(author core.UserID, content string) core.Message {
	return core.Message{Author: author, Channel: "counting", Content: content, Timestamp: time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)}
}

func TestCountingRoundCompletes(t *testing.T) {
	store := newFakeStore()
	ann := &fakeAnnouncer{}
	bus := NewEventBus(DispatchSync)
	c := NewCounting(baseCountingConfig(), store, CountingWithAnnouncer(ann), CountingWithEventBus(bus))
	ctx := context.Background()

	successes := 0
	bus.Subscribe(core.EventCountingSuccess, func(_ context.Context, e core.Event) { successes++ })

	// Alternating turns: a, b, a. Only consecutive turns are forbidden.
	for _, step := range []struct {
		user core.UserID
		text string
	}{{"a", "1"}, {"b", "2"}, {"a", "3"}} {
		if err := c.HandleMessage(ctx, countMsg(step.user, step.text)); err != nil {
			t.Fatal(err)
		}
	}

	recA, _ := store.GetOrCreate(ctx, core.UserID("a"))
	recB, _ := store.GetOrCreate(ctx, core.UserID("b"))
	if recA.XP != 10 || recB.XP != 10 {
		t.Fatalf("success xp: a=%d b=%d", recA.XP, recB.XP)
	}
	if recA.CountingSuccessRounds != 1 || recB.CountingSuccessRounds != 1 {
		t.Fatalf("round counters: a=%d b=%d", recA.CountingSuccessRounds, recB.CountingSuccessRounds)
	}
	if successes != 1 {
		t.Fatalf("success events = %d", successes)
	}
	if c.CurrentValue() != 0 || len(c.Participants()) != 0 {
		t.Fatal("round must reset after completion")
	}
	if ann.count() != 1 {
		t.Fatalf("announcements = %d", ann.count())
	}
}

// xpRejectingStore refuses XP writes for one user while everything else
// behaves normally.
type xpRejectingStore struct {
	*fakeStore
	reject core.UserID
}

func (s *xpRejectingStore) AddXP(ctx context.Context, user core.UserID, delta int64) (int64, error) {
	if user == s.reject {
		return 0, fmt.Errorf("storage write rejected")
	}
	return s.fakeStore.AddXP(ctx, user, delta)
}

func TestCountingRoundResetsWhenAwardFails(t *testing.T) {
	store := &xpRejectingStore{fakeStore: newFakeStore(), reject: "a"}
	ann := &fakeAnnouncer{}
	bus := NewEventBus(DispatchSync)
	c := NewCounting(baseCountingConfig(), store, CountingWithAnnouncer(ann), CountingWithEventBus(bus))
	ctx := context.Background()

	successes := 0
	bus.Subscribe(core.EventCountingSuccess, func(_ context.Context, _ core.Event) { successes++ })

	for _, step := range []struct {
		user core.UserID
		text string
	}{{"a", "1"}, {"b", "2"}, {"a", "3"}} {
		if err := c.HandleMessage(ctx, countMsg(step.user, step.text)); err != nil {
			t.Fatal(err)
		}
	}

	// b's award lands; a's failed write skips both XP and the round counter.
	recA, _ := store.GetOrCreate(ctx, core.UserID("a"))
	recB, _ := store.GetOrCreate(ctx, core.UserID("b"))
	if recB.XP != 10 || recB.CountingSuccessRounds != 1 {
		t.Fatalf("b: xp=%d rounds=%d", recB.XP, recB.CountingSuccessRounds)
	}
	if recA.XP != 0 || recA.CountingSuccessRounds != 0 {
		t.Fatalf("a: xp=%d rounds=%d after a rejected write", recA.XP, recA.CountingSuccessRounds)
	}

	// The round still completes: reset, announced, success event published.
	if c.CurrentValue() != 0 || len(c.Participants()) != 0 {
		t.Fatal("round must reset even when an individual award fails")
	}
	if successes != 1 {
		t.Fatalf("success events = %d", successes)
	}
	if ann.count() != 1 {
		t.Fatalf("announcements = %d", ann.count())
	}
}

func TestCountingWrongNumberBreaksWithPenalty(t *testing.T) {
	store := newFakeStore()
	roles := &fakeRoles{}
	cfg := baseCountingConfig()
	lvl := NewLeveling(LevelingConfig{LevelPower: 0.25, LevelRoles: []core.LevelRole{{Threshold: 1, Role: "bronze"}}}, store, WithRoleManager(roles))
	c := NewCounting(cfg, store, CountingWithRoleSyncer(lvl))
	ctx := context.Background()

	store.SetXP(ctx, core.UserID("b"), 1000)
	store.SetLevel(ctx, core.UserID("b"), 10)

	if err := c.HandleMessage(ctx, countMsg("a", "1")); err != nil {
		t.Fatal(err)
	}
	if err := c.HandleMessage(ctx, countMsg("b", "7")); err != nil {
		t.Fatal(err)
	}

	rec, _ := store.GetOrCreate(ctx, core.UserID("b"))
	// 50% XP loss leaves 500; 20% level loss targets 8, but 500 XP at power
	// 0.25 only justifies level 4, and the lower bound wins.
	if rec.XP != 500 {
		t.Fatalf("penalized xp = %d, want 500", rec.XP)
	}
	if rec.Level != 4 {
		t.Fatalf("penalized level = %d, want 4", rec.Level)
	}
	if !roles.granted("b", "bronze") {
		t.Fatal("tier roles must be resynced after the penalty")
	}
	if c.CurrentValue() != 0 {
		t.Fatal("round must reset after a break")
	}
}

func TestCountingRepeatAuthorBreaks(t *testing.T) {
	store := newFakeStore()
	bus := NewEventBus(DispatchSync)
	c := NewCounting(baseCountingConfig(), store, CountingWithEventBus(bus))
	ctx := context.Background()

	breaks := 0
	bus.Subscribe(core.EventCountingBreak, func(_ context.Context, e core.Event) { breaks++ })

	if err := c.HandleMessage(ctx, countMsg("a", "1")); err != nil {
		t.Fatal(err)
	}
	// Same member twice in a row breaks even with the right number.
	if err := c.HandleMessage(ctx, countMsg("a", "2")); err != nil {
		t.Fatal(err)
	}
	if breaks != 1 {
		t.Fatalf("break events = %d", breaks)
	}
	if c.CurrentValue() != 0 {
		t.Fatal("round must reset")
	}
}

func TestCountingNonIntegerBreaks(t *testing.T) {
	store := newFakeStore()
	c := NewCounting(baseCountingConfig(), store)
	ctx := context.Background()

	if err := c.HandleMessage(ctx, countMsg("a", "1")); err != nil {
		t.Fatal(err)
	}
	if err := c.HandleMessage(ctx, countMsg("b", "two")); err != nil {
		t.Fatal(err)
	}
	if c.CurrentValue() != 0 {
		t.Fatal("non-integer must break the round")
	}
}

func TestCountingIgnoresOtherChannels(t *testing.T) {
	store := newFakeStore()
	c := NewCounting(baseCountingConfig(), store)
	msg := core.Message{Author: "a", Channel: "general", Content: "nonsense", Timestamp: time.Now()}
	if err := c.HandleMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	rec, _ := store.GetOrCreate(context.Background(), core.UserID("a"))
	if rec.XP != 0 {
		t.Fatal("messages outside the counting channel must be ignored")
	}
}

func TestPowerUpDoublesSuccessXP(t *testing.T) {
	cfg := baseCountingConfig()
	cfg.PowerUp = PowerUpRule{Enabled: true, DayOfWeek: time.Saturday, MinStartHour: 17, MaxStartHour: 22, DurationMinutes: 60}
	store := newFakeStore()
	ann := &fakeAnnouncer{}
	c := NewCounting(cfg, store, CountingWithAnnouncer(ann))
	ctx := context.Background()

	// 2025-03-08 is a Saturday; 18:30 UTC falls inside the window.
	now := time.Date(2025, 3, 8, 18, 30, 0, 0, time.UTC)
	c.TickPowerUp(ctx, now)
	if !c.PowerUpActive(now) {
		t.Fatal("power-up should be active inside the window")
	}
	if ann.count() != 1 {
		t.Fatalf("activation announcements = %d", ann.count())
	}
	// A second tick while the window is still active must not re-announce.
	c.TickPowerUp(ctx, now.Add(15*time.Minute))
	if ann.count() != 1 {
		t.Fatalf("announcements = %d, want 1", ann.count())
	}

	msgs := []struct {
		user core.UserID
		text string
	}{{"a", "1"}, {"b", "2"}, {"a", "3"}}
	for _, m := range msgs {
		msg := core.Message{Author: m.user, Channel: "counting", Content: m.text, Timestamp: now}
		if err := c.HandleMessage(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}
	rec, _ := store.GetOrCreate(ctx, core.UserID("a"))
	if rec.XP != 20 {
		t.Fatalf("power-up must double success xp, got %d", rec.XP)
	}
}

func TestPowerUpInactiveOutsideWindow(t *testing.T) {
	cfg := baseCountingConfig()
	cfg.PowerUp = PowerUpRule{Enabled: true, DayOfWeek: time.Saturday, MinStartHour: 17, MaxStartHour: 22, DurationMinutes: 60}
	store := newFakeStore()
	c := NewCounting(cfg, store)
	ctx := context.Background()

	// Wednesday: wrong day of week.
	now := time.Date(2025, 3, 5, 18, 30, 0, 0, time.UTC)
	c.TickPowerUp(ctx, now)
	if c.PowerUpActive(now) {
		t.Fatal("power-up must stay off outside the configured day")
	}

	// Right day, too early.
	early := time.Date(2025, 3, 8, 10, 0, 0, 0, time.UTC)
	c.TickPowerUp(ctx, early)
	if c.PowerUpActive(early) {
		t.Fatal("power-up must stay off before the start window")
	}
}
