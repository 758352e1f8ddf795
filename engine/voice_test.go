package engine

import (
	"context"
	"testing"
	"time"

	"guildbot/core"
)

func TestVoiceTickAccruesWithCarry(t *testing.T) {
	store := newFakeStore()
	v := NewVoiceTracker(VoiceConfig{Enabled: true, XPPerMinute: 2}, store)
	ctx := context.Background()

	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := v.HandleVoiceUpdate(ctx, core.UserID("u"), true, t0); err != nil {
		t.Fatal(err)
	}

	// 90 seconds: one whole minute pays out, 30 seconds carry over.
	v.Tick(ctx, t0.Add(90*time.Second))
	rec, _ := store.GetOrCreate(ctx, core.UserID("u"))
	if rec.TotalVoiceSeconds != 90 {
		t.Fatalf("voice seconds = %d", rec.TotalVoiceSeconds)
	}
	if rec.XP != 2 {
		t.Fatalf("xp = %d, want 2", rec.XP)
	}

	// 40 more seconds: carry 30 + 40 = 70 pays another minute, keeps 10.
	v.Tick(ctx, t0.Add(130*time.Second))
	rec, _ = store.GetOrCreate(ctx, core.UserID("u"))
	if rec.TotalVoiceSeconds != 130 {
		t.Fatalf("voice seconds = %d", rec.TotalVoiceSeconds)
	}
	if rec.XP != 4 {
		t.Fatalf("xp = %d, want 4: carry must not be lost", rec.XP)
	}
}

func TestVoiceLeaveFinalizesSession(t *testing.T) {
	store := newFakeStore()
	v := NewVoiceTracker(VoiceConfig{Enabled: true, XPPerMinute: 2}, store)
	ctx := context.Background()

	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := v.HandleVoiceUpdate(ctx, core.UserID("u"), true, t0); err != nil {
		t.Fatal(err)
	}
	if err := v.HandleVoiceUpdate(ctx, core.UserID("u"), false, t0.Add(61*time.Second)); err != nil {
		t.Fatal(err)
	}
	rec, _ := store.GetOrCreate(ctx, core.UserID("u"))
	if rec.TotalVoiceSeconds != 61 || rec.XP != 2 {
		t.Fatalf("leave settle: %#v", rec)
	}
	if len(v.TrackedUsers()) != 0 {
		t.Fatal("session must be closed after leave")
	}

	// A later tick must not double-count anything.
	v.Tick(ctx, t0.Add(5*time.Minute))
	rec, _ = store.GetOrCreate(ctx, core.UserID("u"))
	if rec.TotalVoiceSeconds != 61 {
		t.Fatalf("voice seconds changed after leave: %d", rec.TotalVoiceSeconds)
	}
}

func TestVoiceAloneAccruesTimeNotXP(t *testing.T) {
	store := newFakeStore()
	presence := &fakePresence{alone: map[core.UserID]bool{"u": true}}
	v := NewVoiceTracker(VoiceConfig{Enabled: true, XPPerMinute: 2, RequireNotAlone: true}, store, VoiceWithPresence(presence))
	ctx := context.Background()

	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := v.HandleVoiceUpdate(ctx, core.UserID("u"), true, t0); err != nil {
		t.Fatal(err)
	}
	v.Tick(ctx, t0.Add(2*time.Minute))
	rec, _ := store.GetOrCreate(ctx, core.UserID("u"))
	if rec.TotalVoiceSeconds != 120 {
		t.Fatalf("voice time must accrue while alone: %d", rec.TotalVoiceSeconds)
	}
	if rec.XP != 0 {
		t.Fatalf("alone members must not earn voice xp: %d", rec.XP)
	}
}

func TestVoiceIneligibleChannelDropped(t *testing.T) {
	store := newFakeStore()
	presence := &fakePresence{eligible: map[core.UserID]bool{"u": false}}
	v := NewVoiceTracker(VoiceConfig{Enabled: true, XPPerMinute: 2}, store, VoiceWithPresence(presence))
	ctx := context.Background()

	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := v.HandleVoiceUpdate(ctx, core.UserID("u"), true, t0); err != nil {
		t.Fatal(err)
	}
	v.Tick(ctx, t0.Add(2*time.Minute))
	rec, _ := store.GetOrCreate(ctx, core.UserID("u"))
	if rec.TotalVoiceSeconds != 0 || rec.XP != 0 {
		t.Fatalf("ineligible sessions accrue nothing: %#v", rec)
	}
	if len(v.TrackedUsers()) != 0 {
		t.Fatal("ineligible session must be dropped")
	}
}
