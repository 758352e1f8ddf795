package memory

import (
	"context"
	"testing"

	"guildbot/core"
)

func TestMemoryStoreXP(t *testing.T) {
	s := New()
	ctx := context.Background()

	total, err := s.AddXP(ctx, core.UserID("u"), 50)
	if err != nil || total != 50 {
		t.Fatalf("got %v %v", total, err)
	}
	total, err = s.AddXP(ctx, core.UserID("u"), -200)
	if err != nil || total != 0 {
		t.Fatalf("negative totals must clamp to zero, got %v %v", total, err)
	}
	total, err = s.SetXP(ctx, core.UserID("u"), -5)
	if err != nil || total != 0 {
		t.Fatalf("SetXP must clamp to zero, got %v %v", total, err)
	}

	rec, err := s.GetOrCreate(ctx, core.UserID("fresh"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.XP != 0 || rec.Level != 0 || rec.TotalMessages != 0 {
		t.Fatalf("fresh record must be zeroed: %#v", rec)
	}
}

func TestMemoryStoreCounters(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := s.IncrementMessages(ctx, core.UserID("u"))
		if err != nil || n != i {
			t.Fatalf("message %d: got %v %v", i, n, err)
		}
	}
	if n, err := s.IncrementCountingRounds(ctx, core.UserID("u")); err != nil || n != 1 {
		t.Fatalf("got %v %v", n, err)
	}
	if err := s.AddVoiceTime(ctx, core.UserID("u"), 90); err != nil {
		t.Fatal(err)
	}
	rec, _ := s.GetOrCreate(ctx, core.UserID("u"))
	if rec.TotalMessages != 3 || rec.CountingSuccessRounds != 1 || rec.TotalVoiceSeconds != 90 {
		t.Fatalf("unexpected record: %#v", rec)
	}
}

func TestMemoryStoreStreak(t *testing.T) {
	s := New()
	ctx := context.Background()

	streak, err := s.UpdateStreak(ctx, core.UserID("u"), "2025-03-01", 0, 0)
	if err != nil || streak != 1 {
		t.Fatalf("first day: got %v %v", streak, err)
	}
	streak, _ = s.UpdateStreak(ctx, core.UserID("u"), "2025-03-01", 0, 0)
	if streak != 1 {
		t.Fatalf("same day must not grow the streak, got %v", streak)
	}
	streak, _ = s.UpdateStreak(ctx, core.UserID("u"), "2025-03-02", 0, 0)
	if streak != 2 {
		t.Fatalf("consecutive day: got %v", streak)
	}
	streak, _ = s.UpdateStreak(ctx, core.UserID("u"), "2025-03-05", 0, 0)
	if streak != 1 {
		t.Fatalf("gap must reset to 1, got %v", streak)
	}
}

func TestMemoryStoreTopUsersBy(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.AddXP(ctx, core.UserID("a"), 10)
	s.AddXP(ctx, core.UserID("b"), 30)
	s.AddXP(ctx, core.UserID("c"), 20)

	top, err := s.TopUsersBy(ctx, core.SortByXP, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 || top[0].UserID != core.UserID("b") || top[1].UserID != core.UserID("c") {
		t.Fatalf("unexpected leaderboard: %#v", top)
	}

	if _, err := s.TopUsersBy(ctx, core.SortColumn("xp; DROP TABLE users"), 5); err == nil {
		t.Fatal("unlisted column must be rejected")
	}
}

func TestMemoryStoreBirthdays(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.SetBirthday(ctx, core.UserID("u"), 3, 14, 1990); err != nil {
		t.Fatal(err)
	}
	bd, ok, err := s.GetBirthday(ctx, core.UserID("u"))
	if err != nil || !ok || bd.Month != 3 || bd.Day != 14 || bd.Year != 1990 {
		t.Fatalf("got %#v %v %v", bd, ok, err)
	}
	if err := s.SetBirthdayGrantedYear(ctx, core.UserID("u"), 2025); err != nil {
		t.Fatal(err)
	}
	bd, _, _ = s.GetBirthday(ctx, core.UserID("u"))
	if bd.LastGrantedYear != 2025 {
		t.Fatalf("grant year not recorded: %#v", bd)
	}
	all, _ := s.ListBirthdays(ctx)
	if len(all) != 1 {
		t.Fatalf("expected one birthday, got %d", len(all))
	}
	if err := s.ClearBirthday(ctx, core.UserID("u")); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.GetBirthday(ctx, core.UserID("u")); ok {
		t.Fatal("birthday should be gone")
	}
}

func TestMemoryStoreStickyAndFeeds(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, ok, _ := s.GetStickyMessage(ctx, core.ChannelID("rules")); ok {
		t.Fatal("no sticky recorded yet")
	}
	if err := s.SetStickyMessage(ctx, core.ChannelID("rules"), core.MessageID("m1")); err != nil {
		t.Fatal(err)
	}
	id, ok, _ := s.GetStickyMessage(ctx, core.ChannelID("rules"))
	if !ok || id != core.MessageID("m1") {
		t.Fatalf("got %v %v", id, ok)
	}
	if err := s.ClearStickyMessage(ctx, core.ChannelID("rules")); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := s.GetLastSeen(ctx, "videos"); ok {
		t.Fatal("feed should be unknown")
	}
	if err := s.SetLastSeen(ctx, "videos", "v42"); err != nil {
		t.Fatal(err)
	}
	seen, ok, _ := s.GetLastSeen(ctx, "videos")
	if !ok || seen != "v42" {
		t.Fatalf("got %v %v", seen, ok)
	}
}
