package memory

import (
	"context"
	"sync"

	"guildbot/core"
	"guildbot/engine"
	"guildbot/leaderboard"
)

// Store is a concurrent in-memory implementation of every persistence
// interface the engine needs. Top-N queries are served from per-column
// skip-list boards updated on every mutation.
type Store struct {
	users  sync.Map // map[core.UserID]*userRecord
	ranked *leaderboard.Ranked

	mu        sync.Mutex
	birthdays map[core.UserID]core.Birthday
	stickies  map[core.ChannelID]core.MessageID
	feedSeen  map[string]string
}

type userRecord struct {
	mu  sync.Mutex
	rec core.UserRecord
}

func New() *Store {
	return &Store{
		ranked:    leaderboard.NewRanked(),
		birthdays: map[core.UserID]core.Birthday{},
		stickies:  map[core.ChannelID]core.MessageID{},
		feedSeen:  map[string]string{},
	}
}

func (s *Store) getOrCreate(user core.UserID) *userRecord {
	if v, ok := s.users.Load(user); ok {
		return v.(*userRecord)
	}
	rec := &userRecord{rec: core.UserRecord{UserID: user}}
	actual, _ := s.users.LoadOrStore(user, rec)
	return actual.(*userRecord)
}

// mutate runs fn under the record lock and re-ranks the user afterwards.
func (s *Store) mutate(user core.UserID, fn func(*core.UserRecord) error) (core.UserRecord, error) {
	r := s.getOrCreate(user)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := fn(&r.rec); err != nil {
		return core.UserRecord{}, err
	}
	s.ranked.Record(r.rec)
	return r.rec, nil
}

func (s *Store) GetOrCreate(_ context.Context, user core.UserID) (core.UserRecord, error) {
	r := s.getOrCreate(user)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec, nil
}

func (s *Store) AddXP(_ context.Context, user core.UserID, delta int64) (int64, error) {
	rec, err := s.mutate(user, func(r *core.UserRecord) error {
		next, err := core.AddSafe(r.XP, delta)
		if err != nil {
			return err
		}
		if next < 0 {
			next = 0
		}
		r.XP = next
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rec.XP, nil
}

func (s *Store) SetXP(_ context.Context, user core.UserID, amount int64) (int64, error) {
	if amount < 0 {
		amount = 0
	}
	rec, err := s.mutate(user, func(r *core.UserRecord) error {
		r.XP = amount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rec.XP, nil
}

func (s *Store) SetLevel(_ context.Context, user core.UserID, level int64) error {
	_, err := s.mutate(user, func(r *core.UserRecord) error {
		r.Level = level
		return nil
	})
	return err
}

func (s *Store) IncrementMessages(_ context.Context, user core.UserID) (int64, error) {
	rec, err := s.mutate(user, func(r *core.UserRecord) error {
		r.TotalMessages++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rec.TotalMessages, nil
}

func (s *Store) AddVoiceTime(_ context.Context, user core.UserID, seconds int64) error {
	_, err := s.mutate(user, func(r *core.UserRecord) error {
		next, err := core.AddSafe(r.TotalVoiceSeconds, seconds)
		if err != nil {
			return err
		}
		r.TotalVoiceSeconds = next
		return nil
	})
	return err
}

func (s *Store) SetLastMessageTS(_ context.Context, user core.UserID, ts int64) error {
	_, err := s.mutate(user, func(r *core.UserRecord) error {
		r.LastMessageTS = ts
		return nil
	})
	return err
}

func (s *Store) SetLastNickChange(_ context.Context, user core.UserID, ts int64) error {
	_, err := s.mutate(user, func(r *core.UserRecord) error {
		r.LastNickChangeTS = ts
		return nil
	})
	return err
}

func (s *Store) IncrementCountingRounds(_ context.Context, user core.UserID) (int64, error) {
	rec, err := s.mutate(user, func(r *core.UserRecord) error {
		r.CountingSuccessRounds++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rec.CountingSuccessRounds, nil
}

func (s *Store) UpdateStreak(_ context.Context, user core.UserID, today string, resetHours int, nowTS int64) (int64, error) {
	rec, err := s.mutate(user, func(r *core.UserRecord) error {
		r.CurrentStreakDays = core.NextStreak(r.CurrentStreakDays, r.LastActiveDay, today, resetHours, r.LastMessageTS, nowTS)
		r.LastActiveDay = today
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rec.CurrentStreakDays, nil
}

func (s *Store) TopUsersBy(_ context.Context, column core.SortColumn, limit int) ([]core.LeaderboardEntry, error) {
	if err := column.Validate(); err != nil {
		return nil, err
	}
	entries, err := s.ranked.TopN(column, limit)
	if err != nil {
		return nil, err
	}
	out := make([]core.LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, core.LeaderboardEntry{UserID: e.User, Value: e.Score})
	}
	return out, nil
}

func (s *Store) SetBirthday(_ context.Context, user core.UserID, month, day, year int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bd := s.birthdays[user]
	bd.UserID = user
	bd.Month = month
	bd.Day = day
	bd.Year = year
	s.birthdays[user] = bd
	return nil
}

func (s *Store) ClearBirthday(_ context.Context, user core.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.birthdays, user)
	return nil
}

func (s *Store) GetBirthday(_ context.Context, user core.UserID) (core.Birthday, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bd, ok := s.birthdays[user]
	return bd, ok, nil
}

func (s *Store) ListBirthdays(_ context.Context) ([]core.Birthday, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Birthday, 0, len(s.birthdays))
	for _, bd := range s.birthdays {
		out = append(out, bd)
	}
	return out, nil
}

func (s *Store) SetBirthdayGrantedYear(_ context.Context, user core.UserID, year int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bd, ok := s.birthdays[user]
	if !ok {
		bd = core.Birthday{UserID: user}
	}
	bd.LastGrantedYear = year
	s.birthdays[user] = bd
	return nil
}

func (s *Store) GetStickyMessage(_ context.Context, channel core.ChannelID) (core.MessageID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.stickies[channel]
	return id, ok, nil
}

func (s *Store) SetStickyMessage(_ context.Context, channel core.ChannelID, id core.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stickies[channel] = id
	return nil
}

func (s *Store) ClearStickyMessage(_ context.Context, channel core.ChannelID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stickies, channel)
	return nil
}

func (s *Store) GetLastSeen(_ context.Context, feedKey string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.feedSeen[feedKey]
	return id, ok, nil
}

func (s *Store) SetLastSeen(_ context.Context, feedKey, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedSeen[feedKey] = itemID
	return nil
}

var _ engine.Storage = (*Store)(nil)
var _ engine.BirthdayStore = (*Store)(nil)
var _ engine.StickyStore = (*Store)(nil)
var _ engine.FeedStateStore = (*Store)(nil)
