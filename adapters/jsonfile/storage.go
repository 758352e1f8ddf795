package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"guildbot/core"
	"guildbot/engine"
)

// Store persists the entire engagement state to a single JSON file.
// Suitable for demos and small deployments; every mutation rewrites the file
// atomically via a temp-file rename.
type Store struct {
	path string
	mu   sync.Mutex
	data fileData
}

type fileData struct {
	Users     map[core.UserID]core.UserRecord   `json:"users"`
	Birthdays map[core.UserID]core.Birthday     `json:"birthdays"`
	Stickies  map[core.ChannelID]core.MessageID `json:"stickies"`
	FeedSeen  map[string]string                 `json:"feed_seen"`
}

func newFileData() fileData {
	return fileData{
		Users:     map[core.UserID]core.UserRecord{},
		Birthdays: map[core.UserID]core.Birthday{},
		Stickies:  map[core.ChannelID]core.MessageID{},
		FeedSeen:  map[string]string{},
	}
}

func New(path string) (*Store, error) {
	s := &Store{path: path, data: newFileData()}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw fileData
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Users == nil {
		raw.Users = map[core.UserID]core.UserRecord{}
	}
	if raw.Birthdays == nil {
		raw.Birthdays = map[core.UserID]core.Birthday{}
	}
	if raw.Stickies == nil {
		raw.Stickies = map[core.ChannelID]core.MessageID{}
	}
	if raw.FeedSeen == nil {
		raw.FeedSeen = map[string]string{}
	}
	s.data = raw
	return nil
}

func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) get(user core.UserID) core.UserRecord {
	if rec, ok := s.data.Users[user]; ok {
		return rec
	}
	rec := core.UserRecord{UserID: user}
	s.data.Users[user] = rec
	return rec
}

// mutate applies fn under the lock and persists the result.
func (s *Store) mutate(user core.UserID, fn func(*core.UserRecord) error) (core.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.get(user)
	if err := fn(&rec); err != nil {
		return core.UserRecord{}, err
	}
	s.data.Users[user] = rec
	if err := s.persist(); err != nil {
		return core.UserRecord{}, err
	}
	return rec, nil
}

func (s *Store) GetOrCreate(_ context.Context, user core.UserID) (core.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(user), nil
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
	if limit <= 0 {
		return nil, nil
	}
	value := func(r core.UserRecord) int64 {
		switch column {
		case core.SortByMessages:
			return r.TotalMessages
		case core.SortByVoiceSeconds:
			return r.TotalVoiceSeconds
		case core.SortByCountingRounds:
			return r.CountingSuccessRounds
		default:
			return r.XP
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]core.LeaderboardEntry, 0, len(s.data.Users))
	for id, rec := range s.data.Users {
		entries = append(entries, core.LeaderboardEntry{UserID: id, Value: value(rec)})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Value == entries[j].Value {
			return entries[i].UserID < entries[j].UserID
		}
		return entries[i].Value > entries[j].Value
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) SetBirthday(_ context.Context, user core.UserID, month, day, year int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bd := s.data.Birthdays[user]
	bd.UserID = user
	bd.Month = month
	bd.Day = day
	bd.Year = year
	s.data.Birthdays[user] = bd
	return s.persist()
}

func (s *Store) ClearBirthday(_ context.Context, user core.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.Birthdays, user)
	return s.persist()
}

func (s *Store) GetBirthday(_ context.Context, user core.UserID) (core.Birthday, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bd, ok := s.data.Birthdays[user]
	return bd, ok, nil
}

func (s *Store) ListBirthdays(_ context.Context) ([]core.Birthday, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Birthday, 0, len(s.data.Birthdays))
	for _, bd := range s.data.Birthdays {
		out = append(out, bd)
	}
	return out, nil
}

func (s *Store) SetBirthdayGrantedYear(_ context.Context, user core.UserID, year int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bd, ok := s.data.Birthdays[user]
	if !ok {
		bd = core.Birthday{UserID: user}
	}
	bd.LastGrantedYear = year
	s.data.Birthdays[user] = bd
	return s.persist()
}

func (s *Store) GetStickyMessage(_ context.Context, channel core.ChannelID) (core.MessageID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.data.Stickies[channel]
	return id, ok, nil
}

func (s *Store) SetStickyMessage(_ context.Context, channel core.ChannelID, id core.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Stickies[channel] = id
	return s.persist()
}

func (s *Store) ClearStickyMessage(_ context.Context, channel core.ChannelID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.Stickies, channel)
	return s.persist()
}

func (s *Store) GetLastSeen(_ context.Context, feedKey string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.data.FeedSeen[feedKey]
	return id, ok, nil
}

func (s *Store) SetLastSeen(_ context.Context, feedKey, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.FeedSeen[feedKey] = itemID
	return s.persist()
}

var _ engine.Storage = (*Store)(nil)
var _ engine.BirthdayStore = (*Store)(nil)
var _ engine.StickyStore = (*Store)(nil)
var _ engine.FeedStateStore = (*Store)(nil)
