package engine

import (
	"context"
	"fmt"
	"sync"

	"guildbot/core"
)

// fakeStore is a map-backed Storage plus birthday/sticky/feed stores for
// exercising engine flows without a real adapter.
type fakeStore struct {
	mu        sync.Mutex
	users     map[core.UserID]*core.UserRecord
	birthdays map[core.UserID]*core.Birthday
	stickies  map[core.ChannelID]core.MessageID
	feedSeen  map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     map[core.UserID]*core.UserRecord{},
		birthdays: map[core.UserID]*core.Birthday{},
		stickies:  map[core.ChannelID]core.MessageID{},
		feedSeen:  map[string]string{},
	}
}

func (s *fakeStore) rec(user core.UserID) *core.UserRecord {
	if r, ok := s.users[user]; ok {
		return r
	}
	r := &core.UserRecord{UserID: user}
	s.users[user] = r
	return r
}

func (s *fakeStore) GetOrCreate(_ context.Context, user core.UserID) (core.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rec(user), nil
}

func (s *fakeStore) AddXP(_ context.Context, user core.UserID, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rec(user)
	r.XP += delta
	if r.XP < 0 {
		r.XP = 0
	}
	return r.XP, nil
}

func (s *fakeStore) SetXP(_ context.Context, user core.UserID, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amount < 0 {
		amount = 0
	}
	s.rec(user).XP = amount
	return amount, nil
}

func (s *fakeStore) SetLevel(_ context.Context, user core.UserID, level int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec(user).Level = level
	return nil
}

func (s *fakeStore) IncrementMessages(_ context.Context, user core.UserID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rec(user)
	r.TotalMessages++
	return r.TotalMessages, nil
}

func (s *fakeStore) AddVoiceTime(_ context.Context, user core.UserID, seconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec(user).TotalVoiceSeconds += seconds
	return nil
}

func (s *fakeStore) SetLastMessageTS(_ context.Context, user core.UserID, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec(user).LastMessageTS = ts
	return nil
}

func (s *fakeStore) SetLastNickChange(_ context.Context, user core.UserID, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec(user).LastNickChangeTS = ts
	return nil
}

func (s *fakeStore) IncrementCountingRounds(_ context.Context, user core.UserID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rec(user)
	r.CountingSuccessRounds++
	return r.CountingSuccessRounds, nil
}

func (s *fakeStore) UpdateStreak(_ context.Context, user core.UserID, today string, resetHours int, nowTS int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rec(user)
	r.CurrentStreakDays = core.NextStreak(r.CurrentStreakDays, r.LastActiveDay, today, resetHours, r.LastMessageTS, nowTS)
	r.LastActiveDay = today
	return r.CurrentStreakDays, nil
}

func (s *fakeStore) TopUsersBy(_ context.Context, column core.SortColumn, limit int) ([]core.LeaderboardEntry, error) {
	if err := column.Validate(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *fakeStore) SetBirthday(_ context.Context, user core.UserID, month, day, year int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bd := s.birthdays[user]
	if bd == nil {
		bd = &core.Birthday{UserID: user}
		s.birthdays[user] = bd
	}
	bd.Month, bd.Day, bd.Year = month, day, year
	return nil
}

func (s *fakeStore) ClearBirthday(_ context.Context, user core.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.birthdays, user)
	return nil
}

func (s *fakeStore) GetBirthday(_ context.Context, user core.UserID) (core.Birthday, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bd, ok := s.birthdays[user]; ok {
		return *bd, true, nil
	}
	return core.Birthday{}, false, nil
}

func (s *fakeStore) ListBirthdays(_ context.Context) ([]core.Birthday, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Birthday, 0, len(s.birthdays))
	for _, bd := range s.birthdays {
		out = append(out, *bd)
	}
	return out, nil
}

func (s *fakeStore) SetBirthdayGrantedYear(_ context.Context, user core.UserID, year int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bd := s.birthdays[user]
	if bd == nil {
		bd = &core.Birthday{UserID: user}
		s.birthdays[user] = bd
	}
	bd.LastGrantedYear = year
	return nil
}

func (s *fakeStore) GetStickyMessage(_ context.Context, channel core.ChannelID) (core.MessageID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.stickies[channel]
	return id, ok, nil
}

func (s *fakeStore) SetStickyMessage(_ context.Context, channel core.ChannelID, id core.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stickies[channel] = id
	return nil
}

func (s *fakeStore) ClearStickyMessage(_ context.Context, channel core.ChannelID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stickies, channel)
	return nil
}

func (s *fakeStore) GetLastSeen(_ context.Context, feedKey string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.feedSeen[feedKey]
	return id, ok, nil
}

func (s *fakeStore) SetLastSeen(_ context.Context, feedKey, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedSeen[feedKey] = itemID
	return nil
}

// fakeRoles records grants and revokes as "user:role" strings.
type fakeRoles struct {
	mu      sync.Mutex
	grants  []string
	revokes []string
	fail    bool
}

func (f *fakeRoles) GrantRole(_ context.Context, user core.UserID, role core.RoleID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("grant denied")
	}
	f.grants = append(f.grants, string(user)+":"+string(role))
	return nil
}

func (f *fakeRoles) RevokeRole(_ context.Context, user core.UserID, role core.RoleID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("revoke denied")
	}
	f.revokes = append(f.revokes, string(user)+":"+string(role))
	return nil
}

func (f *fakeRoles) granted(user core.UserID, role core.RoleID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.grants {
		if g == string(user)+":"+string(role) {
			return true
		}
	}
	return false
}

func (f *fakeRoles) revoked(user core.UserID, role core.RoleID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.revokes {
		if r == string(user)+":"+string(role) {
			return true
		}
	}
	return false
}

// fakeAnnouncer records announcements in order.
type fakeAnnouncer struct {
	mu   sync.Mutex
	sent []Announcement
	fail bool
}

func (f *fakeAnnouncer) Announce(_ context.Context, a Announcement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("announce failed")
	}
	f.sent = append(f.sent, a)
	return nil
}

func (f *fakeAnnouncer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeMessenger records posts and deletes for sticky tests.
type fakeMessenger struct {
	mu      sync.Mutex
	posts   []string
	deletes []core.MessageID
	nextID  int
}

func (f *fakeMessenger) Post(_ context.Context, _ core.ChannelID, content string) (core.MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.posts = append(f.posts, content)
	return core.MessageID(fmt.Sprintf("m%d", f.nextID)), nil
}

func (f *fakeMessenger) Delete(_ context.Context, _ core.ChannelID, id core.MessageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	return nil
}

// fakePresence drives voice eligibility per user.
type fakePresence struct {
	eligible map[core.UserID]bool
	alone    map[core.UserID]bool
}

func (f *fakePresence) Eligible(user core.UserID) bool {
	if f.eligible == nil {
		return true
	}
	v, ok := f.eligible[user]
	return !ok || v
}

func (f *fakePresence) Alone(user core.UserID) bool {
	return f.alone != nil && f.alone[user]
}
