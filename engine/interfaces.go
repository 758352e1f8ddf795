package engine

import (
	"context"

	"guildbot/core"
)

// Storage abstracts per-user persistence for engagement state. Mutations are
// atomic per user; reads after a write observe the write. AddXP and SetXP
// clamp the stored total at zero.
type Storage interface {
	GetOrCreate(ctx context.Context, user core.UserID) (core.UserRecord, error)
	AddXP(ctx context.Context, user core.UserID, delta int64) (newTotal int64, err error)
	SetXP(ctx context.Context, user core.UserID, amount int64) (newTotal int64, err error)
	SetLevel(ctx context.Context, user core.UserID, level int64) error
	IncrementMessages(ctx context.Context, user core.UserID) (newTotal int64, err error)
	AddVoiceTime(ctx context.Context, user core.UserID, seconds int64) error
	SetLastMessageTS(ctx context.Context, user core.UserID, ts int64) error
	SetLastNickChange(ctx context.Context, user core.UserID, ts int64) error
	IncrementCountingRounds(ctx context.Context, user core.UserID) (newTotal int64, err error)
	UpdateStreak(ctx context.Context, user core.UserID, today string, resetHours int, nowTS int64) (newStreak int64, err error)
	TopUsersBy(ctx context.Context, column core.SortColumn, limit int) ([]core.LeaderboardEntry, error)
}

// BirthdayStore persists member birthdays and the once-per-year grant marker.
type BirthdayStore interface {
	SetBirthday(ctx context.Context, user core.UserID, month, day, year int) error
	ClearBirthday(ctx context.Context, user core.UserID) error
	GetBirthday(ctx context.Context, user core.UserID) (core.Birthday, bool, error)
	ListBirthdays(ctx context.Context) ([]core.Birthday, error)
	SetBirthdayGrantedYear(ctx context.Context, user core.UserID, year int) error
}

// StickyStore persists the current sticky message id per channel.
type StickyStore interface {
	GetStickyMessage(ctx context.Context, channel core.ChannelID) (core.MessageID, bool, error)
	SetStickyMessage(ctx context.Context, channel core.ChannelID, id core.MessageID) error
	ClearStickyMessage(ctx context.Context, channel core.ChannelID) error
}

// FeedStateStore persists the last seen item per social feed key.
type FeedStateStore interface {
	GetLastSeen(ctx context.Context, feedKey string) (string, bool, error)
	SetLastSeen(ctx context.Context, feedKey, itemID string) error
}

// RoleManager grants and revokes membership tier roles. Implementations sit
// at the chat-platform boundary; permission and hierarchy failures are
// returned so callers can log and continue.
type RoleManager interface {
	GrantRole(ctx context.Context, user core.UserID, role core.RoleID, reason string) error
	RevokeRole(ctx context.Context, user core.UserID, role core.RoleID, reason string) error
}

// Announcement is a templated message destined for a chat channel.
type Announcement struct {
	Channel core.ChannelID `json:"channel"`
	Title   string         `json:"title,omitempty"`
	Body    string         `json:"body"`
	Mention core.UserID    `json:"mention,omitempty"`
}

// Announcer posts announcements to chat output.
type Announcer interface {
	Announce(ctx context.Context, a Announcement) error
}

// Messenger posts and deletes plain channel messages (sticky upkeep).
type Messenger interface {
	Post(ctx context.Context, channel core.ChannelID, content string) (core.MessageID, error)
	Delete(ctx context.Context, channel core.ChannelID, id core.MessageID) error
}

// XPApplier is the single entry point every XP source goes through so
// level-up detection is never duplicated or skipped. Components receiving a
// nil applier fall back to direct store mutation.
type XPApplier interface {
	ApplyXP(ctx context.Context, user core.UserID, delta int64, sourceChannel core.ChannelID) (newTotal int64, err error)
}
