package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

// UserID uniquely identifies a community member.
type UserID string

// ChannelID identifies a chat channel.
type ChannelID string

// RoleID identifies a grantable membership tier or reward role.
type RoleID string

// MessageID identifies a posted chat message.
type MessageID string

// SortColumn names a leaderboard-sortable user counter.
type SortColumn string

const (
	SortByXP             SortColumn = "xp"
	SortByMessages       SortColumn = "total_messages"
	SortByVoiceSeconds   SortColumn = "total_voice_seconds"
	SortByCountingRounds SortColumn = "counting_success_rounds"
)

// SortColumns returns every allowed leaderboard column.
func SortColumns() []SortColumn {
	return []SortColumn{SortByXP, SortByMessages, SortByVoiceSeconds, SortByCountingRounds}
}

// ErrBadSortColumn is returned when a leaderboard query names a column
// outside the allow-list.
var ErrBadSortColumn = errors.New("column not allowed for leaderboard")

// Validate rejects sort columns outside the fixed allow-list.
func (c SortColumn) Validate() error {
	switch c {
	case SortByXP, SortByMessages, SortByVoiceSeconds, SortByCountingRounds:
		return nil
	}
	return ErrBadSortColumn
}

// UserRecord is a snapshot of one member's engagement state. Records are
// created lazily with zero values on first read and never deleted.
type UserRecord struct {
	UserID                UserID `json:"user_id"`
	XP                    int64  `json:"xp"`
	Level                 int64  `json:"level"`
	TotalMessages         int64  `json:"total_messages"`
	TotalVoiceSeconds     int64  `json:"total_voice_seconds"`
	LastMessageTS         int64  `json:"last_message_ts"`
	CountingSuccessRounds int64  `json:"counting_success_rounds"`
	CurrentStreakDays     int64  `json:"current_streak_days"`
	LastActiveDay         string `json:"last_active_day,omitempty"`
	LastNickChangeTS      int64  `json:"last_nick_change_ts"`
}

// Birthday is a member's recorded birthday. Year is 0 when unknown.
// LastGrantedYear tracks the once-per-year reward.
type Birthday struct {
	UserID          UserID `json:"user_id"`
	Month           int    `json:"month"`
	Day             int    `json:"day"`
	Year            int    `json:"year,omitempty"`
	LastGrantedYear int    `json:"last_granted_year"`
}

// LeaderboardEntry is one row of a top-N query.
type LeaderboardEntry struct {
	UserID UserID `json:"user_id"`
	Value  int64  `json:"value"`
}

// Message is an inbound chat message as seen by the engine. Attachment
// filenames are carried so the policy evaluator can spot media uploads.
type Message struct {
	Author      UserID
	Channel     ChannelID
	Content     string
	Attachments []string
	Timestamp   time.Time
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}

// NormalizeUserID trims surrounding whitespace from user identifiers.
func NormalizeUserID(id UserID) (UserID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", errors.New("empty user id")
	}
	return UserID(s), nil
}

// DayString formats a timestamp as the calendar date used for streak
// bookkeeping (UTC, YYYY-MM-DD).
func DayString(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}

// NextStreak applies the streak update rules to a prior streak state.
// The inactivity-hours reset fires before the day-based rules so a
// mid-day quiet spell still restarts the streak.
func NextStreak(current int64, lastActiveDay, today string, resetHours int, lastMessageTS, nowTS int64) int64 {
	if resetHours > 0 && lastMessageTS > 0 && nowTS > 0 {
		if float64(nowTS-lastMessageTS)/3600.0 > float64(resetHours) {
			current = 0
		}
	}

	if lastActiveDay == "" {
		return 1
	}
	if today == lastActiveDay {
		return current
	}

	last, err := time.Parse("2006-01-02", lastActiveDay)
	if err != nil {
		return 1
	}
	cur, err := time.Parse("2006-01-02", today)
	if err != nil {
		return 1
	}
	if int64(cur.Sub(last).Hours()/24) == 1 {
		return current + 1
	}
	return 1
}
