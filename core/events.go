package core

import "time"

// EventType enumerates engine events.
type EventType string

const (
	EventXPAwarded        EventType = "xp_awarded"
	EventLevelUp          EventType = "level_up"
	EventMilestoneReached EventType = "milestone_reached"
	EventStreakReached    EventType = "streak_reached"
	EventCountingAccepted EventType = "counting_accepted"
	EventCountingBreak    EventType = "counting_break"
	EventCountingSuccess  EventType = "counting_success"
	EventPowerUpActivated EventType = "powerup_activated"
	EventMemberJoined     EventType = "member_joined"
	EventBirthday         EventType = "birthday"
)

// MilestoneKind distinguishes which counter crossed a threshold.
type MilestoneKind string

const (
	MilestoneMessages       MilestoneKind = "message_count"
	MilestoneCountingRounds MilestoneKind = "counting_rounds"
)

// Event represents an immutable engine event.
type Event struct {
	Type      EventType      `json:"type"`
	Time      time.Time      `json:"time"`
	UserID    UserID         `json:"user_id,omitempty"`
	Channel   ChannelID      `json:"channel,omitempty"`
	Delta     int64          `json:"delta,omitempty"`
	Total     int64          `json:"total,omitempty"`
	Level     int64          `json:"level,omitempty"`
	Milestone MilestoneKind  `json:"milestone,omitempty"`
	Threshold int64          `json:"threshold,omitempty"`
	Value     int64          `json:"value,omitempty"`
	Expected  int64          `json:"expected,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewXPAwarded(user UserID, delta, total int64) Event {
	return Event{Type: EventXPAwarded, Time: time.Now().UTC(), UserID: user, Delta: delta, Total: total}
}

func NewLevelUp(user UserID, level, total int64) Event {
	return Event{Type: EventLevelUp, Time: time.Now().UTC(), UserID: user, Level: level, Total: total}
}

func NewMilestoneReached(user UserID, kind MilestoneKind, threshold int64) Event {
	return Event{Type: EventMilestoneReached, Time: time.Now().UTC(), UserID: user, Milestone: kind, Threshold: threshold}
}

func NewStreakReached(user UserID, days int64) Event {
	return Event{Type: EventStreakReached, Time: time.Now().UTC(), UserID: user, Value: days}
}

func NewCountingAccepted(user UserID, value int64) Event {
	return Event{Type: EventCountingAccepted, Time: time.Now().UTC(), UserID: user, Value: value}
}

func NewCountingBreak(user UserID, value, expected int64) Event {
	return Event{Type: EventCountingBreak, Time: time.Now().UTC(), UserID: user, Value: value, Expected: expected}
}

func NewCountingSuccess(target int64, participants int) Event {
	return Event{Type: EventCountingSuccess, Time: time.Now().UTC(), Value: target, Total: int64(participants)}
}

func NewPowerUpActivated(until time.Time) Event {
	return Event{Type: EventPowerUpActivated, Time: time.Now().UTC(), Metadata: map[string]any{"until": until.UTC()}}
}

func NewMemberJoined(user UserID) Event {
	return Event{Type: EventMemberJoined, Time: time.Now().UTC(), UserID: user}
}
