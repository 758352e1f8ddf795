package engine

import (
	"context"
	"fmt"
	"log/slog"

	"guildbot/core"
)

// MilestoneRule configures one family of milestone rewards over an ascending
// set of thresholds.
type MilestoneRule struct {
	Enabled     bool
	Thresholds  []int64
	RewardXP    int64
	RewardRoles map[int64]core.RoleID
}

// milestoneEvaluator detects threshold crossings for a monotonic counter and
// fires each crossed threshold's reward exactly once. Shared by the message
// and counting-round milestone paths.
type milestoneEvaluator struct {
	kind      core.MilestoneKind
	rule      MilestoneRule
	xp        XPApplier
	store     Storage
	roles     RoleManager
	announcer Announcer
	bus       *EventBus
	logger    *slog.Logger
}

func (m *milestoneEvaluator) evaluate(ctx context.Context, user core.UserID, prev, next int64, channel core.ChannelID) {
	if !m.rule.Enabled {
		return
	}
	for _, threshold := range core.CrossedThresholds(m.rule.Thresholds, prev, next) {
		m.reward(ctx, user, threshold, channel)
	}
}

func (m *milestoneEvaluator) reward(ctx context.Context, user core.UserID, threshold int64, channel core.ChannelID) {
	if m.rule.RewardXP > 0 {
		var err error
		if m.xp != nil {
			_, err = m.xp.ApplyXP(ctx, user, m.rule.RewardXP, channel)
		} else if m.store != nil {
			_, err = m.store.AddXP(ctx, user, m.rule.RewardXP)
		}
		if err != nil {
			m.logger.Warn("milestone reward xp failed", "kind", m.kind, "user", user, "threshold", threshold, "error", err)
		}
	}
	if role, ok := m.rule.RewardRoles[threshold]; ok && m.roles != nil {
		reason := fmt.Sprintf("%s milestone %d", m.kind, threshold)
		if err := m.roles.GrantRole(ctx, user, role, reason); err != nil {
			m.logger.Warn("milestone role grant failed", "kind", m.kind, "user", user, "role", role, "error", err)
		}
	}
	if m.announcer != nil {
		a := Announcement{
			Channel: channel,
			Title:   "Milestone!",
			Body:    fmt.Sprintf("hit %d %s", threshold, milestoneNoun(m.kind)),
			Mention: user,
		}
		if err := m.announcer.Announce(ctx, a); err != nil {
			m.logger.Warn("milestone announcement failed", "kind", m.kind, "user", user, "error", err)
		}
	}
	if m.bus != nil {
		m.bus.Publish(ctx, core.NewMilestoneReached(user, m.kind, threshold))
	}
}

func milestoneNoun(kind core.MilestoneKind) string {
	switch kind {
	case core.MilestoneMessages:
		return "messages"
	case core.MilestoneCountingRounds:
		return "counting rounds"
	}
	return string(kind)
}
