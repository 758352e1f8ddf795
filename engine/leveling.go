package engine

import (
	"context"
	"fmt"
	"log/slog"

	"guildbot/core"
)

// StreakRule configures the consecutive-day chat streak reward.
type StreakRule struct {
	Enabled              bool
	ResetIfInactiveHours int
	TargetDays           int64
	RewardXP             int64
	RewardRole           core.RoleID
}

// LevelingConfig holds the policy for message XP, level resolution, tier
// roles, message milestones, and streaks.
type LevelingConfig struct {
	Message           core.MessagePolicy
	CooldownSeconds   int64
	LevelPower        float64
	LevelUpChannel    core.ChannelID
	LevelRoles        []core.LevelRole
	BlockedChannels   []core.ChannelID
	MessageMilestones MilestoneRule
	Streaks           StreakRule
}

// Leveling orchestrates XP application, level-up detection, tier-role
// synchronization, and milestone/streak evaluation. It is the single entry
// point for every XP source.
type Leveling struct {
	cfg       LevelingConfig
	store     Storage
	roles     RoleManager
	announcer Announcer
	bus       *EventBus
	logger    *slog.Logger
	blocked   map[core.ChannelID]struct{}
}

// LevelingOption configures optional collaborators.
type LevelingOption func(*Leveling)

func WithRoleManager(r RoleManager) LevelingOption { return func(l *Leveling) { l.roles = r } }
func WithAnnouncer(a Announcer) LevelingOption     { return func(l *Leveling) { l.announcer = a } }
func WithEventBus(b *EventBus) LevelingOption      { return func(l *Leveling) { l.bus = b } }
func WithLogger(lg *slog.Logger) LevelingOption    { return func(l *Leveling) { l.logger = lg } }

func NewLeveling(cfg LevelingConfig, store Storage, opts ...LevelingOption) *Leveling {
	if store == nil {
		panic("NewLeveling requires non-nil storage")
	}
	l := &Leveling{cfg: cfg, store: store, logger: slog.Default(), blocked: map[core.ChannelID]struct{}{}}
	for _, ch := range cfg.BlockedChannels {
		l.blocked[ch] = struct{}{}
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// ApplyXP adds delta to the member's XP and runs level-up detection against
// the authoritative total read back from the store. Non-positive deltas are
// a no-op: no level check, no side effects.
func (l *Leveling) ApplyXP(ctx context.Context, user core.UserID, delta int64, sourceChannel core.ChannelID) (int64, error) {
	if delta <= 0 {
		rec, err := l.store.GetOrCreate(ctx, user)
		if err != nil {
			return 0, err
		}
		return rec.XP, nil
	}
	total, err := l.store.AddXP(ctx, user, delta)
	if err != nil {
		return 0, fmt.Errorf("add xp: %w", err)
	}
	if l.bus != nil {
		l.bus.Publish(ctx, core.NewXPAwarded(user, delta, total))
	}
	if err := l.checkLevelUp(ctx, user, total, sourceChannel); err != nil {
		return total, err
	}
	return total, nil
}

func (l *Leveling) checkLevelUp(ctx context.Context, user core.UserID, totalXP int64, sourceChannel core.ChannelID) error {
	rec, err := l.store.GetOrCreate(ctx, user)
	if err != nil {
		return err
	}
	newLevel := core.LevelForXP(totalXP, l.cfg.LevelPower)
	if newLevel <= rec.Level {
		return nil
	}
	if err := l.store.SetLevel(ctx, user, newLevel); err != nil {
		return fmt.Errorf("set level: %w", err)
	}
	l.SyncLevelRoles(ctx, user, newLevel)

	channel := l.cfg.LevelUpChannel
	if channel == "" {
		channel = sourceChannel
	}
	if l.announcer != nil && channel != "" {
		a := Announcement{
			Channel: channel,
			Title:   "Level Up!",
			Body:    fmt.Sprintf("reached level %d", newLevel),
			Mention: user,
		}
		if err := l.announcer.Announce(ctx, a); err != nil {
			l.logger.Warn("level-up announcement failed", "user", user, "error", err)
		}
	}
	if l.bus != nil {
		l.bus.Publish(ctx, core.NewLevelUp(user, newLevel, totalXP))
	}
	return nil
}

// SyncLevelRoles grants exactly the tier role for the member's level band
// and revokes every other configured tier. Grant-before-revoke and
// revoke-before-grant converge on the same end state, and permission
// failures are logged rather than propagated: the numeric level is already
// persisted and caller flows must not stall.
func (l *Leveling) SyncLevelRoles(ctx context.Context, user core.UserID, level int64) {
	if l.roles == nil || len(l.cfg.LevelRoles) == 0 {
		return
	}
	target := core.TargetLevelRole(l.cfg.LevelRoles, level)
	if target != "" {
		if err := l.roles.GrantRole(ctx, user, target, "level reward"); err != nil {
			l.logger.Warn("tier role grant failed", "user", user, "role", target, "error", err)
		}
	}
	for _, lr := range l.cfg.LevelRoles {
		if lr.Role == target {
			continue
		}
		if err := l.roles.RevokeRole(ctx, user, lr.Role, "level role cleanup"); err != nil {
			l.logger.Warn("tier role revoke failed", "user", user, "role", lr.Role, "error", err)
		}
	}
}

// SetLevelAndRoles persists a level directly and resyncs tier roles.
// Used by admin overrides and the counting penalty path.
func (l *Leveling) SetLevelAndRoles(ctx context.Context, user core.UserID, level int64) error {
	if err := l.store.SetLevel(ctx, user, level); err != nil {
		return err
	}
	l.SyncLevelRoles(ctx, user, level)
	return nil
}

// HandleMessage processes a regular chat message: cooldown gate, message XP,
// message milestones, streak bookkeeping, and level check.
func (l *Leveling) HandleMessage(ctx context.Context, msg core.Message) error {
	if !l.cfg.Message.Enabled {
		return nil
	}
	if _, ok := l.blocked[msg.Channel]; ok {
		return nil
	}
	rec, err := l.store.GetOrCreate(ctx, msg.Author)
	if err != nil {
		return err
	}
	now := msg.Timestamp.Unix()
	if now-rec.LastMessageTS < l.cfg.CooldownSeconds {
		return nil
	}
	gain := core.MessageXP(l.cfg.Message, msg)
	if gain <= 0 {
		return nil
	}

	totalMessages, err := l.store.IncrementMessages(ctx, msg.Author)
	if err != nil {
		return fmt.Errorf("increment messages: %w", err)
	}

	eval := &milestoneEvaluator{
		kind: core.MilestoneMessages, rule: l.cfg.MessageMilestones,
		xp: l, roles: l.roles, announcer: l.announcer, bus: l.bus, logger: l.logger,
	}
	eval.evaluate(ctx, msg.Author, totalMessages-1, totalMessages, msg.Channel)

	l.updateStreak(ctx, msg, rec.CurrentStreakDays, now)

	if err := l.store.SetLastMessageTS(ctx, msg.Author, now); err != nil {
		return fmt.Errorf("set last message ts: %w", err)
	}
	if _, err := l.ApplyXP(ctx, msg.Author, gain, msg.Channel); err != nil {
		return err
	}
	return nil
}

// updateStreak advances streak bookkeeping and fires the streak reward when
// the configured target is strictly crossed. A streak rebuilt after a reset
// crosses the target again and rewards again.
func (l *Leveling) updateStreak(ctx context.Context, msg core.Message, previousStreak, nowTS int64) {
	if !l.cfg.Streaks.Enabled {
		return
	}
	today := core.DayString(msg.Timestamp)
	streak, err := l.store.UpdateStreak(ctx, msg.Author, today, l.cfg.Streaks.ResetIfInactiveHours, nowTS)
	if err != nil {
		l.logger.Warn("streak update failed", "user", msg.Author, "error", err)
		return
	}
	target := l.cfg.Streaks.TargetDays
	if target <= 0 || !(previousStreak < target && target <= streak) {
		return
	}
	if l.cfg.Streaks.RewardXP > 0 {
		if _, err := l.ApplyXP(ctx, msg.Author, l.cfg.Streaks.RewardXP, msg.Channel); err != nil {
			l.logger.Warn("streak reward xp failed", "user", msg.Author, "error", err)
		}
	}
	if l.cfg.Streaks.RewardRole != "" && l.roles != nil {
		if err := l.roles.GrantRole(ctx, msg.Author, l.cfg.Streaks.RewardRole, "chat streak reward"); err != nil {
			l.logger.Warn("streak role grant failed", "user", msg.Author, "error", err)
		}
	}
	if l.announcer != nil {
		a := Announcement{
			Channel: msg.Channel,
			Body:    fmt.Sprintf("reached a %d-day chat streak!", target),
			Mention: msg.Author,
		}
		if err := l.announcer.Announce(ctx, a); err != nil {
			l.logger.Warn("streak announcement failed", "user", msg.Author, "error", err)
		}
	}
	if l.bus != nil {
		l.bus.Publish(ctx, core.NewStreakReached(msg.Author, streak))
	}
}

var _ XPApplier = (*Leveling)(nil)
