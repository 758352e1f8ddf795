package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"guildbot/core"
)

// PowerUpRule configures the weekly double-XP window for counting rounds.
// DayOfWeek follows time.Weekday (Sunday = 0).
type PowerUpRule struct {
	Enabled         bool
	DayOfWeek       time.Weekday
	MinStartHour    int
	MaxStartHour    int
	DurationMinutes int
	NotifyRole      core.RoleID
}

// CountingConfig holds the counting game policy.
type CountingConfig struct {
	Enabled          bool
	Channel          core.ChannelID
	Target           int64
	SuccessXPPerUser int64
	XPLossPercent    float64
	LevelLossPercent float64
	LevelPower       float64
	Milestones       MilestoneRule
	PowerUp          PowerUpRule
}

// RoleSyncer resynchronizes tier roles after a direct level write.
// Implemented by Leveling; optional for the counting game.
type RoleSyncer interface {
	SyncLevelRoles(ctx context.Context, user core.UserID, level int64)
}

// Counting runs the counting mini-game: one in-memory round per configured
// channel, advanced one integer at a time with no consecutive turns by the
// same member. Round state lives only in process memory; a restart resets
// the round to zero by design.
type Counting struct {
	cfg       CountingConfig
	store     Storage
	xp        XPApplier
	roleSync  RoleSyncer
	announcer Announcer
	bus       *EventBus
	logger    *slog.Logger

	mu           sync.Mutex
	currentValue int64
	lastUser     core.UserID
	participants map[core.UserID]struct{}

	powerUpUntil       time.Time
	lastNotifiedWindow string
}

// CountingOption configures optional collaborators.
type CountingOption func(*Counting)

func CountingWithXPApplier(xp XPApplier) CountingOption { return func(c *Counting) { c.xp = xp } }

func CountingWithRoleSyncer(rs RoleSyncer) CountingOption {
	return func(c *Counting) { c.roleSync = rs }
}

func CountingWithAnnouncer(a Announcer) CountingOption {
	return func(c *Counting) { c.announcer = a }
}

func CountingWithEventBus(b *EventBus) CountingOption { return func(c *Counting) { c.bus = b } }

func CountingWithLogger(lg *slog.Logger) CountingOption { return func(c *Counting) { c.logger = lg } }

func NewCounting(cfg CountingConfig, store Storage, opts ...CountingOption) *Counting {
	if store == nil {
		panic("NewCounting requires non-nil storage")
	}
	c := &Counting{cfg: cfg, store: store, logger: slog.Default(), participants: map[core.UserID]struct{}{}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Channel returns the configured counting channel ("" = disabled).
func (c *Counting) Channel() core.ChannelID {
	return c.cfg.Channel
}

// CurrentValue returns the last accepted number (0 = round not started).
func (c *Counting) CurrentValue() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentValue
}

// Participants returns a copy of the current round's contributor set.
func (c *Counting) Participants() []core.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.UserID, 0, len(c.participants))
	for u := range c.participants {
		out = append(out, u)
	}
	return out
}

// HandleMessage processes a message in the counting channel. A non-integer,
// a wrong value, or a repeat contributor breaks the round; the correct next
// integer advances it, and reaching the target completes it.
func (c *Counting) HandleMessage(ctx context.Context, msg core.Message) error {
	if !c.cfg.Enabled || c.cfg.Channel == "" || msg.Channel != c.cfg.Channel {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expected := c.currentValue + 1
	value, err := strconv.ParseInt(strings.TrimSpace(msg.Content), 10, 64)
	if err != nil || value <= 0 || value != expected || c.lastUser == msg.Author {
		return c.breakRound(ctx, msg.Author, msg.Channel, strings.TrimSpace(msg.Content), value, expected)
	}

	c.currentValue = value
	c.lastUser = msg.Author
	c.participants[msg.Author] = struct{}{}
	if c.bus != nil {
		c.bus.Publish(ctx, core.NewCountingAccepted(msg.Author, value))
	}

	if c.cfg.Target > 0 && c.currentValue >= c.cfg.Target {
		c.completeRound(ctx, msg.Channel, msg.Timestamp)
	}
	return nil
}

// completeRound awards success XP to every participant, bumps counting-round
// counters, evaluates counting milestones, announces, and resets. The round
// resets regardless of per-participant award failures. Callers hold c.mu.
func (c *Counting) completeRound(ctx context.Context, channel core.ChannelID, now time.Time) {
	successXP := core.CountingSuccessXP(c.cfg.SuccessXPPerUser, c.powerUpActiveLocked(now))

	eval := &milestoneEvaluator{
		kind: core.MilestoneCountingRounds, rule: c.cfg.Milestones,
		xp: c.xp, store: c.store, roles: nil, announcer: c.announcer, bus: c.bus, logger: c.logger,
	}

	awarded := 0
	for user := range c.participants {
		if successXP > 0 {
			var err error
			if c.xp != nil {
				_, err = c.xp.ApplyXP(ctx, user, successXP, channel)
			} else {
				_, err = c.store.AddXP(ctx, user, successXP)
			}
			if err != nil {
				c.logger.Warn("counting success xp failed", "user", user, "error", err)
				continue
			}
		}
		totalRounds, err := c.store.IncrementCountingRounds(ctx, user)
		if err != nil {
			c.logger.Warn("counting round increment failed", "user", user, "error", err)
			continue
		}
		eval.evaluate(ctx, user, totalRounds-1, totalRounds, channel)
		awarded++
	}

	if c.announcer != nil {
		a := Announcement{
			Channel: channel,
			Body:    fmt.Sprintf("We reached %d! Everyone who helped (%d participants) gains XP.", c.cfg.Target, awarded),
		}
		if err := c.announcer.Announce(ctx, a); err != nil {
			c.logger.Warn("counting success announcement failed", "error", err)
		}
	}
	if c.bus != nil {
		c.bus.Publish(ctx, core.NewCountingSuccess(c.cfg.Target, awarded))
	}
	c.resetRoundLocked()
}

// breakRound applies the double-capped penalty, resyncs tier roles,
// announces the break, and resets the round. Persistence failures surface to
// the caller but the round state resets either way: the round is broken
// regardless of whether the penalty stuck. Callers hold c.mu.
func (c *Counting) breakRound(ctx context.Context, user core.UserID, channel core.ChannelID, raw string, value, expected int64) error {
	defer c.resetRoundLocked()

	rec, err := c.store.GetOrCreate(ctx, user)
	if err != nil {
		return fmt.Errorf("load user for penalty: %w", err)
	}
	out := core.CountingPenalty(rec.XP, rec.Level, c.cfg.XPLossPercent, c.cfg.LevelLossPercent, c.cfg.LevelPower)

	if _, err := c.store.SetXP(ctx, user, out.NewXP); err != nil {
		return fmt.Errorf("persist penalty xp: %w", err)
	}
	if err := c.store.SetLevel(ctx, user, out.NewLevel); err != nil {
		return fmt.Errorf("persist penalty level: %w", err)
	}
	if c.roleSync != nil {
		c.roleSync.SyncLevelRoles(ctx, user, out.NewLevel)
	}

	wrong := raw
	if wrong == "" {
		wrong = strconv.FormatInt(value, 10)
	}
	if c.announcer != nil {
		a := Announcement{
			Channel: channel,
			Body: fmt.Sprintf("broke the count at `%s` (expected `%d`)! Next number is `1`. Penalty applied: -%.0f%% XP and -%.0f%% levels.",
				wrong, expected, c.cfg.XPLossPercent, c.cfg.LevelLossPercent),
			Mention: user,
		}
		if err := c.announcer.Announce(ctx, a); err != nil {
			c.logger.Warn("counting break announcement failed", "error", err)
		}
	}
	if c.bus != nil {
		c.bus.Publish(ctx, core.NewCountingBreak(user, value, expected))
	}
	return nil
}

func (c *Counting) resetRoundLocked() {
	c.currentValue = 0
	c.lastUser = ""
	c.participants = map[core.UserID]struct{}{}
}

// TickPowerUp re-evaluates the weekly power-up window. Activation extends
// the expiry timestamp and announces once per qualifying hour window.
func (c *Counting) TickPowerUp(ctx context.Context, now time.Time) {
	if !c.cfg.PowerUp.Enabled || c.cfg.Channel == "" {
		return
	}
	now = now.UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	rule := c.cfg.PowerUp
	if now.Weekday() != rule.DayOfWeek || now.Hour() < rule.MinStartHour || now.Hour() > rule.MaxStartHour {
		c.powerUpUntil = time.Time{}
		return
	}
	if !c.powerUpUntil.IsZero() && now.Before(c.powerUpUntil) {
		return // already active
	}

	c.powerUpUntil = now.Add(time.Duration(rule.DurationMinutes) * time.Minute)
	windowKey := now.Format("2006-01-02-15")
	if c.lastNotifiedWindow == windowKey {
		return
	}
	c.lastNotifiedWindow = windowKey

	if c.announcer != nil {
		a := Announcement{
			Channel: c.cfg.Channel,
			Body:    fmt.Sprintf("Counting powerup active! Double counting XP for the next %d minutes.", rule.DurationMinutes),
		}
		if err := c.announcer.Announce(ctx, a); err != nil {
			c.logger.Warn("powerup announcement failed", "error", err)
		}
	}
	if c.bus != nil {
		c.bus.Publish(ctx, core.NewPowerUpActivated(c.powerUpUntil))
	}
}

// PowerUpActive reports whether success XP is currently doubled.
func (c *Counting) PowerUpActive(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.powerUpActiveLocked(now)
}

func (c *Counting) powerUpActiveLocked(now time.Time) bool {
	return c.cfg.PowerUp.Enabled && !c.powerUpUntil.IsZero() && now.UTC().Before(c.powerUpUntil)
}
