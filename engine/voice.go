package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"guildbot/core"
)

// VoiceConfig holds the voice XP policy.
type VoiceConfig struct {
	Enabled         bool
	XPPerMinute     int64
	TickSeconds     int64
	RequireNotAlone bool
}

// Presence answers occupancy questions about a member's current voice
// channel. Supplied by the chat-gateway glue; a nil Presence treats every
// tracked member as eligible and accompanied.
type Presence interface {
	Eligible(user core.UserID) bool
	Alone(user core.UserID) bool
}

type voiceSession struct {
	start time.Time
	carry int64 // sub-minute seconds carried to the next tick
}

// VoiceTracker accrues voice time and XP per member. Each tick computes the
// elapsed time since the session anchor, advances the anchor, and carries
// only the sub-minute remainder forward, so no second is lost or counted
// twice — including when a tick races a leave event, because leaving
// finalizes and clears the session.
type VoiceTracker struct {
	cfg      VoiceConfig
	store    Storage
	xp       XPApplier
	presence Presence
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[core.UserID]*voiceSession
}

// VoiceOption configures optional collaborators.
type VoiceOption func(*VoiceTracker)

func VoiceWithXPApplier(xp XPApplier) VoiceOption { return func(v *VoiceTracker) { v.xp = xp } }

func VoiceWithPresence(p Presence) VoiceOption { return func(v *VoiceTracker) { v.presence = p } }

func VoiceWithLogger(lg *slog.Logger) VoiceOption { return func(v *VoiceTracker) { v.logger = lg } }

func NewVoiceTracker(cfg VoiceConfig, store Storage, opts ...VoiceOption) *VoiceTracker {
	if store == nil {
		panic("NewVoiceTracker requires non-nil storage")
	}
	v := &VoiceTracker{cfg: cfg, store: store, logger: slog.Default(), sessions: map[core.UserID]*voiceSession{}}
	for _, o := range opts {
		o(v)
	}
	return v
}

// TickSeconds returns the configured settle interval.
func (v *VoiceTracker) TickSeconds() int64 {
	return v.cfg.TickSeconds
}

// TrackedUsers returns the members with an open voice session.
func (v *VoiceTracker) TrackedUsers() []core.UserID {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]core.UserID, 0, len(v.sessions))
	for u := range v.sessions {
		out = append(out, u)
	}
	return out
}

// HandleVoiceUpdate reacts to a join/leave/move. Any open session is
// finalized first; a new one starts only when the member landed in an
// eligible channel.
func (v *VoiceTracker) HandleVoiceUpdate(ctx context.Context, user core.UserID, joinedEligible bool, now time.Time) error {
	if !v.cfg.Enabled {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.sessions[user]; ok {
		delete(v.sessions, user)
		if err := v.settle(ctx, user, s, now, false); err != nil {
			return err
		}
	}
	if joinedEligible {
		v.sessions[user] = &voiceSession{start: now}
	}
	return nil
}

// Tick processes every open session: accrue elapsed voice time, award XP for
// whole minutes, advance the anchor, and carry the remainder.
func (v *VoiceTracker) Tick(ctx context.Context, now time.Time) {
	if !v.cfg.Enabled {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	for user, s := range v.sessions {
		if v.presence != nil && !v.presence.Eligible(user) {
			delete(v.sessions, user)
			continue
		}
		if err := v.settle(ctx, user, s, now, true); err != nil {
			v.logger.Warn("voice tick settle failed", "user", user, "error", err)
		}
	}
}

// settle accrues the session's elapsed seconds and converts carry+elapsed
// into XP. When keep is true the session anchor advances to now and the
// sub-minute remainder is retained; otherwise the session is already gone.
func (v *VoiceTracker) settle(ctx context.Context, user core.UserID, s *voiceSession, now time.Time, keep bool) error {
	elapsed := int64(now.Sub(s.start).Seconds())
	if elapsed <= 0 {
		return nil
	}
	if err := v.store.AddVoiceTime(ctx, user, elapsed); err != nil {
		return err
	}

	total := s.carry + elapsed
	remainder := total % 60
	if keep {
		s.start = now
		s.carry = remainder
	}

	if v.cfg.RequireNotAlone && v.presence != nil && v.presence.Alone(user) {
		// Time accrues while alone, XP does not.
		return nil
	}
	gain := core.VoiceXP(v.cfg.XPPerMinute, total)
	if gain <= 0 {
		return nil
	}
	var err error
	if v.xp != nil {
		_, err = v.xp.ApplyXP(ctx, user, gain, "")
	} else {
		_, err = v.store.AddXP(ctx, user, gain)
	}
	return err
}
