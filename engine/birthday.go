package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"guildbot/core"
)

// BirthdayConfig holds the birthday announcement policy. CheckTimeUTC is a
// "HH:MM" wall-clock time in the community's local zone, derived from UTC by
// TimezoneOffsetHours.
type BirthdayConfig struct {
	Enabled             bool
	AnnouncementChannel core.ChannelID
	Role                core.RoleID
	Message             string
	CheckTimeUTC        string
	TimezoneOffsetHours int
}

// ErrBadBirthdayDate is returned for out-of-range or unparseable dates.
var ErrBadBirthdayDate = errors.New("invalid birthday date")

// BirthdayTracker grants a birthday role and announcement once per year per
// member, and removes the role once the day has passed.
type BirthdayTracker struct {
	cfg       BirthdayConfig
	store     BirthdayStore
	roles     RoleManager
	announcer Announcer
	logger    *slog.Logger

	mu          sync.Mutex
	lastRunDate string
}

func NewBirthdayTracker(cfg BirthdayConfig, store BirthdayStore, roles RoleManager, announcer Announcer, logger *slog.Logger) *BirthdayTracker {
	if store == nil {
		panic("NewBirthdayTracker requires non-nil store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Message == "" {
		cfg.Message = "Happy Birthday!"
	}
	return &BirthdayTracker{cfg: cfg, store: store, roles: roles, announcer: announcer, logger: logger}
}

// SetFromString records a birthday given as "MM-DD" or "MM-DD-YYYY".
func (b *BirthdayTracker) SetFromString(ctx context.Context, user core.UserID, date string) error {
	parts := strings.Split(strings.TrimSpace(date), "-")
	if len(parts) != 2 && len(parts) != 3 {
		return ErrBadBirthdayDate
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil {
		return ErrBadBirthdayDate
	}
	day, err := strconv.Atoi(parts[1])
	if err != nil {
		return ErrBadBirthdayDate
	}
	year := 0
	if len(parts) == 3 {
		if year, err = strconv.Atoi(parts[2]); err != nil {
			return ErrBadBirthdayDate
		}
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return ErrBadBirthdayDate
	}
	return b.store.SetBirthday(ctx, user, month, day, year)
}

// Clear removes a member's recorded birthday.
func (b *BirthdayTracker) Clear(ctx context.Context, user core.UserID) error {
	return b.store.ClearBirthday(ctx, user)
}

// Tick runs at most once per local calendar day, after the configured check
// time: it grants role + announcement to members whose birthday is today
// and not yet granted this year, and revokes the role from members whose
// granted birthday has passed.
func (b *BirthdayTracker) Tick(ctx context.Context, now time.Time) error {
	if !b.cfg.Enabled {
		return nil
	}
	local := now.UTC().Add(time.Duration(b.cfg.TimezoneOffsetHours) * time.Hour)
	today := local.Format("2006-01-02")

	b.mu.Lock()
	if b.lastRunDate == today {
		b.mu.Unlock()
		return nil
	}
	checkHour, checkMin := parseCheckTime(b.cfg.CheckTimeUTC)
	if local.Hour() < checkHour || (local.Hour() == checkHour && local.Minute() < checkMin) {
		b.mu.Unlock()
		return nil
	}
	b.lastRunDate = today
	b.mu.Unlock()

	birthdays, err := b.store.ListBirthdays(ctx)
	if err != nil {
		return fmt.Errorf("list birthdays: %w", err)
	}
	for _, bd := range birthdays {
		isToday := bd.Month == int(local.Month()) && bd.Day == local.Day()
		switch {
		case isToday && bd.LastGrantedYear != local.Year():
			b.celebrate(ctx, bd, local.Year())
		case !isToday && bd.LastGrantedYear == local.Year() && b.cfg.Role != "" && b.roles != nil:
			// Day has passed this year; take the role back.
			if err := b.roles.RevokeRole(ctx, bd.UserID, b.cfg.Role, "birthday over"); err != nil {
				b.logger.Warn("birthday role revoke failed", "user", bd.UserID, "error", err)
			}
		}
	}
	return nil
}

func (b *BirthdayTracker) celebrate(ctx context.Context, bd core.Birthday, year int) {
	if b.cfg.Role != "" && b.roles != nil {
		if err := b.roles.GrantRole(ctx, bd.UserID, b.cfg.Role, "birthday"); err != nil {
			b.logger.Warn("birthday role grant failed", "user", bd.UserID, "error", err)
		}
	}
	if b.announcer != nil && b.cfg.AnnouncementChannel != "" {
		a := Announcement{
			Channel: b.cfg.AnnouncementChannel,
			Body:    b.cfg.Message,
			Mention: bd.UserID,
		}
		if err := b.announcer.Announce(ctx, a); err != nil {
			b.logger.Warn("birthday announcement failed", "user", bd.UserID, "error", err)
		}
	}
	if err := b.store.SetBirthdayGrantedYear(ctx, bd.UserID, year); err != nil {
		b.logger.Warn("birthday grant marker failed", "user", bd.UserID, "error", err)
	}
}

func parseCheckTime(s string) (hour, minute int) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) == 2 {
		hour, _ = strconv.Atoi(parts[0])
		minute, _ = strconv.Atoi(parts[1])
	}
	return hour, minute
}
