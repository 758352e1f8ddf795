package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"guildbot/core"
)

// NicknameConfig holds the nickname change policy.
type NicknameConfig struct {
	Enabled              bool
	CooldownDays         int
	MaxLength            int
	AllowResetToUsername bool
}

var (
	// ErrNicknameCooldown reports a change attempted before the per-user
	// cooldown elapsed.
	ErrNicknameCooldown = errors.New("nickname change on cooldown")
	// ErrNicknameInvalid reports an empty or over-long nickname.
	ErrNicknameInvalid = errors.New("invalid nickname")
	// ErrNicknameResetDisabled reports a reset request when resets are off.
	ErrNicknameResetDisabled = errors.New("nickname reset not allowed")
)

var nicknameResetKeywords = map[string]struct{}{"reset": {}, "default": {}, "clear": {}}

// NicknameManager validates nickname change requests and records the
// cooldown timestamp. The actual rename is the gateway's job; bypass is the
// caller's call since role membership lives at the boundary.
type NicknameManager struct {
	cfg   NicknameConfig
	store Storage
}

func NewNicknameManager(cfg NicknameConfig, store Storage) *NicknameManager {
	if store == nil {
		panic("NewNicknameManager requires non-nil storage")
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 32
	}
	return &NicknameManager{cfg: cfg, store: store}
}

// Request validates a nickname change. It returns the sanitized nickname
// ("" means reset to the platform username) and stamps the cooldown on
// success.
func (m *NicknameManager) Request(ctx context.Context, user core.UserID, newNick string, bypassCooldown bool, now time.Time) (string, error) {
	if !m.cfg.Enabled {
		return "", errors.New("nickname changes are disabled")
	}

	target := strings.TrimSpace(newNick)
	if _, isReset := nicknameResetKeywords[strings.ToLower(target)]; isReset || target == "" {
		if !m.cfg.AllowResetToUsername {
			return "", ErrNicknameResetDisabled
		}
		target = ""
	} else if len(target) > m.cfg.MaxLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrNicknameInvalid, m.cfg.MaxLength)
	}

	if !bypassCooldown && m.cfg.CooldownDays > 0 {
		rec, err := m.store.GetOrCreate(ctx, user)
		if err != nil {
			return "", err
		}
		cooldown := int64(m.cfg.CooldownDays) * 86400
		if rec.LastNickChangeTS > 0 && now.Unix()-rec.LastNickChangeTS < cooldown {
			remaining := time.Duration(cooldown-(now.Unix()-rec.LastNickChangeTS)) * time.Second
			return "", fmt.Errorf("%w: %s remaining", ErrNicknameCooldown, remaining)
		}
	}

	if err := m.store.SetLastNickChange(ctx, user, now.Unix()); err != nil {
		return "", err
	}
	return target, nil
}
