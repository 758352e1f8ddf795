package core

import (
	"math"
	"sort"
	"strings"
)

// mediaExts is the fixed allow-list of attachment extensions that count as
// media for the message XP bonus. Matching is a case-insensitive suffix
// check on the filename.
var mediaExts = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "webp": {},
	"mp4": {}, "mov": {}, "webm": {}, "mkv": {},
}

// MessagePolicy holds the knobs for message XP awards.
type MessagePolicy struct {
	Enabled         bool
	BaseXP          int64
	AttachmentBonus int64
	CharsPerBonusXP int64
	MaxLengthBonus  int64
}

// MessageXP computes the XP award for a posted message:
// base + attachment bonus (any recognized media upload) + capped length
// bonus. The result never goes below zero.
func MessageXP(p MessagePolicy, msg Message) int64 {
	if !p.Enabled {
		return 0
	}
	xp := p.BaseXP
	if p.AttachmentBonus > 0 {
		for _, name := range msg.Attachments {
			if LooksLikeMedia(name) {
				xp += p.AttachmentBonus
				break
			}
		}
	}
	if p.CharsPerBonusXP > 0 {
		bonus := int64(len(msg.Content)) / p.CharsPerBonusXP
		if bonus > p.MaxLengthBonus {
			bonus = p.MaxLengthBonus
		}
		xp += bonus
	}
	if xp < 0 {
		return 0
	}
	return xp
}

// LooksLikeMedia reports whether a filename carries a recognized media
// extension.
func LooksLikeMedia(filename string) bool {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 || idx == len(filename)-1 {
		return false
	}
	_, ok := mediaExts[strings.ToLower(filename[idx+1:])]
	return ok
}

// VoiceXP converts accrued voice seconds into XP, counting whole minutes
// only. Callers carry the sub-minute remainder to the next tick.
func VoiceXP(xpPerMinute, seconds int64) int64 {
	if xpPerMinute <= 0 || seconds <= 0 {
		return 0
	}
	return (seconds / 60) * xpPerMinute
}

// CountingSuccessXP is the flat per-participant reward for a completed
// counting round, doubled while a power-up window is active.
func CountingSuccessXP(base int64, powerUpActive bool) int64 {
	if base <= 0 {
		return 0
	}
	if powerUpActive {
		return base * 2
	}
	return base
}

// LevelForXP derives a level from total XP via floor(xp^power). The result
// is deterministic and monotonic non-decreasing in xp for any fixed
// exponent >= 0, which leaderboard and role-sync callers rely on.
func LevelForXP(xp int64, power float64) int64 {
	if xp <= 0 {
		return 0
	}
	if power < 0 {
		power = 0
	}
	return int64(math.Pow(float64(xp), power))
}

// CrossedThresholds returns, in ascending order, every threshold t with
// prev < t <= next. A single counter bump may cross zero, one, or several
// thresholds; each must be rewarded exactly once.
func CrossedThresholds(thresholds []int64, prev, next int64) []int64 {
	sorted := append([]int64(nil), thresholds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	var crossed []int64
	for _, t := range sorted {
		if prev < t && t <= next {
			crossed = append(crossed, t)
		}
	}
	return crossed
}

// LevelRole couples a level threshold with the tier role it unlocks.
type LevelRole struct {
	Threshold int64
	Role      RoleID
}

// TargetLevelRole resolves the single tier a member should hold: the role
// of the highest threshold <= level, or "" when below every threshold.
func TargetLevelRole(roles []LevelRole, level int64) RoleID {
	sorted := append([]LevelRole(nil), roles...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })
	var target RoleID
	for _, lr := range sorted {
		if lr.Threshold <= level {
			target = lr.Role
		}
	}
	return target
}

// PenaltyOutcome is the result of a counting-break penalty computation.
type PenaltyOutcome struct {
	XPLoss    int64
	LevelLoss int64
	NewXP     int64
	NewLevel  int64
}

// CountingPenalty applies the double-capped break penalty: XP drops by a
// percentage (clamped at zero) and level drops by both the percentage
// deduction and the ceiling the new XP naturally justifies.
func CountingPenalty(currentXP, currentLevel int64, xpLossPercent, levelLossPercent, levelPower float64) PenaltyOutcome {
	xpLoss := int64(math.Floor(float64(currentXP) * xpLossPercent / 100.0))
	levelLoss := int64(math.Floor(float64(currentLevel) * levelLossPercent / 100.0))

	newXP := currentXP - xpLoss
	if newXP < 0 {
		newXP = 0
	}
	targetLevel := currentLevel - levelLoss
	if targetLevel < 0 {
		targetLevel = 0
	}
	computed := LevelForXP(newXP, levelPower)
	newLevel := targetLevel
	if computed < newLevel {
		newLevel = computed
	}
	return PenaltyOutcome{XPLoss: xpLoss, LevelLoss: levelLoss, NewXP: newXP, NewLevel: newLevel}
}
