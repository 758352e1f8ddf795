package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// UserRecord mirrors the public JSON surface of core.UserRecord.
type UserRecord struct {
	UserID                string `json:"user_id"`
	XP                    int64  `json:"xp"`
	Level                 int64  `json:"level"`
	TotalMessages         int64  `json:"total_messages"`
	TotalVoiceSeconds     int64  `json:"total_voice_seconds"`
	CountingSuccessRounds int64  `json:"counting_success_rounds"`
	CurrentStreakDays     int64  `json:"current_streak_days"`
}

// LeaderboardEntry is one row of a ranking response.
type LeaderboardEntry struct {
	UserID string `json:"user_id"`
	Value  int64  `json:"value"`
}

// Leaderboard is the /leaderboard response.
type Leaderboard struct {
	By      string             `json:"by"`
	Entries []LeaderboardEntry `json:"entries"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("request failed: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyUserID is returned when user id is empty.
var ErrEmptyUserID = errors.New("user id is required")
