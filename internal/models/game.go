package models

import (
	"time"
)

// ===========================================
// GAME STAT (one record per play session)
// ===========================================

// GameStat is a write-once record of a single play session.
type GameStat struct {
	ID           string   `json:"id"`
	UserID       string   `json:"user_id"`
	Score        int64    `json:"score"`
	Level        int      `json:"level"`
	TimePlayed   int64    `json:"time_played"` // seconds
	Achievements []string `json:"achievements,omitempty"`

	// Client metadata
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ===========================================
// GAME PROFILE (per-user derived aggregate)
// ===========================================

// GameProfile is the per-user reward ledger. HighScore and TotalPlayTime
// are monotonically non-decreasing; Balance changes only through
// validated ledger operations.
type GameProfile struct {
	UserID        string `json:"user_id"`
	HighScore     int64  `json:"high_score"`
	TotalPlayTime int64  `json:"total_play_time"` // seconds
	Balance       int64  `json:"balance"`

	// UTC calendar day (YYYY-MM-DD) of the last successful daily-reward
	// claim. Empty when never claimed.
	LastDailyReward string    `json:"last_daily_reward,omitempty"`
	LastPlayed      time.Time `json:"last_played,omitempty"`
}

// LeaderboardEntry is the public view of a ranked player.
type LeaderboardEntry struct {
	UserID        string `json:"user_id"`
	Name          string `json:"name"`
	Avatar        string `json:"avatar,omitempty"`
	Tier          string `json:"tier,omitempty"`
	HighScore     int64  `json:"high_score"`
	TotalPlayTime int64  `json:"total_play_time"`
}

// AchievementSummary groups a user's earned achievements by name.
type AchievementSummary struct {
	Name       string    `json:"name"`
	Count      int64     `json:"count"`
	LastEarned time.Time `json:"last_earned"`
}
