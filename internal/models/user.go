package models

import (
	"time"
)

// User is the caller principal. Authentication itself lives at the edge;
// the core only needs the identity plus the few profile fields surfaced
// on the leaderboard and in recommendations.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Tier   string `json:"tier,omitempty"`

	// APIKey authenticates requests for this user.
	APIKey string `json:"-"`

	// AdvancedFeatures gates the growth recommendation.
	AdvancedFeatures bool `json:"advanced_features"`

	CreatedAt time.Time `json:"created_at"`
}
