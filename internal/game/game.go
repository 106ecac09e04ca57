package game

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/affora/partner-hub/internal/apperr"
	"github.com/affora/partner-hub/internal/metrics"
	"github.com/affora/partner-hub/internal/models"
	"github.com/affora/partner-hub/internal/notify"
	"github.com/affora/partner-hub/internal/storage"
)

// RewardAmounts are the possible daily reward payouts, drawn uniformly.
var RewardAmounts = []int64{50, 100, 150, 200, 300}

const leaderboardLimit = 100

// Service implements score submission, the leaderboard and the daily
// reward ledger.
type Service struct {
	users     storage.UserRepo
	repo      storage.GameRepo
	broadcast notify.Broadcaster
	rng       *rand.Rand
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewService creates a new game service. rng is the source for reward
// draws; the caller seeds it.
func NewService(
	users storage.UserRepo,
	repo storage.GameRepo,
	broadcast notify.Broadcaster,
	rng *rand.Rand,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	if broadcast == nil {
		broadcast = notify.NopBroadcaster{}
	}
	return &Service{
		users:     users,
		repo:      repo,
		broadcast: broadcast,
		rng:       rng,
		metrics:   m,
		logger:    logger,
	}
}

// ScoreParams holds one score submission.
type ScoreParams struct {
	UserID       string
	Score        int64
	Level        int
	TimePlayed   int64
	Achievements []string
	IP           string
	UserAgent    string
}

// RecordScore appends the raw stat, folds it into the player profile
// and broadcasts the result. The profile high score only moves up; a
// lower score still counts its play time.
func (s *Service) RecordScore(ctx context.Context, params *ScoreParams) (*models.GameProfile, error) {
	if params.UserID == "" {
		return nil, apperr.Validation("user id is required")
	}
	if params.Score < 0 {
		if s.metrics != nil {
			s.metrics.RecordScoreSubmission(false)
		}
		return nil, apperr.Validation("score must not be negative")
	}
	if params.TimePlayed < 0 {
		if s.metrics != nil {
			s.metrics.RecordScoreSubmission(false)
		}
		return nil, apperr.Validation("time played must not be negative")
	}

	user, err := s.users.GetByID(ctx, params.UserID)
	if err != nil {
		return nil, apperr.Store("load user", err)
	}
	if user == nil {
		return nil, apperr.NotFound("user not found")
	}

	now := time.Now().UTC()
	stat := &models.GameStat{
		ID:           uuid.New().String(),
		UserID:       params.UserID,
		Score:        params.Score,
		Level:        params.Level,
		TimePlayed:   params.TimePlayed,
		Achievements: params.Achievements,
		IP:           params.IP,
		UserAgent:    params.UserAgent,
		CreatedAt:    now,
	}
	if err := s.repo.SaveStat(ctx, stat); err != nil {
		return nil, apperr.Store("save game stat", err)
	}

	profile, err := s.repo.ApplyScore(ctx, params.UserID, params.Score, params.TimePlayed, now)
	if err != nil {
		return nil, apperr.Store("apply score", err)
	}

	if s.metrics != nil {
		s.metrics.RecordScoreSubmission(true)
	}

	s.broadcast.BroadcastScore(&notify.ScoreUpdate{
		UserID:  user.ID,
		Name:    user.Name,
		Score:   params.Score,
		Avatar:  user.Avatar,
		NewBest: params.Score >= profile.HighScore,
	})

	s.logger.Info("score recorded",
		zap.String("user_id", params.UserID),
		zap.Int64("score", params.Score),
		zap.Int64("high_score", profile.HighScore),
	)

	return profile, nil
}

// Leaderboard returns up to 100 players with a positive high score,
// best first.
func (s *Service) Leaderboard(ctx context.Context) ([]*models.LeaderboardEntry, error) {
	entries, err := s.repo.Leaderboard(ctx, leaderboardLimit)
	if err != nil {
		return nil, apperr.Store("load leaderboard", err)
	}
	return entries, nil
}

// RewardResult is the outcome of a granted daily reward claim.
type RewardResult struct {
	Amount  int64 `json:"amount"`
	Balance int64 `json:"balance"`
}

// ClaimDailyReward grants one random reward per player per UTC day.
// The second claim of the same day fails with the already-claimed
// error no matter how close together the claims land.
func (s *Service) ClaimDailyReward(ctx context.Context, userID string) (*RewardResult, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, apperr.Store("load user", err)
	}
	if user == nil {
		return nil, apperr.NotFound("user not found")
	}

	day := time.Now().UTC().Format("2006-01-02")
	amount := RewardAmounts[s.rng.Intn(len(RewardAmounts))]

	balance, err := s.repo.ClaimDailyReward(ctx, userID, day, amount)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyClaimed) {
			if s.metrics != nil {
				s.metrics.RecordRewardClaim(false, 0)
			}
			return nil, apperr.AlreadyClaimed("daily reward already claimed")
		}
		return nil, apperr.Store("claim daily reward", err)
	}

	if s.metrics != nil {
		s.metrics.RecordRewardClaim(true, amount)
	}

	s.logger.Info("daily reward claimed",
		zap.String("user_id", userID),
		zap.Int64("amount", amount),
		zap.Int64("balance", balance),
	)

	return &RewardResult{Amount: amount, Balance: balance}, nil
}

// Achievements summarizes how often the player earned each achievement.
func (s *Service) Achievements(ctx context.Context, userID string) ([]*models.AchievementSummary, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	summary, err := s.repo.AchievementSummary(ctx, userID)
	if err != nil {
		return nil, apperr.Store("load achievements", err)
	}
	return summary, nil
}

// Profile returns the player's profile, or a zero-valued one for a
// player who has not played yet.
func (s *Service) Profile(ctx context.Context, userID string) (*models.GameProfile, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, apperr.Store("load profile", err)
	}
	if profile == nil {
		profile = &models.GameProfile{UserID: userID}
	}
	return profile, nil
}
