package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/affora/partner-hub/internal/models"
)

// PostgresGameRepo implements GameRepo using PostgreSQL. Both fold
// operations are single statements: ApplyScore upserts with GREATEST,
// and ClaimDailyReward is a date-guarded conditional UPDATE, so two
// concurrent claims for the same user and day cannot both succeed.
type PostgresGameRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresGameRepo(pool *pgxpool.Pool) *PostgresGameRepo {
	return &PostgresGameRepo{pool: pool}
}

func (r *PostgresGameRepo) SaveStat(ctx context.Context, st *models.GameStat) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO game_stats (id, user_id, score, level, time_played,
			achievements, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, st.ID, st.UserID, st.Score, st.Level, st.TimePlayed,
		st.Achievements, st.IP, st.UserAgent, st.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save game stat: %w", err)
	}
	return nil
}

func (r *PostgresGameRepo) ListStatsByUser(ctx context.Context, userID string) ([]*models.GameStat, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, score, level, time_played, achievements,
			ip, user_agent, created_at
		FROM game_stats WHERE user_id = $1 ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list game stats: %w", err)
	}
	defer rows.Close()

	var stats []*models.GameStat
	for rows.Next() {
		var st models.GameStat
		if err := rows.Scan(&st.ID, &st.UserID, &st.Score, &st.Level,
			&st.TimePlayed, &st.Achievements, &st.IP, &st.UserAgent,
			&st.CreatedAt); err != nil {
			return nil, err
		}
		stats = append(stats, &st)
	}
	return stats, rows.Err()
}

func (r *PostgresGameRepo) GetProfile(ctx context.Context, userID string) (*models.GameProfile, error) {
	var p models.GameProfile
	var lastReward *string
	var lastPlayed *time.Time

	err := r.pool.QueryRow(ctx, `
		SELECT user_id, high_score, total_play_time, balance,
			last_daily_reward, last_played
		FROM game_profiles WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.HighScore, &p.TotalPlayTime, &p.Balance,
		&lastReward, &lastPlayed)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game profile: %w", err)
	}

	if lastReward != nil {
		p.LastDailyReward = *lastReward
	}
	if lastPlayed != nil {
		p.LastPlayed = *lastPlayed
	}
	return &p, nil
}

func (r *PostgresGameRepo) ApplyScore(ctx context.Context, userID string, score, timePlayed int64, playedAt time.Time) (*models.GameProfile, error) {
	var p models.GameProfile
	var lastReward *string
	var lastPlayed *time.Time

	err := r.pool.QueryRow(ctx, `
		INSERT INTO game_profiles (user_id, high_score, total_play_time, balance, last_played)
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			high_score = GREATEST(game_profiles.high_score, EXCLUDED.high_score),
			total_play_time = game_profiles.total_play_time + EXCLUDED.total_play_time,
			last_played = EXCLUDED.last_played
		RETURNING user_id, high_score, total_play_time, balance,
			last_daily_reward, last_played
	`, userID, score, timePlayed, playedAt).Scan(&p.UserID, &p.HighScore,
		&p.TotalPlayTime, &p.Balance, &lastReward, &lastPlayed)

	if err != nil {
		return nil, fmt.Errorf("failed to apply score: %w", err)
	}

	if lastReward != nil {
		p.LastDailyReward = *lastReward
	}
	if lastPlayed != nil {
		p.LastPlayed = *lastPlayed
	}
	return &p, nil
}

func (r *PostgresGameRepo) ClaimDailyReward(ctx context.Context, userID, day string, reward int64) (int64, error) {
	// Make sure the profile row exists so the guarded update below has
	// something to hit for first-time players.
	_, err := r.pool.Exec(ctx, `
		INSERT INTO game_profiles (user_id, high_score, total_play_time, balance)
		VALUES ($1, 0, 0, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to ensure game profile: %w", err)
	}

	var balance int64
	err = r.pool.QueryRow(ctx, `
		UPDATE game_profiles
		SET balance = balance + $2, last_daily_reward = $3
		WHERE user_id = $1
			AND (last_daily_reward IS NULL OR last_daily_reward <> $3)
		RETURNING balance
	`, userID, reward, day).Scan(&balance)

	if err == pgx.ErrNoRows {
		return 0, ErrAlreadyClaimed
	}
	if err != nil {
		return 0, fmt.Errorf("failed to claim daily reward: %w", err)
	}
	return balance, nil
}

func (r *PostgresGameRepo) Leaderboard(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.user_id, COALESCE(u.name, ''), COALESCE(u.avatar, ''),
			COALESCE(u.tier, ''), p.high_score, p.total_play_time
		FROM game_profiles p
		LEFT JOIN users u ON u.id = p.user_id
		WHERE p.high_score > 0
		ORDER BY p.high_score DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []*models.LeaderboardEntry
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Name, &e.Avatar, &e.Tier,
			&e.HighScore, &e.TotalPlayTime); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (r *PostgresGameRepo) AchievementSummary(ctx context.Context, userID string) ([]*models.AchievementSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.name, COUNT(*), MAX(s.created_at)
		FROM game_stats s, UNNEST(s.achievements) AS a(name)
		WHERE s.user_id = $1
		GROUP BY a.name
		ORDER BY MAX(s.created_at) DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query achievements: %w", err)
	}
	defer rows.Close()

	var result []*models.AchievementSummary
	for rows.Next() {
		var sum models.AchievementSummary
		if err := rows.Scan(&sum.Name, &sum.Count, &sum.LastEarned); err != nil {
			return nil, err
		}
		result = append(result, &sum)
	}
	return result, rows.Err()
}
