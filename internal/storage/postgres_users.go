package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/affora/partner-hub/internal/models"
)

// PostgresUserRepo implements UserRepo using PostgreSQL.
type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, avatar, tier, api_key, advanced_features, created_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Avatar, &u.Tier, &u.APIKey, &u.AdvancedFeatures, &u.CreatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (r *PostgresUserRepo) GetByAPIKey(ctx context.Context, key string) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, avatar, tier, api_key, advanced_features, created_at
		FROM users WHERE api_key = $1
	`, key).Scan(&u.ID, &u.Name, &u.Avatar, &u.Tier, &u.APIKey, &u.AdvancedFeatures, &u.CreatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by key: %w", err)
	}
	return &u, nil
}

func (r *PostgresUserRepo) Upsert(ctx context.Context, u *models.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, name, avatar, tier, api_key, advanced_features, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			avatar = EXCLUDED.avatar,
			tier = EXCLUDED.tier,
			api_key = EXCLUDED.api_key,
			advanced_features = EXCLUDED.advanced_features
	`, u.ID, u.Name, u.Avatar, u.Tier, u.APIKey, u.AdvancedFeatures, u.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}
