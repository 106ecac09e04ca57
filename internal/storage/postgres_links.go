package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/affora/partner-hub/internal/models"
)

// PostgresLinkRepo implements LinkRepo using PostgreSQL. The stat folds
// are single UPDATE statements, so concurrent clicks on the same link
// never lose increments.
type PostgresLinkRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresLinkRepo(pool *pgxpool.Pool) *PostgresLinkRepo {
	return &PostgresLinkRepo{pool: pool}
}

const linkColumns = `id, user_id, service, target_url, created_at,
	total_clicks, unique_clicks, conversions, revenue, conversion_rate`

func scanLink(row pgx.Row) (*models.PartnerLink, error) {
	var l models.PartnerLink
	err := row.Scan(&l.ID, &l.UserID, &l.Service, &l.TargetURL, &l.CreatedAt,
		&l.Stats.TotalClicks, &l.Stats.UniqueClicks, &l.Stats.Conversions,
		&l.Stats.Revenue, &l.Stats.ConversionRate)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *PostgresLinkRepo) Create(ctx context.Context, l *models.PartnerLink) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO partner_links (id, user_id, service, target_url, created_at,
			total_clicks, unique_clicks, conversions, revenue, conversion_rate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, l.ID, l.UserID, l.Service, l.TargetURL, l.CreatedAt,
		l.Stats.TotalClicks, l.Stats.UniqueClicks, l.Stats.Conversions,
		l.Stats.Revenue, l.Stats.ConversionRate)

	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

func (r *PostgresLinkRepo) GetByID(ctx context.Context, id string) (*models.PartnerLink, error) {
	l, err := scanLink(r.pool.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM partner_links WHERE id = $1`, id))

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return l, nil
}

func (r *PostgresLinkRepo) ListByUser(ctx context.Context, userID string) ([]*models.PartnerLink, error) {
	return r.ListByUserCreatedSince(ctx, userID, time.Time{})
}

func (r *PostgresLinkRepo) ListByUserCreatedSince(ctx context.Context, userID string, since time.Time) ([]*models.PartnerLink, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+linkColumns+`
		FROM partner_links
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at ASC
	`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []*models.PartnerLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (r *PostgresLinkRepo) ListAll(ctx context.Context) ([]*models.PartnerLink, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+linkColumns+`
		FROM partner_links
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []*models.PartnerLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (r *PostgresLinkRepo) ApplyClick(ctx context.Context, linkID string, unique bool) error {
	uniqueInc := 0
	if unique {
		uniqueInc = 1
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE partner_links SET
			total_clicks = total_clicks + 1,
			unique_clicks = unique_clicks + $2,
			conversion_rate = conversions::float8 / (total_clicks + 1) * 100
		WHERE id = $1
	`, linkID, uniqueInc)

	if err != nil {
		return fmt.Errorf("failed to apply click: %w", err)
	}
	return nil
}

func (r *PostgresLinkRepo) ApplyConversion(ctx context.Context, linkID string, value float64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE partner_links SET
			conversions = conversions + 1,
			revenue = revenue + $2,
			conversion_rate = CASE WHEN total_clicks > 0
				THEN (conversions + 1)::float8 / total_clicks * 100 ELSE 0 END
		WHERE id = $1
	`, linkID, value)

	if err != nil {
		return fmt.Errorf("failed to apply conversion: %w", err)
	}
	return nil
}

func (r *PostgresLinkRepo) ReplaceStats(ctx context.Context, linkID string, stats models.LinkStats) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE partner_links SET
			total_clicks = $2,
			unique_clicks = $3,
			conversions = $4,
			revenue = $5,
			conversion_rate = $6
		WHERE id = $1
	`, linkID, stats.TotalClicks, stats.UniqueClicks, stats.Conversions,
		stats.Revenue, stats.ConversionRate)

	if err != nil {
		return fmt.Errorf("failed to replace stats: %w", err)
	}
	return nil
}
