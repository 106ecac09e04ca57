package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/affora/partner-hub/internal/models"
)

// PostgresEventStore implements EventStore using PostgreSQL.
type PostgresEventStore struct {
	pool *pgxpool.Pool
}

func NewPostgresEventStore(pool *pgxpool.Pool) *PostgresEventStore {
	return &PostgresEventStore{pool: pool}
}

const eventColumns = `id, link_id, ts, visitor_id, ip, user_agent, country,
	converted, conversion_value`

func scanEvent(row pgx.Row) (*models.ClickEvent, error) {
	var ev models.ClickEvent
	var country *string
	err := row.Scan(&ev.ID, &ev.LinkID, &ev.Timestamp, &ev.VisitorID, &ev.IP,
		&ev.UserAgent, &country, &ev.Converted, &ev.ConversionValue)
	if err != nil {
		return nil, err
	}
	if country != nil {
		ev.Country = *country
	}
	return &ev, nil
}

func (s *PostgresEventStore) SaveEvent(ctx context.Context, ev *models.ClickEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO click_events (id, link_id, ts, visitor_id, ip, user_agent,
			country, converted, conversion_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, ev.LinkID, ev.Timestamp, ev.VisitorID, ev.IP, ev.UserAgent,
		nullString(ev.Country), ev.Converted, ev.ConversionValue)

	if err != nil {
		return fmt.Errorf("failed to save click event: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) GetEvent(ctx context.Context, id string) (*models.ClickEvent, error) {
	ev, err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM click_events WHERE id = $1`, id))

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get click event: %w", err)
	}
	return ev, nil
}

func (s *PostgresEventStore) ListByLink(ctx context.Context, linkID string) ([]*models.ClickEvent, error) {
	return s.ListByLinks(ctx, []string{linkID})
}

func (s *PostgresEventStore) ListByLinks(ctx context.Context, linkIDs []string) ([]*models.ClickEvent, error) {
	if len(linkIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM click_events
		WHERE link_id = ANY($1)
		ORDER BY ts ASC
	`, linkIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list click events: %w", err)
	}
	defer rows.Close()

	var events []*models.ClickEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *PostgresEventStore) MarkConverted(ctx context.Context, id string, value float64) (*models.ClickEvent, error) {
	ev, err := scanEvent(s.pool.QueryRow(ctx, `
		UPDATE click_events
		SET converted = TRUE, conversion_value = $2
		WHERE id = $1 AND NOT converted
		RETURNING `+eventColumns, id, value))

	if err == pgx.ErrNoRows {
		// Either the click does not exist or it was converted already.
		existing, gerr := s.GetEvent(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		if existing == nil {
			return nil, nil
		}
		return nil, ErrAlreadyConverted
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark conversion: %w", err)
	}
	return ev, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
