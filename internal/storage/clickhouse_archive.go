package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/affora/partner-hub/internal/models"
)

// ClickHouseArchive implements ArchiveSink on top of ClickHouse. It
// keeps a second, append-only copy of every click event for offline
// analytics. The dashboard never reads it back, so async inserts are
// fine and a lost row costs nothing but warehouse completeness.
type ClickHouseArchive struct {
	conn driver.Conn
}

// NewClickHouseArchive connects to ClickHouse and verifies the
// connection before returning.
func NewClickHouseArchive(ctx context.Context, addr, database, username, password string) (*ClickHouseArchive, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return &ClickHouseArchive{conn: conn}, nil
}

func (a *ClickHouseArchive) ArchiveClick(ctx context.Context, ev *models.ClickEvent) error {
	err := a.conn.AsyncInsert(ctx, `
		INSERT INTO click_archive
			(id, link_id, ts, visitor_id, ip, user_agent, country, converted, conversion_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, false,
		ev.ID, ev.LinkID, ev.Timestamp, ev.VisitorID, ev.IP, ev.UserAgent,
		ev.Country, ev.Converted, ev.ConversionValue)

	if err != nil {
		return fmt.Errorf("failed to archive click: %w", err)
	}
	return nil
}

func (a *ClickHouseArchive) Close() error {
	return a.conn.Close()
}
