package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/affora/partner-hub/internal/models"
	"github.com/affora/partner-hub/internal/storage"
)

func TestResolveWindow(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		period string
		want   time.Time
	}{
		{"7d", now.AddDate(0, 0, -7)},
		{"30d", now.AddDate(0, 0, -30)},
		{"90d", now.AddDate(0, 0, -90)},
		{"1y", now.AddDate(-1, 0, 0)},
		{"", now.AddDate(0, 0, -30)},
		{"14d", now.AddDate(0, 0, -30)},
		{"garbage", now.AddDate(0, 0, -30)},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ResolveWindow(tc.period, now), "period %q", tc.period)
	}
}

func newOverviewFixture(t *testing.T) (*Service, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	svc := NewService(store.Links(), store.Events(), zap.NewNop())
	return svc, store
}

func seedLink(t *testing.T, store *storage.MemoryStore, id, userID, service string, age time.Duration, stats models.LinkStats) {
	t.Helper()
	err := store.Links().Create(context.Background(), &models.PartnerLink{
		ID:        id,
		UserID:    userID,
		Service:   service,
		TargetURL: "https://example.com",
		CreatedAt: time.Now().UTC().Add(-age),
		Stats:     stats,
	})
	require.NoError(t, err)
}

func seedEvent(t *testing.T, store *storage.MemoryStore, id, linkID, country string, at time.Time, converted bool, value float64) {
	t.Helper()
	err := store.Events().SaveEvent(context.Background(), &models.ClickEvent{
		ID:              id,
		LinkID:          linkID,
		Timestamp:       at,
		Country:         country,
		Converted:       converted,
		ConversionValue: value,
	})
	require.NoError(t, err)
}

func TestComputeOverview_EmptyUser(t *testing.T) {
	svc, _ := newOverviewFixture(t)

	ov, err := svc.ComputeOverview(context.Background(), "nobody", "30d")
	require.NoError(t, err)
	assert.Equal(t, "30d", ov.Period)
	assert.Equal(t, Totals{}, ov.Totals)
	assert.Empty(t, ov.Daily)
	assert.Empty(t, ov.TopServices)
	assert.Empty(t, ov.Geo)
	assert.NotNil(t, ov.Daily, "empty series must encode as [] not null")
}

func TestComputeOverview_UnknownPeriodFallsBack(t *testing.T) {
	svc, _ := newOverviewFixture(t)

	ov, err := svc.ComputeOverview(context.Background(), "nobody", "14d")
	require.NoError(t, err)
	assert.Equal(t, "30d", ov.Period)
}

func TestComputeOverview_TotalsWindowByLinkCreation(t *testing.T) {
	svc, store := newOverviewFixture(t)

	seedLink(t, store, "recent", "u1", "amazon", 5*24*time.Hour, models.LinkStats{
		TotalClicks: 10, UniqueClicks: 7, Conversions: 2, Revenue: 40,
	})
	// Created before the window start, so excluded entirely.
	seedLink(t, store, "ancient", "u1", "ebay", 60*24*time.Hour, models.LinkStats{
		TotalClicks: 999, Revenue: 9999,
	})

	ov, err := svc.ComputeOverview(context.Background(), "u1", "30d")
	require.NoError(t, err)
	assert.Equal(t, int64(10), ov.Totals.TotalClicks)
	assert.Equal(t, int64(7), ov.Totals.UniqueClicks)
	assert.Equal(t, int64(2), ov.Totals.Conversions)
	assert.Equal(t, 40.0, ov.Totals.Revenue)
	assert.Equal(t, 1, ov.Totals.LinkCount)
}

func TestComputeOverview_DailySeriesSparseAscending(t *testing.T) {
	svc, store := newOverviewFixture(t)
	seedLink(t, store, "l1", "u1", "amazon", time.Hour, models.LinkStats{})

	now := time.Now().UTC()
	seedEvent(t, store, "e1", "l1", "US", now, false, 0)
	seedEvent(t, store, "e2", "l1", "US", now.AddDate(0, 0, -3), true, 25)
	seedEvent(t, store, "e3", "l1", "DE", now.AddDate(0, 0, -3), false, 0)
	// Nothing on the days in between: the series stays sparse.

	ov, err := svc.ComputeOverview(context.Background(), "u1", "7d")
	require.NoError(t, err)
	require.Len(t, ov.Daily, 2)
	assert.Less(t, ov.Daily[0].Date, ov.Daily[1].Date)
	assert.Equal(t, int64(2), ov.Daily[0].Clicks)
	assert.Equal(t, int64(1), ov.Daily[0].Conversions)
	assert.Equal(t, 25.0, ov.Daily[0].Revenue)
	assert.Equal(t, int64(1), ov.Daily[1].Clicks)
}

func TestComputeOverview_TopServicesByRevenue(t *testing.T) {
	svc, store := newOverviewFixture(t)

	services := []struct {
		id      string
		service string
		revenue float64
	}{
		{"l1", "amazon", 50},
		{"l2", "ebay", 300},
		{"l3", "etsy", 100},
		{"l4", "shopify", 200},
		{"l5", "walmart", 75},
		{"l6", "target", 25},
	}
	for i, s := range services {
		seedLink(t, store, s.id, "u1", s.service, time.Duration(i+1)*time.Hour, models.LinkStats{Revenue: s.revenue})
	}

	ov, err := svc.ComputeOverview(context.Background(), "u1", "30d")
	require.NoError(t, err)
	require.Len(t, ov.TopServices, 5, "only the top five services are reported")
	assert.Equal(t, "ebay", ov.TopServices[0].Service)
	assert.Equal(t, "shopify", ov.TopServices[1].Service)
	assert.Equal(t, "etsy", ov.TopServices[2].Service)
	assert.Equal(t, "walmart", ov.TopServices[3].Service)
	assert.Equal(t, "amazon", ov.TopServices[4].Service)
}

func TestComputeOverview_TopServicesTieKeepsInputOrder(t *testing.T) {
	svc, store := newOverviewFixture(t)

	seedLink(t, store, "l1", "u1", "first", 3*time.Hour, models.LinkStats{Revenue: 100})
	seedLink(t, store, "l2", "u1", "second", 2*time.Hour, models.LinkStats{Revenue: 100})

	ov, err := svc.ComputeOverview(context.Background(), "u1", "30d")
	require.NoError(t, err)
	require.Len(t, ov.TopServices, 2)
	assert.Equal(t, "first", ov.TopServices[0].Service)
	assert.Equal(t, "second", ov.TopServices[1].Service)
}

func TestComputeOverview_GeoTopCountriesByClicks(t *testing.T) {
	svc, store := newOverviewFixture(t)
	seedLink(t, store, "l1", "u1", "amazon", time.Hour, models.LinkStats{})

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		seedEvent(t, store, "us"+string(rune('0'+i)), "l1", "US", now, false, 0)
	}
	seedEvent(t, store, "de0", "l1", "DE", now, true, 10)
	seedEvent(t, store, "unknown", "l1", "", now, false, 0)

	ov, err := svc.ComputeOverview(context.Background(), "u1", "7d")
	require.NoError(t, err)
	require.Len(t, ov.Geo, 2, "events without a country are skipped")
	assert.Equal(t, "US", ov.Geo[0].Country)
	assert.Equal(t, int64(3), ov.Geo[0].Clicks)
	assert.Equal(t, "DE", ov.Geo[1].Country)
	assert.Equal(t, int64(1), ov.Geo[1].Conversions)
}

func TestRevenueHistory_EmptyWithoutLinks(t *testing.T) {
	svc, _ := newOverviewFixture(t)

	history, err := svc.RevenueHistory(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.NotNil(t, history)
}
