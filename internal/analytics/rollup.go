package analytics

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/affora/partner-hub/internal/models"
	"github.com/affora/partner-hub/internal/storage"
)

// DefaultPeriod is used when the requested period is empty or unknown.
const DefaultPeriod = "30d"

func normalizePeriod(period string) string {
	switch period {
	case "7d", "30d", "90d", "1y":
		return period
	default:
		return DefaultPeriod
	}
}

// ResolveWindow converts a symbolic period into the absolute window
// start relative to now. Unrecognized periods fall back to the 30-day
// default rather than failing.
func ResolveWindow(period string, now time.Time) time.Time {
	switch period {
	case "7d":
		return now.AddDate(0, 0, -7)
	case "30d":
		return now.AddDate(0, 0, -30)
	case "90d":
		return now.AddDate(0, 0, -90)
	case "1y":
		return now.AddDate(-1, 0, 0)
	default:
		return now.AddDate(0, 0, -30)
	}
}

// Totals sums the denormalized stats of every qualifying link.
type Totals struct {
	TotalClicks  int64   `json:"total_clicks"`
	UniqueClicks int64   `json:"unique_clicks"`
	Conversions  int64   `json:"conversions"`
	Revenue      float64 `json:"revenue"`
	LinkCount    int     `json:"link_count"`
}

// DailyPoint is one bucket of the sparse daily series. Date is a UTC
// calendar day (YYYY-MM-DD); days with zero events are omitted, so the
// series is not a contiguous range.
type DailyPoint struct {
	Date        string  `json:"date"`
	Clicks      int64   `json:"clicks"`
	Conversions int64   `json:"conversions"`
	Revenue     float64 `json:"revenue"`
}

// ServiceStats aggregates qualifying links per affiliate service.
type ServiceStats struct {
	Service     string  `json:"service"`
	Clicks      int64   `json:"clicks"`
	Conversions int64   `json:"conversions"`
	Revenue     float64 `json:"revenue"`
}

// GeoStats aggregates click events per country.
type GeoStats struct {
	Country     string `json:"country"`
	Clicks      int64  `json:"clicks"`
	Conversions int64  `json:"conversions"`
}

// Overview is the full rollup for one user and window. It is computed
// fresh per request and never persisted.
type Overview struct {
	Period      string         `json:"period"`
	Totals      Totals         `json:"overview"`
	Daily       []DailyPoint   `json:"daily_stats"`
	TopServices []ServiceStats `json:"top_services"`
	Geo         []GeoStats     `json:"geo_stats"`
}

const (
	topServicesLimit = 5
	topGeoLimit      = 10
)

// Service computes rollups, revenue history and performance metrics
// from the link and event stores. All reads; safe for arbitrary
// request-level parallelism.
type Service struct {
	links  storage.LinkRepo
	events storage.EventStore
	logger *zap.Logger
}

// NewService creates a new analytics service.
func NewService(links storage.LinkRepo, events storage.EventStore, logger *zap.Logger) *Service {
	return &Service{
		links:  links,
		events: events,
		logger: logger,
	}
}

// ComputeOverview returns the aggregated overview for one user. A user
// with no qualifying links gets an all-zero overview, not an error. The
// four sub-results share the same filtered input set and are computed
// independently of each other.
func (s *Service) ComputeOverview(ctx context.Context, userID, period string) (*Overview, error) {
	period = normalizePeriod(period)
	since := ResolveWindow(period, time.Now().UTC())

	links, err := s.links.ListByUserCreatedSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	ov := &Overview{
		Period:      period,
		Daily:       []DailyPoint{},
		TopServices: []ServiceStats{},
		Geo:         []GeoStats{},
	}
	if len(links) == 0 {
		return ov, nil
	}

	linkIDs := make([]string, 0, len(links))
	for _, l := range links {
		linkIDs = append(linkIDs, l.ID)
	}
	events, err := s.events.ListByLinks(ctx, linkIDs)
	if err != nil {
		return nil, err
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		ov.Totals = sumTotals(links)
		return nil
	})
	g.Go(func() error {
		ov.Daily = dailySeries(events)
		return nil
	})
	g.Go(func() error {
		ov.TopServices = topServices(links)
		return nil
	})
	g.Go(func() error {
		ov.Geo = topGeo(events)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return ov, nil
}

func sumTotals(links []*models.PartnerLink) Totals {
	var t Totals
	for _, l := range links {
		t.TotalClicks += l.Stats.TotalClicks
		t.UniqueClicks += l.Stats.UniqueClicks
		t.Conversions += l.Stats.Conversions
		t.Revenue += l.Stats.Revenue
	}
	t.LinkCount = len(links)
	return t
}

func dailySeries(events []*models.ClickEvent) []DailyPoint {
	byDay := make(map[string]*DailyPoint)
	for _, ev := range events {
		day := ev.Day()
		p, ok := byDay[day]
		if !ok {
			p = &DailyPoint{Date: day}
			byDay[day] = p
		}
		p.Clicks++
		if ev.Converted {
			p.Conversions++
			p.Revenue += ev.ConversionValue
		}
	}

	series := make([]DailyPoint, 0, len(byDay))
	for _, p := range byDay {
		series = append(series, *p)
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].Date < series[j].Date
	})
	return series
}

func topServices(links []*models.PartnerLink) []ServiceStats {
	byService := make(map[string]*ServiceStats)
	order := make([]string, 0)
	for _, l := range links {
		st, ok := byService[l.Service]
		if !ok {
			st = &ServiceStats{Service: l.Service}
			byService[l.Service] = st
			order = append(order, l.Service)
		}
		st.Clicks += l.Stats.TotalClicks
		st.Conversions += l.Stats.Conversions
		st.Revenue += l.Stats.Revenue
	}

	// Walk groups in first-seen link order so revenue ties stay stable.
	result := make([]ServiceStats, 0, len(order))
	for _, svc := range order {
		result = append(result, *byService[svc])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Revenue > result[j].Revenue
	})
	if len(result) > topServicesLimit {
		result = result[:topServicesLimit]
	}
	return result
}

func topGeo(events []*models.ClickEvent) []GeoStats {
	byCountry := make(map[string]*GeoStats)
	order := make([]string, 0)
	for _, ev := range events {
		if ev.Country == "" {
			continue
		}
		st, ok := byCountry[ev.Country]
		if !ok {
			st = &GeoStats{Country: ev.Country}
			byCountry[ev.Country] = st
			order = append(order, ev.Country)
		}
		st.Clicks++
		if ev.Converted {
			st.Conversions++
		}
	}

	result := make([]GeoStats, 0, len(order))
	for _, c := range order {
		result = append(result, *byCountry[c])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Clicks > result[j].Clicks
	})
	if len(result) > topGeoLimit {
		result = result[:topGeoLimit]
	}
	return result
}

// RevenueHistory returns the last 90 days of the user's daily revenue
// series, the input the forecaster works from.
func (s *Service) RevenueHistory(ctx context.Context, userID string) ([]DailyPoint, error) {
	since := time.Now().UTC().AddDate(0, 0, -90)

	links, err := s.links.ListByUserCreatedSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return []DailyPoint{}, nil
	}

	linkIDs := make([]string, 0, len(links))
	for _, l := range links {
		linkIDs = append(linkIDs, l.ID)
	}
	events, err := s.events.ListByLinks(ctx, linkIDs)
	if err != nil {
		return nil, err
	}
	return dailySeries(events), nil
}
