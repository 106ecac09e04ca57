package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the dashboard backend.
type Metrics struct {
	// Tracking metrics
	Clicks       *prometheus.CounterVec
	UniqueClicks *prometheus.CounterVec
	Conversions  *prometheus.CounterVec
	Revenue      *prometheus.CounterVec
	DedupLatency *prometheus.HistogramVec

	// Game metrics
	ScoreSubmissions *prometheus.CounterVec
	RewardClaims     *prometheus.CounterVec
	RewardPayout     prometheus.Counter

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	// System metrics
	DBConnections *prometheus.GaugeVec
	RateLimitHits *prometheus.CounterVec
}

var (
	// DefaultMetrics is the global metrics instance
	DefaultMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		// Tracking metrics
		Clicks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clicks_total",
				Help:      "Total clicks recorded",
			},
			[]string{"service", "country"},
		),
		UniqueClicks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unique_clicks_total",
				Help:      "First clicks per visitor per link per day",
			},
			[]string{"service"},
		),
		Conversions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversions_total",
				Help:      "Total conversion postbacks applied",
			},
			[]string{"service"},
		),
		Revenue: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "revenue_dollars_total",
				Help:      "Total conversion revenue",
			},
			[]string{"service"},
		),
		DedupLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dedup_latency_seconds",
				Help:      "Visitor dedup check latency",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			},
			[]string{"backend"},
		),

		// Game metrics
		ScoreSubmissions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "score_submissions_total",
				Help:      "Score submissions by outcome",
			},
			[]string{"outcome"}, // accepted, rejected
		),
		RewardClaims: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reward_claims_total",
				Help:      "Daily reward claims by outcome",
			},
			[]string{"outcome"}, // granted, already_claimed
		),
		RewardPayout: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reward_payout_coins_total",
				Help:      "Total coins paid out by daily rewards",
			},
		),

		// HTTP metrics
		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
		HTTPLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_latency_seconds",
				Help:      "HTTP handler latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"route"},
		),

		// System metrics
		DBConnections: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections",
				Help:      "Database connection pool stats",
			},
			[]string{"state"}, // idle, in_use, total
		),
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"endpoint", "ip"},
		),
	}

	DefaultMetrics = m
	return m
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordClick records a click, counting the visitor's first click of
// the day separately.
func (m *Metrics) RecordClick(service, country string, unique bool) {
	m.Clicks.WithLabelValues(service, country).Inc()
	if unique {
		m.UniqueClicks.WithLabelValues(service).Inc()
	}
}

// RecordConversion records an applied conversion postback.
func (m *Metrics) RecordConversion(service string, revenue float64) {
	m.Conversions.WithLabelValues(service).Inc()
	if revenue > 0 {
		m.Revenue.WithLabelValues(service).Add(revenue)
	}
}

// RecordDedup records a visitor dedup check.
func (m *Metrics) RecordDedup(backend string, latency time.Duration) {
	m.DedupLatency.WithLabelValues(backend).Observe(latency.Seconds())
}

// RecordScoreSubmission records a score submission outcome.
func (m *Metrics) RecordScoreSubmission(accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	m.ScoreSubmissions.WithLabelValues(outcome).Inc()
}

// RecordRewardClaim records a daily reward claim attempt.
func (m *Metrics) RecordRewardClaim(granted bool, amount int64) {
	if granted {
		m.RewardClaims.WithLabelValues("granted").Inc()
		m.RewardPayout.Add(float64(amount))
		return
	}
	m.RewardClaims.WithLabelValues("already_claimed").Inc()
}

// RecordHTTPRequest records one handled HTTP request.
func (m *Metrics) RecordHTTPRequest(route string, status int, latency time.Duration) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(route).Observe(latency.Seconds())
}

// UpdateDBStats updates database connection metrics.
func (m *Metrics) UpdateDBStats(idle, inUse, total int) {
	m.DBConnections.WithLabelValues("idle").Set(float64(idle))
	m.DBConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.DBConnections.WithLabelValues("total").Set(float64(total))
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint, ip string) {
	m.RateLimitHits.WithLabelValues(endpoint, ip).Inc()
}
