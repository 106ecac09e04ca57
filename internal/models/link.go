package models

import (
	"time"
)

// ===========================================
// PARTNER LINK
// ===========================================

// PartnerLink is a trackable outbound URL owned by one user and tied to
// one affiliate service.
type PartnerLink struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Service   string    `json:"service"`
	TargetURL string    `json:"target_url"`
	CreatedAt time.Time `json:"created_at"`

	// Denormalized running stats. These are a cache over the click event
	// log and must always be derivable from it; they are folded in the
	// same transaction that appends the event.
	Stats LinkStats `json:"stats"`
}

// LinkStats aggregates click and conversion metrics for a single link.
type LinkStats struct {
	TotalClicks    int64   `json:"total_clicks"`
	UniqueClicks   int64   `json:"unique_clicks"`
	Conversions    int64   `json:"conversions"`
	Revenue        float64 `json:"revenue"`
	ConversionRate float64 `json:"conversion_rate"` // percent
}

// Recalculate updates the derived conversion rate after a fold.
func (s *LinkStats) Recalculate() {
	if s.TotalClicks > 0 {
		s.ConversionRate = float64(s.Conversions) / float64(s.TotalClicks) * 100
	} else {
		s.ConversionRate = 0
	}
}

// ===========================================
// CLICK EVENT
// ===========================================

// ClickEvent is a write-once fact recorded per tracked click. A converted
// click carries the monetary value of the completed action.
type ClickEvent struct {
	ID        string    `json:"id"`
	LinkID    string    `json:"link_id"`
	Timestamp time.Time `json:"timestamp"`

	// Visitor info
	VisitorID string `json:"visitor_id,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	// Geo info (resolved from IP when a geo provider is configured)
	Country string `json:"country,omitempty"`

	// Conversion info. ConversionValue is meaningful only when Converted.
	Converted       bool    `json:"converted"`
	ConversionValue float64 `json:"conversion_value,omitempty"`
}

// Day returns the UTC calendar day the event belongs to, in the
// YYYY-MM-DD form used for daily buckets and dedup keys.
func (e *ClickEvent) Day() string {
	return e.Timestamp.UTC().Format("2006-01-02")
}
