package analytics

import (
	"context"

	"github.com/affora/partner-hub/internal/models"
)

// Performance is the per-user snapshot the recommendation rules are
// evaluated against. Unlike the overview it spans the user's whole
// link set with no time window.
type Performance struct {
	AvgConversionRate  float64 `json:"avg_conversion_rate"`
	AvgRevenuePerClick float64 `json:"avg_revenue_per_click"`
	TotalRevenue       float64 `json:"total_revenue"`
	LinkCount          int     `json:"link_count"`
	AdvancedFeatures   bool    `json:"advanced_features"`
}

// Recommendation is one piece of advice produced by the rule set.
type Recommendation struct {
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	Actions     []string `json:"actions"`
}

// AnalyzePerformance computes the rule inputs for one user from all of
// their links.
func (s *Service) AnalyzePerformance(ctx context.Context, user *models.User) (*Performance, error) {
	links, err := s.links.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	perf := &Performance{
		LinkCount:        len(links),
		AdvancedFeatures: user.AdvancedFeatures,
	}
	var totalClicks int64
	var rateSum float64
	for _, l := range links {
		totalClicks += l.Stats.TotalClicks
		perf.TotalRevenue += l.Stats.Revenue
		rateSum += l.Stats.ConversionRate
	}
	if len(links) > 0 {
		perf.AvgConversionRate = rateSum / float64(len(links))
	}
	if totalClicks > 0 {
		perf.AvgRevenuePerClick = perf.TotalRevenue / float64(totalClicks)
	}
	return perf, nil
}

// Recommend evaluates every rule against the snapshot. Rules are
// independent; the result keeps rule-declaration order and may be
// empty. Adding a rule means appending to this list.
func Recommend(perf *Performance) []Recommendation {
	recs := []Recommendation{}

	if perf.AvgConversionRate < 2.0 {
		recs = append(recs, Recommendation{
			Type:        "conversion",
			Title:       "Improve your conversion rate",
			Description: "Your average conversion rate is below 2%. Better targeting and landing pages usually move this number first.",
			Priority:    "high",
			Actions: []string{
				"Review which traffic sources convert worst and pause them",
				"Match landing pages to the ad creative",
				"Add clear calls to action above the fold",
			},
		})
	}

	if perf.LinkCount < 3 {
		recs = append(recs, Recommendation{
			Type:        "diversification",
			Title:       "Diversify your partner links",
			Description: "You are promoting fewer than three services. Spreading across more offers reduces dependence on a single payout.",
			Priority:    "medium",
			Actions: []string{
				"Browse the partner catalog for adjacent services",
				"Create links for at least two more offers",
			},
		})
	}

	if perf.TotalRevenue > 10000 && !perf.AdvancedFeatures {
		recs = append(recs, Recommendation{
			Type:        "growth",
			Title:       "Unlock advanced features",
			Description: "Your revenue qualifies you for advanced tooling: deeper reports, API access and custom domains.",
			Priority:    "medium",
			Actions: []string{
				"Enable advanced features in your account settings",
				"Set up conversion postbacks for your top offers",
			},
		})
	}

	return recs
}
