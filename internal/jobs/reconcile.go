package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/affora/partner-hub/internal/models"
	"github.com/affora/partner-hub/internal/storage"
)

// Reconciler recomputes the denormalized link stats from the click
// event log. The event log is the source of truth; if a stat fold was
// lost (a crash between event write and stat update), this job repairs
// the drift.
type Reconciler struct {
	links  storage.LinkRepo
	events storage.EventStore
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(links storage.LinkRepo, events storage.EventStore, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		links:  links,
		events: events,
		logger: logger,
	}
}

// Schedule registers the reconcile run on the given cron with spec
// (e.g. "@hourly") and starts the cron.
func (r *Reconciler) Schedule(c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := r.Run(ctx); err != nil {
			r.logger.Error("stats reconciliation failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	r.logger.Info("stats reconciliation scheduled", zap.String("spec", spec))
	return nil
}

// Run recomputes stats for every link. Per-link failures are logged
// and skipped so one bad link does not starve the rest.
func (r *Reconciler) Run(ctx context.Context) error {
	start := time.Now()

	links, err := r.links.ListAll(ctx)
	if err != nil {
		return err
	}

	var repaired int
	for _, link := range links {
		events, err := r.events.ListByLink(ctx, link.ID)
		if err != nil {
			r.logger.Warn("failed to load events for link",
				zap.String("link_id", link.ID),
				zap.Error(err),
			)
			continue
		}

		stats := RecomputeStats(events)
		if stats == link.Stats {
			continue
		}

		if err := r.links.ReplaceStats(ctx, link.ID, stats); err != nil {
			r.logger.Warn("failed to replace link stats",
				zap.String("link_id", link.ID),
				zap.Error(err),
			)
			continue
		}
		repaired++
		r.logger.Info("link stats repaired",
			zap.String("link_id", link.ID),
			zap.Int64("total_clicks", stats.TotalClicks),
			zap.Int64("conversions", stats.Conversions),
		)
	}

	r.logger.Info("stats reconciliation finished",
		zap.Int("links", len(links)),
		zap.Int("repaired", repaired),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// RecomputeStats derives link stats from scratch out of the event log.
// A click is unique when it is the first event from its visitor on
// that link during its UTC day; events without a visitor id never
// count as unique.
func RecomputeStats(events []*models.ClickEvent) models.LinkStats {
	var stats models.LinkStats
	seen := make(map[string]struct{})

	for _, ev := range events {
		stats.TotalClicks++
		if ev.VisitorID != "" {
			key := ev.Day() + ":" + ev.VisitorID
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				stats.UniqueClicks++
			}
		}
		if ev.Converted {
			stats.Conversions++
			stats.Revenue += ev.ConversionValue
		}
	}

	stats.Recalculate()
	return stats
}
