package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/affora/partner-hub/internal/apperr"
	"github.com/affora/partner-hub/internal/geo"
	"github.com/affora/partner-hub/internal/metrics"
	"github.com/affora/partner-hub/internal/models"
	"github.com/affora/partner-hub/internal/storage"
)

// Service records click and conversion events. Every click is appended
// to the event store and folded into the owning link's denormalized
// stats; a copy goes to the analytics archive when one is configured.
type Service struct {
	links   storage.LinkRepo
	events  storage.EventStore
	dedup   storage.DedupStore
	archive storage.ArchiveSink
	geo     geo.Resolver
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewService creates a new tracking service. archive may be nil;
// metrics may be nil in tests.
func NewService(
	links storage.LinkRepo,
	events storage.EventStore,
	dedup storage.DedupStore,
	archive storage.ArchiveSink,
	geoResolver geo.Resolver,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	if geoResolver == nil {
		geoResolver = geo.NopResolver{}
	}
	return &Service{
		links:   links,
		events:  events,
		dedup:   dedup,
		archive: archive,
		geo:     geoResolver,
		metrics: m,
		logger:  logger,
	}
}

// ClickParams holds parameters for click registration.
type ClickParams struct {
	LinkID    string
	VisitorID string
	IP        string
	UserAgent string
}

// ClickResult holds the result of click registration.
type ClickResult struct {
	ClickID     string
	RedirectURL string
	Unique      bool
}

// RegisterClick records one click against a partner link and returns
// the target URL to redirect the visitor to. The click counts as
// unique when it is the visitor's first click on this link during the
// current UTC day. Stats and archive writes are best-effort once the
// event itself is stored.
func (s *Service) RegisterClick(ctx context.Context, params *ClickParams) (*ClickResult, error) {
	if params.LinkID == "" {
		return nil, apperr.Validation("link id is required")
	}

	link, err := s.links.GetByID(ctx, params.LinkID)
	if err != nil {
		return nil, apperr.Store("load link", err)
	}
	if link == nil {
		return nil, apperr.NotFound("link not found")
	}

	now := time.Now().UTC()
	ev := &models.ClickEvent{
		ID:        uuid.New().String(),
		LinkID:    link.ID,
		Timestamp: now,
		VisitorID: params.VisitorID,
		IP:        params.IP,
		UserAgent: params.UserAgent,
		Country:   s.geo.Country(params.IP),
	}

	unique := false
	if params.VisitorID != "" && s.dedup != nil {
		start := time.Now()
		unique, err = s.dedup.MarkVisitor(ctx, link.ID, ev.Day(), params.VisitorID)
		if err != nil {
			// A dedup failure must not drop the click; count it as a repeat.
			s.logger.Warn("visitor dedup failed",
				zap.String("link_id", link.ID),
				zap.Error(err),
			)
			unique = false
		}
		if s.metrics != nil {
			s.metrics.RecordDedup("store", time.Since(start))
		}
	}

	if err := s.events.SaveEvent(ctx, ev); err != nil {
		return nil, apperr.Store("save click event", err)
	}

	if err := s.links.ApplyClick(ctx, link.ID, unique); err != nil {
		s.logger.Error("failed to apply click to link stats",
			zap.String("link_id", link.ID),
			zap.String("click_id", ev.ID),
			zap.Error(err),
		)
		// Continue anyway - the event log is the source of truth and
		// reconciliation repairs the stats.
	}

	if s.archive != nil {
		if err := s.archive.ArchiveClick(ctx, ev); err != nil {
			s.logger.Warn("failed to archive click", zap.String("click_id", ev.ID), zap.Error(err))
		}
	}

	if s.metrics != nil {
		s.metrics.RecordClick(link.Service, ev.Country, unique)
	}

	s.logger.Info("click registered",
		zap.String("click_id", ev.ID),
		zap.String("link_id", link.ID),
		zap.String("country", ev.Country),
		zap.Bool("unique", unique),
	)

	return &ClickResult{
		ClickID:     ev.ID,
		RedirectURL: link.TargetURL,
		Unique:      unique,
	}, nil
}

// RegisterConversion applies a conversion postback to a previously
// recorded click. A click converts at most once; the first postback
// wins and repeats fail validation.
func (s *Service) RegisterConversion(ctx context.Context, clickID string, value float64) (*models.ClickEvent, error) {
	if clickID == "" {
		return nil, apperr.Validation("click id is required")
	}
	if value < 0 {
		return nil, apperr.Validation("conversion value must not be negative")
	}

	ev, err := s.events.MarkConverted(ctx, clickID, value)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyConverted) {
			return nil, apperr.Validation("click already converted")
		}
		return nil, apperr.Store("mark click converted", err)
	}
	if ev == nil {
		return nil, apperr.NotFound("click not found")
	}

	link, err := s.links.GetByID(ctx, ev.LinkID)
	service := ""
	if err == nil && link != nil {
		service = link.Service
	}

	if err := s.links.ApplyConversion(ctx, ev.LinkID, value); err != nil {
		s.logger.Error("failed to apply conversion to link stats",
			zap.String("link_id", ev.LinkID),
			zap.String("click_id", clickID),
			zap.Error(err),
		)
	}

	if s.metrics != nil {
		s.metrics.RecordConversion(service, value)
	}

	s.logger.Info("conversion registered",
		zap.String("click_id", clickID),
		zap.String("link_id", ev.LinkID),
		zap.Float64("value", value),
	)

	return ev, nil
}
