package httpserver

import (
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/affora/partner-hub/internal/analytics"
	"github.com/affora/partner-hub/internal/apperr"
	"github.com/affora/partner-hub/internal/config"
	"github.com/affora/partner-hub/internal/database"
	"github.com/affora/partner-hub/internal/game"
	"github.com/affora/partner-hub/internal/geo"
	"github.com/affora/partner-hub/internal/metrics"
	"github.com/affora/partner-hub/internal/middleware"
	"github.com/affora/partner-hub/internal/models"
	"github.com/affora/partner-hub/internal/notify"
	"github.com/affora/partner-hub/internal/storage"
	"github.com/affora/partner-hub/internal/tracking"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB      *database.PostgresDB
	Redis   *database.RedisDB
	Archive storage.ArchiveSink
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	WS      *notify.MelodyBroadcaster

	// Rand seeds the reward and forecast draws; tests pass a fixed
	// source. Nil gets a time-seeded one.
	Rand *rand.Rand
}

// Server wraps HTTP handlers and the domain services.
type Server struct {
	users      storage.UserRepo
	links      storage.LinkRepo
	events     storage.EventStore
	analytics  *analytics.Service
	forecaster *analytics.Forecaster
	tracking   *tracking.Service
	game       *game.Service
	ws         *notify.MelodyBroadcaster
	logger     *zap.Logger
	config     *config.Config
	metrics    *metrics.Metrics
}

// NewServer wires repositories and services from the available
// backends. PostgreSQL and Redis are optional; without them everything
// runs on the in-memory store, which keeps local development and tests
// free of infrastructure.
func NewServer(deps *Dependencies) *Server {
	var (
		userRepo   storage.UserRepo
		linkRepo   storage.LinkRepo
		eventStore storage.EventStore
		gameRepo   storage.GameRepo
		dedupStore storage.DedupStore
	)

	if deps.DB != nil {
		userRepo = storage.NewPostgresUserRepo(deps.DB.Pool)
		linkRepo = storage.NewPostgresLinkRepo(deps.DB.Pool)
		eventStore = storage.NewPostgresEventStore(deps.DB.Pool)
		gameRepo = storage.NewPostgresGameRepo(deps.DB.Pool)
	} else {
		mem := storage.NewMemoryStore()
		userRepo = mem.Users()
		linkRepo = mem.Links()
		eventStore = mem.Events()
		gameRepo = mem.Game()
		dedupStore = mem.Dedup()
	}

	if deps.Redis != nil {
		dedupStore = storage.NewRedisDedupStore(deps.Redis.Client)
	} else if dedupStore == nil {
		// Postgres without Redis still needs per-day visitor tracking.
		dedupStore = storage.NewMemoryStore().Dedup()
	}

	var geoResolver geo.Resolver = geo.NopResolver{}
	if deps.Config.Geo.Enabled {
		resolver, err := geo.NewMaxMindResolver(deps.Config.Geo.DatabasePath)
		if err != nil {
			deps.Logger.Warn("failed to open GeoIP database, geo disabled", zap.Error(err))
		} else {
			geoResolver = resolver
		}
	}

	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	var broadcaster notify.Broadcaster = notify.NopBroadcaster{}
	if deps.WS != nil {
		broadcaster = deps.WS
	}

	return &Server{
		users:      userRepo,
		links:      linkRepo,
		events:     eventStore,
		analytics:  analytics.NewService(linkRepo, eventStore, deps.Logger),
		forecaster: analytics.NewForecaster(rng),
		tracking:   tracking.NewService(linkRepo, eventStore, dedupStore, deps.Archive, geoResolver, deps.Metrics, deps.Logger),
		game:       game.NewService(userRepo, gameRepo, broadcaster, rng, deps.Metrics, deps.Logger),
		ws:         deps.WS,
		logger:     deps.Logger,
		config:     deps.Config,
		metrics:    deps.Metrics,
	}
}

// Users exposes the user repository for seeding and auth wiring.
func (s *Server) Users() storage.UserRepo { return s.users }

// Links exposes the link repository for background jobs.
func (s *Server) Links() storage.LinkRepo { return s.links }

// Events exposes the event store for background jobs.
func (s *Server) Events() storage.EventStore { return s.events }

// Handler registers all routes and applies the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if s.config.Metrics.Enabled {
		mux.Handle(s.config.Metrics.Path, metrics.Handler())
	}

	// Live score feed
	if s.ws != nil {
		mux.HandleFunc("/ws", s.ws.HandleRequest)
	}

	// Public tracking endpoints
	mux.HandleFunc("/track/click", s.handleTrackClick)
	mux.HandleFunc("/track/conversion", s.handleTrackConversion)

	// Dashboard API
	mux.HandleFunc("/api/links", s.handleLinks)
	mux.HandleFunc("/api/analytics/overview", s.handleOverview)
	mux.HandleFunc("/api/analytics/forecast", s.handleForecast)
	mux.HandleFunc("/api/analytics/recommendations", s.handleRecommendations)

	// Game API
	mux.HandleFunc("/api/game/score", s.handleGameScore)
	mux.HandleFunc("/api/game/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("/api/game/daily-reward", s.handleDailyReward)
	mux.HandleFunc("/api/game/achievements", s.handleAchievements)
	mux.HandleFunc("/api/game/profile", s.handleGameProfile)

	recovery := middleware.NewRecoveryMiddleware(s.logger)
	logging := middleware.NewLoggingMiddleware(s.logger)
	auth := middleware.NewAuthMiddleware(s.config.Auth, s.users, s.logger)
	ratelimit := middleware.NewRateLimitMiddleware(s.config.RateLimit, s.logger)
	ratelimit.SetMetrics(s.metrics)
	metricsMW := middleware.NewMetricsMiddleware(s.metrics)

	var h http.Handler = mux
	h = auth.Handler(h)
	h = ratelimit.Handler(h)
	h = metricsMW.Handler(h)
	h = logging.Handler(h)
	h = recovery.Handler(h)
	return h
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ---- Tracking ----

func (s *Server) handleTrackClick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	linkID := q.Get("link_id")
	if linkID == "" {
		linkID = q.Get("l")
	}
	visitorID := q.Get("visitor_id")
	if visitorID == "" {
		visitorID = q.Get("v")
	}

	result, err := s.tracking.RegisterClick(r.Context(), &tracking.ClickParams{
		LinkID:    linkID,
		VisitorID: visitorID,
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		s.appError(w, err)
		return
	}

	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

func (s *Server) handleTrackConversion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	clickID := q.Get("click_id")

	value := 0.0
	if v := q.Get("value"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.errorResponse(w, "invalid value", http.StatusBadRequest)
			return
		}
		value = parsed
	}

	if _, err := s.tracking.RegisterConversion(r.Context(), clickID, value); err != nil {
		s.appError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("OK"))
}

// ---- Links ----

type createLinkRequest struct {
	Service   string `json:"service"`
	TargetURL string `json:"target_url"`
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	user, err := s.requestUser(r)
	if err != nil {
		s.appError(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		links, err := s.links.ListByUser(r.Context(), user.ID)
		if err != nil {
			s.logger.Error("failed to list links", zap.Error(err))
			s.errorResponse(w, "failed to list links", http.StatusInternalServerError)
			return
		}
		if links == nil {
			links = []*models.PartnerLink{}
		}
		s.jsonResponse(w, links)

	case http.MethodPost:
		var req createLinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Service == "" || req.TargetURL == "" {
			s.errorResponse(w, "service and target_url are required", http.StatusBadRequest)
			return
		}

		link := &models.PartnerLink{
			ID:        uuid.New().String(),
			UserID:    user.ID,
			Service:   req.Service,
			TargetURL: req.TargetURL,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.links.Create(r.Context(), link); err != nil {
			s.logger.Error("failed to create link", zap.Error(err))
			s.errorResponse(w, "failed to create link", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, link)

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ---- Analytics ----

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, err := s.requestUser(r)
	if err != nil {
		s.appError(w, err)
		return
	}

	overview, err := s.analytics.ComputeOverview(r.Context(), user.ID, r.URL.Query().Get("period"))
	if err != nil {
		s.logger.Error("failed to compute overview", zap.Error(err))
		s.errorResponse(w, "failed to compute overview", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, overview)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, err := s.requestUser(r)
	if err != nil {
		s.appError(w, err)
		return
	}

	history, err := s.analytics.RevenueHistory(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("failed to load revenue history", zap.Error(err))
		s.errorResponse(w, "failed to compute forecast", http.StatusInternalServerError)
		return
	}

	s.jsonResponse(w, map[string]interface{}{
		"history":  history,
		"forecast": s.forecaster.Forecast(history),
	})
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, err := s.requestUser(r)
	if err != nil {
		s.appError(w, err)
		return
	}

	perf, err := s.analytics.AnalyzePerformance(r.Context(), user)
	if err != nil {
		s.logger.Error("failed to analyze performance", zap.Error(err))
		s.errorResponse(w, "failed to compute recommendations", http.StatusInternalServerError)
		return
	}

	s.jsonResponse(w, map[string]interface{}{
		"performance":     perf,
		"recommendations": analytics.Recommend(perf),
	})
}

// ---- Game ----

type scoreRequest struct {
	UserID       string   `json:"user_id"`
	Score        int64    `json:"score"`
	Level        int      `json:"level"`
	TimePlayed   int64    `json:"time_played"`
	Achievements []string `json:"achievements"`
}

func (s *Server) handleGameScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	// A personal API key can only submit for its own user.
	if u := middleware.UserFromContext(r.Context()); u != nil {
		req.UserID = u.ID
	}

	profile, err := s.game.RecordScore(r.Context(), &game.ScoreParams{
		UserID:       req.UserID,
		Score:        req.Score,
		Level:        req.Level,
		TimePlayed:   req.TimePlayed,
		Achievements: req.Achievements,
		IP:           middleware.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		s.appError(w, err)
		return
	}
	s.jsonResponse(w, profile)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries, err := s.game.Leaderboard(r.Context())
	if err != nil {
		s.appError(w, err)
		return
	}
	if entries == nil {
		entries = []*models.LeaderboardEntry{}
	}
	s.jsonResponse(w, entries)
}

func (s *Server) handleDailyReward(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, err := s.requestUser(r)
	if err != nil {
		s.appError(w, err)
		return
	}

	result, err := s.game.ClaimDailyReward(r.Context(), user.ID)
	if err != nil {
		s.appError(w, err)
		return
	}
	s.jsonResponse(w, result)
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, err := s.requestUser(r)
	if err != nil {
		s.appError(w, err)
		return
	}

	summary, err := s.game.Achievements(r.Context(), user.ID)
	if err != nil {
		s.appError(w, err)
		return
	}
	if summary == nil {
		summary = []*models.AchievementSummary{}
	}
	s.jsonResponse(w, summary)
}

func (s *Server) handleGameProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, err := s.requestUser(r)
	if err != nil {
		s.appError(w, err)
		return
	}

	profile, err := s.game.Profile(r.Context(), user.ID)
	if err != nil {
		s.appError(w, err)
		return
	}
	s.jsonResponse(w, profile)
}

// ---- Helper Methods ----

// requestUser resolves the user a request acts for: the owner of the
// personal API key, or for master-key and unauthenticated requests the
// user named by the user_id query parameter.
func (s *Server) requestUser(r *http.Request) (*models.User, error) {
	if u := middleware.UserFromContext(r.Context()); u != nil {
		return u, nil
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		return nil, apperr.Validation("user_id is required")
	}
	user, err := s.users.GetByID(r.Context(), userID)
	if err != nil {
		return nil, apperr.Store("load user", err)
	}
	if user == nil {
		return nil, apperr.NotFound("user not found")
	}
	return user, nil
}

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// appError maps the error taxonomy onto HTTP status codes. Store
// failures stay opaque to clients.
func (s *Server) appError(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	message := "internal error"
	if errors.As(err, &ae) {
		message = ae.Message
	}

	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		s.errorResponse(w, message, http.StatusBadRequest)
	case apperr.KindNotFound:
		s.errorResponse(w, message, http.StatusNotFound)
	case apperr.KindAlreadyClaimed:
		s.errorResponse(w, message, http.StatusConflict)
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
	}
}
