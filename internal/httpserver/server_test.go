package httpserver

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/affora/partner-hub/internal/config"
	"github.com/affora/partner-hub/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Auth:      config.AuthConfig{Enabled: false},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Metrics:   config.MetricsConfig{Enabled: false},
	}
}

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	s := NewServer(&Dependencies{
		Config: testConfig(),
		Logger: zap.NewNop(),
		Rand:   rand.New(rand.NewSource(1)),
	})
	require.NoError(t, s.Users().Upsert(context.Background(), &models.User{
		ID:     "u1",
		Name:   "Alice",
		APIKey: "alice-key",
	}))
	return s, s.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)

	rr := doJSON(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func createLink(t *testing.T, h http.Handler) models.PartnerLink {
	t.Helper()
	rr := doJSON(t, h, http.MethodPost, "/api/links?user_id=u1",
		`{"service":"amazon","target_url":"https://example.com/offer"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var link models.PartnerLink
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &link))
	require.NotEmpty(t, link.ID)
	return link
}

func TestLinks_CreateAndList(t *testing.T) {
	_, h := newTestServer(t)

	link := createLink(t, h)
	assert.Equal(t, "u1", link.UserID)
	assert.Equal(t, "amazon", link.Service)

	rr := doJSON(t, h, http.MethodGet, "/api/links?user_id=u1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var links []models.PartnerLink
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &links))
	require.Len(t, links, 1)
	assert.Equal(t, link.ID, links[0].ID)
}

func TestLinks_Validation(t *testing.T) {
	_, h := newTestServer(t)

	rr := doJSON(t, h, http.MethodPost, "/api/links?user_id=u1", `{"service":"amazon"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, h, http.MethodPost, "/api/links", `{"service":"a","target_url":"https://x"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "user_id is required without auth context")

	rr = doJSON(t, h, http.MethodGet, "/api/links?user_id=ghost", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTrackClick_RedirectsToTarget(t *testing.T) {
	_, h := newTestServer(t)
	link := createLink(t, h)

	rr := doJSON(t, h, http.MethodGet, "/track/click?link_id="+link.ID+"&visitor_id=v1", "")
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "https://example.com/offer", rr.Header().Get("Location"))
}

func TestTrackClick_UnknownLink(t *testing.T) {
	_, h := newTestServer(t)

	rr := doJSON(t, h, http.MethodGet, "/track/click?link_id=ghost", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, h, http.MethodGet, "/track/click", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTrackConversion_OncePerClick(t *testing.T) {
	s, h := newTestServer(t)
	link := createLink(t, h)

	rr := doJSON(t, h, http.MethodGet, "/track/click?link_id="+link.ID+"&visitor_id=v1", "")
	require.Equal(t, http.StatusFound, rr.Code)

	// The click id is the newest event on the link.
	events, err := s.Events().ListByLink(context.Background(), link.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	clickID := events[0].ID

	rr = doJSON(t, h, http.MethodPost, "/track/conversion?click_id="+clickID+"&value=19.99", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())

	rr = doJSON(t, h, http.MethodPost, "/track/conversion?click_id="+clickID+"&value=19.99", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, h, http.MethodPost, "/track/conversion?click_id=ghost&value=1", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAnalyticsOverview(t *testing.T) {
	_, h := newTestServer(t)
	link := createLink(t, h)

	for _, visitor := range []string{"v1", "v1", "v2"} {
		rr := doJSON(t, h, http.MethodGet, "/track/click?link_id="+link.ID+"&visitor_id="+visitor, "")
		require.Equal(t, http.StatusFound, rr.Code)
	}

	rr := doJSON(t, h, http.MethodGet, "/api/analytics/overview?user_id=u1&period=7d", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Period string `json:"period"`
		Totals struct {
			TotalClicks  int64 `json:"total_clicks"`
			UniqueClicks int64 `json:"unique_clicks"`
		} `json:"overview"`
		Daily []map[string]interface{} `json:"daily_stats"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "7d", resp.Period)
	assert.Equal(t, int64(3), resp.Totals.TotalClicks)
	assert.Equal(t, int64(2), resp.Totals.UniqueClicks)
	assert.Len(t, resp.Daily, 1)
}

func TestAnalyticsForecast_EmptyHistory(t *testing.T) {
	_, h := newTestServer(t)

	rr := doJSON(t, h, http.MethodGet, "/api/analytics/forecast?user_id=u1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		History  []interface{} `json:"history"`
		Forecast []interface{} `json:"forecast"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Empty(t, resp.History)
	assert.Empty(t, resp.Forecast)
}

func TestRecommendations_NewUser(t *testing.T) {
	_, h := newTestServer(t)

	rr := doJSON(t, h, http.MethodGet, "/api/analytics/recommendations?user_id=u1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Recommendations []struct {
			Type string `json:"type"`
		} `json:"recommendations"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	types := make([]string, 0, len(resp.Recommendations))
	for _, r := range resp.Recommendations {
		types = append(types, r.Type)
	}
	// Zero links means both the conversion-rate and diversification rules fire.
	assert.Equal(t, []string{"conversion", "diversification"}, types)
}

func TestGameScoreAndLeaderboard(t *testing.T) {
	_, h := newTestServer(t)

	rr := doJSON(t, h, http.MethodPost, "/api/game/score",
		`{"user_id":"u1","score":750,"level":4,"time_played":300}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var profile models.GameProfile
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &profile))
	assert.Equal(t, int64(750), profile.HighScore)

	rr = doJSON(t, h, http.MethodGet, "/api/game/leaderboard", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var entries []models.LeaderboardEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "Alice", entries[0].Name)
	assert.Equal(t, int64(750), entries[0].HighScore)
}

func TestGameScore_UnknownUser(t *testing.T) {
	_, h := newTestServer(t)

	rr := doJSON(t, h, http.MethodPost, "/api/game/score", `{"user_id":"ghost","score":1}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDailyReward_ConflictOnSecondClaim(t *testing.T) {
	_, h := newTestServer(t)

	rr := doJSON(t, h, http.MethodPost, "/api/game/daily-reward?user_id=u1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var result struct {
		Amount  int64 `json:"amount"`
		Balance int64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Contains(t, []int64{50, 100, 150, 200, 300}, result.Amount)

	rr = doJSON(t, h, http.MethodPost, "/api/game/daily-reward?user_id=u1", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestAuth_PersonalKeyScopesRequests(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{
		Enabled:   true,
		MasterKey: "master-secret",
		SkipPaths: []string{"/health", "/track/"},
	}

	s := NewServer(&Dependencies{
		Config: cfg,
		Logger: zap.NewNop(),
		Rand:   rand.New(rand.NewSource(1)),
	})
	require.NoError(t, s.Users().Upsert(context.Background(), &models.User{
		ID: "u1", Name: "Alice", APIKey: "alice-key",
	}))
	h := s.Handler()

	// No key.
	rr := doJSON(t, h, http.MethodGet, "/api/links", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// Wrong key.
	req := httptest.NewRequest(http.MethodGet, "/api/links", nil)
	req.Header.Set("X-API-Key", "nope")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// Personal key resolves the user without a user_id parameter.
	req = httptest.NewRequest(http.MethodGet, "/api/links", nil)
	req.Header.Set("X-API-Key", "alice-key")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	// Master key still needs an explicit user.
	req = httptest.NewRequest(http.MethodGet, "/api/links?user_id=u1", nil)
	req.Header.Set("X-API-Key", "master-secret")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	// Skip-listed tracking path stays open.
	rr = doJSON(t, h, http.MethodGet, "/track/click?link_id=ghost", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
