package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/affora/partner-hub/internal/models"
)

func newTestLink(id, userID string, createdAt time.Time) *models.PartnerLink {
	return &models.PartnerLink{
		ID:        id,
		UserID:    userID,
		Service:   "svc",
		TargetURL: "https://example.com/offer",
		CreatedAt: createdAt,
	}
}

func TestLinkRepo_ListByUserCreatedSince(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	links := store.Links()

	now := time.Now().UTC()
	require.NoError(t, links.Create(ctx, newTestLink("old", "u1", now.AddDate(0, 0, -60))))
	require.NoError(t, links.Create(ctx, newTestLink("new", "u1", now.AddDate(0, 0, -5))))
	require.NoError(t, links.Create(ctx, newTestLink("other", "u2", now)))

	got, err := links.ListByUserCreatedSince(ctx, "u1", now.AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)

	all, err := links.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLinkRepo_ApplyClickAndConversion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	links := store.Links()

	require.NoError(t, links.Create(ctx, newTestLink("l1", "u1", time.Now().UTC())))

	require.NoError(t, links.ApplyClick(ctx, "l1", true))
	require.NoError(t, links.ApplyClick(ctx, "l1", false))
	require.NoError(t, links.ApplyConversion(ctx, "l1", 12.5))

	l, err := links.GetByID(ctx, "l1")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, int64(2), l.Stats.TotalClicks)
	assert.Equal(t, int64(1), l.Stats.UniqueClicks)
	assert.Equal(t, int64(1), l.Stats.Conversions)
	assert.Equal(t, 12.5, l.Stats.Revenue)
	assert.InDelta(t, 50.0, l.Stats.ConversionRate, 0.001)
}

func TestLinkRepo_GetByIDMissing(t *testing.T) {
	store := NewMemoryStore()
	l, err := store.Links().GetByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestEventStore_MarkConvertedOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	events := store.Events()

	require.NoError(t, events.SaveEvent(ctx, &models.ClickEvent{
		ID:        "c1",
		LinkID:    "l1",
		Timestamp: time.Now().UTC(),
	}))

	ev, err := events.MarkConverted(ctx, "c1", 9.99)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.True(t, ev.Converted)
	assert.Equal(t, 9.99, ev.ConversionValue)

	_, err = events.MarkConverted(ctx, "c1", 5.0)
	assert.ErrorIs(t, err, ErrAlreadyConverted)

	// First value sticks.
	got, err := events.GetEvent(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 9.99, got.ConversionValue)
}

func TestEventStore_MarkConvertedMissing(t *testing.T) {
	store := NewMemoryStore()
	ev, err := store.Events().MarkConverted(context.Background(), "ghost", 1.0)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestDedupStore_MarkVisitorPerDay(t *testing.T) {
	ctx := context.Background()
	dedup := NewMemoryStore().Dedup()

	first, err := dedup.MarkVisitor(ctx, "l1", "2026-09-01", "v1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := dedup.MarkVisitor(ctx, "l1", "2026-09-01", "v1")
	require.NoError(t, err)
	assert.False(t, again)

	nextDay, err := dedup.MarkVisitor(ctx, "l1", "2026-09-02", "v1")
	require.NoError(t, err)
	assert.True(t, nextDay)

	otherLink, err := dedup.MarkVisitor(ctx, "l2", "2026-09-01", "v1")
	require.NoError(t, err)
	assert.True(t, otherLink)
}

func TestGameRepo_ApplyScoreMonotonicHighScore(t *testing.T) {
	ctx := context.Background()
	game := NewMemoryStore().Game()

	p, err := game.ApplyScore(ctx, "u1", 100, 60, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(100), p.HighScore)
	assert.Equal(t, int64(60), p.TotalPlayTime)

	p, err = game.ApplyScore(ctx, "u1", 40, 30, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(100), p.HighScore, "lower score must not lower the high score")
	assert.Equal(t, int64(90), p.TotalPlayTime, "play time accumulates regardless of score")
}

func TestGameRepo_ClaimDailyRewardOncePerDay(t *testing.T) {
	ctx := context.Background()
	game := NewMemoryStore().Game()

	balance, err := game.ClaimDailyReward(ctx, "u1", "2026-09-01", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	_, err = game.ClaimDailyReward(ctx, "u1", "2026-09-01", 100)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	balance, err = game.ClaimDailyReward(ctx, "u1", "2026-09-02", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(150), balance)
}

func TestGameRepo_ConcurrentClaimsExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	game := NewMemoryStore().Game()

	const attempts = 32
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := game.ClaimDailyReward(ctx, "u1", "2026-09-01", 100)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var granted, rejected int
	for err := range results {
		if err == nil {
			granted++
		} else if err == ErrAlreadyClaimed {
			rejected++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, granted)
	assert.Equal(t, attempts-1, rejected)
}

func TestGameRepo_LeaderboardOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	game := store.Game()
	users := store.Users()

	require.NoError(t, users.Upsert(ctx, &models.User{ID: "u1", Name: "Alice"}))
	require.NoError(t, users.Upsert(ctx, &models.User{ID: "u2", Name: "Bob"}))

	_, err := game.ApplyScore(ctx, "u1", 50, 10, time.Now().UTC())
	require.NoError(t, err)
	_, err = game.ApplyScore(ctx, "u2", 200, 10, time.Now().UTC())
	require.NoError(t, err)
	_, err = game.ApplyScore(ctx, "u3", 0, 10, time.Now().UTC())
	require.NoError(t, err)

	entries, err := game.Leaderboard(ctx, 100)
	require.NoError(t, err)
	require.Len(t, entries, 2, "zero-score players are excluded")
	assert.Equal(t, "u2", entries[0].UserID)
	assert.Equal(t, "Bob", entries[0].Name)
	assert.Equal(t, "u1", entries[1].UserID)
}

func TestGameRepo_AchievementSummary(t *testing.T) {
	ctx := context.Background()
	game := NewMemoryStore().Game()

	base := time.Now().UTC()
	require.NoError(t, game.SaveStat(ctx, &models.GameStat{
		ID: "s1", UserID: "u1", Achievements: []string{"first_win"}, CreatedAt: base,
	}))
	require.NoError(t, game.SaveStat(ctx, &models.GameStat{
		ID: "s2", UserID: "u1", Achievements: []string{"first_win", "combo"}, CreatedAt: base.Add(time.Hour),
	}))

	summary, err := game.AchievementSummary(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, summary, 2)

	byName := map[string]int64{}
	for _, s := range summary {
		byName[s.Name] = s.Count
	}
	assert.Equal(t, int64(2), byName["first_win"])
	assert.Equal(t, int64(1), byName["combo"])
}

func TestUserRepo_GetByAPIKey(t *testing.T) {
	ctx := context.Background()
	users := NewMemoryStore().Users()

	require.NoError(t, users.Upsert(ctx, &models.User{ID: "u1", Name: "Alice", APIKey: "key-1"}))

	u, err := users.GetByAPIKey(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "u1", u.ID)

	missing, err := users.GetByAPIKey(ctx, "wrong")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
