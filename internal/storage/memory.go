package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/affora/partner-hub/internal/models"
)

// MemoryStore holds in-memory state for all repositories. It is the
// fallback when PostgreSQL is not available and the backing store for
// tests. A single RWMutex guards every aggregate, which trivially gives
// the per-entity atomic read-modify-write the fold operations require.
// The repo views returned by Users/Links/Events/Game/Dedup share this
// state, so the leaderboard can join profiles with user names.
type MemoryStore struct {
	mu sync.RWMutex

	users    map[string]*models.User
	links    map[string]*models.PartnerLink
	events   map[string]*models.ClickEvent
	stats    map[string]*models.GameStat
	profiles map[string]*models.GameProfile

	// Indexes for faster lookups
	linksByUser  map[string][]string // user_id -> []link_id
	eventsByLink map[string][]string // link_id -> []event_id
	statsByUser  map[string][]string // user_id -> []stat_id
	usersByKey   map[string]string   // api_key -> user_id

	// Visitor dedup: link_id:day -> set of visitor ids
	seenVisitors map[string]map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]*models.User),
		links:        make(map[string]*models.PartnerLink),
		events:       make(map[string]*models.ClickEvent),
		stats:        make(map[string]*models.GameStat),
		profiles:     make(map[string]*models.GameProfile),
		linksByUser:  make(map[string][]string),
		eventsByLink: make(map[string][]string),
		statsByUser:  make(map[string][]string),
		usersByKey:   make(map[string]string),
		seenVisitors: make(map[string]map[string]struct{}),
	}
}

// Users returns the UserRepo view of the store.
func (s *MemoryStore) Users() UserRepo { return &memoryUserRepo{s} }

// Links returns the LinkRepo view of the store.
func (s *MemoryStore) Links() LinkRepo { return &memoryLinkRepo{s} }

// Events returns the EventStore view of the store.
func (s *MemoryStore) Events() EventStore { return &memoryEventStore{s} }

// Game returns the GameRepo view of the store.
func (s *MemoryStore) Game() GameRepo { return &memoryGameRepo{s} }

// Dedup returns the DedupStore view of the store.
func (s *MemoryStore) Dedup() DedupStore { return &memoryDedupStore{s} }

// =============================================
// Users
// =============================================

type memoryUserRepo struct{ s *MemoryStore }

func (r *memoryUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *memoryUserRepo) GetByAPIKey(ctx context.Context, key string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.usersByKey[key]
	if !ok {
		return nil, nil
	}
	cp := *r.s.users[id]
	return &cp, nil
}

func (r *memoryUserRepo) Upsert(ctx context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if old, ok := r.s.users[u.ID]; ok && old.APIKey != "" {
		delete(r.s.usersByKey, old.APIKey)
	}
	cp := *u
	r.s.users[u.ID] = &cp
	if u.APIKey != "" {
		r.s.usersByKey[u.APIKey] = u.ID
	}
	return nil
}

// =============================================
// Links
// =============================================

type memoryLinkRepo struct{ s *MemoryStore }

func (r *memoryLinkRepo) Create(ctx context.Context, l *models.PartnerLink) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cp := *l
	r.s.links[l.ID] = &cp
	r.s.linksByUser[l.UserID] = append(r.s.linksByUser[l.UserID], l.ID)
	return nil
}

func (r *memoryLinkRepo) GetByID(ctx context.Context, id string) (*models.PartnerLink, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	l, ok := r.s.links[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (r *memoryLinkRepo) ListByUser(ctx context.Context, userID string) ([]*models.PartnerLink, error) {
	return r.ListByUserCreatedSince(ctx, userID, time.Time{})
}

func (r *memoryLinkRepo) ListByUserCreatedSince(ctx context.Context, userID string, since time.Time) ([]*models.PartnerLink, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ids := r.s.linksByUser[userID]
	result := make([]*models.PartnerLink, 0, len(ids))
	for _, id := range ids {
		l := r.s.links[id]
		if l == nil {
			continue
		}
		if !since.IsZero() && l.CreatedAt.Before(since) {
			continue
		}
		cp := *l
		result = append(result, &cp)
	}
	// Creation order is already stable because the index is append-only.
	return result, nil
}

func (r *memoryLinkRepo) ListAll(ctx context.Context) ([]*models.PartnerLink, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*models.PartnerLink, 0, len(r.s.links))
	for _, l := range r.s.links {
		cp := *l
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *memoryLinkRepo) ApplyClick(ctx context.Context, linkID string, unique bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	l, ok := r.s.links[linkID]
	if !ok {
		return nil
	}
	l.Stats.TotalClicks++
	if unique {
		l.Stats.UniqueClicks++
	}
	l.Stats.Recalculate()
	return nil
}

func (r *memoryLinkRepo) ApplyConversion(ctx context.Context, linkID string, value float64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	l, ok := r.s.links[linkID]
	if !ok {
		return nil
	}
	l.Stats.Conversions++
	l.Stats.Revenue += value
	l.Stats.Recalculate()
	return nil
}

func (r *memoryLinkRepo) ReplaceStats(ctx context.Context, linkID string, stats models.LinkStats) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if l, ok := r.s.links[linkID]; ok {
		l.Stats = stats
	}
	return nil
}

// =============================================
// Click events
// =============================================

type memoryEventStore struct{ s *MemoryStore }

func (r *memoryEventStore) SaveEvent(ctx context.Context, ev *models.ClickEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cp := *ev
	r.s.events[ev.ID] = &cp
	r.s.eventsByLink[ev.LinkID] = append(r.s.eventsByLink[ev.LinkID], ev.ID)
	return nil
}

func (r *memoryEventStore) GetEvent(ctx context.Context, id string) (*models.ClickEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ev, ok := r.s.events[id]
	if !ok {
		return nil, nil
	}
	cp := *ev
	return &cp, nil
}

func (r *memoryEventStore) ListByLink(ctx context.Context, linkID string) ([]*models.ClickEvent, error) {
	return r.ListByLinks(ctx, []string{linkID})
}

func (r *memoryEventStore) ListByLinks(ctx context.Context, linkIDs []string) ([]*models.ClickEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*models.ClickEvent, 0)
	for _, linkID := range linkIDs {
		for _, id := range r.s.eventsByLink[linkID] {
			if ev, ok := r.s.events[id]; ok {
				cp := *ev
				result = append(result, &cp)
			}
		}
	}
	return result, nil
}

func (r *memoryEventStore) MarkConverted(ctx context.Context, id string, value float64) (*models.ClickEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ev, ok := r.s.events[id]
	if !ok {
		return nil, nil
	}
	if ev.Converted {
		return nil, ErrAlreadyConverted
	}
	ev.Converted = true
	ev.ConversionValue = value
	cp := *ev
	return &cp, nil
}

// =============================================
// Visitor dedup
// =============================================

type memoryDedupStore struct{ s *MemoryStore }

func (r *memoryDedupStore) MarkVisitor(ctx context.Context, linkID, day, visitorID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := linkID + ":" + day
	set, ok := r.s.seenVisitors[key]
	if !ok {
		set = make(map[string]struct{})
		r.s.seenVisitors[key] = set
	}
	if _, seen := set[visitorID]; seen {
		return false, nil
	}
	set[visitorID] = struct{}{}
	return true, nil
}

// =============================================
// Game stats and profiles
// =============================================

type memoryGameRepo struct{ s *MemoryStore }

func (r *memoryGameRepo) SaveStat(ctx context.Context, st *models.GameStat) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cp := *st
	r.s.stats[st.ID] = &cp
	r.s.statsByUser[st.UserID] = append(r.s.statsByUser[st.UserID], st.ID)
	return nil
}

func (r *memoryGameRepo) ListStatsByUser(ctx context.Context, userID string) ([]*models.GameStat, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ids := r.s.statsByUser[userID]
	result := make([]*models.GameStat, 0, len(ids))
	for _, id := range ids {
		if st, ok := r.s.stats[id]; ok {
			cp := *st
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (r *memoryGameRepo) GetProfile(ctx context.Context, userID string) (*models.GameProfile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memoryGameRepo) ApplyScore(ctx context.Context, userID string, score, timePlayed int64, playedAt time.Time) (*models.GameProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.profiles[userID]
	if !ok {
		p = &models.GameProfile{UserID: userID}
		r.s.profiles[userID] = p
	}
	if score > p.HighScore {
		p.HighScore = score
	}
	p.TotalPlayTime += timePlayed
	p.LastPlayed = playedAt
	cp := *p
	return &cp, nil
}

func (r *memoryGameRepo) ClaimDailyReward(ctx context.Context, userID, day string, reward int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.profiles[userID]
	if !ok {
		p = &models.GameProfile{UserID: userID}
		r.s.profiles[userID] = p
	}
	if p.LastDailyReward == day {
		return 0, ErrAlreadyClaimed
	}
	p.Balance += reward
	p.LastDailyReward = day
	return p.Balance, nil
}

func (r *memoryGameRepo) Leaderboard(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	entries := make([]*models.LeaderboardEntry, 0, len(r.s.profiles))
	for _, p := range r.s.profiles {
		if p.HighScore <= 0 {
			continue
		}
		e := &models.LeaderboardEntry{
			UserID:        p.UserID,
			HighScore:     p.HighScore,
			TotalPlayTime: p.TotalPlayTime,
		}
		if u, ok := r.s.users[p.UserID]; ok {
			e.Name = u.Name
			e.Avatar = u.Avatar
			e.Tier = u.Tier
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].HighScore > entries[j].HighScore
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (r *memoryGameRepo) AchievementSummary(ctx context.Context, userID string) ([]*models.AchievementSummary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	byName := make(map[string]*models.AchievementSummary)
	for _, id := range r.s.statsByUser[userID] {
		st, ok := r.s.stats[id]
		if !ok {
			continue
		}
		for _, name := range st.Achievements {
			sum, ok := byName[name]
			if !ok {
				sum = &models.AchievementSummary{Name: name}
				byName[name] = sum
			}
			sum.Count++
			if st.CreatedAt.After(sum.LastEarned) {
				sum.LastEarned = st.CreatedAt
			}
		}
	}

	result := make([]*models.AchievementSummary, 0, len(byName))
	for _, sum := range byName {
		result = append(result, sum)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].LastEarned.After(result[j].LastEarned)
	})
	return result, nil
}
