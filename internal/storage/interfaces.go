package storage

import (
	"context"
	"errors"
	"time"

	"github.com/affora/partner-hub/internal/models"
)

// Sentinel errors shared by all implementations. Services translate
// these into the apperr taxonomy at the boundary.
var (
	// ErrAlreadyClaimed is returned by ClaimDailyReward when the profile
	// already holds a claim for the given day.
	ErrAlreadyClaimed = errors.New("daily reward already claimed")

	// ErrAlreadyConverted is returned by MarkConverted when the click was
	// converted by an earlier postback.
	ErrAlreadyConverted = errors.New("click already converted")
)

// =============================================
// USER REPOSITORY
// =============================================

// UserRepo defines operations for user storage.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByAPIKey(ctx context.Context, key string) (*models.User, error)
	Upsert(ctx context.Context, u *models.User) error
}

// =============================================
// LINK REPOSITORY
// =============================================

// LinkRepo defines operations for partner link storage. ApplyClick and
// ApplyConversion fold a new fact into the denormalized stats as an
// atomic read-modify-write scoped to the single link.
type LinkRepo interface {
	Create(ctx context.Context, l *models.PartnerLink) error
	GetByID(ctx context.Context, id string) (*models.PartnerLink, error)
	ListByUser(ctx context.Context, userID string) ([]*models.PartnerLink, error)
	ListByUserCreatedSince(ctx context.Context, userID string, since time.Time) ([]*models.PartnerLink, error)
	ListAll(ctx context.Context) ([]*models.PartnerLink, error)

	ApplyClick(ctx context.Context, linkID string, unique bool) error
	ApplyConversion(ctx context.Context, linkID string, value float64) error

	// ReplaceStats overwrites the denormalized stats with a recomputed
	// value. Used only by the reconciliation job.
	ReplaceStats(ctx context.Context, linkID string, stats models.LinkStats) error
}

// =============================================
// EVENT STORE
// =============================================

// EventStore defines operations for the append-only click event log.
// Events are write-once; the single permitted transition is the one-time
// promotion of an unconverted click by MarkConverted.
type EventStore interface {
	SaveEvent(ctx context.Context, ev *models.ClickEvent) error
	GetEvent(ctx context.Context, id string) (*models.ClickEvent, error)
	ListByLink(ctx context.Context, linkID string) ([]*models.ClickEvent, error)
	ListByLinks(ctx context.Context, linkIDs []string) ([]*models.ClickEvent, error)

	// MarkConverted flags the click as converted with the given value and
	// returns the updated event. Missing click yields (nil, nil);
	// a repeated postback yields ErrAlreadyConverted.
	MarkConverted(ctx context.Context, id string, value float64) (*models.ClickEvent, error)
}

// =============================================
// DEDUP STORE
// =============================================

// DedupStore tracks which visitors have already been counted for a link
// on a given UTC day. MarkVisitor returns true when the visitor is new
// for that link and day.
type DedupStore interface {
	MarkVisitor(ctx context.Context, linkID, day, visitorID string) (bool, error)
}

// =============================================
// GAME REPOSITORY
// =============================================

// GameRepo defines operations for game stats and the per-user reward
// ledger. ApplyScore and ClaimDailyReward are atomic conditional writes
// scoped to one profile; concurrent submissions for the same user must
// not lose updates or double-claim.
type GameRepo interface {
	SaveStat(ctx context.Context, st *models.GameStat) error
	ListStatsByUser(ctx context.Context, userID string) ([]*models.GameStat, error)

	GetProfile(ctx context.Context, userID string) (*models.GameProfile, error)

	// ApplyScore folds a play session into the profile: highScore becomes
	// max(old, score), totalPlayTime grows by timePlayed. The profile is
	// created on first submission.
	ApplyScore(ctx context.Context, userID string, score, timePlayed int64, playedAt time.Time) (*models.GameProfile, error)

	// ClaimDailyReward credits reward to the balance and records day as
	// the last claim, in one conditional write. Returns the new balance,
	// or ErrAlreadyClaimed when day is already recorded.
	ClaimDailyReward(ctx context.Context, userID, day string, reward int64) (int64, error)

	Leaderboard(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error)
	AchievementSummary(ctx context.Context, userID string) ([]*models.AchievementSummary, error)
}

// =============================================
// ARCHIVE SINK
// =============================================

// ArchiveSink receives a copy of every click event for offline analytics.
// Archiving is best effort: failures are logged by callers and never
// propagate into the tracking path.
type ArchiveSink interface {
	ArchiveClick(ctx context.Context, ev *models.ClickEvent) error
	Close() error
}
