package notify

import (
	"encoding/json"
	"net/http"

	"github.com/olahol/melody"
	"go.uber.org/zap"
)

// Broadcaster pushes live events to connected dashboard clients.
// Implementations must tolerate zero connected clients.
type Broadcaster interface {
	BroadcastScore(update *ScoreUpdate)
}

// ScoreUpdate is pushed to every websocket client when a player posts
// a new score.
type ScoreUpdate struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Score   int64  `json:"score"`
	Avatar  string `json:"avatar,omitempty"`
	NewBest bool   `json:"new_best"`
}

// MelodyBroadcaster fans score updates out over websockets.
type MelodyBroadcaster struct {
	m      *melody.Melody
	logger *zap.Logger
}

// NewMelodyBroadcaster wraps a melody instance.
func NewMelodyBroadcaster(m *melody.Melody, logger *zap.Logger) *MelodyBroadcaster {
	return &MelodyBroadcaster{m: m, logger: logger}
}

// HandleRequest upgrades an HTTP request to a websocket session.
func (b *MelodyBroadcaster) HandleRequest(w http.ResponseWriter, r *http.Request) {
	if err := b.m.HandleRequest(w, r); err != nil {
		b.logger.Warn("websocket upgrade failed", zap.Error(err))
	}
}

// BroadcastScore sends the update to all connected sessions. Delivery
// is best-effort; a failed broadcast is logged and dropped.
func (b *MelodyBroadcaster) BroadcastScore(update *ScoreUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		b.logger.Error("failed to encode score update", zap.Error(err))
		return
	}
	if err := b.m.Broadcast(payload); err != nil {
		b.logger.Warn("failed to broadcast score update", zap.Error(err))
	}
}

// Close shuts down all websocket sessions.
func (b *MelodyBroadcaster) Close() error {
	return b.m.Close()
}

// NopBroadcaster is used when websockets are disabled.
type NopBroadcaster struct{}

func (NopBroadcaster) BroadcastScore(*ScoreUpdate) {}
