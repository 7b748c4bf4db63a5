package tracker

import (
	"time"

	"github.com/ernie/craftbridge/internal/domain"
)

// Session is the ephemeral per-connected-player state used to compute deltas.
// It lives only while the player is connected and is lost on restart; only
// committed store rows survive.
type Session struct {
	ConnectedAt time.Time

	// LastLocation is the most recent observed position.
	LastLocation domain.Position

	// LastPersisted is the last position written to the store. Persistence
	// is throttled on displacement from this baseline, independent of how
	// often LastLocation updates.
	LastPersisted domain.Position
}

// Sessions tracks connected players. It is owned by the Ingestor and mutated
// only from the single event-consuming goroutine, so it needs no locking.
type Sessions struct {
	byPlayer map[string]*Session
}

// NewSessions creates an empty session tracker
func NewSessions() *Sessions {
	return &Sessions{byPlayer: make(map[string]*Session)}
}

// Get returns the session for a player, or nil if not connected
func (s *Sessions) Get(gameID string) *Session {
	return s.byPlayer[gameID]
}

// Put inserts or replaces the session for a player
func (s *Sessions) Put(gameID string, sess *Session) {
	s.byPlayer[gameID] = sess
}

// Remove deletes a player's session
func (s *Sessions) Remove(gameID string) {
	delete(s.byPlayer, gameID)
}

// Len returns the number of connected players
func (s *Sessions) Len() int {
	return len(s.byPlayer)
}
