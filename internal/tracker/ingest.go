package tracker

import (
	"context"
	"log"
	"strings"

	"github.com/ernie/craftbridge/internal/clock"
	"github.com/ernie/craftbridge/internal/domain"
)

// Distances of 100 or more units in a single tick are teleports or glitches
// and are discarded rather than summed.
const teleportThreshold = 100.0

// Position writes are throttled: the store is only updated once the squared
// displacement from the last written position exceeds this.
const persistDistanceSquared = 100.0

// StatsStore is the subset of the store that ingestion mutates
type StatsStore interface {
	UpsertPlayerName(ctx context.Context, gameID, gameName string) error
	IncrementKills(ctx context.Context, gameID string) error
	IncrementDeaths(ctx context.Context, gameID string) error
	AddDistance(ctx context.Context, gameID string, delta float64) error
	AddPlaytime(ctx context.Context, gameID string, minutes int64) error
	RecordAchievement(ctx context.Context, gameID, key string) error
	SetLastPosition(ctx context.Context, gameID string, pos domain.Position) error
}

// excludedKillTypes are entity kills that never count toward the kill total:
// other players and killable decorations
var excludedKillTypes = map[string]bool{
	"player":      true,
	"armor_stand": true,
	"item_frame":  true,
}

// Ingestor turns game-world events into stats mutations. It owns the session
// tracker and consumes events from a single channel; a bad event is logged
// and dropped, never fatal.
type Ingestor struct {
	store    StatsStore
	clock    clock.Clock
	sessions *Sessions

	// OnChat, when set, receives in-game chat lines for relaying.
	OnChat func(gameName, message string)
}

// NewIngestor creates an Ingestor backed by the given store
func NewIngestor(store StatsStore, clk clock.Clock) *Ingestor {
	if clk == nil {
		clk = clock.New()
	}
	return &Ingestor{
		store:    store,
		clock:    clk,
		sessions: NewSessions(),
	}
}

// Sessions exposes the tracker for status reporting
func (in *Ingestor) Sessions() *Sessions {
	return in.sessions
}

// Run consumes events until the channel closes or the context is canceled
func (in *Ingestor) Run(ctx context.Context, events <-chan domain.GameEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			in.Handle(ctx, ev)
		}
	}
}

// Handle processes a single game event
func (in *Ingestor) Handle(ctx context.Context, ev domain.GameEvent) {
	switch ev.Kind {
	case domain.EventJoin:
		in.handleJoin(ctx, ev)
	case domain.EventQuit:
		in.handleQuit(ctx, ev)
	case domain.EventMove:
		in.handleMove(ctx, ev)
	case domain.EventEntityKill:
		in.handleEntityKill(ctx, ev)
	case domain.EventPlayerDeath:
		in.handlePlayerDeath(ctx, ev)
	case domain.EventAdvancement:
		in.handleAdvancement(ctx, ev)
	case domain.EventChat:
		if in.OnChat != nil && ev.GameName != "" {
			in.OnChat(ev.GameName, ev.Message)
		}
	default:
		log.Printf("Ingest: dropping event with unknown kind %q", ev.Kind)
	}
}

func (in *Ingestor) handleJoin(ctx context.Context, ev domain.GameEvent) {
	if ev.GameID == "" {
		log.Printf("Ingest: join event without game_id, dropped")
		return
	}

	in.sessions.Put(ev.GameID, &Session{
		ConnectedAt:   in.clock.Now(),
		LastLocation:  ev.Position,
		LastPersisted: ev.Position,
	})

	if ev.GameName != "" {
		if err := in.store.UpsertPlayerName(ctx, ev.GameID, ev.GameName); err != nil {
			log.Printf("Ingest: recording name for %s: %v", ev.GameID, err)
		}
	}
}

func (in *Ingestor) handleQuit(ctx context.Context, ev domain.GameEvent) {
	if ev.GameID == "" {
		log.Printf("Ingest: quit event without game_id, dropped")
		return
	}

	if sess := in.sessions.Get(ev.GameID); sess != nil {
		minutes := int64(in.clock.Now().Sub(sess.ConnectedAt).Minutes())
		if minutes > 0 {
			if err := in.store.AddPlaytime(ctx, ev.GameID, minutes); err != nil {
				log.Printf("Ingest: adding playtime for %s: %v", ev.GameID, err)
			}
		}
		in.sessions.Remove(ev.GameID)
	}

	if err := in.store.SetLastPosition(ctx, ev.GameID, ev.Position); err != nil {
		log.Printf("Ingest: saving position for %s: %v", ev.GameID, err)
	}
}

func (in *Ingestor) handleMove(ctx context.Context, ev domain.GameEvent) {
	if ev.GameID == "" {
		log.Printf("Ingest: move event without game_id, dropped")
		return
	}

	sess := in.sessions.Get(ev.GameID)
	if sess == nil {
		// Missed join (restart mid-session); start tracking from here.
		sess = &Session{
			ConnectedAt:   in.clock.Now(),
			LastLocation:  ev.Position,
			LastPersisted: ev.Position,
		}
		in.sessions.Put(ev.GameID, sess)
		return
	}

	// Per-tick distance accumulation, gated on the block coordinates
	// actually changing.
	if !ev.From.SameBlock(ev.Position) {
		last := sess.LastLocation
		if last.World == ev.Position.World {
			d := last.DistanceTo(ev.Position)
			if d > 0 && d < teleportThreshold {
				if err := in.store.AddDistance(ctx, ev.GameID, d); err != nil {
					log.Printf("Ingest: adding distance for %s: %v", ev.GameID, err)
				}
			}
		}
		sess.LastLocation = ev.Position
	}

	// Throttled position persistence, measured from the last written
	// position rather than the last observation.
	if sess.LastPersisted.World != ev.Position.World ||
		sess.LastPersisted.DistanceSquaredTo(ev.Position) > persistDistanceSquared {
		if err := in.store.SetLastPosition(ctx, ev.GameID, ev.Position); err != nil {
			log.Printf("Ingest: saving position for %s: %v", ev.GameID, err)
			return
		}
		sess.LastPersisted = ev.Position
	}
}

func (in *Ingestor) handleEntityKill(ctx context.Context, ev domain.GameEvent) {
	if ev.GameID == "" {
		return // no attributable killer
	}
	if excludedKillTypes[strings.ToLower(ev.EntityType)] {
		return
	}
	if err := in.store.IncrementKills(ctx, ev.GameID); err != nil {
		log.Printf("Ingest: incrementing kills for %s: %v", ev.GameID, err)
	}
}

func (in *Ingestor) handlePlayerDeath(ctx context.Context, ev domain.GameEvent) {
	if ev.GameID == "" {
		log.Printf("Ingest: death event without game_id, dropped")
		return
	}
	if err := in.store.IncrementDeaths(ctx, ev.GameID); err != nil {
		log.Printf("Ingest: incrementing deaths for %s: %v", ev.GameID, err)
	}
}

func (in *Ingestor) handleAdvancement(ctx context.Context, ev domain.GameEvent) {
	if ev.GameID == "" || ev.AchievementKey == "" {
		log.Printf("Ingest: advancement event missing game_id or key, dropped")
		return
	}
	// Recipe unlocks are not achievements
	if strings.Contains(ev.AchievementKey, "recipes") {
		return
	}
	if err := in.store.RecordAchievement(ctx, ev.GameID, ev.AchievementKey); err != nil {
		log.Printf("Ingest: recording achievement for %s: %v", ev.GameID, err)
	}
}
