package domain

import "time"

// EventKind identifies a game-world event. The set is closed: ingestion
// switches over these and rejects anything else.
type EventKind string

const (
	EventJoin        EventKind = "join"
	EventQuit        EventKind = "quit"
	EventMove        EventKind = "move"
	EventEntityKill  EventKind = "entity_kill"
	EventPlayerDeath EventKind = "player_death"
	EventAdvancement EventKind = "advancement"
	EventChat        EventKind = "chat"
)

// GameEvent is a discrete event reported by the game server. Which fields are
// meaningful depends on Kind; Timestamp is filled by the receiver when the
// sender omits it.
type GameEvent struct {
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp,omitempty"`

	// Player identification. GameID is required for every kind except
	// EntityKill with no attributable killer.
	GameID   string `json:"game_id,omitempty"`
	GameName string `json:"game_name,omitempty"`

	// Move carries both endpoints; Join and Quit carry Position only.
	Position Position `json:"position,omitempty"`
	From     Position `json:"from,omitempty"`

	// EntityKill: the type of the killed entity.
	EntityType string `json:"entity_type,omitempty"`

	// Advancement: the advancement key.
	AchievementKey string `json:"achievement_key,omitempty"`

	// Chat: the message text.
	Message string `json:"message,omitempty"`
}

// ChatMessage is a message received from the chat platform.
type ChatMessage struct {
	ChannelID  string `json:"channel_id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	IsBot      bool   `json:"is_bot"`
	Content    string `json:"content"`
}
