package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ernie/craftbridge/internal/domain"
)

// Store is the persistence surface the command handlers need
type Store interface {
	Link(ctx context.Context, gameID, gameName, chatID string) error
	ResolveGameID(ctx context.Context, chatID string) (string, error)
	GetToday(ctx context.Context, gameID string) (*domain.DailyStats, error)
	GetPlaytime(ctx context.Context, gameID string) (today, total int64, err error)
	GetAchievements(ctx context.Context, gameID string) ([]domain.AchievementUnlock, error)
	Top(ctx context.Context, metric domain.Metric, period domain.Period, limit int) ([]domain.RankingEntry, error)
}

// PlayerLookup resolves an in-game name to a game account via the game server
type PlayerLookup interface {
	LookupPlayer(ctx context.Context, gameName string) (gameID, displayName string, err error)
}

const (
	msgTryAgain  = "Something went wrong, please try again."
	msgNotLinked = "Your account is not linked yet. Use the link command with your in-game name first."
)

// Commands answers the typed user requests arriving from the chat platform.
// Every request produces a bounded user-facing message; internal failures are
// logged and surface as a retry hint, never as a crash.
type Commands struct {
	store  Store
	lookup PlayerLookup
}

// NewCommands creates the command handler
func NewCommands(store Store, lookup PlayerLookup) *Commands {
	return &Commands{store: store, lookup: lookup}
}

// Link connects a chat account to the game account with the given in-game name
func (c *Commands) Link(ctx context.Context, chatID, gameName string) string {
	gameID, displayName, err := c.lookup.LookupPlayer(ctx, gameName)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Sprintf("Player %q was not found on the server. Check the spelling of your in-game name.", gameName)
	}
	if err != nil {
		log.Printf("Commands: looking up player %q: %v", gameName, err)
		return msgTryAgain
	}

	if err := c.store.Link(ctx, gameID, displayName, chatID); err != nil {
		log.Printf("Commands: linking %s to %s: %v", gameID, chatID, err)
		return msgTryAgain
	}
	return fmt.Sprintf("**Link successful!** Game account %s is now connected to your chat account.", displayName)
}

// resolve maps a chat account to its linked game account
func (c *Commands) resolve(ctx context.Context, chatID string) (string, string) {
	gameID, err := c.store.ResolveGameID(ctx, chatID)
	if errors.Is(err, domain.ErrNotLinked) {
		return "", msgNotLinked
	}
	if err != nil {
		log.Printf("Commands: resolving chat id %s: %v", chatID, err)
		return "", msgTryAgain
	}
	return gameID, ""
}

// Stats reports today's counters for the requesting user
func (c *Commands) Stats(ctx context.Context, chatID string) string {
	gameID, msg := c.resolve(ctx, chatID)
	if msg != "" {
		return msg
	}

	stats, err := c.store.GetToday(ctx, gameID)
	if err != nil {
		log.Printf("Commands: reading stats for %s: %v", gameID, err)
		return msgTryAgain
	}

	return fmt.Sprintf("**Today's stats for %s**\nKills: %d | Deaths: %d | Distance: %.1f blocks | Achievements: %d",
		stats.GameName, stats.Kills, stats.Deaths, stats.DistanceDaily, stats.AchievementsCount)
}

// Playtime reports today's and the all-time played minutes
func (c *Commands) Playtime(ctx context.Context, chatID string) string {
	gameID, msg := c.resolve(ctx, chatID)
	if msg != "" {
		return msg
	}

	today, total, err := c.store.GetPlaytime(ctx, gameID)
	if err != nil {
		log.Printf("Commands: reading playtime for %s: %v", gameID, err)
		return msgTryAgain
	}

	return fmt.Sprintf("**Playtime**\nToday: %s | Total: %s", FormatMinutes(today), FormatMinutes(total))
}

// Achievements lists the requesting user's achievement unlocks
func (c *Commands) Achievements(ctx context.Context, chatID string) string {
	gameID, msg := c.resolve(ctx, chatID)
	if msg != "" {
		return msg
	}

	unlocks, err := c.store.GetAchievements(ctx, gameID)
	if err != nil {
		log.Printf("Commands: reading achievements for %s: %v", gameID, err)
		return msgTryAgain
	}
	if len(unlocks) == 0 {
		return "No achievements unlocked yet."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**Achievements unlocked: %d**\n", len(unlocks))
	for _, u := range unlocks {
		fmt.Fprintf(&sb, "- %s\n", u.AchievementKey)
	}
	return Truncate(sb.String())
}

// Position reports the last recorded coordinates
func (c *Commands) Position(ctx context.Context, chatID string) string {
	gameID, msg := c.resolve(ctx, chatID)
	if msg != "" {
		return msg
	}

	stats, err := c.store.GetToday(ctx, gameID)
	if err != nil {
		log.Printf("Commands: reading position for %s: %v", gameID, err)
		return msgTryAgain
	}

	pos := stats.LastPosition
	return fmt.Sprintf("**Last position of %s**\nX: %.0f | Y: %.0f | Z: %.0f",
		stats.GameName, pos.X, pos.Y, pos.Z)
}

// Top reports the leaderboard for a metric over a period
func (c *Commands) Top(ctx context.Context, metricName, periodName string) string {
	metric, err := domain.ParseMetric(metricName)
	if err != nil {
		return "Invalid ranking type. Valid types: kills, distance, achievements."
	}
	period, err := domain.ParsePeriod(periodName)
	if err != nil {
		return "Invalid period. Valid periods: weekly, monthly."
	}

	entries, err := c.store.Top(ctx, metric, period, 10)
	if err != nil {
		log.Printf("Commands: ranking %s/%s: %v", metric, period, err)
		return msgTryAgain
	}
	if len(entries) == 0 {
		return "No stats recorded for that period yet."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**Top players by %s (%s)**\n", metric, period)
	for _, e := range entries {
		name := e.GameName
		if name == "" {
			name = e.GameID
		}
		switch metric {
		case domain.MetricDistance:
			fmt.Fprintf(&sb, "%d. %s - %.1f blocks\n", e.Rank, name, e.Value)
		default:
			fmt.Fprintf(&sb, "%d. %s - %.0f\n", e.Rank, name, e.Value)
		}
	}
	return Truncate(sb.String())
}

// Dispatch interprets a chat message as a command when it carries the command
// prefix. The reply and true are returned for recognized commands; everything
// else passes through untouched.
func (c *Commands) Dispatch(ctx context.Context, msg domain.ChatMessage) (string, bool) {
	if !strings.HasPrefix(msg.Content, "!") {
		return "", false
	}
	fields := strings.Fields(strings.TrimPrefix(msg.Content, "!"))
	if len(fields) == 0 {
		return "", false
	}

	switch strings.ToLower(fields[0]) {
	case "link":
		if len(fields) < 2 {
			return "Usage: !link <in-game name>", true
		}
		return c.Link(ctx, msg.AuthorID, fields[1]), true
	case "stats":
		return c.Stats(ctx, msg.AuthorID), true
	case "time":
		return c.Playtime(ctx, msg.AuthorID), true
	case "rec":
		return c.Achievements(ctx, msg.AuthorID), true
	case "pos":
		return c.Position(ctx, msg.AuthorID), true
	case "top":
		if len(fields) < 3 {
			return "Usage: !top <kills|distance|achievements> <weekly|monthly>", true
		}
		return c.Top(ctx, fields[1], fields[2]), true
	}
	return "", false
}

// FormatMinutes renders a minute count as hours and minutes
func FormatMinutes(minutes int64) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}
