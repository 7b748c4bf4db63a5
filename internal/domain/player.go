package domain

import (
	"math"
	"time"
)

// PlayerIdentity links a game account to a chat account.
// chat_id is empty until the player links; re-linking overwrites it.
type PlayerIdentity struct {
	GameID   string    `json:"game_id"`
	GameName string    `json:"game_name"`
	ChatID   string    `json:"chat_id,omitempty"`
	LinkedAt time.Time `json:"linked_at"`
}

// Position is a point in a game world.
type Position struct {
	World string  `json:"world"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

// BlockX returns the block (whole-unit) X coordinate.
func (p Position) BlockX() int { return int(math.Floor(p.X)) }

// BlockY returns the block Y coordinate.
func (p Position) BlockY() int { return int(math.Floor(p.Y)) }

// BlockZ returns the block Z coordinate.
func (p Position) BlockZ() int { return int(math.Floor(p.Z)) }

// SameBlock reports whether two positions round to the same block coordinates.
func (p Position) SameBlock(o Position) bool {
	return p.BlockX() == o.BlockX() && p.BlockY() == o.BlockY() && p.BlockZ() == o.BlockZ()
}

// DistanceTo returns the 3D Euclidean distance to another position.
func (p Position) DistanceTo(o Position) float64 {
	return math.Sqrt(p.DistanceSquaredTo(o))
}

// DistanceSquaredTo returns the squared distance to another position.
func (p Position) DistanceSquaredTo(o Position) float64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	dz := p.Z - o.Z
	return dx*dx + dy*dy + dz*dz
}

// DailyStats is one player's counters for a single date, joined with the
// player's display name for presentation.
type DailyStats struct {
	GameID            string   `json:"game_id"`
	GameName          string   `json:"game_name"`
	Date              string   `json:"date"` // YYYY-MM-DD
	Kills             int64    `json:"kills"`
	Deaths            int64    `json:"deaths"`
	DistanceTotal     float64  `json:"distance_total"`
	DistanceDaily     float64  `json:"distance_daily"`
	PlaytimeMinutes   int64    `json:"playtime_minutes"`
	AchievementsCount int64    `json:"achievements_count"`
	LastPosition      Position `json:"last_position"`
}

// AchievementUnlock records a single achievement unlock for a player.
type AchievementUnlock struct {
	GameID         string    `json:"game_id"`
	AchievementKey string    `json:"achievement_key"`
	UnlockedAt     time.Time `json:"unlocked_at"`
}

// Metric selects which counter a ranking aggregates.
type Metric string

const (
	MetricKills        Metric = "kills"
	MetricDistance     Metric = "distance"
	MetricAchievements Metric = "achievements"
)

// ParseMetric validates a ranking metric name.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricKills, MetricDistance, MetricAchievements:
		return Metric(s), nil
	}
	return "", ErrInvalidParameter
}

// Period selects the date range a ranking aggregates over.
type Period string

const (
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// ParsePeriod validates a ranking period name.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodWeekly, PeriodMonthly:
		return Period(s), nil
	}
	return "", ErrInvalidParameter
}

// RankingEntry is one row of a leaderboard.
type RankingEntry struct {
	Rank     int     `json:"rank"`
	GameID   string  `json:"game_id"`
	GameName string  `json:"game_name"`
	Value    float64 `json:"value"`
}

// DateOf formats a timestamp as the daily-row date key.
func DateOf(t time.Time) string {
	return t.Format("2006-01-02")
}
