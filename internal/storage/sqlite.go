package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/ernie/craftbridge/internal/clock"
	"github.com/ernie/craftbridge/internal/domain"
	_ "modernc.org/sqlite"
)

// formatTimestamp converts time.Time to SQLite-compatible UTC ISO8601 string
// The Z suffix ensures the Go sqlite driver parses it back as UTC
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

//go:embed schema.sql
var schema string

// Store provides database access for identities, daily stats, and rankings.
// The single sqlite connection serializes writes, so each upsert below is
// atomic with respect to every other mutation on the same row.
type Store struct {
	db    *sql.DB
	clock clock.Clock
}

// New creates a new Store with the given database path
func New(dbPath string, clk clock.Clock) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Enable foreign keys, WAL mode for better performance, and busy timeout for concurrency
	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	// Create tables
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if clk == nil {
		clk = clock.New()
	}
	return &Store{db: db, clock: clk}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// today returns the current date key in local time
func (s *Store) today() string {
	return domain.DateOf(s.clock.Now())
}

// storageErr wraps a driver error into the storage error taxonomy
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorage, err)
}

// --- Identity methods ---

// Link upserts the identity row for a game account and points it at the given
// chat account. Re-linking overwrites the previous chat_id. On success the
// current day's stats row is guaranteed to exist.
func (s *Store) Link(ctx context.Context, gameID, gameName, chatID string) error {
	now := s.clock.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO players (game_id, game_name, chat_id, linked_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(game_id) DO UPDATE SET
			game_name = excluded.game_name,
			chat_id = excluded.chat_id,
			linked_at = excluded.linked_at
	`, gameID, gameName, chatID, formatTimestamp(now))
	if err != nil {
		return storageErr("linking player", err)
	}

	if err := s.ensureDay(ctx, gameID, domain.DateOf(now)); err != nil {
		return err
	}
	return nil
}

// ResolveGameID looks up the game account linked to a chat account. A chat
// account with no link returns ErrNotLinked.
func (s *Store) ResolveGameID(ctx context.Context, chatID string) (string, error) {
	var gameID string
	err := s.db.QueryRowContext(ctx, `
		SELECT game_id FROM players WHERE chat_id = ?
	`, chatID).Scan(&gameID)
	if err == sql.ErrNoRows {
		return "", domain.ErrNotLinked
	}
	if err != nil {
		return "", storageErr("resolving chat id", err)
	}
	return gameID, nil
}

// UpsertPlayerName records or refreshes a player's display name without
// touching any chat link. Used by ingestion so stats rows always have a name
// to join against.
func (s *Store) UpsertPlayerName(ctx context.Context, gameID, gameName string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO players (game_id, game_name)
		VALUES (?, ?)
		ON CONFLICT(game_id) DO UPDATE SET game_name = excluded.game_name
	`, gameID, gameName)
	if err != nil {
		return storageErr("recording player name", err)
	}
	return nil
}

// --- Daily stats mutations ---
//
// Each mutation is a single INSERT ... ON CONFLICT upsert: the statement both
// ensures the (game_id, date) row exists and applies the delta, so concurrent
// callers can never lose an update.

// ensureDay creates a zero-valued stats row for (gameID, date) if absent
func (s *Store) ensureDay(ctx context.Context, gameID, date string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO daily_stats (game_id, date) VALUES (?, ?)
	`, gameID, date)
	if err != nil {
		return storageErr("ensuring daily row", err)
	}
	return nil
}

// IncrementKills adds one kill to today's row
func (s *Store) IncrementKills(ctx context.Context, gameID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_stats (game_id, date, kills) VALUES (?, ?, 1)
		ON CONFLICT(game_id, date) DO UPDATE SET kills = kills + 1
	`, gameID, s.today())
	if err != nil {
		return storageErr("incrementing kills", err)
	}
	return nil
}

// IncrementDeaths adds one death to today's row
func (s *Store) IncrementDeaths(ctx context.Context, gameID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_stats (game_id, date, deaths) VALUES (?, ?, 1)
		ON CONFLICT(game_id, date) DO UPDATE SET deaths = deaths + 1
	`, gameID, s.today())
	if err != nil {
		return storageErr("incrementing deaths", err)
	}
	return nil
}

// AddDistance adds a traveled distance to both distance counters on today's
// row. delta must be non-negative.
func (s *Store) AddDistance(ctx context.Context, gameID string, delta float64) error {
	if delta < 0 {
		return fmt.Errorf("distance delta %f: %w", delta, domain.ErrInvalidParameter)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_stats (game_id, date, distance_total, distance_daily) VALUES (?, ?, ?, ?)
		ON CONFLICT(game_id, date) DO UPDATE SET
			distance_total = distance_total + excluded.distance_total,
			distance_daily = distance_daily + excluded.distance_daily
	`, gameID, s.today(), delta, delta)
	if err != nil {
		return storageErr("adding distance", err)
	}
	return nil
}

// AddPlaytime adds played minutes to today's row. minutes must be non-negative.
func (s *Store) AddPlaytime(ctx context.Context, gameID string, minutes int64) error {
	if minutes < 0 {
		return fmt.Errorf("playtime minutes %d: %w", minutes, domain.ErrInvalidParameter)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_stats (game_id, date, playtime_minutes) VALUES (?, ?, ?)
		ON CONFLICT(game_id, date) DO UPDATE SET
			playtime_minutes = playtime_minutes + excluded.playtime_minutes
	`, gameID, s.today(), minutes)
	if err != nil {
		return storageErr("adding playtime", err)
	}
	return nil
}

// SetLastPosition overwrites the last known position on today's row
func (s *Store) SetLastPosition(ctx context.Context, gameID string, pos domain.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_stats (game_id, date, last_x, last_y, last_z) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(game_id, date) DO UPDATE SET
			last_x = excluded.last_x,
			last_y = excluded.last_y,
			last_z = excluded.last_z
	`, gameID, s.today(), pos.X, pos.Y, pos.Z)
	if err != nil {
		return storageErr("setting last position", err)
	}
	return nil
}

// RecordAchievement inserts an achievement unlock if it has not been recorded
// before, and only then bumps today's achievement count. Re-unlocking an
// already-recorded key is a silent no-op.
func (s *Store) RecordAchievement(ctx context.Context, gameID, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("starting transaction", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO achievements (game_id, achievement_key, unlocked_at)
		VALUES (?, ?, ?)
	`, gameID, key, formatTimestamp(s.clock.Now()))
	if err != nil {
		return storageErr("recording achievement", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return storageErr("recording achievement", err)
	}
	if inserted == 0 {
		return nil // already unlocked
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_stats (game_id, date, achievements_count) VALUES (?, ?, 1)
		ON CONFLICT(game_id, date) DO UPDATE SET achievements_count = achievements_count + 1
	`, gameID, s.today())
	if err != nil {
		return storageErr("counting achievement", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("committing achievement", err)
	}
	return nil
}

// --- Daily stats reads ---

// GetToday returns today's stats row for a player, creating it if absent
func (s *Store) GetToday(ctx context.Context, gameID string) (*domain.DailyStats, error) {
	date := s.today()
	if err := s.ensureDay(ctx, gameID, date); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT ds.game_id, COALESCE(p.game_name, ''), ds.date, ds.kills, ds.deaths,
			ds.distance_total, ds.distance_daily, ds.playtime_minutes, ds.achievements_count,
			ds.last_x, ds.last_y, ds.last_z
		FROM daily_stats ds
		LEFT JOIN players p ON p.game_id = ds.game_id
		WHERE ds.game_id = ? AND ds.date = ?
	`, gameID, date)

	stats, err := scanDailyStats(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("reading today's stats", err)
	}
	return stats, nil
}

// GetAllToday returns every player's stats row for today, ordered by display
// name.
func (s *Store) GetAllToday(ctx context.Context) ([]domain.DailyStats, error) {
	return s.GetAllFor(ctx, s.today())
}

// GetAllFor returns every player's stats row for the given date, ordered by
// display name. The daily rollup passes the date that just ended rather than
// the current one.
func (s *Store) GetAllFor(ctx context.Context, date string) ([]domain.DailyStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ds.game_id, COALESCE(p.game_name, ''), ds.date, ds.kills, ds.deaths,
			ds.distance_total, ds.distance_daily, ds.playtime_minutes, ds.achievements_count,
			ds.last_x, ds.last_y, ds.last_z
		FROM daily_stats ds
		LEFT JOIN players p ON p.game_id = ds.game_id
		WHERE ds.date = ?
		ORDER BY p.game_name, ds.game_id
	`, date)
	if err != nil {
		return nil, storageErr("reading daily stats", err)
	}
	defer rows.Close()

	var all []domain.DailyStats
	for rows.Next() {
		stats, err := scanDailyStats(rows)
		if err != nil {
			return nil, storageErr("scanning stats row", err)
		}
		all = append(all, *stats)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("reading daily stats", err)
	}
	return all, nil
}

// GetPlaytime returns today's and the all-time played minutes for a player
func (s *Store) GetPlaytime(ctx context.Context, gameID string) (today, total int64, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN date = ? THEN playtime_minutes ELSE 0 END), 0),
			COALESCE(SUM(playtime_minutes), 0)
		FROM daily_stats WHERE game_id = ?
	`, s.today(), gameID).Scan(&today, &total)
	if err != nil {
		return 0, 0, storageErr("reading playtime", err)
	}
	return today, total, nil
}

// GetAchievements returns a player's achievement unlocks, newest first
func (s *Store) GetAchievements(ctx context.Context, gameID string) ([]domain.AchievementUnlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT game_id, achievement_key, unlocked_at
		FROM achievements WHERE game_id = ?
		ORDER BY unlocked_at DESC, achievement_key
	`, gameID)
	if err != nil {
		return nil, storageErr("reading achievements", err)
	}
	defer rows.Close()

	var unlocks []domain.AchievementUnlock
	for rows.Next() {
		var u domain.AchievementUnlock
		if err := rows.Scan(&u.GameID, &u.AchievementKey, &u.UnlockedAt); err != nil {
			return nil, storageErr("scanning achievement", err)
		}
		unlocks = append(unlocks, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("reading achievements", err)
	}
	return unlocks, nil
}

// ResetDailyDistance zeroes distance_daily for every row on the given date.
// Running it twice for the same date is a no-op.
func (s *Store) ResetDailyDistance(ctx context.Context, date string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE daily_stats SET distance_daily = 0 WHERE date = ?
	`, date)
	if err != nil {
		return storageErr("resetting daily distance", err)
	}
	return nil
}

// --- Ranking ---

// rankingColumn maps a metric to the aggregated stats column
func rankingColumn(metric domain.Metric) (string, error) {
	switch metric {
	case domain.MetricKills:
		return "SUM(ds.kills)", nil
	case domain.MetricDistance:
		return "SUM(ds.distance_total)", nil
	case domain.MetricAchievements:
		return "SUM(ds.achievements_count)", nil
	}
	return "", fmt.Errorf("metric %q: %w", metric, domain.ErrInvalidParameter)
}

// periodStart computes the inclusive start date for a ranking period.
// Weekly is today minus seven days. Monthly is calendar subtraction with the
// day-of-month clamped to the last valid day of the previous month (e.g.
// March 31 minus one month is February 28/29).
func periodStart(now time.Time, period domain.Period) (time.Time, error) {
	switch period {
	case domain.PeriodWeekly:
		return now.AddDate(0, 0, -7), nil
	case domain.PeriodMonthly:
		return minusOneMonth(now), nil
	}
	return time.Time{}, fmt.Errorf("period %q: %w", period, domain.ErrInvalidParameter)
}

// minusOneMonth subtracts one calendar month, clamping the day to the target
// month's length instead of letting it spill into the following month.
func minusOneMonth(t time.Time) time.Time {
	firstOfTarget := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, -1, 0)
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, t.Location())
}

// Top returns the highest-ranked players by metric over the period, summed
// across daily rows in the inclusive date range and ordered by the summed
// value descending. Ties break by game_id ascending so repeated queries are
// stable. An empty result is valid.
func (s *Store) Top(ctx context.Context, metric domain.Metric, period domain.Period, limit int) ([]domain.RankingEntry, error) {
	column, err := rankingColumn(metric)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	start, err := periodStart(now, period)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ds.game_id, COALESCE(p.game_name, ''), `+column+` AS total
		FROM daily_stats ds
		LEFT JOIN players p ON p.game_id = ds.game_id
		WHERE ds.date BETWEEN ? AND ?
		GROUP BY ds.game_id
		ORDER BY total DESC, ds.game_id ASC
		LIMIT ?
	`, domain.DateOf(start), domain.DateOf(now), limit)
	if err != nil {
		return nil, storageErr("querying ranking", err)
	}
	defer rows.Close()

	var entries []domain.RankingEntry
	rank := 0
	for rows.Next() {
		rank++
		var e domain.RankingEntry
		if err := rows.Scan(&e.GameID, &e.GameName, &e.Value); err != nil {
			return nil, storageErr("scanning ranking row", err)
		}
		e.Rank = rank
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("querying ranking", err)
	}
	return entries, nil
}
