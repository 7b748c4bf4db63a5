package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ernie/craftbridge/internal/clock"
	"github.com/ernie/craftbridge/internal/domain"
	"github.com/stretchr/testify/suite"
)

type StoreSuite struct {
	suite.Suite
	store *Store
	clock *clock.Mock
	ctx   context.Context
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.clock = clock.NewMock(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
	s.ctx = context.Background()

	store, err := New(filepath.Join(s.T().TempDir(), "test.db"), s.clock)
	s.Require().NoError(err)
	s.store = store
}

func (s *StoreSuite) TearDownTest() {
	s.store.Close()
}

// Identity

func (s *StoreSuite) TestLinkAndResolve() {
	err := s.store.Link(s.ctx, "uuid-1", "Steve", "chat-1")
	s.Require().NoError(err)

	gameID, err := s.store.ResolveGameID(s.ctx, "chat-1")
	s.Require().NoError(err)
	s.Equal("uuid-1", gameID)
}

func (s *StoreSuite) TestResolveUnknownChatID() {
	_, err := s.store.ResolveGameID(s.ctx, "nobody")
	s.ErrorIs(err, domain.ErrNotLinked)
}

func (s *StoreSuite) TestRelinkOverwrites() {
	s.Require().NoError(s.store.Link(s.ctx, "uuid-1", "Steve", "chat-1"))
	s.Require().NoError(s.store.Link(s.ctx, "uuid-1", "Steve", "chat-2"))

	gameID, err := s.store.ResolveGameID(s.ctx, "chat-2")
	s.Require().NoError(err)
	s.Equal("uuid-1", gameID)

	_, err = s.store.ResolveGameID(s.ctx, "chat-1")
	s.ErrorIs(err, domain.ErrNotLinked)

	// Still one identity row, one stats row
	rows, err := s.store.GetAllToday(s.ctx)
	s.Require().NoError(err)
	s.Len(rows, 1)
}

func (s *StoreSuite) TestLinkCreatesTodayRow() {
	s.Require().NoError(s.store.Link(s.ctx, "uuid-1", "Steve", "chat-1"))

	rows, err := s.store.GetAllToday(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal("uuid-1", rows[0].GameID)
	s.Equal("Steve", rows[0].GameName)
}

func (s *StoreSuite) TestUpsertPlayerNameKeepsLink() {
	s.Require().NoError(s.store.Link(s.ctx, "uuid-1", "Steve", "chat-1"))
	s.Require().NoError(s.store.UpsertPlayerName(s.ctx, "uuid-1", "SteveRenamed"))

	gameID, err := s.store.ResolveGameID(s.ctx, "chat-1")
	s.Require().NoError(err)
	s.Equal("uuid-1", gameID)

	stats, err := s.store.GetToday(s.ctx, "uuid-1")
	s.Require().NoError(err)
	s.Equal("SteveRenamed", stats.GameName)
}

// Daily counters

func (s *StoreSuite) TestCounters() {
	s.Require().NoError(s.store.IncrementKills(s.ctx, "uuid-1"))
	s.Require().NoError(s.store.IncrementKills(s.ctx, "uuid-1"))
	s.Require().NoError(s.store.IncrementDeaths(s.ctx, "uuid-1"))
	s.Require().NoError(s.store.AddDistance(s.ctx, "uuid-1", 12.5))
	s.Require().NoError(s.store.AddDistance(s.ctx, "uuid-1", 7.5))
	s.Require().NoError(s.store.AddPlaytime(s.ctx, "uuid-1", 42))

	stats, err := s.store.GetToday(s.ctx, "uuid-1")
	s.Require().NoError(err)
	s.Equal(int64(2), stats.Kills)
	s.Equal(int64(1), stats.Deaths)
	s.InDelta(20.0, stats.DistanceTotal, 1e-9)
	s.InDelta(20.0, stats.DistanceDaily, 1e-9)
	s.Equal(int64(42), stats.PlaytimeMinutes)
}

func (s *StoreSuite) TestCountersIsolatedPerDay() {
	s.Require().NoError(s.store.IncrementKills(s.ctx, "uuid-1"))

	s.clock.Advance(24 * time.Hour)
	s.Require().NoError(s.store.IncrementKills(s.ctx, "uuid-1"))

	stats, err := s.store.GetToday(s.ctx, "uuid-1")
	s.Require().NoError(err)
	s.Equal(int64(1), stats.Kills)
}

func (s *StoreSuite) TestGetAllForReadsPastDate() {
	yesterday := domain.DateOf(s.clock.Now())
	s.Require().NoError(s.store.IncrementKills(s.ctx, "uuid-1"))
	s.Require().NoError(s.store.AddDistance(s.ctx, "uuid-1", 5.0))

	s.clock.Advance(24 * time.Hour)

	today, err := s.store.GetAllToday(s.ctx)
	s.Require().NoError(err)
	s.Empty(today)

	rows, err := s.store.GetAllFor(s.ctx, yesterday)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal(yesterday, rows[0].Date)
	s.Equal(int64(1), rows[0].Kills)
	s.InDelta(5.0, rows[0].DistanceDaily, 1e-9)
}

func (s *StoreSuite) TestNegativeDeltasRejected() {
	err := s.store.AddDistance(s.ctx, "uuid-1", -1)
	s.ErrorIs(err, domain.ErrInvalidParameter)

	err = s.store.AddPlaytime(s.ctx, "uuid-1", -1)
	s.ErrorIs(err, domain.ErrInvalidParameter)
}

func (s *StoreSuite) TestGetTodayCreatesRow() {
	stats, err := s.store.GetToday(s.ctx, "uuid-new")
	s.Require().NoError(err)
	s.Equal("uuid-new", stats.GameID)
	s.Equal(int64(0), stats.Kills)
	s.Equal(domain.DateOf(s.clock.Now()), stats.Date)
}

func (s *StoreSuite) TestSetLastPosition() {
	pos := domain.Position{World: "overworld", X: 10.5, Y: 64, Z: -3.25}
	s.Require().NoError(s.store.SetLastPosition(s.ctx, "uuid-1", pos))

	stats, err := s.store.GetToday(s.ctx, "uuid-1")
	s.Require().NoError(err)
	s.InDelta(10.5, stats.LastPosition.X, 1e-9)
	s.InDelta(64.0, stats.LastPosition.Y, 1e-9)
	s.InDelta(-3.25, stats.LastPosition.Z, 1e-9)
}

// Achievements

func (s *StoreSuite) TestAchievementIdempotent() {
	s.Require().NoError(s.store.RecordAchievement(s.ctx, "uuid-1", "story/mine_stone"))
	s.Require().NoError(s.store.RecordAchievement(s.ctx, "uuid-1", "story/mine_stone"))
	s.Require().NoError(s.store.RecordAchievement(s.ctx, "uuid-1", "story/iron_tools"))

	stats, err := s.store.GetToday(s.ctx, "uuid-1")
	s.Require().NoError(err)
	s.Equal(int64(2), stats.AchievementsCount)

	unlocks, err := s.store.GetAchievements(s.ctx, "uuid-1")
	s.Require().NoError(err)
	s.Len(unlocks, 2)
}

func (s *StoreSuite) TestAchievementNotRecountedAcrossDays() {
	s.Require().NoError(s.store.RecordAchievement(s.ctx, "uuid-1", "story/mine_stone"))

	s.clock.Advance(24 * time.Hour)
	s.Require().NoError(s.store.RecordAchievement(s.ctx, "uuid-1", "story/mine_stone"))

	stats, err := s.store.GetToday(s.ctx, "uuid-1")
	s.Require().NoError(err)
	s.Equal(int64(0), stats.AchievementsCount)
}

// Playtime

func (s *StoreSuite) TestPlaytimeTotals() {
	s.Require().NoError(s.store.AddPlaytime(s.ctx, "uuid-1", 30))
	s.clock.Advance(24 * time.Hour)
	s.Require().NoError(s.store.AddPlaytime(s.ctx, "uuid-1", 45))

	today, total, err := s.store.GetPlaytime(s.ctx, "uuid-1")
	s.Require().NoError(err)
	s.Equal(int64(45), today)
	s.Equal(int64(75), total)
}

func (s *StoreSuite) TestPlaytimeUnknownPlayer() {
	today, total, err := s.store.GetPlaytime(s.ctx, "nobody")
	s.Require().NoError(err)
	s.Equal(int64(0), today)
	s.Equal(int64(0), total)
}

// Daily distance reset

func (s *StoreSuite) TestResetDailyDistance() {
	s.Require().NoError(s.store.AddDistance(s.ctx, "uuid-1", 50))
	date := domain.DateOf(s.clock.Now())

	s.Require().NoError(s.store.ResetDailyDistance(s.ctx, date))

	stats, err := s.store.GetToday(s.ctx, "uuid-1")
	s.Require().NoError(err)
	s.InDelta(0.0, stats.DistanceDaily, 1e-9)
	s.InDelta(50.0, stats.DistanceTotal, 1e-9)

	// Running again is a no-op
	s.Require().NoError(s.store.ResetDailyDistance(s.ctx, date))
	stats, err = s.store.GetToday(s.ctx, "uuid-1")
	s.Require().NoError(err)
	s.InDelta(0.0, stats.DistanceDaily, 1e-9)
}

// Ranking

func (s *StoreSuite) TestTopOrderingAndTies() {
	s.Require().NoError(s.store.UpsertPlayerName(s.ctx, "uuid-a", "Alice"))
	s.Require().NoError(s.store.UpsertPlayerName(s.ctx, "uuid-b", "Bob"))
	s.Require().NoError(s.store.UpsertPlayerName(s.ctx, "uuid-c", "Carol"))

	for i := 0; i < 3; i++ {
		s.Require().NoError(s.store.IncrementKills(s.ctx, "uuid-b"))
	}
	s.Require().NoError(s.store.IncrementKills(s.ctx, "uuid-a"))
	s.Require().NoError(s.store.IncrementKills(s.ctx, "uuid-c"))

	entries, err := s.store.Top(s.ctx, domain.MetricKills, domain.PeriodWeekly, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)

	s.Equal("Bob", entries[0].GameName)
	s.Equal(1, entries[0].Rank)
	s.InDelta(3.0, entries[0].Value, 1e-9)

	// Alice and Carol tie at 1; game_id breaks the tie
	s.Equal("uuid-a", entries[1].GameID)
	s.Equal("uuid-c", entries[2].GameID)
	s.Equal(2, entries[1].Rank)
	s.Equal(3, entries[2].Rank)
}

func (s *StoreSuite) TestTopSumsAcrossDays() {
	s.Require().NoError(s.store.IncrementKills(s.ctx, "uuid-a"))
	s.clock.Advance(24 * time.Hour)
	s.Require().NoError(s.store.IncrementKills(s.ctx, "uuid-a"))

	entries, err := s.store.Top(s.ctx, domain.MetricKills, domain.PeriodWeekly, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.InDelta(2.0, entries[0].Value, 1e-9)
}

func (s *StoreSuite) TestTopWeeklyWindowExcludesOldRows() {
	s.Require().NoError(s.store.IncrementKills(s.ctx, "uuid-old"))

	s.clock.Advance(8 * 24 * time.Hour)
	s.Require().NoError(s.store.IncrementKills(s.ctx, "uuid-new"))

	entries, err := s.store.Top(s.ctx, domain.MetricKills, domain.PeriodWeekly, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("uuid-new", entries[0].GameID)
}

func (s *StoreSuite) TestTopDistanceSurvivesDailyReset() {
	s.Require().NoError(s.store.AddDistance(s.ctx, "uuid-a", 100))
	s.Require().NoError(s.store.ResetDailyDistance(s.ctx, domain.DateOf(s.clock.Now())))

	entries, err := s.store.Top(s.ctx, domain.MetricDistance, domain.PeriodWeekly, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.InDelta(100.0, entries[0].Value, 1e-9)
}

func (s *StoreSuite) TestTopDefaultLimit() {
	for _, id := range []string{"a", "b", "c"} {
		s.Require().NoError(s.store.IncrementKills(s.ctx, id))
	}

	entries, err := s.store.Top(s.ctx, domain.MetricKills, domain.PeriodWeekly, 0)
	s.Require().NoError(err)
	s.Len(entries, 3)
}

func (s *StoreSuite) TestTopEmptyPeriod() {
	entries, err := s.store.Top(s.ctx, domain.MetricKills, domain.PeriodMonthly, 10)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *StoreSuite) TestTopInvalidMetric() {
	_, err := s.store.Top(s.ctx, domain.Metric("bogus"), domain.PeriodWeekly, 10)
	s.ErrorIs(err, domain.ErrInvalidParameter)
}

func TestMinusOneMonthClamps(t *testing.T) {
	cases := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2024, 3, 31, 10, 0, 0, 0, time.UTC), time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{time.Date(2023, 3, 31, 10, 0, 0, 0, time.UTC), time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 7, 31, 10, 0, 0, 0, time.UTC), time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC), time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC), time.Date(2023, 12, 10, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got := minusOneMonth(c.in)
		if !got.Equal(c.want) {
			t.Errorf("minusOneMonth(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
