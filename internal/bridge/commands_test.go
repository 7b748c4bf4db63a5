package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/ernie/craftbridge/internal/domain"
	"github.com/stretchr/testify/suite"
)

// fakeCommandStore answers from in-memory maps
type fakeCommandStore struct {
	links        map[string]string // chatID -> gameID
	today        map[string]*domain.DailyStats
	playtime     map[string][2]int64
	achievements map[string][]domain.AchievementUnlock
	top          []domain.RankingEntry
	linkErr      error
}

func newFakeCommandStore() *fakeCommandStore {
	return &fakeCommandStore{
		links:        make(map[string]string),
		today:        make(map[string]*domain.DailyStats),
		playtime:     make(map[string][2]int64),
		achievements: make(map[string][]domain.AchievementUnlock),
	}
}

func (f *fakeCommandStore) Link(_ context.Context, gameID, gameName, chatID string) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	f.links[chatID] = gameID
	return nil
}

func (f *fakeCommandStore) ResolveGameID(_ context.Context, chatID string) (string, error) {
	gameID, ok := f.links[chatID]
	if !ok {
		return "", domain.ErrNotLinked
	}
	return gameID, nil
}

func (f *fakeCommandStore) GetToday(_ context.Context, gameID string) (*domain.DailyStats, error) {
	if stats, ok := f.today[gameID]; ok {
		return stats, nil
	}
	return &domain.DailyStats{GameID: gameID}, nil
}

func (f *fakeCommandStore) GetPlaytime(_ context.Context, gameID string) (int64, int64, error) {
	p := f.playtime[gameID]
	return p[0], p[1], nil
}

func (f *fakeCommandStore) GetAchievements(_ context.Context, gameID string) ([]domain.AchievementUnlock, error) {
	return f.achievements[gameID], nil
}

func (f *fakeCommandStore) Top(_ context.Context, metric domain.Metric, period domain.Period, limit int) ([]domain.RankingEntry, error) {
	return f.top, nil
}

// fakeLookup resolves a fixed set of player names
type fakeLookup struct {
	players map[string][2]string // name -> (gameID, displayName)
}

func (f *fakeLookup) LookupPlayer(_ context.Context, gameName string) (string, string, error) {
	p, ok := f.players[gameName]
	if !ok {
		return "", "", domain.ErrNotFound
	}
	return p[0], p[1], nil
}

type CommandsSuite struct {
	suite.Suite
	store    *fakeCommandStore
	lookup   *fakeLookup
	commands *Commands
	ctx      context.Context
}

func TestCommandsSuite(t *testing.T) {
	suite.Run(t, new(CommandsSuite))
}

func (s *CommandsSuite) SetupTest() {
	s.store = newFakeCommandStore()
	s.lookup = &fakeLookup{players: map[string][2]string{
		"Steve": {"uuid-1", "Steve"},
	}}
	s.commands = NewCommands(s.store, s.lookup)
	s.ctx = context.Background()
}

func (s *CommandsSuite) link() {
	s.store.links["chat-1"] = "uuid-1"
}

func (s *CommandsSuite) TestLinkSuccess() {
	reply := s.commands.Link(s.ctx, "chat-1", "Steve")

	s.Contains(reply, "Link successful")
	s.Equal("uuid-1", s.store.links["chat-1"])
}

func (s *CommandsSuite) TestLinkUnknownPlayer() {
	reply := s.commands.Link(s.ctx, "chat-1", "Nobody")

	s.Contains(reply, "not found")
	s.Empty(s.store.links)
}

func (s *CommandsSuite) TestLinkStoreFailure() {
	s.store.linkErr = domain.ErrStorage

	reply := s.commands.Link(s.ctx, "chat-1", "Steve")

	s.Equal(msgTryAgain, reply)
}

func (s *CommandsSuite) TestStatsNotLinked() {
	reply := s.commands.Stats(s.ctx, "chat-1")
	s.Equal(msgNotLinked, reply)
}

func (s *CommandsSuite) TestStats() {
	s.link()
	s.store.today["uuid-1"] = &domain.DailyStats{
		GameID: "uuid-1", GameName: "Steve",
		Kills: 3, Deaths: 1, DistanceDaily: 42.5, AchievementsCount: 2,
	}

	reply := s.commands.Stats(s.ctx, "chat-1")

	s.Contains(reply, "Steve")
	s.Contains(reply, "Kills: 3")
	s.Contains(reply, "Deaths: 1")
	s.Contains(reply, "42.5")
}

func (s *CommandsSuite) TestPlaytime() {
	s.link()
	s.store.playtime["uuid-1"] = [2]int64{30, 125}

	reply := s.commands.Playtime(s.ctx, "chat-1")

	s.Contains(reply, "30m")
	s.Contains(reply, "2h 5m")
}

func (s *CommandsSuite) TestAchievementsEmpty() {
	s.link()
	reply := s.commands.Achievements(s.ctx, "chat-1")
	s.Contains(reply, "No achievements")
}

func (s *CommandsSuite) TestAchievements() {
	s.link()
	s.store.achievements["uuid-1"] = []domain.AchievementUnlock{
		{GameID: "uuid-1", AchievementKey: "story/mine_stone", UnlockedAt: time.Now()},
		{GameID: "uuid-1", AchievementKey: "story/iron_tools", UnlockedAt: time.Now()},
	}

	reply := s.commands.Achievements(s.ctx, "chat-1")

	s.Contains(reply, "2")
	s.Contains(reply, "story/mine_stone")
	s.Contains(reply, "story/iron_tools")
}

func (s *CommandsSuite) TestPosition() {
	s.link()
	s.store.today["uuid-1"] = &domain.DailyStats{
		GameID: "uuid-1", GameName: "Steve",
		LastPosition: domain.Position{World: "overworld", X: 10.7, Y: 64.2, Z: -3.9},
	}

	reply := s.commands.Position(s.ctx, "chat-1")

	s.Contains(reply, "X: 11")
	s.Contains(reply, "Y: 64")
	s.Contains(reply, "Z: -4")
}

func (s *CommandsSuite) TestTopInvalidMetric() {
	reply := s.commands.Top(s.ctx, "bogus", "weekly")
	s.Contains(reply, "Invalid ranking type")
}

func (s *CommandsSuite) TestTopInvalidPeriod() {
	reply := s.commands.Top(s.ctx, "kills", "daily")
	s.Contains(reply, "Invalid period")
}

func (s *CommandsSuite) TestTopEmpty() {
	reply := s.commands.Top(s.ctx, "kills", "weekly")
	s.Contains(reply, "No stats recorded")
}

func (s *CommandsSuite) TestTop() {
	s.store.top = []domain.RankingEntry{
		{Rank: 1, GameID: "uuid-1", GameName: "Steve", Value: 12},
		{Rank: 2, GameID: "uuid-2", GameName: "Alex", Value: 7},
	}

	reply := s.commands.Top(s.ctx, "kills", "weekly")

	s.Contains(reply, "1. Steve - 12")
	s.Contains(reply, "2. Alex - 7")
}

func (s *CommandsSuite) TestTopDistanceFormatting() {
	s.store.top = []domain.RankingEntry{
		{Rank: 1, GameID: "uuid-1", GameName: "Steve", Value: 1234.56},
	}

	reply := s.commands.Top(s.ctx, "distance", "monthly")

	s.Contains(reply, "1234.6 blocks")
}

// Dispatch

func (s *CommandsSuite) dispatch(content string) (string, bool) {
	return s.commands.Dispatch(s.ctx, domain.ChatMessage{
		ChannelID: "chan-1", AuthorID: "chat-1", AuthorName: "alice", Content: content,
	})
}

func (s *CommandsSuite) TestDispatchPlainMessagePassesThrough() {
	_, handled := s.dispatch("just chatting")
	s.False(handled)
}

func (s *CommandsSuite) TestDispatchUnknownCommandPassesThrough() {
	_, handled := s.dispatch("!dance")
	s.False(handled)
}

func (s *CommandsSuite) TestDispatchLink() {
	reply, handled := s.dispatch("!link Steve")
	s.True(handled)
	s.Contains(reply, "Link successful")
}

func (s *CommandsSuite) TestDispatchLinkUsage() {
	reply, handled := s.dispatch("!link")
	s.True(handled)
	s.Contains(reply, "Usage")
}

func (s *CommandsSuite) TestDispatchStats() {
	s.link()
	reply, handled := s.dispatch("!stats")
	s.True(handled)
	s.Contains(reply, "stats")
}

func (s *CommandsSuite) TestDispatchTopUsage() {
	reply, handled := s.dispatch("!top kills")
	s.True(handled)
	s.Contains(reply, "Usage")
}

func (s *CommandsSuite) TestDispatchTop() {
	s.store.top = []domain.RankingEntry{
		{Rank: 1, GameID: "uuid-1", GameName: "Steve", Value: 5},
	}
	reply, handled := s.dispatch("!top kills weekly")
	s.True(handled)
	s.Contains(reply, "Steve")
}
