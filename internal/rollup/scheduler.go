package rollup

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ernie/craftbridge/internal/clock"
	"github.com/ernie/craftbridge/internal/domain"
)

// Store is the persistence surface the rollup reads and resets
type Store interface {
	GetAllFor(ctx context.Context, date string) ([]domain.DailyStats, error)
	ResetDailyDistance(ctx context.Context, date string) error
}

// Reporter delivers the report to the bridge channel
type Reporter interface {
	RelayToChat(content string) error
}

// State of the scheduler loop
type State int

const (
	StateIdle State = iota
	StateScheduled
	StateRunning
)

// Scheduler fires once a day at local midnight: it reports today's stats to
// the bridge channel and then resets the daily distance counters. A failed
// cycle is logged and skipped, never fatal, and never blocks ingestion.
type Scheduler struct {
	store Store
	out   Reporter
	clock clock.Clock

	mu       sync.Mutex
	state    State
	nextFire time.Time
}

// New creates a Scheduler. A nil clock means the system clock.
func New(store Store, out Reporter, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{store: store, out: out, clock: clk}
}

// State returns the current scheduler state
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NextFire returns the time of the next scheduled run
func (s *Scheduler) NextFire() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextFire
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Scheduler) schedule(next time.Time) {
	s.mu.Lock()
	s.state = StateScheduled
	s.nextFire = next
	s.mu.Unlock()
}

// Run blocks until the context is canceled, firing at each local midnight.
// Each fire rolls up the day that just ended, not the new date the fire
// lands on. The pending timer is released on cancellation without waiting
// for the next fire.
func (s *Scheduler) Run(ctx context.Context) {
	next := NextMidnight(s.clock.Now())
	s.schedule(next)
	log.Printf("Rollup: first run scheduled for %s", next.Format(time.RFC3339))

	timer := s.clock.NewTimer(next.Sub(s.clock.Now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.setState(StateIdle)
			return
		case <-timer.C():
			s.RunOnce(ctx, domain.DateOf(next.AddDate(0, 0, -1)))
			next = next.Add(24 * time.Hour)
			s.schedule(next)
			log.Printf("Rollup: next run scheduled for %s", next.Format(time.RFC3339))
			timer.Reset(next.Sub(s.clock.Now()))
		}
	}
}

// RunOnce executes a single rollup cycle for the given date: report, then
// reset. The reset is skipped when reading or sending fails so no data is
// lost silently.
func (s *Scheduler) RunOnce(ctx context.Context, date string) {
	s.setState(StateRunning)
	defer s.setState(StateIdle)

	rows, err := s.store.GetAllFor(ctx, date)
	if err != nil {
		log.Printf("Rollup: reading stats for %s: %v", date, err)
		return
	}
	if len(rows) == 0 {
		log.Printf("Rollup: no stats recorded for %s, skipping report", date)
		return
	}

	for _, chunk := range BuildReport(date, rows) {
		if err := s.out.RelayToChat(chunk); err != nil {
			log.Printf("Rollup: sending report: %v", err)
			return // keep the day's distance counters for the next attempt
		}
	}

	if err := s.store.ResetDailyDistance(ctx, date); err != nil {
		log.Printf("Rollup: resetting daily distance: %v", err)
		return
	}
	log.Printf("Rollup: report sent and daily counters reset for %s", date)
}

// NextMidnight returns the first local midnight strictly after t
func NextMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}
