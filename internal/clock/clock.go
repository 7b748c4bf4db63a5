package clock

import (
	"sync"
	"time"
)

// Clock provides time operations that can be mocked for testing
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer is the subset of time.Timer behavior schedulers need
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

// RealClock implements Clock using the system clock
type RealClock struct{}

// New creates a new RealClock
func New() *RealClock {
	return &RealClock{}
}

// Now returns the current time
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// NewTimer wraps time.NewTimer
func (c *RealClock) NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

type realTimer struct {
	t *time.Timer
}

func (r *realTimer) C() <-chan time.Time        { return r.t.C }
func (r *realTimer) Stop() bool                 { return r.t.Stop() }
func (r *realTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }

// Mock is a Clock fixed at a settable time, for tests. Advancing or setting
// it fires any timers whose deadline has been reached.
type Mock struct {
	mu      sync.Mutex
	current time.Time
	timers  []*mockTimer
}

var _ Clock = (*Mock)(nil)

// NewMock creates a Mock set to the given time
func NewMock(t time.Time) *Mock {
	return &Mock{current: t}
}

// Now returns the mocked current time
func (c *Mock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by the given duration
func (c *Mock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	now := c.current
	timers := append([]*mockTimer(nil), c.timers...)
	c.mu.Unlock()

	for _, t := range timers {
		t.fireIfDue(now)
	}
}

// Set sets the clock to the given time
func (c *Mock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	now := c.current
	timers := append([]*mockTimer(nil), c.timers...)
	c.mu.Unlock()

	for _, mt := range timers {
		mt.fireIfDue(now)
	}
}

// NewTimer creates a timer driven by Advance/Set. A non-positive duration
// fires immediately, matching time.NewTimer.
func (c *Mock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	t := &mockTimer{
		clk:      c,
		ch:       make(chan time.Time, 1),
		deadline: c.current.Add(d),
	}
	c.timers = append(c.timers, t)
	now := c.current
	c.mu.Unlock()

	t.fireIfDue(now)
	return t
}

type mockTimer struct {
	clk *Mock
	ch  chan time.Time

	mu       sync.Mutex
	deadline time.Time
	stopped  bool
	fired    bool
}

func (t *mockTimer) C() <-chan time.Time { return t.ch }

func (t *mockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (t *mockTimer) Reset(d time.Duration) bool {
	now := t.clk.Now()

	t.mu.Lock()
	active := !t.stopped && !t.fired
	t.deadline = now.Add(d)
	t.stopped = false
	t.fired = false
	t.mu.Unlock()

	t.fireIfDue(now)
	return active
}

func (t *mockTimer) fireIfDue(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired || now.Before(t.deadline) {
		return
	}
	t.fired = true
	select {
	case t.ch <- now:
	default:
	}
}
