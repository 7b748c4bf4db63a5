package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockAdvance(t *testing.T) {
	start := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	clk := NewMock(start)

	clk.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), clk.Now())
}

func fired(tm Timer) bool {
	select {
	case <-tm.C():
		return true
	default:
		return false
	}
}

func TestMockTimerFiresOnAdvance(t *testing.T) {
	clk := NewMock(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
	tm := clk.NewTimer(time.Hour)

	clk.Advance(30 * time.Minute)
	assert.False(t, fired(tm))

	// Reaching the deadline exactly fires
	clk.Advance(30 * time.Minute)
	assert.True(t, fired(tm))

	// A fired timer does not fire again
	clk.Advance(2 * time.Hour)
	assert.False(t, fired(tm))
}

func TestMockTimerNonPositiveFiresImmediately(t *testing.T) {
	clk := NewMock(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
	tm := clk.NewTimer(0)
	assert.True(t, fired(tm))
}

func TestMockTimerStop(t *testing.T) {
	clk := NewMock(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
	tm := clk.NewTimer(time.Hour)

	assert.True(t, tm.Stop())
	clk.Advance(2 * time.Hour)
	assert.False(t, fired(tm))

	// Stopping again reports the timer was already dead
	assert.False(t, tm.Stop())
}

func TestMockTimerReset(t *testing.T) {
	clk := NewMock(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
	tm := clk.NewTimer(time.Hour)

	clk.Advance(time.Hour)
	assert.True(t, fired(tm))

	tm.Reset(time.Hour)
	clk.Advance(30 * time.Minute)
	assert.False(t, fired(tm))
	clk.Advance(30 * time.Minute)
	assert.True(t, fired(tm))
}
