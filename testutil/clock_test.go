package testutil

import (
	"testing"
	"time"
)

func TestManualClockOrder(t *testing.T) {
	var c ManualClock
	var got []string
	c.Schedule(20*time.Millisecond, func() { got = append(got, "b") })
	c.Schedule(10*time.Millisecond, func() { got = append(got, "a") })
	cancel := c.Schedule(15*time.Millisecond, func() { got = append(got, "x") })
	cancel()

	c.Advance(15 * time.Millisecond)
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected [a], got %v", got)
	}
	c.Advance(5 * time.Millisecond)
	if len(got) != 2 || got[1] != "b" {
		t.Fatalf("expected [a b], got %v", got)
	}
	if c.Pending() != 0 {
		t.Errorf("expected no pending timers, got %d", c.Pending())
	}
}

func TestManualClockChainedSchedule(t *testing.T) {
	var c ManualClock
	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		c.Schedule(10*time.Millisecond, tick)
	}
	c.Schedule(10*time.Millisecond, tick)

	c.Advance(35 * time.Millisecond)
	if ticks != 3 {
		t.Errorf("expected 3 ticks, got %d", ticks)
	}
	if c.Pending() != 1 {
		t.Errorf("expected the next tick armed, got %d", c.Pending())
	}
}
