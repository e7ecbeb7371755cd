package testutil

import (
	"sort"
	"sync"
	"time"
)

// ManualClock schedules callbacks on a virtual timeline that only moves on
// Advance. Its Schedule method matches playback's scheduler signature.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	at        time.Duration
	seq       uint64
	fn        func()
	cancelled bool
}

// Schedule runs fn once d has elapsed. The returned function cancels it.
func (c *ManualClock) Schedule(d time.Duration, fn func()) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{at: c.now + d, seq: c.seq, fn: fn}
	c.seq++
	c.timers = append(c.timers, t)
	return func() {
		c.mu.Lock()
		t.cancelled = true
		c.mu.Unlock()
	}
}

// Advance moves the clock forward by d, firing due callbacks in time order.
// Callbacks scheduled while advancing fire too if they fall due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	end := c.now + d
	c.mu.Unlock()
	for {
		t := c.popDue(end)
		if t == nil {
			break
		}
		t.fn()
	}
	c.mu.Lock()
	c.now = end
	c.mu.Unlock()
}

// Pending returns the number of scheduled, uncancelled callbacks.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.cancelled {
			n++
		}
	}
	return n
}

func (c *ManualClock) popDue(end time.Duration) *manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].at != c.timers[j].at {
			return c.timers[i].at < c.timers[j].at
		}
		return c.timers[i].seq < c.timers[j].seq
	})
	for i, t := range c.timers {
		if t.cancelled {
			continue
		}
		if t.at > end {
			return nil
		}
		c.timers = append(c.timers[:i:i], c.timers[i+1:]...)
		c.now = t.at
		return t
	}
	return nil
}
