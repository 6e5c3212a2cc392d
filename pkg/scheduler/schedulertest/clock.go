// Package schedulertest provides a manually driven clock for scheduler tests.
package schedulertest

import (
	"sync"
	"time"

	"github.com/korjavin/warbot/pkg/scheduler"
)

// ManualClock only moves when told to. Timers fire during Advance once
// their deadline is reached.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

// NewManualClock returns a clock frozen at now
func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

// Now returns the frozen time
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTimer registers a timer. Non-positive durations fire immediately.
func (c *ManualClock) NewTimer(d time.Duration) scheduler.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &manualTimer{clock: c, at: c.now.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		t.done = true
		t.ch <- c.now
		return t
	}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and fires every timer that is due
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	live := c.timers[:0]
	for _, t := range c.timers {
		if t.done {
			continue
		}
		if !t.at.After(c.now) {
			t.done = true
			t.ch <- c.now
			continue
		}
		live = append(live, t)
	}
	c.timers = live
}

// WakeEarly fires every pending timer without moving the clock,
// the way a timer that returns too soon would.
func (c *ManualClock) WakeEarly() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.timers {
		if !t.done {
			t.done = true
			t.ch <- c.now
		}
	}
	c.timers = nil
}

// Pending returns the number of timers that have neither fired nor been stopped
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

type manualTimer struct {
	clock *ManualClock
	at    time.Time
	ch    chan time.Time
	done  bool
}

func (t *manualTimer) C() <-chan time.Time { return t.ch }

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	wasLive := !t.done
	t.done = true
	return wasLive
}
