package testutil

import (
	"sync"
	"time"
)

// ManualClock is a deterministic clock that advances by a fixed step on
// every Now() call, so successive stamps within one run strictly increase.
// Safe for concurrent use.
type ManualClock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// NewManualClock creates a clock starting at the given time, advancing one
// second per reading.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{current: start, step: time.Second}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.current
	c.current = c.current.Add(c.step)
	return now
}

// Advance moves the clock forward without producing a reading.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Current returns the next reading without consuming it.
func (c *ManualClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
