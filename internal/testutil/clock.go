package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant returned by a new DeterministicClock:
// 2024-01-01T00:00:00Z.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a thread-safe clock for tests. Each call to Now
// advances it by a fixed step, so timestamps are reproducible and strictly
// increasing.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	calls int64
}

// NewDeterministicClock returns a clock that starts at Epoch and advances by
// one millisecond per call.
func NewDeterministicClock() *DeterministicClock {
	return NewSteppingClock(Epoch, time.Millisecond)
}

// NewSteppingClock returns a clock that starts at start and advances by step
// per call. A zero step freezes the clock.
func NewSteppingClock(start time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{start: start, step: step}
}

// Now returns the current instant and advances the clock.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.calls) * c.step)
	c.calls++
	return t
}

// Calls returns how many times Now has been called.
func (c *DeterministicClock) Calls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Reset rewinds the clock to its start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = 0
}
