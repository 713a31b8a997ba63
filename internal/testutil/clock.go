package testutil

import (
	"sync"
	"time"
)

// Epoch is the first time a ManualClock returns by default.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// ManualClock is a wall clock that advances by a fixed tick on every read.
// Archives stamped with it are byte-identical across runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu    sync.Mutex
	start time.Time
	tick  time.Duration
	reads int64
}

// NewManualClock creates a clock starting at start. A zero start means
// Epoch.
func NewManualClock(start time.Time, tick time.Duration) *ManualClock {
	if start.IsZero() {
		start = Epoch
	}
	return &ManualClock{start: start, tick: tick}
}

// Now returns start + reads·tick and counts the read.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.reads) * c.tick)
	c.reads++
	return t
}

// Reads returns how many times Now has been called.
func (c *ManualClock) Reads() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// Reset rewinds the clock to its start.
func (c *ManualClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads = 0
}
