package testutil

import (
	"sync"
	"time"
)

// FakeClock is a manually advanced clock with one-second resolution.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock starts the clock at the given unix second.
func NewFakeClock(unix int64) *FakeClock {
	return &FakeClock{now: time.Unix(unix, 0)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Unix returns the current time in unix seconds.
func (c *FakeClock) Unix() int64 {
	return c.Now().Unix()
}

// Advance moves the clock forward by secs seconds.
func (c *FakeClock) Advance(secs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Duration(secs) * time.Second)
}

// Set moves the clock to the given unix second.
func (c *FakeClock) Set(unix int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Unix(unix, 0)
}
