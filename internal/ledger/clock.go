package ledger

import (
	"sync"
	"time"
)

// Clock supplies operation timestamps in nanoseconds.
type Clock interface {
	Now() uint64
}

// SystemClock reads wall time and never goes backwards.
type SystemClock struct {
	mu   sync.Mutex
	last uint64
}

// Now returns the current wall time in nanoseconds, clamped to the last
// value returned.
func (c *SystemClock) Now() uint64 {
	now := uint64(time.Now().UnixNano())
	c.mu.Lock()
	defer c.mu.Unlock()
	if now < c.last {
		now = c.last
	}
	c.last = now
	return now
}
