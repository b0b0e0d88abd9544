// Package ratelimit throttles repetitive log lines on hot paths such as
// dropped deliveries to slow viewers.
package ratelimit

import (
	"sync/atomic"
	"time"
)

// Counter counts events and admits at most one log line per interval.
// It is safe for concurrent use; the zero value never throttles.
type Counter struct {
	interval time.Duration
	lastLog  atomic.Int64
	total    atomic.Uint64
	now      func() time.Time
}

// NewCounter returns a Counter admitting one log per interval. A zero or
// negative interval admits every event.
func NewCounter(interval time.Duration) *Counter {
	return &Counter{interval: interval, now: time.Now}
}

// Inc records one event and reports the running total and whether the caller
// should log it now.
func (c *Counter) Inc() (uint64, bool) {
	if c == nil {
		return 0, false
	}
	total := c.total.Add(1)
	if c.interval <= 0 {
		return total, true
	}
	clock := c.now
	if clock == nil {
		clock = time.Now
	}
	now := clock().UnixNano()
	last := c.lastLog.Load()
	if last != 0 && now-last < c.interval.Nanoseconds() {
		return total, false
	}
	return total, c.lastLog.CompareAndSwap(last, now)
}

// Total returns the number of events recorded so far.
func (c *Counter) Total() uint64 {
	if c == nil {
		return 0
	}
	return c.total.Load()
}
