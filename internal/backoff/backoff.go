// Package backoff provides the exponential reconnect delay used by the viewer
// client when the broadcast channel drops.
package backoff

import "time"

// Backoff doubles its delay on each Next call up to a cap.
type Backoff struct {
	base time.Duration
	cur  time.Duration
	max  time.Duration
}

// New returns a Backoff starting at base and capped at max.
// Key aspects: non-positive base defaults to one second; max is raised to base.
func New(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{base: base, cur: base, max: max}
}

// Next returns the delay to wait now and advances the window.
func (b *Backoff) Next() time.Duration {
	if b.cur >= b.max {
		return b.max
	}
	d := b.cur
	b.cur *= 2
	if b.cur > b.max {
		b.cur = b.max
	}
	return d
}

// Reset restarts the sequence at the base delay after a successful connect.
func (b *Backoff) Reset() {
	b.cur = b.base
}
