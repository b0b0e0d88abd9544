package ui

import (
	"sort"
	"sync"
	"time"

	"enginewatch/buffer"
)

// LatencyTracker keeps a bounded window of draw delays for percentile
// estimates shown in the dashboard footer.
type LatencyTracker struct {
	mu      sync.Mutex
	samples *buffer.Ring[time.Duration]
}

// NewLatencyTracker keeps the last size observations.
func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = 256
	}
	return &LatencyTracker{samples: buffer.NewRing[time.Duration](size)}
}

// Observe records one delay.
func (t *LatencyTracker) Observe(d time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.samples.Push(d)
	t.mu.Unlock()
}

// LatencySnapshot summarizes the window.
type LatencySnapshot struct {
	P50 time.Duration
	P99 time.Duration
	N   int
}

// Snapshot computes percentiles over the current window.
func (t *LatencyTracker) Snapshot() LatencySnapshot {
	if t == nil {
		return LatencySnapshot{}
	}
	t.mu.Lock()
	values := t.samples.Values()
	t.mu.Unlock()
	if len(values) == 0 {
		return LatencySnapshot{}
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return LatencySnapshot{
		P50: values[len(values)/2],
		P99: values[int(float64(len(values)-1)*0.99)],
		N:   len(values),
	}
}
