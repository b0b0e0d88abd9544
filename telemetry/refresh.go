package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"enginewatch/sensor"
)

// DefaultRefreshInterval matches the collaborator's simulation cadence.
const DefaultRefreshInterval = 3 * time.Second

// Refreshable is the single operation the Refresher drives.
type Refreshable interface {
	Refresh(ctx context.Context) sensor.Snapshot
}

// Refresher runs Refresh on a fixed interval until stopped.
type Refresher struct {
	target   Refreshable
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	loop    sync.WaitGroup
	ticks   sync.WaitGroup
}

// NewRefresher returns a stopped Refresher. Non-positive intervals use
// DefaultRefreshInterval.
func NewRefresher(target Refreshable, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{target: target, interval: interval}
}

// Interval returns the configured tick interval.
func (r *Refresher) Interval() time.Duration {
	return r.interval
}

// Purpose: Start the periodic refresh loop.
// Key aspects: The first tick fires one interval after Start; each tick runs
// in its own goroutine so a stalled collaborator call stalls only that tick.
// Upstream: main startup.
// Downstream: Refreshable.Refresh.
func (r *Refresher) Start(ctx context.Context) error {
	if r == nil {
		return errors.New("telemetry: nil refresher")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("telemetry: refresher already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	ticker := time.NewTicker(r.interval)
	r.loop.Add(1)
	go func() {
		defer r.loop.Done()
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.ticks.Add(1)
				go func() {
					defer r.ticks.Done()
					r.target.Refresh(runCtx)
				}()
			}
		}
	}()
	return nil
}

// Purpose: Stop the loop and wait for in-flight ticks.
// Key aspects: Cancels the context handed to outstanding collaborator calls;
// safe to call more than once.
// Upstream: main shutdown.
// Downstream: None.
func (r *Refresher) Stop() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	r.loop.Wait()
	r.ticks.Wait()
}

// Running reports whether the loop is active.
func (r *Refresher) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Tick runs one refresh synchronously, independent of the timer.
func (r *Refresher) Tick(ctx context.Context) sensor.Snapshot {
	return r.target.Refresh(ctx)
}
