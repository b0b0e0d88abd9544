package ratelimit

import (
	"testing"
	"time"
)

func TestCounterThrottlesWithinInterval(t *testing.T) {
	clock := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	c := NewCounter(time.Minute)
	c.now = func() time.Time { return clock }

	if total, ok := c.Inc(); !ok || total != 1 {
		t.Fatalf("expected first event to log, got total=%d ok=%v", total, ok)
	}
	if _, ok := c.Inc(); ok {
		t.Fatalf("expected second event inside interval to be throttled")
	}
	clock = clock.Add(61 * time.Second)
	if total, ok := c.Inc(); !ok || total != 3 {
		t.Fatalf("expected event after interval to log, got total=%d ok=%v", total, ok)
	}
	if c.Total() != 3 {
		t.Fatalf("expected total 3, got %d", c.Total())
	}
}

func TestCounterWithoutInterval(t *testing.T) {
	c := NewCounter(0)
	for i := 0; i < 3; i++ {
		if _, ok := c.Inc(); !ok {
			t.Fatalf("expected every event to log without interval")
		}
	}
	var nilCounter *Counter
	if _, ok := nilCounter.Inc(); ok {
		t.Fatalf("expected nil counter to never log")
	}
}
