package ui

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// EventKind identifies a log pane event category.
type EventKind int

const (
	EventSystem EventKind = iota
	EventConnection
	EventRender
)

// Label is the short tag shown in the log pane.
func (k EventKind) Label() string {
	switch k {
	case EventSystem:
		return "SYS"
	case EventConnection:
		return "CONN"
	case EventRender:
		return "DRAW"
	default:
		return "UNK"
	}
}

// Event is one log pane line.
type Event struct {
	Timestamp time.Time
	Kind      EventKind
	Message   string
}

// String renders the event without markup.
func (e Event) String() string {
	return fmt.Sprintf("%s %-4s %s", e.Timestamp.Format("15:04:05"), e.Kind.Label(), e.Message)
}

// EventBuffer keeps the newest events within a count and byte budget.
// Oversized messages are truncated rather than dropped.
type EventBuffer struct {
	mu          sync.RWMutex
	events      []Event
	head        int
	count       int
	curBytes    int
	maxBytes    int
	maxMessage  int
	seq         atomic.Uint64
	evicted     atomic.Uint64
	truncations atomic.Uint64
}

// NewEventBuffer creates a buffer holding at most maxCount events and
// maxBytes of message text (0 disables the byte budget).
func NewEventBuffer(maxCount, maxBytes, maxMessage int) *EventBuffer {
	if maxCount <= 0 {
		maxCount = 1
	}
	return &EventBuffer{
		events:     make([]Event, maxCount),
		maxBytes:   maxBytes,
		maxMessage: maxMessage,
	}
}

// Append inserts e, evicting the oldest events as needed.
func (b *EventBuffer) Append(e Event) {
	if b == nil {
		return
	}
	if b.maxMessage > 0 && len(e.Message) > b.maxMessage {
		e.Message = e.Message[:b.maxMessage] + "…"
		b.truncations.Add(1)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.count >= len(b.events) {
		b.evictOldestLocked()
	}
	for b.maxBytes > 0 && b.count > 0 && b.curBytes+len(e.Message) > b.maxBytes {
		b.evictOldestLocked()
	}
	pos := (b.head + b.count) % len(b.events)
	b.events[pos] = e
	b.curBytes += len(e.Message)
	b.count++
	b.seq.Add(1)
}

// Snapshot returns events oldest first with the current sequence number.
func (b *EventBuffer) Snapshot() ([]Event, uint64) {
	if b == nil {
		return nil, 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.events[(b.head+i)%len(b.events)]
	}
	return out, b.seq.Load()
}

// Evicted returns how many events were pushed out.
func (b *EventBuffer) Evicted() uint64 {
	if b == nil {
		return 0
	}
	return b.evicted.Load()
}

func (b *EventBuffer) evictOldestLocked() {
	if b.count == 0 {
		return
	}
	old := b.events[b.head]
	b.curBytes -= len(old.Message)
	b.events[b.head] = Event{}
	b.head = (b.head + 1) % len(b.events)
	b.count--
	b.evicted.Add(1)
}
