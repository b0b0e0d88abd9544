// Package stats tracks snapshot commit and delivery counters for the periodic
// console stats line and the health endpoint.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Commit sources.
const (
	SourceRefresh = "refresh"
	SourceIngest  = "ingest"
	SourceQuery   = "query"
)

// Tracker counts snapshot commits per source plus delivery outcomes.
type Tracker struct {
	// counters live in sync.Map + atomic.Uint64 so hot-path increments don't fight over a mutex
	commits          sync.Map // source -> *atomic.Uint64
	analysisFailures sync.Map // operation -> *atomic.Uint64
	start            atomic.Int64
	readings         atomic.Uint64
	publishes        atomic.Uint64
	deliveries       atomic.Uint64
	drops            atomic.Uint64
	lastCommit       atomic.Int64
}

// NewTracker creates a new stats tracker
func NewTracker() *Tracker {
	t := &Tracker{}
	t.start.Store(time.Now().UnixNano())
	return t
}

// RecordCommit counts one snapshot replacement from source carrying n readings.
func (t *Tracker) RecordCommit(source string, n int) {
	if t == nil {
		return
	}
	incrementCounter(&t.commits, source)
	if n > 0 {
		t.readings.Add(uint64(n))
	}
	t.lastCommit.Store(time.Now().UnixNano())
}

// RecordPublish counts one broadcast and the subscribers it reached.
func (t *Tracker) RecordPublish(delivered int) {
	if t == nil {
		return
	}
	t.publishes.Add(1)
	if delivered > 0 {
		t.deliveries.Add(uint64(delivered))
	}
}

// RecordDrop counts a delivery dropped because a subscriber queue was full.
func (t *Tracker) RecordDrop() {
	if t == nil {
		return
	}
	t.drops.Add(1)
}

// RecordAnalysisFailure counts a failed collaborator call by operation.
func (t *Tracker) RecordAnalysisFailure(op string) {
	if t == nil {
		return
	}
	incrementCounter(&t.analysisFailures, op)
}

// GetCommitCounts returns a copy of commit counts by source.
func (t *Tracker) GetCommitCounts() map[string]uint64 {
	return copyCounts(&t.commits)
}

// GetAnalysisFailures returns a copy of failure counts by operation.
func (t *Tracker) GetAnalysisFailures() map[string]uint64 {
	return copyCounts(&t.analysisFailures)
}

// GetTotalCommits returns the total commits across all sources.
func (t *Tracker) GetTotalCommits() uint64 {
	var total uint64
	t.commits.Range(func(_, value any) bool {
		total += value.(*atomic.Uint64).Load()
		return true
	})
	return total
}

// Readings returns the total readings committed.
func (t *Tracker) Readings() uint64 { return t.readings.Load() }

// Publishes returns the total broadcast calls.
func (t *Tracker) Publishes() uint64 { return t.publishes.Load() }

// Deliveries returns the total subscriber deliveries.
func (t *Tracker) Deliveries() uint64 { return t.deliveries.Load() }

// Drops returns the total dropped deliveries.
func (t *Tracker) Drops() uint64 { return t.drops.Load() }

// LastCommit returns when the store was last replaced (zero if never).
func (t *Tracker) LastCommit() time.Time {
	ns := t.lastCommit.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// GetUptime returns how long the tracker has been running
func (t *Tracker) GetUptime() time.Duration {
	start := t.start.Load()
	return time.Since(time.Unix(0, start))
}

// SnapshotLines returns human-readable stats ready for console display.
func (t *Tracker) SnapshotLines() []string {
	lines := make([]string, 0, 3)
	lines = append(lines, formatMapCounts("Commits by source", &t.commits))
	lines = append(lines, fmt.Sprintf("Broadcast: publishes=%s deliveries=%s dropped=%s readings=%s",
		humanize.Comma(int64(t.Publishes())),
		humanize.Comma(int64(t.Deliveries())),
		humanize.Comma(int64(t.Drops())),
		humanize.Comma(int64(t.Readings())),
	))
	lines = append(lines, formatMapCounts("Analysis failures", &t.analysisFailures))
	return lines
}

func copyCounts(m *sync.Map) map[string]uint64 {
	counts := make(map[string]uint64)
	m.Range(func(key, value any) bool {
		counts[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return counts
}

func formatMapCounts(label string, counts *sync.Map) string {
	snapshot := copyCounts(counts)
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var builder strings.Builder
	builder.WriteString(label)
	builder.WriteString(": ")
	for i, k := range keys {
		if i > 0 {
			builder.WriteString(", ")
		}
		fmt.Fprintf(&builder, "%s=%s", k, humanize.Comma(int64(snapshot[k])))
	}
	if len(keys) == 0 {
		builder.WriteString("(none)")
	}
	return builder.String()
}

func incrementCounter(m *sync.Map, key string) {
	if strings.TrimSpace(key) == "" {
		return
	}
	if value, ok := m.Load(key); ok {
		value.(*atomic.Uint64).Add(1)
		return
	}
	counter := &atomic.Uint64{}
	actual, loaded := m.LoadOrStore(key, counter)
	if loaded {
		actual.(*atomic.Uint64).Add(1)
		return
	}
	counter.Add(1)
}
