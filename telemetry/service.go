// Package telemetry coordinates the two write paths into the snapshot store
// (the periodic refresh and external ingestion) with the broadcast channel.
//
// Concurrency Design:
//   - Store.Replace followed by Publish runs under one mutex so a commit is
//     atomic with respect to other writers
//   - Collaborator calls run outside the mutex; a slow simulate never blocks
//     ingestion
//   - Writers are otherwise unordered: whichever acquires the mutex last wins
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"enginewatch/broadcast"
	"enginewatch/internal/ratelimit"
	"enginewatch/metrics"
	"enginewatch/sensor"
	"enginewatch/stats"
	"enginewatch/store"
)

// Analyzer is the external analysis/simulation collaborator.
type Analyzer interface {
	Simulate(ctx context.Context) (sensor.Snapshot, error)
	Analyze(ctx context.Context, r sensor.Reading) (sensor.Severity, error)
}

// Publisher fans a committed snapshot out to viewers.
type Publisher interface {
	Publish(topic string, snap sensor.Snapshot) (int, error)
}

// Options wires a Service. Store, Publisher and Analyzer are required.
type Options struct {
	Store     *store.Store
	Publisher Publisher
	Analyzer  Analyzer
	Metrics   *metrics.Metrics
	Stats     *stats.Tracker
}

// Service owns the snapshot store and serializes replace-then-publish.
type Service struct {
	store     *store.Store
	publisher Publisher
	analyzer  Analyzer
	metrics   *metrics.Metrics
	stats     *stats.Tracker

	mu sync.Mutex

	simulateFailures *ratelimit.Counter
	analyzeFailures  *ratelimit.Counter
}

// NewService validates opts and returns a Service.
func NewService(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("telemetry: store is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("telemetry: publisher is required")
	}
	if opts.Analyzer == nil {
		return nil, errors.New("telemetry: analyzer is required")
	}
	return &Service{
		store:            opts.Store,
		publisher:        opts.Publisher,
		analyzer:         opts.Analyzer,
		metrics:          opts.Metrics,
		stats:            opts.Stats,
		simulateFailures: ratelimit.NewCounter(30 * time.Second),
		analyzeFailures:  ratelimit.NewCounter(30 * time.Second),
	}, nil
}

// Current returns the snapshot currently held by the store.
func (s *Service) Current() sensor.Snapshot {
	return s.store.Read()
}

// Purpose: Run one refresh cycle: simulate, replace, publish.
// Key aspects: A failed simulate commits and publishes an empty snapshot; a
// cancelled ctx (Refresher.Stop) commits nothing and returns nil.
// Upstream: Refresher ticks.
// Downstream: Analyzer.Simulate, commit.
func (s *Service) Refresh(ctx context.Context) sensor.Snapshot {
	start := time.Now()
	snap, ok := s.simulate(ctx)
	if !ok {
		return nil
	}
	s.commit(stats.SourceRefresh, snap, true)
	s.metrics.ObserveRefresh(time.Since(start))
	return snap
}

// Purpose: Commit an externally pushed batch and publish it.
// Key aspects: The batch is already leniently decoded; returns its length.
// Upstream: POST /sensors/ingest.
// Downstream: commit.
func (s *Service) Ingest(batch sensor.Snapshot) int {
	if batch == nil {
		batch = sensor.Snapshot{}
	}
	for _, r := range batch {
		if r.ID == "" || sensor.IsKnown(r.ID) {
			continue
		}
		if hint, ok := sensor.Suggest(r.ID); ok {
			log.Printf("Ingest: unknown sensor id %q (did you mean %q?)", r.ID, hint)
		}
	}
	s.commit(stats.SourceIngest, batch, true)
	s.metrics.ObserveIngest(len(batch))
	counts := countSeverities(batch)
	log.Printf("Ingest: committed %d readings (critical=%d warning=%d) fp=%016x",
		len(batch), counts[sensor.SeverityCritical], counts[sensor.SeverityWarning], sensor.Fingerprint(batch))
	return len(batch)
}

// Purpose: Force one simulate and return the resulting store content.
// Key aspects: Replaces the store without publishing.
// Upstream: GET /sensors/test.
// Downstream: Analyzer.Simulate, commit.
func (s *Service) Query(ctx context.Context) sensor.Snapshot {
	snap, ok := s.simulate(ctx)
	if !ok {
		return s.store.Read()
	}
	s.commit(stats.SourceQuery, snap, false)
	return s.store.Read()
}

// Classify asks the collaborator for a reading's severity; any failure
// degrades to normal.
func (s *Service) Classify(ctx context.Context, r sensor.Reading) sensor.Severity {
	sev, err := s.analyzer.Analyze(ctx, r)
	if err != nil {
		s.metrics.ObserveAnalysisFailure("analyze")
		s.stats.RecordAnalysisFailure("analyze")
		if total, ok := s.analyzeFailures.Inc(); ok {
			log.Printf("Analyze: %v (defaulting to normal, failures=%d)", err, total)
		}
		return sensor.SeverityNormal
	}
	return sev
}

// simulate reports ok=false only when ctx was cancelled; that is shutdown or
// a departed caller, not a collaborator failure, so nothing is committed.
func (s *Service) simulate(ctx context.Context) (sensor.Snapshot, bool) {
	snap, err := s.analyzer.Simulate(ctx)
	if err != nil && ctx.Err() != nil {
		return nil, false
	}
	if err != nil {
		s.metrics.ObserveAnalysisFailure("simulate")
		s.stats.RecordAnalysisFailure("simulate")
		if total, ok := s.simulateFailures.Inc(); ok {
			log.Printf("Refresh: %v (using empty snapshot, failures=%d)", err, total)
		}
		return sensor.Snapshot{}, true
	}
	if snap == nil {
		snap = sensor.Snapshot{}
	}
	return snap, true
}

// commit replaces the store and, when publish is set, broadcasts the same
// snapshot before any other writer can replace it.
func (s *Service) commit(source string, snap sensor.Snapshot, publish bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store.Replace(snap)
	s.metrics.ObserveCommit(source, len(snap))
	s.stats.RecordCommit(source, len(snap))
	if !publish {
		return
	}
	delivered, err := s.publisher.Publish(broadcast.TopicSensorsUpdate, snap)
	if err != nil {
		log.Printf("%s: publish failed: %v", commitLabel(source), err)
		return
	}
	s.stats.RecordPublish(delivered)
}

func commitLabel(source string) string {
	switch source {
	case stats.SourceRefresh:
		return "Refresh"
	case stats.SourceIngest:
		return "Ingest"
	default:
		return fmt.Sprintf("Commit(%s)", source)
	}
}

func countSeverities(snap sensor.Snapshot) map[sensor.Severity]int {
	counts := make(map[sensor.Severity]int, 3)
	for _, r := range snap {
		counts[r.EffectiveSeverity()]++
	}
	return counts
}
