package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"enginewatch/broadcast"
	"enginewatch/metrics"
	"enginewatch/sensor"
	"enginewatch/stats"
	"enginewatch/store"
	"enginewatch/viewer"
)

type fakeAnalyzer struct {
	mu       sync.Mutex
	snap     sensor.Snapshot
	err      error
	calls    atomic.Int64
	severity sensor.Severity
	sevErr   error
	block    chan struct{}
}

func (f *fakeAnalyzer) Simulate(ctx context.Context) (sensor.Snapshot, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.err
}

func (f *fakeAnalyzer) Analyze(context.Context, sensor.Reading) (sensor.Severity, error) {
	return f.severity, f.sevErr
}

func (f *fakeAnalyzer) set(snap sensor.Snapshot, err error) {
	f.mu.Lock()
	f.snap, f.err = snap, err
	f.mu.Unlock()
}

type capture struct {
	mu   sync.Mutex
	msgs []broadcast.Message
}

func (c *capture) Deliver(msg broadcast.Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func (c *capture) all() []broadcast.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]broadcast.Message(nil), c.msgs...)
}

func newTestService(t *testing.T, a Analyzer) (*Service, *broadcast.Hub, *store.Store, *stats.Tracker) {
	t.Helper()
	st := store.New()
	hub := broadcast.NewHub(nil)
	tracker := stats.NewTracker()
	svc, err := NewService(Options{Store: st, Publisher: hub, Analyzer: a, Metrics: metrics.New(), Stats: tracker})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, hub, st, tracker
}

func TestRefreshReplacesAndPublishes(t *testing.T) {
	a := &fakeAnalyzer{snap: sensor.Snapshot{
		{ID: "rpm", Value: sensor.Number(1800), Severity: sensor.SeverityCritical, Critical: true},
	}}
	svc, hub, st, tracker := newTestService(t, a)
	sub := &capture{}
	hub.Subscribe("test", sub)

	svc.Refresh(context.Background())

	if got := st.Read(); len(got) != 1 || got[0].ID != "rpm" {
		t.Fatalf("expected store to hold refreshed snapshot, got %+v", got)
	}
	msgs := sub.all()
	if len(msgs) != 1 || msgs[0].Topic != broadcast.TopicSensorsUpdate || len(msgs[0].Snapshot) != 1 {
		t.Fatalf("expected one sensors:update publish, got %+v", msgs)
	}
	if tracker.GetCommitCounts()[stats.SourceRefresh] != 1 || tracker.Deliveries() != 1 {
		t.Fatalf("expected stats to record the commit and delivery")
	}
}

func TestRefreshFailurePublishesEmptySnapshot(t *testing.T) {
	a := &fakeAnalyzer{snap: sensor.Snapshot{{ID: "rpm"}}}
	svc, hub, st, tracker := newTestService(t, a)
	svc.Refresh(context.Background())

	sub := &capture{}
	hub.Subscribe("test", sub)
	a.set(nil, errors.New("connection refused"))
	svc.Refresh(context.Background())

	if got := st.Read(); len(got) != 0 {
		t.Fatalf("expected empty store after failure, got %+v", got)
	}
	msgs := sub.all()
	if len(msgs) != 1 || len(msgs[0].Snapshot) != 0 {
		t.Fatalf("expected an empty snapshot to be published, got %+v", msgs)
	}
	if tracker.GetAnalysisFailures()["simulate"] != 1 {
		t.Fatalf("expected simulate failure to be counted")
	}
}

func TestRefreshFailureRendersZeroCounts(t *testing.T) {
	a := &fakeAnalyzer{snap: sensor.Snapshot{
		{ID: "rpm", Value: sensor.Number(1800), Severity: sensor.SeverityCritical, Critical: true},
		{ID: "oil_pressure", Value: sensor.Number(2.1), Severity: sensor.SeverityWarning},
	}}
	svc, hub, _, _ := newTestService(t, a)
	sub := &capture{}
	hub.Subscribe("viewer", sub)
	renderer := viewer.NewRenderer(viewer.LocaleRU)

	svc.Refresh(context.Background())
	a.set(nil, errors.New("connection refused"))
	svc.Refresh(context.Background())

	msgs := sub.all()
	if len(msgs) != 2 {
		t.Fatalf("expected two publishes, got %d", len(msgs))
	}
	if frame, err := renderer.Apply(msgs[0].Snapshot); err != nil || frame.Counts.Total != 2 {
		t.Fatalf("expected first frame to count two readings, got %+v err=%v", frame.Counts, err)
	}
	frame, err := renderer.Apply(msgs[1].Snapshot)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(msgs[1].Snapshot) != 0 || frame.Counts != (viewer.Counts{}) {
		t.Fatalf("expected empty snapshot with zero counts, got %d readings %+v", len(msgs[1].Snapshot), frame.Counts)
	}
	if len(frame.Rows) != 0 {
		t.Fatalf("expected an empty status grid, got %d rows", len(frame.Rows))
	}
}

func TestRefreshCancelledCommitsNothing(t *testing.T) {
	a := &fakeAnalyzer{block: make(chan struct{})}
	svc, hub, st, tracker := newTestService(t, a)
	svc.Ingest(sensor.Snapshot{{ID: "rpm", Value: sensor.Number(900)}})
	sub := &capture{}
	hub.Subscribe("viewer", sub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := svc.Refresh(ctx); got != nil {
		t.Fatalf("expected nil snapshot from a cancelled refresh, got %+v", got)
	}
	if got := st.Read(); len(got) != 1 || got[0].ID != "rpm" {
		t.Fatalf("expected store to keep the last commit, got %+v", got)
	}
	if len(sub.all()) != 0 {
		t.Fatalf("expected no publish for a cancelled refresh")
	}
	if tracker.GetAnalysisFailures()["simulate"] != 0 {
		t.Fatalf("expected cancellation not to count as a simulate failure")
	}
	if got := svc.Query(ctx); len(got) != 1 || got[0].ID != "rpm" {
		t.Fatalf("expected cancelled query to return current store, got %+v", got)
	}
}

func TestRefreshWithoutSubscribersStillCommits(t *testing.T) {
	a := &fakeAnalyzer{snap: sensor.Snapshot{{ID: "voltage"}}}
	svc, _, st, tracker := newTestService(t, a)
	svc.Refresh(context.Background())
	if len(st.Read()) != 1 {
		t.Fatalf("expected commit without subscribers")
	}
	if tracker.Deliveries() != 0 {
		t.Fatalf("expected no deliveries")
	}
}

func TestIngestCommitsAndPublishes(t *testing.T) {
	svc, hub, st, _ := newTestService(t, &fakeAnalyzer{})
	sub := &capture{}
	hub.Subscribe("test", sub)

	batch := sensor.DecodeBatch([]byte(`{"sensors":[{"id":"oil_pressure","value":1.1,"severity":"critical"},{"id":"oil_presure","value":2}]}`))
	if n := svc.Ingest(batch); n != 2 {
		t.Fatalf("expected count 2, got %d", n)
	}
	if got := st.Read(); len(got) != 2 || !got[0].Critical {
		t.Fatalf("unexpected store content: %+v", got)
	}
	if msgs := sub.all(); len(msgs) != 1 || msgs[0].Snapshot[0].ID != "oil_pressure" || msgs[0].Snapshot[1].ID != "oil_presure" {
		t.Fatalf("expected one publish in ingestion order, got %+v", msgs)
	}
	if n := svc.Ingest(nil); n != 0 || len(st.Read()) != 0 {
		t.Fatalf("expected empty ingest to clear the store")
	}
	if len(sub.all()) != 2 {
		t.Fatalf("expected empty batch to be published too")
	}
}

func TestQueryReplacesWithoutPublishing(t *testing.T) {
	a := &fakeAnalyzer{snap: sensor.Snapshot{{ID: "fuel_level", Value: sensor.Number(55)}}}
	svc, hub, _, _ := newTestService(t, a)
	sub := &capture{}
	hub.Subscribe("test", sub)

	got := svc.Query(context.Background())
	if len(got) != 1 || got[0].ID != "fuel_level" {
		t.Fatalf("unexpected query result: %+v", got)
	}
	if len(sub.all()) != 0 {
		t.Fatalf("expected query not to publish")
	}
	if a.calls.Load() != 1 {
		t.Fatalf("expected exactly one simulate call, got %d", a.calls.Load())
	}
}

func TestClassifyDegradesToNormal(t *testing.T) {
	svc, _, _, _ := newTestService(t, &fakeAnalyzer{severity: sensor.SeverityCritical})
	if got := svc.Classify(context.Background(), sensor.Reading{ID: "rpm"}); got != sensor.SeverityCritical {
		t.Fatalf("expected critical, got %v", got)
	}
	svc, _, _, _ = newTestService(t, &fakeAnalyzer{sevErr: errors.New("down")})
	if got := svc.Classify(context.Background(), sensor.Reading{ID: "rpm"}); got != sensor.SeverityNormal {
		t.Fatalf("expected normal on failure, got %v", got)
	}
}

func TestPublishedSnapshotMatchesStoreUnderConcurrency(t *testing.T) {
	a := &fakeAnalyzer{snap: sensor.Snapshot{{ID: "refresh"}}}
	svc, hub, st, _ := newTestService(t, a)
	var mismatches atomic.Int64
	hub.Subscribe("check", broadcast.SubscriberFunc(func(msg broadcast.Message) {
		current := st.Read()
		if len(current) != len(msg.Snapshot) || (len(current) > 0 && current[0].ID != msg.Snapshot[0].ID) {
			mismatches.Add(1)
		}
	}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			svc.Refresh(context.Background())
		}()
		go func() {
			defer wg.Done()
			svc.Ingest(sensor.Snapshot{{ID: "ingest"}, {ID: "ingest"}})
		}()
	}
	wg.Wait()
	if mismatches.Load() != 0 {
		t.Fatalf("expected every publish to carry the snapshot just committed, got %d mismatches", mismatches.Load())
	}
}

func TestNewServiceValidates(t *testing.T) {
	if _, err := NewService(Options{}); err == nil {
		t.Fatalf("expected error without store")
	}
	if _, err := NewService(Options{Store: store.New(), Publisher: broadcast.NewHub(nil)}); err == nil {
		t.Fatalf("expected error without analyzer")
	}
}

func TestRefresherLifecycle(t *testing.T) {
	a := &fakeAnalyzer{snap: sensor.Snapshot{{ID: "rpm"}}}
	svc, _, _, _ := newTestService(t, a)
	r := NewRefresher(svc, 10*time.Millisecond)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(context.Background()); err == nil {
		t.Fatalf("expected second Start to fail")
	}
	deadline := time.Now().Add(2 * time.Second)
	for a.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected ticks, got %d calls", a.calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	r.Stop()
	r.Stop()
	if r.Running() {
		t.Fatalf("expected refresher to be stopped")
	}
	after := a.calls.Load()
	time.Sleep(50 * time.Millisecond)
	if a.calls.Load() != after {
		t.Fatalf("expected no ticks after Stop")
	}
}

func TestRefresherStopCancelsStalledTick(t *testing.T) {
	a := &fakeAnalyzer{block: make(chan struct{})}
	svc, hub, st, _ := newTestService(t, a)
	svc.Ingest(sensor.Snapshot{{ID: "oil_temp", Value: sensor.Number(92)}})
	sub := &capture{}
	hub.Subscribe("viewer", sub)

	r := NewRefresher(svc, 5*time.Millisecond)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for a.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("tick never started")
		}
		time.Sleep(time.Millisecond)
	}
	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not cancel the stalled tick")
	}
	if got := st.Read(); len(got) != 1 || got[0].ID != "oil_temp" {
		t.Fatalf("expected shutdown to leave the last snapshot in place, got %+v", got)
	}
	if len(sub.all()) != 0 {
		t.Fatalf("expected shutdown not to publish an empty snapshot to viewers")
	}
}

func TestRefresherTickIsDeterministic(t *testing.T) {
	a := &fakeAnalyzer{snap: sensor.Snapshot{{ID: "oil_temp"}}}
	svc, _, st, _ := newTestService(t, a)
	r := NewRefresher(svc, 0)
	if r.Interval() != DefaultRefreshInterval {
		t.Fatalf("expected default interval, got %s", r.Interval())
	}
	got := r.Tick(context.Background())
	if len(got) != 1 || len(st.Read()) != 1 {
		t.Fatalf("expected Tick to refresh synchronously")
	}
}
