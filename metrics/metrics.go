// Package metrics exposes Prometheus collectors for the snapshot pipeline:
// store commits, broadcast fan-out, analysis collaborator health and refresh
// latency. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry        *prometheus.Registry
	commits         *prometheus.CounterVec
	snapshotSize    prometheus.Gauge
	subscribers     prometheus.Gauge
	publishes       prometheus.Counter
	dropped         *prometheus.CounterVec
	analysisFailure *prometheus.CounterVec
	ingested        prometheus.Counter
	refreshLatency  prometheus.Histogram
}

// New builds the collectors on a private registry so tests can construct as
// many instances as they like.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enginewatch_snapshot_commits_total",
			Help: "Snapshot replacements by write path.",
		}, []string{"source"}),
		snapshotSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "enginewatch_snapshot_readings",
			Help: "Readings in the current snapshot.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "enginewatch_broadcast_subscribers",
			Help: "Currently registered broadcast subscribers.",
		}),
		publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enginewatch_broadcast_publishes_total",
			Help: "Snapshots published on the broadcast channel.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enginewatch_broadcast_dropped_total",
			Help: "Deliveries dropped because a subscriber queue was full.",
		}, []string{"subscriber"}),
		analysisFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enginewatch_analysis_failures_total",
			Help: "Failed calls to the analysis collaborator.",
		}, []string{"op"}),
		ingested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enginewatch_ingested_readings_total",
			Help: "Readings accepted by the ingestion endpoint.",
		}),
		refreshLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "enginewatch_refresh_duration_seconds",
			Help:    "Duration of one refresh tick including the simulate call.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
	m.registry.MustRegister(
		m.commits,
		m.snapshotSize,
		m.subscribers,
		m.publishes,
		m.dropped,
		m.analysisFailure,
		m.ingested,
		m.refreshLatency,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveCommit records a store replacement of n readings from source.
func (m *Metrics) ObserveCommit(source string, n int) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(source).Inc()
	m.snapshotSize.Set(float64(n))
}

// ObservePublish records one broadcast.
func (m *Metrics) ObservePublish() {
	if m == nil {
		return
	}
	m.publishes.Inc()
}

// SetSubscribers records the current registry size.
func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

// ObserveDrop records a dropped delivery for a subscriber kind (ws, telnet, mqtt, recorder).
func (m *Metrics) ObserveDrop(kind string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(kind).Inc()
}

// ObserveAnalysisFailure records a failed collaborator call.
func (m *Metrics) ObserveAnalysisFailure(op string) {
	if m == nil {
		return
	}
	m.analysisFailure.WithLabelValues(op).Inc()
}

// ObserveIngest records n accepted readings.
func (m *Metrics) ObserveIngest(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ingested.Add(float64(n))
}

// ObserveRefresh records one refresh tick duration.
func (m *Metrics) ObserveRefresh(d time.Duration) {
	if m == nil {
		return
	}
	m.refreshLatency.Observe(d.Seconds())
}
