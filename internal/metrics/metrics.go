// Package metrics exposes Prometheus counters for ingestion, aggregation and presence.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sitetrack"

// Signal kinds and outcomes used as label values.
const (
	KindPageview = "pageview"
	KindEvent    = "event"

	OutcomeStored   = "stored"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	SignalsTotal        *prometheus.CounterVec
	IngestDuration      *prometheus.HistogramVec
	AggregationFailures *prometheus.CounterVec
	ActiveVisitors      *prometheus.GaugeVec
	AnalyticsDuration   prometheus.Histogram
	HeartbeatsPurged    prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SignalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "signals_total",
				Help:      "Tracking signals received, by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		IngestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "duration_seconds",
				Help:      "Time spent storing and aggregating one signal",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"kind"},
		),
		AggregationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sessions",
				Name:      "aggregation_failures_total",
				Help:      "Session updates that failed after the raw record was stored",
			},
			[]string{"operation"},
		),
		ActiveVisitors: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "presence",
				Name:      "active_visitors",
				Help:      "Active visitors seen by the most recent presence query",
			},
			[]string{"website_id"},
		),
		AnalyticsDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "analytics",
				Name:      "query_duration_seconds",
				Help:      "Duration of analytics report queries",
				Buckets:   prometheus.DefBuckets,
			},
		),
		HeartbeatsPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "heartbeats_purged_total",
				Help:      "Heartbeat events removed by the retention job",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.SignalsTotal,
			m.IngestDuration,
			m.AggregationFailures,
			m.ActiveVisitors,
			m.AnalyticsDuration,
			m.HeartbeatsPurged,
		)
	}
	return m
}

var (
	defaultRegistry *prometheus.Registry
	defaultMetrics  *Metrics
	defaultOnce     sync.Once
)

func initDefault() {
	defaultOnce.Do(func() {
		defaultRegistry = prometheus.NewRegistry()
		defaultRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		defaultMetrics = New(defaultRegistry)
	})
}

// Default returns the process-wide metrics.
func Default() *Metrics {
	initDefault()
	return defaultMetrics
}

// Handler serves the process-wide registry in the Prometheus exposition format.
func Handler() http.Handler {
	initDefault()
	return promhttp.HandlerFor(defaultRegistry, promhttp.HandlerOpts{})
}

// RecordSignal counts one signal and, when stored, observes its duration.
func (m *Metrics) RecordSignal(kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.SignalsTotal.WithLabelValues(kind, outcome).Inc()
	if outcome == OutcomeStored {
		m.IngestDuration.WithLabelValues(kind).Observe(seconds)
	}
}

// RecordAggregationFailure counts a swallowed session update error.
func (m *Metrics) RecordAggregationFailure(operation string) {
	if m == nil {
		return
	}
	m.AggregationFailures.WithLabelValues(operation).Inc()
}

// SetActiveVisitors records the latest presence count for a website.
func (m *Metrics) SetActiveVisitors(websiteID string, count int) {
	if m == nil {
		return
	}
	m.ActiveVisitors.WithLabelValues(websiteID).Set(float64(count))
}

// ObserveAnalytics records the duration of one analytics report.
func (m *Metrics) ObserveAnalytics(seconds float64) {
	if m == nil {
		return
	}
	m.AnalyticsDuration.Observe(seconds)
}

// AddHeartbeatsPurged counts heartbeat rows deleted by the retention job.
func (m *Metrics) AddHeartbeatsPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.HeartbeatsPurged.Add(float64(n))
}
