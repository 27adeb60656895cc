// Package metrics holds the Prometheus instrumentation for ingest runs.
//
// Metrics live in a private registry rather than the default one so that
// tests and repeated runs in one process do not collide, and so the whole
// set can be written as a node-exporter textfile after a run.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "roomlog"

// Metrics is the set of collectors for one process.
// All methods are safe on a nil receiver, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	linesProcessed prometheus.Counter
	events         *prometheus.CounterVec
	records        *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	titleLookups   *prometheus.CounterVec
	breakerState   prometheus.Gauge
	files          *prometheus.CounterVec
	lastRun        prometheus.Gauge
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		linesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_processed_total",
			Help:      "Total number of log lines analyzed",
		}),

		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Classified log lines by kind",
		}, []string{"kind"}),

		records: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records emitted by the analyzer",
		}, []string{"type"}), // attendance, music

		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Records discarded by a filter",
		}, []string{"reason"}), // below_threshold, not_consented, banned, duplicate

		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "title_cache_lookups_total",
			Help:      "Title cache lookups by result",
		}, []string{"result"}), // hit, miss

		titleLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "title_lookups_total",
			Help:      "External title lookups by outcome",
		}, []string{"outcome"}), // success, failure, rejected

		breakerState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "title_lookup_circuit_state",
			Help:      "Title lookup circuit breaker state (0=closed, 1=half-open, 2=open)",
		}),

		files: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Log files visited by ingest runs, by outcome",
		}, []string{"outcome"}), // processed, skipped, failed

		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last ingest run finished",
		}),
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// AddLines counts analyzed lines.
func (m *Metrics) AddLines(n int) {
	if m == nil {
		return
	}
	m.linesProcessed.Add(float64(n))
}

// AddEvents counts classified lines of one kind.
func (m *Metrics) AddEvents(kind string, n int) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Add(float64(n))
}

// AddRecords counts emitted records of one type.
func (m *Metrics) AddRecords(recordType string, n int) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(recordType).Add(float64(n))
}

// AddDropped counts records discarded for reason.
func (m *Metrics) AddDropped(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.dropped.WithLabelValues(reason).Add(float64(n))
}

// CacheLookup counts a title cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// TitleLookup counts an external lookup by outcome.
func (m *Metrics) TitleLookup(outcome string) {
	if m == nil {
		return
	}
	m.titleLookups.WithLabelValues(outcome).Inc()
}

// SetBreakerState records the circuit breaker state.
func (m *Metrics) SetBreakerState(state float64) {
	if m == nil {
		return
	}
	m.breakerState.Set(state)
}

// FileVisited counts a file by outcome.
func (m *Metrics) FileVisited(outcome string) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(outcome).Inc()
}

// RunFinished stamps the completion time of a run.
func (m *Metrics) RunFinished() {
	if m == nil {
		return
	}
	m.lastRun.SetToCurrentTime()
}

// WriteTextfile writes every collector to path in the text exposition
// format. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
