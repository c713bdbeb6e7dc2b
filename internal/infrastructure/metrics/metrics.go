// Package metrics exposes Prometheus instruments for the ledger, the planner
// and the background jobs. All recording methods are safe on a nil *Metrics,
// so components can be built without instrumentation in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "studyhub"

// Metrics holds every collector registered by the service.
type Metrics struct {
	registry *prometheus.Registry

	LedgerTransactions *prometheus.CounterVec
	SyncWrites         *prometheus.CounterVec
	SyncLatency        *prometheus.HistogramVec
	SyncQueueDepth     prometheus.Gauge
	ActiveLedgers      prometheus.Gauge
	PlannerMoves       *prometheus.CounterVec
	FocusIntervals     prometheus.Counter
	EventsPublished    *prometheus.CounterVec
	HandlerDuration    *prometheus.HistogramVec
	JobRuns            *prometheus.CounterVec
	CacheLookups       *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry
// together with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		LedgerTransactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_transactions_total",
				Help:      "Ledger transactions by operation and outcome (changed or noop).",
			},
			[]string{"operation", "outcome"},
		),
		SyncWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_sync_writes_total",
				Help:      "Remote progress writes by result (ok, failed).",
			},
			[]string{"result"},
		),
		SyncLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ledger_sync_duration_seconds",
				Help:      "Time from dequeue to final result of a remote progress write, retries included.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"operation"},
		),
		SyncQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_sync_queue_depth",
			Help:      "Remote progress writes waiting across all ledgers.",
		}),
		ActiveLedgers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_active",
			Help:      "Ledgers currently held by the registry.",
		}),
		PlannerMoves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "planner_moves_total",
				Help:      "Calendar moves by reason (missed, pull_earlier) and result (applied, failed).",
			},
			[]string{"reason", "result"},
		),
		FocusIntervals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "focus_intervals_completed_total",
			Help:      "Completed focus work intervals that were rewarded.",
		}),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Domain events published on the bus.",
			},
			[]string{"event_type"},
		),
		HandlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_handler_duration_seconds",
				Help:      "Event handler execution time.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"event_type", "result"},
		),
		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_job_runs_total",
				Help:      "Background job executions by job and result.",
			},
			[]string{"job", "result"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "progress_cache_lookups_total",
				Help:      "Progress cache reads by result (hit, miss, error, bypass).",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.LedgerTransactions,
		m.SyncWrites,
		m.SyncLatency,
		m.SyncQueueDepth,
		m.ActiveLedgers,
		m.PlannerMoves,
		m.FocusIntervals,
		m.EventsPublished,
		m.HandlerDuration,
		m.JobRuns,
		m.CacheLookups,
	)

	return m
}

// Registry returns the underlying registry, for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORDERS
// ══════════════════════════════════════════════════════════════════════════════

// RecordTransaction counts a ledger transaction.
func (m *Metrics) RecordTransaction(operation string, changed bool) {
	if m == nil {
		return
	}
	outcome := "noop"
	if changed {
		outcome = "changed"
	}
	m.LedgerTransactions.WithLabelValues(operation, outcome).Inc()
}

// RecordSync records the final result of one remote write.
func (m *Metrics) RecordSync(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.SyncWrites.WithLabelValues(result).Inc()
	m.SyncLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// QueueDelta adjusts the pending-writes gauge.
func (m *Metrics) QueueDelta(delta int) {
	if m == nil {
		return
	}
	m.SyncQueueDepth.Add(float64(delta))
}

// LedgerOpened and LedgerClosed track registry size.
func (m *Metrics) LedgerOpened() {
	if m == nil {
		return
	}
	m.ActiveLedgers.Inc()
}

func (m *Metrics) LedgerClosed() {
	if m == nil {
		return
	}
	m.ActiveLedgers.Dec()
}

// RecordMove counts one calendar move attempt.
func (m *Metrics) RecordMove(reason string, err error) {
	if m == nil {
		return
	}
	result := "applied"
	if err != nil {
		result = "failed"
	}
	m.PlannerMoves.WithLabelValues(reason, result).Inc()
}

// RecordFocusInterval counts a rewarded work interval.
func (m *Metrics) RecordFocusInterval() {
	if m == nil {
		return
	}
	m.FocusIntervals.Inc()
}

// RecordPublish counts a published event.
func (m *Metrics) RecordPublish(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordHandler observes one handler execution.
func (m *Metrics) RecordHandler(eventType string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.HandlerDuration.WithLabelValues(eventType, result).Observe(d.Seconds())
}

// RecordJob counts a job run.
func (m *Metrics) RecordJob(job string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.JobRuns.WithLabelValues(job, result).Inc()
}

// RecordCacheLookup counts a cache read by result.
func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
