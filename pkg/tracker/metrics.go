package tracker

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects and exposes tracking-related Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Bet lifecycle
	BetsTracked   prometheus.Counter
	BetsSettled   *prometheus.CounterVec
	BetsRejected  *prometheus.CounterVec
	OpenBetsGauge prometheus.Gauge

	// Event processing
	EventsApplied   prometheus.Counter
	EventsIgnored   *prometheus.CounterVec
	MilestonesFired *prometheus.CounterVec

	// Polling
	PollRuns     *prometheus.CounterVec
	PollDuration prometheus.Histogram
	UpstreamErrs *prometheus.CounterVec

	// Parsing
	ParseAttempts *prometheus.CounterVec
	ParseLatency  prometheus.Histogram
}

// NewMetrics creates a new tracking metrics collector.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		BetsTracked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "betengine_bets_tracked_total",
			Help: "Total number of bets registered for live tracking",
		}),
		BetsSettled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betengine_bets_settled_total",
				Help: "Total number of bets settled, by outcome",
			},
			[]string{"status"},
		),
		BetsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betengine_bets_rejected_total",
				Help: "Total number of bet drafts rejected at validation",
			},
			[]string{"reason"},
		),
		OpenBetsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "betengine_open_bets",
			Help: "Current number of bets in a non-terminal status",
		}),

		EventsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "betengine_events_applied_total",
			Help: "Total number of live game events applied to tracked bets",
		}),
		EventsIgnored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betengine_events_ignored_total",
				Help: "Total number of live game events dropped without effect",
			},
			[]string{"reason"},
		),
		MilestonesFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betengine_milestones_fired_total",
				Help: "Total number of progress milestone alerts emitted",
			},
			[]string{"threshold"},
		),

		PollRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betengine_poll_runs_total",
				Help: "Total number of per-game polling passes",
			},
			[]string{"status"},
		),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "betengine_poll_duration_seconds",
			Help:    "Duration of one per-game polling pass",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),
		UpstreamErrs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betengine_upstream_errors_total",
				Help: "Total number of stats API failures",
			},
			[]string{"endpoint"},
		),

		ParseAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betengine_parse_attempts_total",
				Help: "Total number of raw bet texts submitted for parsing",
			},
			[]string{"status"},
		),
		ParseLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "betengine_parse_latency_seconds",
			Help:    "Latency of the extraction model call",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~100s
		}),
	}

	m.registerAll()
	return m
}

func (m *Metrics) registerAll() {
	m.registry.MustRegister(
		m.BetsTracked,
		m.BetsSettled,
		m.BetsRejected,
		m.OpenBetsGauge,
		m.EventsApplied,
		m.EventsIgnored,
		m.MilestonesFired,
		m.PollRuns,
		m.PollDuration,
		m.UpstreamErrs,
		m.ParseAttempts,
		m.ParseLatency,
	)
}

// Registry returns the prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordPoll records one polling pass.
func (m *Metrics) RecordPoll(status string, durationSec float64) {
	m.PollRuns.WithLabelValues(status).Inc()
	if durationSec > 0 {
		m.PollDuration.Observe(durationSec)
	}
}

// RecordUpstreamError records a stats API failure.
func (m *Metrics) RecordUpstreamError(endpoint string) {
	m.UpstreamErrs.WithLabelValues(endpoint).Inc()
}

// RecordParse records one parse attempt.
func (m *Metrics) RecordParse(status string, latencySec float64) {
	m.ParseAttempts.WithLabelValues(status).Inc()
	if latencySec > 0 {
		m.ParseLatency.Observe(latencySec)
	}
}

// Global instance for convenience
var defaultMetrics *Metrics
var metricsOnce sync.Once

// DefaultMetrics returns the default global metrics instance.
func DefaultMetrics() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}
