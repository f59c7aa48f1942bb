package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cyclesTotal   prometheus.Counter
	cycleDuration prometheus.Histogram
	instruments   *prometheus.CounterVec
	fetchesTotal  *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	activeAlerts  prometheus.Gauge
	latency       *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		cyclesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "niftyscan_cycles_total",
				Help: "Total number of completed scan cycles",
			},
		),
		cycleDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "niftyscan_cycle_duration_seconds",
				Help:    "Duration of a full scan cycle in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		instruments: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "niftyscan_instruments_total",
				Help: "Instruments processed per outcome across all cycles",
			},
			[]string{"outcome"},
		),
		fetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "niftyscan_fetches_total",
				Help: "Quote fetches by interval and cache outcome",
			},
			[]string{"interval", "source"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "niftyscan_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		activeAlerts: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "niftyscan_active_alerts",
				Help: "Number of alerts currently in ACTIVE status",
			},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "niftyscan_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordCycle records a completed scan cycle.
func (r *Recorder) RecordCycle(scanned, failed int, duration time.Duration) {
	r.cyclesTotal.Inc()
	r.cycleDuration.Observe(duration.Seconds())
	r.instruments.WithLabelValues("scanned").Add(float64(scanned))
	r.instruments.WithLabelValues("failed").Add(float64(failed))
}

// RecordFetch records a quote fetch and whether the cache served it.
func (r *Recorder) RecordFetch(interval string, cached bool) {
	source := "upstream"
	if cached {
		source = "cache"
	}
	r.fetchesTotal.WithLabelValues(interval, source).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordActiveAlerts records the current number of ACTIVE alerts.
func (r *Recorder) RecordActiveAlerts(n int) {
	r.activeAlerts.Set(float64(n))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
