package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/felixgeelhaar/speckeeper/internal/errors"
)

// Archival outcomes used as the "outcome" label.
const (
	OutcomeArchived = "archived"
	OutcomeRestored = "restored"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Metrics holds all Prometheus metrics for Speckeeper. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Archival engine metrics
	ArchivalAttempts *prometheus.CounterVec
	ArchivalDuration prometheus.Histogram
	Rollbacks        *prometheus.CounterVec
	FilesCopied      prometheus.Counter
	BytesCopied      prometheus.Counter

	// Index maintenance metrics
	IndexRepairs *prometheus.CounterVec

	// Scanner metrics
	Specs *prometheus.GaugeVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		ArchivalAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speckeeper_archival_attempts_total",
				Help: "Total number of archival and restore attempts by outcome",
			},
			[]string{"outcome"},
		),
		ArchivalDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "speckeeper_archival_duration_seconds",
				Help:    "Duration of archival attempts in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
			},
		),
		Rollbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speckeeper_archival_rollbacks_total",
				Help: "Total number of rolled back attempts by the phase that failed",
			},
			[]string{"phase"},
		),
		FilesCopied: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "speckeeper_files_copied_total",
				Help: "Total number of files copied into or out of the archive",
			},
		),
		BytesCopied: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "speckeeper_bytes_copied_total",
				Help: "Total number of bytes copied into or out of the archive",
			},
		),

		IndexRepairs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speckeeper_index_repairs_total",
				Help: "Total number of archive index entries removed by repair",
			},
			[]string{"kind"},
		),

		Specs: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "speckeeper_specs",
				Help: "Number of specs seen by the last scan, by state",
			},
			[]string{"state"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speckeeper_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code", "component"},
		),
	}
}

// ObserveAttempt records one finished attempt.
func (m *Metrics) ObserveAttempt(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ArchivalAttempts.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSkipped {
		m.ArchivalDuration.Observe(d.Seconds())
	}
}

// ObserveRollback records a rollback from phase.
func (m *Metrics) ObserveRollback(phase string) {
	if m == nil {
		return
	}
	m.Rollbacks.WithLabelValues(phase).Inc()
}

// AddCopied records copied files and bytes.
func (m *Metrics) AddCopied(files int, bytes int64) {
	if m == nil {
		return
	}
	m.FilesCopied.Add(float64(files))
	m.BytesCopied.Add(float64(bytes))
}

// ObserveRepair records index entries removed by a repair pass.
func (m *Metrics) ObserveRepair(duplicates, missing int) {
	if m == nil {
		return
	}
	m.IndexRepairs.WithLabelValues("duplicate").Add(float64(duplicates))
	m.IndexRepairs.WithLabelValues("missing").Add(float64(missing))
}

// SetSpecCounts publishes the outcome of a scan.
func (m *Metrics) SetSpecCounts(total, complete, ready, invalid int) {
	if m == nil {
		return
	}
	m.Specs.WithLabelValues("total").Set(float64(total))
	m.Specs.WithLabelValues("complete").Set(float64(complete))
	m.Specs.WithLabelValues("ready").Set(float64(ready))
	m.Specs.WithLabelValues("invalid").Set(float64(invalid))
}

// RecordError counts err by its code. Errors without a code count as
// "unknown".
func (m *Metrics) RecordError(err error, component string) {
	if m == nil || err == nil {
		return
	}
	code := "unknown"
	if c, ok := errors.CodeOf(err); ok {
		code = string(c)
	}
	m.Errors.WithLabelValues(code, component).Inc()
}
