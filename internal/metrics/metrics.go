// Package metrics exposes posting engine telemetry as Prometheus metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the posting engine's Prometheus metrics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Registry owns the metrics below. It is private so tests can build
	// as many as they like.
	Registry *prometheus.Registry

	outcomes      *prometheus.CounterVec
	batchDuration prometheus.Histogram
	claimed       prometheus.Counter
	batches       prometheus.Counter
	runsFinalized prometheus.Counter
}

// New creates a dedicated registry and registers the engine metrics in it.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_posting_outcomes_total",
				Help: "Staging movements handled, by outcome status and error code.",
			},
			[]string{"status", "code"},
		),
		batchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ledger_batch_duration_seconds",
				Help:    "Wall time of one posting batch.",
				Buckets: prometheus.DefBuckets,
			},
		),
		claimed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_claimed_total",
				Help: "Staging movements claimed by posting batches.",
			},
		),
		batches: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_batches_total",
				Help: "Posting batches run.",
			},
		),
		runsFinalized: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_import_runs_finalized_total",
				Help: "Import run finalizations.",
			},
		),
	}
}

// RecordOutcome counts one movement's outcome.
func (m *Metrics) RecordOutcome(status, code string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(status, code).Inc()
}

// RecordBatch records a finished batch.
func (m *Metrics) RecordBatch(d time.Duration, claimed int) {
	if m == nil {
		return
	}
	m.batches.Inc()
	m.batchDuration.Observe(d.Seconds())
	m.claimed.Add(float64(claimed))
}

// RecordRunFinalized counts an import run finalization.
func (m *Metrics) RecordRunFinalized() {
	if m == nil {
		return
	}
	m.runsFinalized.Inc()
}

// WriteTextfile writes the current values in the text exposition format,
// for node_exporter's textfile collector. The write is atomic.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
