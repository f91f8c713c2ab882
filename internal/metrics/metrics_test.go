package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/engine"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ engine.Recorder = (*Metrics)(nil)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.RecordOutcome("processed", "")
	m.RecordOutcome("processed", "")
	m.RecordOutcome("error", "UnmappedExternalType")
	m.RecordBatch(250*time.Millisecond, 3)
	m.RecordRunFinalized()

	families := gather(t, m)
	assert.InDelta(t, 2, counter(families, "ledger_posting_outcomes_total", "processed"), 0)
	assert.InDelta(t, 1, counter(families, "ledger_posting_outcomes_total", "error"), 0)
	assert.InDelta(t, 3, counter(families, "ledger_claimed_total", ""), 0)
	assert.InDelta(t, 1, counter(families, "ledger_batches_total", ""), 0)
	assert.InDelta(t, 1, counter(families, "ledger_import_runs_finalized_total", ""), 0)

	hist := families["ledger_batch_duration_seconds"].GetMetric()[0].GetHistogram()
	assert.EqualValues(t, 1, hist.GetSampleCount())
	assert.InDelta(t, 0.25, hist.GetSampleSum(), 1e-9)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordOutcome("processed", "")
		m.RecordBatch(time.Second, 1)
		m.RecordRunFinalized()
	})
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.RecordOutcome("conflict", "PostingConflict")

	path := filepath.Join(t.TempDir(), "ledger.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ledger_posting_outcomes_total{code="PostingConflict",status="conflict"} 1`)
}

func gather(t *testing.T, m *Metrics) map[string]*dto.MetricFamily {
	t.Helper()
	mfs, err := m.Registry.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = mf
	}
	return out
}

// counter sums a family's counters, filtered by status label when given.
func counter(families map[string]*dto.MetricFamily, name, status string) float64 {
	var total float64
	for _, metric := range families[name].GetMetric() {
		if status != "" && !hasLabel(metric, "status", status) {
			continue
		}
		total += metric.GetCounter().GetValue()
	}
	return total
}

func hasLabel(metric *dto.Metric, name, value string) bool {
	for _, lp := range metric.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}
