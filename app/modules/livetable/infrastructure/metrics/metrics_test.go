package livetablemetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)

	m.RecordSubmission("lock", OutcomeAccepted)
	m.RecordSubmission("lock", OutcomeAccepted)
	m.RecordSubmission("settle", OutcomeRejected)
	m.RecordNonceResync()
	m.RecordSettlementDropped("max_attempts")
	m.RecordBroadcast(12, 5*time.Millisecond)
	m.SetPhase(2, 41)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.submissions.WithLabelValues("lock", OutcomeAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("settle", OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.nonceResyncs))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlementDrops.WithLabelValues("max_attempts")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.broadcastPasses))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.phase))
	assert.Equal(t, 41.0, testutil.ToFloat64(m.roundID))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["livetable_submissions_total"])
	assert.True(t, names["livetable_broadcast_duration_seconds"])
}

func TestPrometheusMetrics_NilRegisterer(t *testing.T) {
	assert.NotPanics(t, func() {
		m := NewPrometheusMetrics(nil)
		m.RecordTick(time.Millisecond)
		m.RecordSubmitDuration("open_round", time.Millisecond)
	})
}
