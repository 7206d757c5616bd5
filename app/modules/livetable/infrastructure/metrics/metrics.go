package livetablemetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records the live table's operational counters.
type Metrics interface {
	RecordSubmission(action, outcome string)
	RecordSubmitDuration(action string, d time.Duration)
	RecordNonceResync()
	RecordSettlementDropped(reason string)
	RecordBroadcast(viewers int, d time.Duration)
	RecordTick(d time.Duration)
	SetPhase(phase uint8, roundID uint64)
}

// Submission outcomes.
const (
	OutcomeAccepted  = "accepted"
	OutcomeRejected  = "rejected"
	OutcomeTransport = "transport"
	OutcomeRetried   = "retried"
)

const namespace = "livetable"

// PrometheusMetrics registers its collectors on the given registerer.
type PrometheusMetrics struct {
	submissions      *prometheus.CounterVec
	submitDuration   *prometheus.HistogramVec
	nonceResyncs     prometheus.Counter
	settlementDrops  *prometheus.CounterVec
	broadcastPasses  prometheus.Counter
	broadcastViewers prometheus.Histogram
	broadcastLatency prometheus.Histogram
	tickDuration     prometheus.Histogram
	phase            prometheus.Gauge
	roundID          prometheus.Gauge
}

var _ Metrics = (*PrometheusMetrics)(nil)

func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Transaction submissions by action and outcome.",
		}, []string{"action", "outcome"}),
		submitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submit_duration_seconds",
			Help:      "Time from nonce acquisition to ledger verdict.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		nonceResyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nonce_resyncs_total",
			Help:      "Nonce resyncs triggered by ledger rejections.",
		}),
		settlementDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_dropped_total",
			Help:      "Participants dropped from the settlement queue.",
		}, []string{"reason"}),
		broadcastPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_passes_total",
			Help:      "Completed state broadcast passes.",
		}),
		broadcastViewers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_viewers",
			Help:      "Viewers reached per broadcast pass.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		broadcastLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_duration_seconds",
			Help:      "Wall time of one broadcast pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one coordinator tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase",
			Help:      "Current round phase code.",
		}),
		roundID: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "round_id",
			Help:      "Current round id.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.submissions, m.submitDuration, m.nonceResyncs, m.settlementDrops,
			m.broadcastPasses, m.broadcastViewers, m.broadcastLatency,
			m.tickDuration, m.phase, m.roundID,
		)
	}
	return m
}

func (m *PrometheusMetrics) RecordSubmission(action, outcome string) {
	m.submissions.WithLabelValues(action, outcome).Inc()
}

func (m *PrometheusMetrics) RecordSubmitDuration(action string, d time.Duration) {
	m.submitDuration.WithLabelValues(action).Observe(d.Seconds())
}

func (m *PrometheusMetrics) RecordNonceResync() { m.nonceResyncs.Inc() }

func (m *PrometheusMetrics) RecordSettlementDropped(reason string) {
	m.settlementDrops.WithLabelValues(reason).Inc()
}

func (m *PrometheusMetrics) RecordBroadcast(viewers int, d time.Duration) {
	m.broadcastPasses.Inc()
	m.broadcastViewers.Observe(float64(viewers))
	m.broadcastLatency.Observe(d.Seconds())
}

func (m *PrometheusMetrics) RecordTick(d time.Duration) { m.tickDuration.Observe(d.Seconds()) }

func (m *PrometheusMetrics) SetPhase(phase uint8, roundID uint64) {
	m.phase.Set(float64(phase))
	m.roundID.Set(float64(roundID))
}

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

var _ Metrics = NoOpMetrics{}

func (NoOpMetrics) RecordSubmission(string, string)            {}
func (NoOpMetrics) RecordSubmitDuration(string, time.Duration) {}
func (NoOpMetrics) RecordNonceResync()                         {}
func (NoOpMetrics) RecordSettlementDropped(string)             {}
func (NoOpMetrics) RecordBroadcast(int, time.Duration)         {}
func (NoOpMetrics) RecordTick(time.Duration)                   {}
func (NoOpMetrics) SetPhase(uint8, uint64)                     {}
