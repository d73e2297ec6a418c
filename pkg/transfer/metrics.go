package transfer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for BDX transfers. A nil *Metrics
// records nothing.
//
// Metrics collected:
//   - bdx_transfers_started_total: transfers by role
//   - bdx_transfers_finished_total: transfers by role and outcome
//   - bdx_transfers_refused_total: connections dropped before an Init was accepted, by reason
//   - bdx_active_transfers: transfers currently running
//   - bdx_blocks_total: blocks sent or received by role
//   - bdx_bytes_total: data bytes sent or received by role
//   - bdx_transfer_duration_seconds: transfer duration by role and outcome
type Metrics struct {
	started  *prometheus.CounterVec
	finished *prometheus.CounterVec
	refused  *prometheus.CounterVec
	active   prometheus.Gauge
	blocks   *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the transfer collectors with registry. A nil registry
// uses prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		started: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bdx",
			Name:      "transfers_started_total",
			Help:      "Total number of BDX transfers started",
		}, []string{"role"}),

		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bdx",
			Name:      "transfers_finished_total",
			Help:      "Total number of BDX transfers finished by outcome",
		}, []string{"role", "outcome"}),

		refused: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bdx",
			Name:      "transfers_refused_total",
			Help:      "Total number of connections refused before a transfer started",
		}, []string{"reason"}),

		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "bdx",
			Name:      "active_transfers",
			Help:      "Number of BDX transfers in progress",
		}),

		blocks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bdx",
			Name:      "blocks_total",
			Help:      "Total number of data blocks sent or received",
		}, []string{"role"}),

		bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bdx",
			Name:      "bytes_total",
			Help:      "Total number of data bytes sent or received",
		}, []string{"role"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bdx",
			Name:      "transfer_duration_seconds",
			Help:      "BDX transfer duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"role", "outcome"}),
	}
}

func (m *Metrics) transferStarted(role Role) {
	if m == nil {
		return
	}
	m.started.WithLabelValues(role.String()).Inc()
	m.active.Inc()
}

func (m *Metrics) blockTransferred(role Role, n int) {
	if m == nil {
		return
	}
	m.blocks.WithLabelValues(role.String()).Inc()
	m.bytes.WithLabelValues(role.String()).Add(float64(n))
}

func (m *Metrics) transferFinished(role Role, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := outcomeLabel(err)
	m.active.Dec()
	m.finished.WithLabelValues(role.String(), outcome).Inc()
	m.duration.WithLabelValues(role.String(), outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) transferRefused(err error) {
	if m == nil {
		return
	}
	m.refused.WithLabelValues(outcomeLabel(err)).Inc()
}

func outcomeLabel(err error) string {
	if err == nil {
		return "done"
	}
	if ae, ok := AsAbortError(err); ok {
		return ae.Reason.String()
	}
	return "error"
}
