package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

// Metrics holds the ledger's Prometheus collectors.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	pools      prometheus.Gauge
	sequence   prometheus.Gauge
}

// NewMetrics creates and registers the ledger collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amm",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by kind, pool strategy and outcome.",
		}, []string{"operation", "strategy", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "amm",
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Latency of ledger operations, including persistence.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"operation"}),
		pools: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "amm",
			Subsystem: "ledger",
			Name:      "pools",
			Help:      "Number of pools held by the ledger.",
		}),
		sequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "amm",
			Subsystem: "ledger",
			Name:      "sequence",
			Help:      "Last committed ledger sequence.",
		}),
	}
	reg.MustRegister(m.operations, m.duration, m.pools, m.sequence)
	return m
}

func (m *Metrics) observe(operation, strategy string, start time.Time, err error) {
	result := resultOK
	if err != nil {
		result = resultError
	}
	m.operations.WithLabelValues(operation, strategy, result).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
