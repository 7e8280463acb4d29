package differ

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the differ's Prometheus collectors.
type Metrics struct {
	diffDuration *prometheus.HistogramVec
	changes      *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		diffDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "amm",
			Subsystem: "differ",
			Name:      "diff_duration_seconds",
			Help:      "Time taken to diff two snapshots.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amm",
			Subsystem: "differ",
			Name:      "pool_changes_total",
			Help:      "Pool changes emitted in diffs, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.diffDuration, m.changes)
	return m
}
