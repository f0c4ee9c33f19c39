package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the allocation engine.
type Metrics struct {
	Operations     *prometheus.CounterVec
	ImportRows     *prometheus.CounterVec
	QueueLength    prometheus.Gauge
	RequestLatency *prometheus.HistogramVec
}

// New registers the instrument set on reg (prometheus.DefaultRegisterer when
// nil) and returns it.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quarters",
			Name:      "operations_total",
			Help:      "Total allocation operations by kind and result.",
		}, []string{"op", "result"}),
		ImportRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quarters",
			Name:      "import_rows_total",
			Help:      "Total bulk-import rows by outcome (imported/skipped).",
		}, []string{"outcome"}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quarters",
			Name:      "queue_length",
			Help:      "Current number of visible queue entries.",
		}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quarters",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP handler latency in seconds by route.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"route"}),
	}

	reg.MustRegister(m.Operations, m.ImportRows, m.QueueLength, m.RequestLatency)
	return m
}

// Op records one operation outcome; result is "ok" or "error".
func (m *Metrics) Op(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Operations.WithLabelValues(op, result).Inc()
}
