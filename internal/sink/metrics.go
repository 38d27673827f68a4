package sink

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/recordflow/internal/observability"
)

// Sink names used as metric labels.
const (
	SinkWebhook = "webhook"
	SinkRedis   = "redis"
)

// Delivery outcome labels.
const (
	ResultDelivered = "delivered"
	ResultFailed    = "failed"
	ResultDropped   = "dropped"
)

// Metrics contains Prometheus metrics for error sink deliveries.
type Metrics struct {
	deliveries       *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
	breakerState     *prometheus.GaugeVec
}

// NewMetrics creates sink metrics registered with registerer.
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = observability.DefaultNamespace
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{}

	m.deliveries = observability.RegisterOrReuse(registerer, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "deliveries_total",
			Help:      "Total number of error sink deliveries by sink and result",
		},
		[]string{"sink", "result"},
	))

	m.deliveryDuration = observability.RegisterOrReuse(registerer, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "delivery_duration_seconds",
			Help:      "Duration of error sink deliveries in seconds, retries included",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"sink"},
	))

	m.breakerState = observability.RegisterOrReuse(registerer, prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state by sink (0=closed, 1=half-open, 2=open)",
		},
		[]string{"sink"},
	))

	return m
}

// RecordDelivery records one delivery attempt and its duration.
func (m *Metrics) RecordDelivery(sink, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(sink, result).Inc()
	if result != ResultDropped {
		m.deliveryDuration.WithLabelValues(sink).Observe(duration.Seconds())
	}
}

// SetBreakerState records a circuit breaker state.
func (m *Metrics) SetBreakerState(sink string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(sink).Set(float64(state))
}
