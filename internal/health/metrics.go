package health

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/recordflow/internal/observability"
)

// Metrics holds Prometheus metrics for health checks.
type Metrics struct {
	checksTotal *prometheus.CounterVec
	checkStatus *prometheus.GaugeVec
}

// NewMetrics creates health metrics registered with registerer.
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = observability.DefaultNamespace
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		checksTotal: observability.RegisterOrReuse(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "checks_total",
				Help:      "Total number of health checks performed by type and result",
			},
			[]string{"type", "result"},
		)),
		checkStatus: observability.RegisterOrReuse(registerer, prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "check_status",
				Help:      "Current health check status (1=healthy, 0=unhealthy)",
			},
			[]string{"check"},
		)),
	}
}

// RecordCheck counts one liveness or readiness evaluation.
func (m *Metrics) RecordCheck(checkType string, healthy bool) {
	if m == nil {
		return
	}
	result := "healthy"
	if !healthy {
		result = "unhealthy"
	}
	m.checksTotal.WithLabelValues(checkType, result).Inc()
}

// SetCheckStatus records the latest result of a named check.
func (m *Metrics) SetCheckStatus(name string, healthy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	m.checkStatus.WithLabelValues(name).Set(v)
}
