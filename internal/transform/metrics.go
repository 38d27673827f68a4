package transform

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/recordflow/internal/observability"
)

// Record outcome labels.
const (
	ResultSuccess         = "success"
	ResultInvalidInput    = "invalid_input"
	ResultValidationError = "validation_error"
	ResultRuleError       = "rule_error"
)

// Rule execution outcome labels.
const (
	RuleApplied = "applied"
	RuleSkipped = "skipped"
	RuleFailed  = "failed"
)

// TransformMetrics contains Prometheus metrics for record processing.
type TransformMetrics struct {
	recordsTotal       *prometheus.CounterVec
	processingDuration prometheus.Histogram
	ruleExecutions     *prometheus.CounterVec
	rulesLoaded        prometheus.Gauge
}

// NewTransformMetrics creates transform metrics registered with registerer.
// Collectors that are already registered (a second transformer sharing a
// registry) are reused.
func NewTransformMetrics(namespace string, registerer prometheus.Registerer) *TransformMetrics {
	if namespace == "" {
		namespace = observability.DefaultNamespace
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &TransformMetrics{}

	m.recordsTotal = observability.RegisterOrReuse(registerer, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "records_total",
			Help:      "Total number of processed records by result",
		},
		[]string{"result"},
	))

	m.processingDuration = observability.RegisterOrReuse(registerer, prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "processing_duration_seconds",
			Help:      "Duration of record processing in seconds",
			Buckets: []float64{
				.00001, .00005, .0001, .0005,
				.001, .005, .01, .05, .1,
			},
		},
	))

	m.ruleExecutions = observability.RegisterOrReuse(registerer, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "rule_executions_total",
			Help:      "Total number of rule executions by rule type and result",
		},
		[]string{"type", "result"},
	))

	m.rulesLoaded = observability.RegisterOrReuse(registerer, prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "rules_loaded",
			Help:      "Number of business rules in the active rule set",
		},
	))

	return m
}

// Init pre-initializes label combinations with zero values so that
// metrics appear in /metrics output immediately after startup.
func (m *TransformMetrics) Init() {
	if m == nil {
		return
	}
	for _, result := range []string{ResultSuccess, ResultInvalidInput, ResultValidationError, ResultRuleError} {
		m.recordsTotal.WithLabelValues(result)
	}
	for _, ruleType := range []string{RuleTypeValidation, RuleTypeTransformation, RuleTypeEnrichment} {
		for _, result := range []string{RuleApplied, RuleSkipped, RuleFailed} {
			m.ruleExecutions.WithLabelValues(ruleType, result)
		}
	}
}

// RecordProcessed records the outcome and duration of one Process call.
func (m *TransformMetrics) RecordProcessed(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.recordsTotal.WithLabelValues(result).Inc()
	m.processingDuration.Observe(duration.Seconds())
}

// RecordRule records one rule execution.
func (m *TransformMetrics) RecordRule(ruleType, result string) {
	if m == nil {
		return
	}
	m.ruleExecutions.WithLabelValues(ruleType, result).Inc()
}

// SetRulesLoaded sets the active rule count.
func (m *TransformMetrics) SetRulesLoaded(n int) {
	if m == nil {
		return
	}
	m.rulesLoaded.Set(float64(n))
}
