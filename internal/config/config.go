package config

import (
	"time"

	// Timezone names in transformer config must resolve on hosts without
	// a zoneinfo database.
	_ "time/tzdata"
)

// Rule kinds.
const (
	RuleTypeValidation     = "validation"
	RuleTypeTransformation = "transformation"
	RuleTypeEnrichment     = "enrichment"
)

// Validation conditions.
const (
	ConditionRequired  = "required"
	ConditionMinLength = "min_length"
	ConditionMaxLength = "max_length"
)

// Transformation operations.
const (
	OperationUppercase = "uppercase"
	OperationLowercase = "lowercase"
	OperationTrim      = "trim"
	OperationReplace   = "replace"
)

// Enrichment sources.
const (
	SourceTimestamp   = "timestamp"
	SourceUUID        = "uuid"
	SourceCalculation = "calculation"
)

// Calculation operations.
const (
	CalcSum     = "sum"
	CalcAverage = "average"
	CalcMax     = "max"
	CalcMin     = "min"
)

// Default values.
const (
	DefaultAPIVersion      = "recordflow.io/v1"
	DefaultKind            = "Recordflow"
	DefaultServerAddress   = ":8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxBodyBytes    = 1 << 20
	DefaultMetricsPath     = "/metrics"
	DefaultRedisStream     = "recordflow:errors"
	DefaultRedisMaxLen     = 10000
	DefaultSinkTimeout     = 5 * time.Second
	DefaultWebhookRate     = 10.0
	DefaultWebhookBurst    = 20
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 30 * time.Second
	DefaultSinkQueueSize   = 1024
	DefaultSinkWorkers     = 2
	DefaultDeliveryTimeout = 30 * time.Second
)

// RecordflowConfig is the root configuration document.
type RecordflowConfig struct {
	APIVersion string         `yaml:"apiVersion" json:"apiVersion"`
	Kind       string         `yaml:"kind" json:"kind"`
	Metadata   Metadata       `yaml:"metadata" json:"metadata"`
	Spec       RecordflowSpec `yaml:"spec" json:"spec"`
}

// Metadata identifies a configuration document.
type Metadata struct {
	Name   string            `yaml:"name" json:"name"`
	Labels map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// RecordflowSpec holds the service configuration.
type RecordflowSpec struct {
	Transformer   TransformerConfig    `yaml:"transformer" json:"transformer"`
	Server        *ServerConfig        `yaml:"server,omitempty" json:"server,omitempty"`
	Observability *ObservabilityConfig `yaml:"observability,omitempty" json:"observability,omitempty"`
	Sinks         *SinksConfig         `yaml:"sinks,omitempty" json:"sinks,omitempty"`
}

// TransformerConfig configures the record transformer.
type TransformerConfig struct {
	// BusinessRules run in list order.
	BusinessRules []Rule `yaml:"businessRules" json:"businessRules"`

	// ErrorHandlingEnabled sends processing failures to the error sinks.
	ErrorHandlingEnabled bool `yaml:"errorHandlingEnabled" json:"errorHandlingEnabled"`

	// StrictRules turns transformation and enrichment failures into
	// processing errors instead of skipping the rule.
	StrictRules bool `yaml:"strictRules,omitempty" json:"strictRules,omitempty"`

	// Timezone is the IANA zone used by timestamp enrichment. Defaults to UTC.
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty"`

	// BatchConcurrency bounds parallel processing of a batch. Zero means GOMAXPROCS.
	BatchConcurrency int `yaml:"batchConcurrency,omitempty" json:"batchConcurrency,omitempty"`
}

// Rule is one business rule. Which of Condition, Operation and Source is
// used depends on Type.
type Rule struct {
	Name      string      `yaml:"name,omitempty" json:"name,omitempty"`
	Type      string      `yaml:"type" json:"type"`
	Field     string      `yaml:"field" json:"field"`
	Condition string      `yaml:"condition,omitempty" json:"condition,omitempty"`
	Operation string      `yaml:"operation,omitempty" json:"operation,omitempty"`
	Source    string      `yaml:"source,omitempty" json:"source,omitempty"`
	Value     interface{} `yaml:"value,omitempty" json:"value,omitempty"`
	Mapping   interface{} `yaml:"mapping,omitempty" json:"mapping,omitempty"`

	// When is an optional CEL expression over `record`; the rule runs only
	// when it evaluates to true.
	When string `yaml:"when,omitempty" json:"when,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address         string   `yaml:"address,omitempty" json:"address,omitempty"`
	ReadTimeout     Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout    Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`
	MaxBodyBytes    int64    `yaml:"maxBodyBytes,omitempty" json:"maxBodyBytes,omitempty"`
}

// SinksConfig configures where processing failures are sent when error
// handling is enabled. The log sinks are always active.
type SinksConfig struct {
	Webhook *WebhookSinkConfig `yaml:"webhook,omitempty" json:"webhook,omitempty"`
	Redis   *RedisSinkConfig   `yaml:"redis,omitempty" json:"redis,omitempty"`

	// QueueSize bounds failures waiting for remote delivery; further
	// failures are dropped. Workers deliver them in the background, each
	// delivery limited to DeliveryTimeout including retries.
	QueueSize       int      `yaml:"queueSize,omitempty" json:"queueSize,omitempty"`
	Workers         int      `yaml:"workers,omitempty" json:"workers,omitempty"`
	DeliveryTimeout Duration `yaml:"deliveryTimeout,omitempty" json:"deliveryTimeout,omitempty"`
}

// WebhookSinkConfig configures the webhook notifier.
type WebhookSinkConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	URL     string            `yaml:"url" json:"url"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// RateLimit is the maximum notifications per second; Burst the bucket size.
	RateLimit float64 `yaml:"rateLimit,omitempty" json:"rateLimit,omitempty"`
	Burst     int     `yaml:"burst,omitempty" json:"burst,omitempty"`

	CircuitBreaker *CircuitBreakerConfig `yaml:"circuitBreaker,omitempty" json:"circuitBreaker,omitempty"`
}

// CircuitBreakerConfig configures a circuit breaker in front of a sink.
type CircuitBreakerConfig struct {
	Enabled     bool     `yaml:"enabled" json:"enabled"`
	MaxFailures uint32   `yaml:"maxFailures,omitempty" json:"maxFailures,omitempty"`
	Timeout     Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// RedisSinkConfig configures the Redis stream error log.
type RedisSinkConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	Address  string   `yaml:"address" json:"address"`
	Password string   `yaml:"password,omitempty" json:"-"`
	DB       int      `yaml:"db,omitempty" json:"db,omitempty"`
	Stream   string   `yaml:"stream,omitempty" json:"stream,omitempty"`
	MaxLen   int64    `yaml:"maxLen,omitempty" json:"maxLen,omitempty"`
	Timeout  Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// DefaultConfig returns a configuration with no rules and every optional
// section filled with defaults.
func DefaultConfig() *RecordflowConfig {
	cfg := &RecordflowConfig{
		APIVersion: DefaultAPIVersion,
		Kind:       DefaultKind,
		Metadata:   Metadata{Name: "recordflow"},
	}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills unset optional fields.
func (c *RecordflowConfig) SetDefaults() {
	if c.Spec.Server == nil {
		c.Spec.Server = &ServerConfig{}
	}
	s := c.Spec.Server
	if s.Address == "" {
		s.Address = DefaultServerAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = Duration(DefaultReadTimeout)
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = Duration(DefaultWriteTimeout)
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if c.Spec.Observability == nil {
		c.Spec.Observability = &ObservabilityConfig{}
	}
	c.Spec.Observability.setDefaults()

	if c.Spec.Sinks == nil {
		c.Spec.Sinks = &SinksConfig{}
	}
	if c.Spec.Sinks.QueueSize == 0 {
		c.Spec.Sinks.QueueSize = DefaultSinkQueueSize
	}
	if c.Spec.Sinks.Workers == 0 {
		c.Spec.Sinks.Workers = DefaultSinkWorkers
	}
	if c.Spec.Sinks.DeliveryTimeout == 0 {
		c.Spec.Sinks.DeliveryTimeout = Duration(DefaultDeliveryTimeout)
	}
	if w := c.Spec.Sinks.Webhook; w != nil {
		if w.Timeout == 0 {
			w.Timeout = Duration(DefaultSinkTimeout)
		}
		if w.RateLimit == 0 {
			w.RateLimit = DefaultWebhookRate
		}
		if w.Burst == 0 {
			w.Burst = DefaultWebhookBurst
		}
		if cb := w.CircuitBreaker; cb != nil {
			if cb.MaxFailures == 0 {
				cb.MaxFailures = DefaultBreakerFailures
			}
			if cb.Timeout == 0 {
				cb.Timeout = Duration(DefaultBreakerTimeout)
			}
		}
	}
	if r := c.Spec.Sinks.Redis; r != nil {
		if r.Stream == "" {
			r.Stream = DefaultRedisStream
		}
		if r.MaxLen == 0 {
			r.MaxLen = DefaultRedisMaxLen
		}
		if r.Timeout == 0 {
			r.Timeout = Duration(DefaultSinkTimeout)
		}
	}
}
