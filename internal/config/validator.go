package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/vyrodovalexey/recordflow/internal/util"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Is makes errors.Is(err, util.ErrConfigInvalid) hold for validation results.
func (e ValidationErrors) Is(target error) bool {
	return target == util.ErrConfigInvalid
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates recordflow configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// ValidateConfig validates a recordflow configuration.
func ValidateConfig(config *RecordflowConfig) error {
	v := NewValidator()
	return v.Validate(config)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *RecordflowConfig) error {
	v.errors = make(ValidationErrors, 0)

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateRoot(config)
	v.validateMetadata(&config.Metadata)
	v.validateSpec(&config.Spec)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

// validateRoot validates root-level fields.
func (v *Validator) validateRoot(config *RecordflowConfig) {
	if config.APIVersion == "" {
		v.addError("apiVersion", "apiVersion is required")
	} else if !strings.HasPrefix(config.APIVersion, "recordflow.io/") {
		v.addError("apiVersion", "apiVersion must start with 'recordflow.io/'")
	}

	if config.Kind == "" {
		v.addError("kind", "kind is required")
	} else if config.Kind != DefaultKind {
		v.addError("kind", "kind must be '"+DefaultKind+"'")
	}
}

// validateMetadata validates metadata fields.
func (v *Validator) validateMetadata(metadata *Metadata) {
	if metadata.Name == "" {
		v.addError("metadata.name", "name is required")
	}
}

// validateSpec validates the service spec.
func (v *Validator) validateSpec(spec *RecordflowSpec) {
	v.ValidateTransformer(&spec.Transformer, "spec.transformer")

	if spec.Server != nil {
		v.validateServer(spec.Server, "spec.server")
	}
	if spec.Observability != nil {
		v.validateObservability(spec.Observability, "spec.observability")
	}
	if spec.Sinks != nil {
		v.validateSinks(spec.Sinks, "spec.sinks")
	}
}

// ValidateTransformer validates a transformer section on its own. The
// error paths are rooted at path.
func (v *Validator) ValidateTransformer(cfg *TransformerConfig, path string) {
	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			v.addError(path+".timezone", fmt.Sprintf("unknown timezone %q", cfg.Timezone))
		}
	}
	if cfg.BatchConcurrency < 0 {
		v.addError(path+".batchConcurrency", "batchConcurrency must not be negative")
	}

	for i := range cfg.BusinessRules {
		v.validateRule(&cfg.BusinessRules[i], fmt.Sprintf("%s.businessRules[%d]", path, i))
	}
}

// Errors returns the errors collected so far.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

// validateRule validates one business rule.
func (v *Validator) validateRule(rule *Rule, path string) {
	if err := util.ValidateFieldPath(rule.Field); err != nil {
		v.addError(path+".field", err.Error())
	}

	switch rule.Type {
	case RuleTypeValidation:
		v.validateValidationRule(rule, path)
	case RuleTypeTransformation:
		v.validateTransformationRule(rule, path)
	case RuleTypeEnrichment:
		v.validateEnrichmentRule(rule, path)
	case "":
		v.addError(path+".type", "type is required")
	default:
		v.addError(path+".type", fmt.Sprintf("unknown rule type %q", rule.Type))
	}
}

func (v *Validator) validateValidationRule(rule *Rule, path string) {
	switch rule.Condition {
	case ConditionRequired:
	case ConditionMinLength, ConditionMaxLength:
		if _, err := ParseLength(rule.Value); err != nil {
			v.addError(path+".value", err.Error())
		}
	case "":
		v.addError(path+".condition", "condition is required for validation rules")
	default:
		v.addError(path+".condition", fmt.Sprintf("unknown condition %q", rule.Condition))
	}
}

func (v *Validator) validateTransformationRule(rule *Rule, path string) {
	switch rule.Operation {
	case OperationUppercase, OperationLowercase, OperationTrim:
	case OperationReplace:
		if _, err := ParseReplace(rule.Value); err != nil {
			v.addError(path+".value", err.Error())
		}
	case "":
		v.addError(path+".operation", "operation is required for transformation rules")
	default:
		v.addError(path+".operation", fmt.Sprintf("unknown operation %q", rule.Operation))
	}
}

func (v *Validator) validateEnrichmentRule(rule *Rule, path string) {
	switch rule.Source {
	case SourceTimestamp:
		if _, err := ParseTimestampFormat(rule.Mapping); err != nil {
			v.addError(path+".mapping", err.Error())
		}
	case SourceUUID:
	case SourceCalculation:
		if _, err := ParseCalculation(rule.Mapping); err != nil {
			v.addError(path+".mapping", err.Error())
		}
	case "":
		v.addError(path+".source", "source is required for enrichment rules")
	default:
		v.addError(path+".source", fmt.Sprintf("unknown source %q", rule.Source))
	}
}

// validateServer validates the HTTP server section.
func (v *Validator) validateServer(server *ServerConfig, path string) {
	if server.Address == "" {
		v.addError(path+".address", "address is required")
	}
	if server.ReadTimeout < 0 {
		v.addError(path+".readTimeout", "readTimeout must not be negative")
	}
	if server.WriteTimeout < 0 {
		v.addError(path+".writeTimeout", "writeTimeout must not be negative")
	}
	if server.ShutdownTimeout < 0 {
		v.addError(path+".shutdownTimeout", "shutdownTimeout must not be negative")
	}
	if server.MaxBodyBytes < 0 {
		v.addError(path+".maxBodyBytes", "maxBodyBytes must not be negative")
	}
}

// validateObservability validates observability configuration.
func (v *Validator) validateObservability(obs *ObservabilityConfig, path string) {
	if obs.Tracing != nil {
		if obs.Tracing.SamplingRate < 0 || obs.Tracing.SamplingRate > 1 {
			v.addError(path+".tracing.samplingRate", "samplingRate must be between 0 and 1")
		}
	}

	if obs.Logging != nil {
		validLevels := map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[obs.Logging.Level] {
			v.addError(path+".logging.level", "level must be debug, info, warn, or error")
		}
		validFormats := map[string]bool{"": true, "json": true, "console": true}
		if !validFormats[obs.Logging.Format] {
			v.addError(path+".logging.format", "format must be json or console")
		}
		validOutputs := map[string]bool{"": true, "stdout": true, "stderr": true}
		if !validOutputs[obs.Logging.Output] {
			v.addError(path+".logging.output", "output must be stdout or stderr")
		}
	}

	if obs.Metrics != nil && obs.Metrics.Path != "" && !strings.HasPrefix(obs.Metrics.Path, "/") {
		v.addError(path+".metrics.path", "path must start with '/'")
	}
}

// validateSinks validates error sink configuration.
func (v *Validator) validateSinks(sinks *SinksConfig, path string) {
	if sinks.QueueSize < 0 {
		v.addError(path+".queueSize", "queueSize must not be negative")
	}
	if sinks.Workers < 0 {
		v.addError(path+".workers", "workers must not be negative")
	}
	if sinks.DeliveryTimeout < 0 {
		v.addError(path+".deliveryTimeout", "deliveryTimeout must not be negative")
	}

	if w := sinks.Webhook; w != nil && w.Enabled {
		if err := util.ValidateURL(w.URL); err != nil {
			v.addError(path+".webhook.url", err.Error())
		}
		if w.RateLimit < 0 {
			v.addError(path+".webhook.rateLimit", "rateLimit must not be negative")
		}
		if w.Burst < 0 {
			v.addError(path+".webhook.burst", "burst must not be negative")
		}
		if w.Timeout < 0 {
			v.addError(path+".webhook.timeout", "timeout must not be negative")
		}
	}

	if r := sinks.Redis; r != nil && r.Enabled {
		if r.Address == "" {
			v.addError(path+".redis.address", "address is required")
		}
		if r.DB < 0 {
			v.addError(path+".redis.db", "db must not be negative")
		}
		if r.MaxLen < 0 {
			v.addError(path+".redis.maxLen", "maxLen must not be negative")
		}
	}
}

// addError adds a validation error.
func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}
