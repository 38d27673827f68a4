package util

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrRuleValidation = errors.New("rule validation failed")
	ErrRuleExecution  = errors.New("rule execution failed")
	ErrConfigInvalid  = errors.New("invalid configuration")
	ErrSinkUnavail    = errors.New("sink unavailable")
)

// InvalidInputError is returned when a record is nil or not a structured
// mapping.
type InvalidInputError struct {
	// Got is the Go type of the rejected value ("nil" for a nil value).
	Got     string
	Message string
}

// Error implements the error interface.
func (e *InvalidInputError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("invalid input: %s (got %s)", e.Message, e.Got)
	}
	return fmt.Sprintf("invalid input: expected a structured record, got %s", e.Got)
}

// Is checks if the error matches the target.
func (e *InvalidInputError) Is(target error) bool {
	if target == ErrInvalidInput {
		return true
	}
	_, ok := target.(*InvalidInputError)
	return ok
}

// NewInvalidInputError creates a new InvalidInputError describing value.
func NewInvalidInputError(value interface{}) *InvalidInputError {
	if value == nil {
		return &InvalidInputError{Got: "nil", Message: "record is nil"}
	}
	return &InvalidInputError{Got: fmt.Sprintf("%T", value)}
}

// RuleValidationError is returned when a validation rule's condition fails.
// It always names the failing field and condition.
type RuleValidationError struct {
	Field     string
	Condition string
	Message   string
}

// Error implements the error interface.
func (e *RuleValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("validation failed for field %s (%s): %s", e.Field, e.Condition, e.Message)
	}
	return fmt.Sprintf("validation failed for field %s (%s)", e.Field, e.Condition)
}

// Is checks if the error matches the target.
func (e *RuleValidationError) Is(target error) bool {
	if target == ErrRuleValidation {
		return true
	}
	_, ok := target.(*RuleValidationError)
	return ok
}

// NewRuleValidationError creates a new RuleValidationError.
func NewRuleValidationError(field, condition, message string) *RuleValidationError {
	return &RuleValidationError{Field: field, Condition: condition, Message: message}
}

// RuleExecutionError wraps a failure of a transformation or enrichment rule.
type RuleExecutionError struct {
	Index    int
	RuleName string
	RuleType string
	Field    string
	Cause    error
}

// Error implements the error interface.
func (e *RuleExecutionError) Error() string {
	name := e.RuleName
	if name == "" {
		name = fmt.Sprintf("#%d", e.Index)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s rule %s on field %s failed: %v", e.RuleType, name, e.Field, e.Cause)
	}
	return fmt.Sprintf("%s rule %s on field %s failed", e.RuleType, name, e.Field)
}

// Unwrap returns the underlying error.
func (e *RuleExecutionError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *RuleExecutionError) Is(target error) bool {
	if target == ErrRuleExecution {
		return true
	}
	_, ok := target.(*RuleExecutionError)
	return ok || errors.Is(e.Cause, target)
}

// NewRuleExecutionError creates a new RuleExecutionError.
func NewRuleExecutionError(index int, name, ruleType, field string, cause error) *RuleExecutionError {
	return &RuleExecutionError{Index: index, RuleName: name, RuleType: ruleType, Field: field, Cause: cause}
}

// ConfigError represents a configuration-related error.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError with a cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// SinkError represents a failure delivering to an error sink.
type SinkError struct {
	Sink    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *SinkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("sink %s error: %s: %v", e.Sink, e.Message, e.Cause)
	}
	return fmt.Sprintf("sink %s error: %s", e.Sink, e.Message)
}

// Unwrap returns the underlying error.
func (e *SinkError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *SinkError) Is(target error) bool {
	if target == ErrSinkUnavail {
		return true
	}
	_, ok := target.(*SinkError)
	return ok || errors.Is(e.Cause, target)
}

// NewSinkError creates a new SinkError with a cause.
func NewSinkError(sink, message string, cause error) *SinkError {
	return &SinkError{Sink: sink, Message: message, Cause: cause}
}

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsCallerVisible reports whether err belongs to the class of errors that
// Process surfaces to its caller: malformed input and failed validation.
func IsCallerVisible(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrRuleValidation)
}
