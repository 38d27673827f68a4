// Package transform implements the rule-driven record transformer.
//
// A RecordTransformer takes an arbitrary structured record and produces a
// derived record: the input fields plus an id, a processing timestamp, a
// processed flag, per-field metadata and a fingerprint hash, after running
// an ordered list of business rules over it. Rules are one of three kinds:
//
//   - validation: required, min_length, max_length checks that halt
//     processing on failure
//   - transformation: uppercase, lowercase, trim and replace on string fields
//   - enrichment: timestamp, uuid and calculation (sum, average, max, min)
//     values written to a field
//
// Fields are addressed with dotted paths ("user.name", "items[0].id").
// A transformer is safe for concurrent use and keeps its own metrics.
package transform

import (
	"context"
	"time"
)

// Record is a structured record: field name to string, number, bool,
// []interface{}, nested map or nil.
type Record map[string]interface{}

// Output record fields set by the transformer.
const (
	FieldID        = "id"
	FieldTimestamp = "timestamp"
	FieldProcessed = "processed"
	FieldMetadata  = "metadata"
	FieldHash      = "hash"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	return f()
}

// systemClock is the wall clock.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// IDGenerator produces record ids for inputs without one.
type IDGenerator interface {
	NewID(now time.Time) string
}

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func(now time.Time) string

// NewID implements IDGenerator.
func (f IDGeneratorFunc) NewID(now time.Time) string {
	return f(now)
}

// ErrorSummary is the short form of a processing failure sent to a
// Notifier.
type ErrorSummary struct {
	Message   string    `json:"message"`
	Kind      string    `json:"kind"`
	RecordID  string    `json:"recordId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEntry is the full form of a processing failure written to an
// ErrorLog.
type ErrorEntry struct {
	Error     string    `json:"error"`
	Kind      string    `json:"kind"`
	Stack     string    `json:"stack"`
	RecordID  string    `json:"recordId,omitempty"`
	Record    Record    `json:"record,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives a summary of each processing failure.
type Notifier interface {
	Notify(ctx context.Context, summary ErrorSummary) error
}

// ErrorLog durably records processing failures.
type ErrorLog interface {
	Record(ctx context.Context, entry ErrorEntry) error
}
