package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/recordflow/internal/config"
	"github.com/vyrodovalexey/recordflow/internal/observability"
	"github.com/vyrodovalexey/recordflow/internal/util"
)

// TimestampLayout is the layout of the output record's timestamp field.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// tracerName is the instrumentation scope of transformer spans.
const tracerName = "recordflow/transform"

// RecordTransformer runs the validate, transform, enrich pipeline over
// records. It is safe for concurrent use.
type RecordTransformer struct {
	rules atomic.Pointer[ruleSet]
	stats *stats

	celEnv   *cel.Env
	clock    Clock
	ids      IDGenerator
	newUUID  func() string
	logger   observability.Logger
	metrics  *TransformMetrics
	notifier Notifier
	errorLog ErrorLog
	tracer   trace.Tracer

	batchConcurrency int
}

// Option configures a RecordTransformer.
type Option func(*RecordTransformer)

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(t *RecordTransformer) {
		t.clock = c
	}
}

// WithIDGenerator sets the generator of ids for records without one.
func WithIDGenerator(g IDGenerator) Option {
	return func(t *RecordTransformer) {
		t.ids = g
	}
}

// WithUUIDFunc sets the value source of uuid enrichments.
func WithUUIDFunc(f func() string) Option {
	return func(t *RecordTransformer) {
		t.newUUID = f
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(t *RecordTransformer) {
		t.logger = logger
	}
}

// WithTransformMetrics sets the Prometheus collectors.
func WithTransformMetrics(m *TransformMetrics) Option {
	return func(t *RecordTransformer) {
		t.metrics = m
	}
}

// WithNotifier sets the sink that receives error summaries.
func WithNotifier(n Notifier) Option {
	return func(t *RecordTransformer) {
		t.notifier = n
	}
}

// WithErrorLog sets the durable error sink.
func WithErrorLog(l ErrorLog) Option {
	return func(t *RecordTransformer) {
		t.errorLog = l
	}
}

// WithTracer sets the tracer used for per-record spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(t *RecordTransformer) {
		t.tracer = tracer
	}
}

// WithBatchConcurrency overrides the configured batch concurrency.
func WithBatchConcurrency(n int) Option {
	return func(t *RecordTransformer) {
		t.batchConcurrency = n
	}
}

// New compiles cfg and returns a transformer. A nil cfg means no rules
// and error handling disabled. Invalid rules fail with a *util.ConfigError.
func New(cfg *config.TransformerConfig, opts ...Option) (*RecordTransformer, error) {
	t := &RecordTransformer{
		clock:   systemClock{},
		ids:     DefaultIDGenerator,
		newUUID: uuid.NewString,
		logger:  observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.tracer == nil {
		t.tracer = otel.Tracer(tracerName)
	}

	env, err := newGuardEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	t.celEnv = env

	if cfg == nil {
		cfg = &config.TransformerConfig{}
	}
	rs, err := compileRuleSet(cfg, env)
	if err != nil {
		return nil, err
	}
	t.rules.Store(rs)
	t.metrics.SetRulesLoaded(len(rs.rules))

	t.stats = newStats(t.clock.Now())

	return t, nil
}

// UpdateRules atomically replaces the rule set. Metrics are kept. On error
// the current rules stay in effect.
func (t *RecordTransformer) UpdateRules(cfg *config.TransformerConfig) error {
	if cfg == nil {
		cfg = &config.TransformerConfig{}
	}
	rs, err := compileRuleSet(cfg, t.celEnv)
	if err != nil {
		return err
	}
	t.rules.Store(rs)
	t.metrics.SetRulesLoaded(len(rs.rules))

	t.logger.Info("business rules updated",
		observability.Int("rules", len(rs.rules)),
		observability.Bool("strict", rs.strict),
	)
	return nil
}

// RuleCount returns the number of rules in the active rule set.
func (t *RecordTransformer) RuleCount() int {
	return len(t.rules.Load().rules)
}

// Process turns one input record into an output record. The input must be
// a Record or map[string]interface{}; it is not modified.
//
// Errors are *util.InvalidInputError for anything that is not a record,
// *util.RuleValidationError when a validation rule fails and, with strict
// rules only, *util.RuleExecutionError.
func (t *RecordTransformer) Process(ctx context.Context, input interface{}) (Record, error) {
	return t.run(ctx, func() (Record, error) {
		return asRecord(input)
	})
}

// ProcessJSON decodes a JSON object and processes it. Malformed JSON and
// non-object values are invalid input.
func (t *RecordTransformer) ProcessJSON(ctx context.Context, data []byte) (Record, error) {
	return t.run(ctx, func() (Record, error) {
		var v interface{}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, &util.InvalidInputError{Got: "malformed JSON", Message: err.Error()}
		}
		return asRecord(v)
	})
}

// run wraps one pipeline execution with tracing, metrics and error
// reporting. decode yields the input record.
func (t *RecordTransformer) run(ctx context.Context, decode func() (Record, error)) (Record, error) {
	rs := t.rules.Load()
	start := t.clock.Now()

	ctx, span := t.tracer.Start(ctx, "transform.Process",
		trace.WithAttributes(attribute.Int("recordflow.rules", len(rs.rules))),
	)
	defer span.End()

	in, err := decode()
	var out Record
	if err == nil {
		out, err = t.process(ctx, rs, in, start)
	}
	elapsed := t.clock.Now().Sub(start)

	if err != nil {
		t.stats.recordError()
		kind := errorKind(err)
		t.metrics.RecordProcessed(kind, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		t.reportError(ctx, rs, err, kind, in, start)
		return nil, err
	}

	t.stats.recordSuccess(elapsed)
	t.metrics.RecordProcessed(ResultSuccess, elapsed)
	if id, ok := out[FieldID].(string); ok {
		span.SetAttributes(attribute.String("recordflow.record_id", id))
	}
	return out, nil
}

// process runs the pipeline over a copy of in.
func (t *RecordTransformer) process(
	ctx context.Context,
	rs *ruleSet,
	in Record,
	now time.Time,
) (Record, error) {
	out := make(Record, len(in)+5)
	for k, v := range in {
		out[k] = cloneValue(v)
	}

	if util.IsFalsy(in[FieldID]) {
		out[FieldID] = t.ids.NewID(now)
	}
	out[FieldTimestamp] = now.UTC().Format(TimestampLayout)
	out[FieldProcessed] = true
	out[FieldMetadata] = BuildMetadata(in)
	out[FieldHash] = Fingerprint(in)

	env := &execEnv{now: now, loc: rs.loc, newUUID: t.newUUID}

	var err error
	for i := range rs.rules {
		out, err = t.applyRule(ctx, rs, &rs.rules[i], out, env)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// applyRule runs one rule. Validation failures are returned as is; other
// failures are skipped with a warning unless the rule set is strict.
func (t *RecordTransformer) applyRule(
	ctx context.Context,
	rs *ruleSet,
	cr *compiledRule,
	r Record,
	env *execEnv,
) (Record, error) {
	ruleType := cr.rule.Type

	if cr.guard != nil {
		ok, err := cr.guard.allows(r, env.now)
		if err != nil {
			t.logger.WithContext(ctx).Warn("rule guard evaluation failed, skipping rule",
				observability.Int("rule_index", cr.index),
				observability.String("rule", cr.displayName()),
				observability.String("when", cr.guard.expr),
				observability.Error(err),
			)
		}
		if !ok {
			t.metrics.RecordRule(ruleType, RuleSkipped)
			return r, nil
		}
	}

	next, err := cr.exec(r, env)
	if err == nil {
		t.metrics.RecordRule(ruleType, RuleApplied)
		return next, nil
	}

	t.metrics.RecordRule(ruleType, RuleFailed)

	var verr *util.RuleValidationError
	if errors.As(err, &verr) {
		return nil, err
	}

	execErr := util.NewRuleExecutionError(cr.index, cr.rule.Name, ruleType, cr.rule.Field, err)
	if rs.strict {
		return nil, execErr
	}

	t.logger.WithContext(ctx).Warn("rule execution failed, continuing with previous record state",
		observability.Int("rule_index", cr.index),
		observability.String("rule", cr.displayName()),
		observability.String("rule_type", ruleType),
		observability.String("field", cr.rule.Field),
		observability.Error(err),
	)
	return r, nil
}

// reportError forwards a failure to the error sinks when error handling is
// enabled. Sink failures are logged and never returned.
func (t *RecordTransformer) reportError(
	ctx context.Context,
	rs *ruleSet,
	err error,
	kind string,
	in Record,
	now time.Time,
) {
	if !rs.errorHandlingEnabled {
		return
	}

	recordID, _ := in[FieldID].(string)
	logger := t.logger.WithContext(ctx)

	if t.notifier != nil {
		summary := ErrorSummary{
			Message:   err.Error(),
			Kind:      kind,
			RecordID:  recordID,
			Timestamp: now.UTC(),
		}
		if nerr := t.notifier.Notify(ctx, summary); nerr != nil {
			logger.Warn("error notification failed", observability.Error(nerr))
		}
	}

	if t.errorLog != nil {
		entry := ErrorEntry{
			Error:     err.Error(),
			Kind:      kind,
			Stack:     string(debug.Stack()),
			RecordID:  recordID,
			Record:    Record(cloneMap(in)),
			Timestamp: now.UTC(),
		}
		if lerr := t.errorLog.Record(ctx, entry); lerr != nil {
			logger.Warn("error log write failed", observability.Error(lerr))
		}
	}
}

// Metrics returns a snapshot of the transformer's metrics.
func (t *RecordTransformer) Metrics() MetricsSnapshot {
	return t.stats.snapshot(t.clock.Now())
}

// BatchResult is the outcome of one record of a batch.
type BatchResult struct {
	Index  int
	Record Record
	Error  error
}

// ProcessBatch processes inputs concurrently. Every input gets a result in
// input order; one failure does not affect the others. Inputs not started
// before ctx is done fail with the context error.
func (t *RecordTransformer) ProcessBatch(ctx context.Context, inputs []interface{}) []BatchResult {
	results := make([]BatchResult, len(inputs))

	g := new(errgroup.Group)
	g.SetLimit(t.concurrency())

	for i, input := range inputs {
		results[i].Index = i
		if err := ctx.Err(); err != nil {
			results[i].Error = err
			continue
		}
		g.Go(func() error {
			results[i].Record, results[i].Error = t.Process(ctx, input)
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func (t *RecordTransformer) concurrency() int {
	if t.batchConcurrency > 0 {
		return t.batchConcurrency
	}
	if n := t.rules.Load().batchConcurrency; n > 0 {
		return n
	}
	return runtime.GOMAXPROCS(0)
}

// asRecord accepts Record and map[string]interface{} values.
func asRecord(input interface{}) (Record, error) {
	switch v := input.(type) {
	case Record:
		if v == nil {
			return nil, util.NewInvalidInputError(nil)
		}
		return v, nil
	case map[string]interface{}:
		if v == nil {
			return nil, util.NewInvalidInputError(nil)
		}
		return v, nil
	default:
		return nil, util.NewInvalidInputError(input)
	}
}

// errorKind maps an error to its records_total result label.
func errorKind(err error) string {
	switch {
	case errors.Is(err, util.ErrInvalidInput):
		return ResultInvalidInput
	case errors.Is(err, util.ErrRuleValidation):
		return ResultValidationError
	default:
		return ResultRuleError
	}
}
