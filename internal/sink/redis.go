package sink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/recordflow/internal/config"
	"github.com/vyrodovalexey/recordflow/internal/observability"
	"github.com/vyrodovalexey/recordflow/internal/retry"
	"github.com/vyrodovalexey/recordflow/internal/transform"
	"github.com/vyrodovalexey/recordflow/internal/util"
)

// Stream entry field names written by RedisErrorLog.
const (
	StreamFieldKind      = "kind"
	StreamFieldError     = "error"
	StreamFieldRecordID  = "record_id"
	StreamFieldTimestamp = "timestamp"
	StreamFieldEntry     = "entry"
)

// RedisErrorLog appends error entries to a Redis stream capped at about
// MaxLen entries.
type RedisErrorLog struct {
	client     redis.UniversalClient
	ownsClient bool
	stream     string
	maxLen     int64
	timeout    time.Duration
	retry      *retry.Config
	logger     observability.Logger
	metrics    *Metrics
}

// RedisOption configures a RedisErrorLog.
type RedisOption func(*RedisErrorLog)

// WithRedisClient uses an existing client instead of dialing the
// configured address. The caller keeps ownership of it.
func WithRedisClient(client redis.UniversalClient) RedisOption {
	return func(l *RedisErrorLog) {
		l.client = client
	}
}

// WithRedisLogger sets the logger.
func WithRedisLogger(logger observability.Logger) RedisOption {
	return func(l *RedisErrorLog) {
		l.logger = logger
	}
}

// WithRedisMetrics sets the sink metrics.
func WithRedisMetrics(m *Metrics) RedisOption {
	return func(l *RedisErrorLog) {
		l.metrics = m
	}
}

// WithRedisRetry sets the retry configuration for transient failures.
func WithRedisRetry(cfg *retry.Config) RedisOption {
	return func(l *RedisErrorLog) {
		l.retry = cfg
	}
}

// NewRedisErrorLog creates an error log for cfg. The connection is lazy;
// use Ping to check reachability.
func NewRedisErrorLog(cfg *config.RedisSinkConfig, opts ...RedisOption) (*RedisErrorLog, error) {
	if cfg == nil {
		return nil, util.NewConfigError("sinks.redis", "redis configuration is required")
	}

	l := &RedisErrorLog{
		stream:  cfg.Stream,
		maxLen:  cfg.MaxLen,
		timeout: cfg.Timeout.Duration(),
		retry:   retry.DefaultConfig(),
		logger:  observability.NopLogger(),
	}
	if l.stream == "" {
		l.stream = config.DefaultRedisStream
	}
	if l.maxLen <= 0 {
		l.maxLen = config.DefaultRedisMaxLen
	}
	if l.timeout <= 0 {
		l.timeout = config.DefaultSinkTimeout
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.client == nil {
		if cfg.Address == "" {
			return nil, util.NewConfigError("sinks.redis.address", "address is required")
		}
		l.client = redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		l.ownsClient = true
	}

	return l, nil
}

// Stream returns the stream key entries are appended to.
func (l *RedisErrorLog) Stream() string {
	return l.stream
}

// Record implements transform.ErrorLog.
func (l *RedisErrorLog) Record(ctx context.Context, e transform.ErrorEntry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return util.NewSinkError(SinkRedis, "failed to encode entry", err)
	}

	ctx, span := sinkTracer.Start(ctx, "sink.redis.Record",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("recordflow.stream", l.stream),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: l.stream,
		MaxLen: l.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			StreamFieldKind:      e.Kind,
			StreamFieldError:     e.Error,
			StreamFieldRecordID:  e.RecordID,
			StreamFieldTimestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
			StreamFieldEntry:     string(payload),
		},
	}

	start := time.Now()
	err = retry.Do(ctx, l.retry, func() error {
		return l.client.XAdd(ctx, args).Err()
	}, &retry.Options{ShouldRetry: isRetryableRedisError})
	elapsed := time.Since(start)

	if err != nil {
		l.metrics.RecordDelivery(SinkRedis, ResultFailed, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "xadd failed")
		return util.NewSinkError(SinkRedis, "failed to append to stream "+l.stream, err)
	}

	l.metrics.RecordDelivery(SinkRedis, ResultDelivered, elapsed)
	return nil
}

// Ping checks the Redis connection.
func (l *RedisErrorLog) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return l.client.Ping(ctx).Err()
}

// Close closes the client when the log created it.
func (l *RedisErrorLog) Close() error {
	if !l.ownsClient {
		return nil
	}
	return l.client.Close()
}

// isRetryableRedisError reports whether err is worth retrying. Context
// errors and server replies such as WRONGTYPE are not.
func isRetryableRedisError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var redisErr redis.Error
	return !errors.As(err, &redisErr)
}
