package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/recordflow/internal/config"
	"github.com/vyrodovalexey/recordflow/internal/observability"
	"github.com/vyrodovalexey/recordflow/internal/retry"
	"github.com/vyrodovalexey/recordflow/internal/transform"
	"github.com/vyrodovalexey/recordflow/internal/util"
)

// HTTP headers set on webhook requests.
const (
	HeaderContentType = "Content-Type"
	HeaderRequestID   = "X-Request-ID"
	ContentTypeJSON   = "application/json"
)

// maxErrorBodyBytes bounds how much of a failed response is kept.
const maxErrorBodyBytes = 512

// Webhook delivery errors.
var (
	// ErrRateLimited is returned when a notification exceeds the rate limit.
	ErrRateLimited = errors.New("notification rate limit exceeded")

	// ErrCircuitOpen is returned while the circuit breaker rejects calls.
	ErrCircuitOpen = errors.New("webhook circuit breaker is open")
)

// sinkTracer is the OTEL tracer used for sink deliveries.
var sinkTracer = otel.Tracer("recordflow/sink")

// StatusError is a non-2xx webhook response.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("webhook returned status %d", e.StatusCode)
}

// WebhookNotifier POSTs error summaries as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url     string
	headers map[string]string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	retry   *retry.Config
	logger  observability.Logger
	metrics *Metrics
}

// WebhookOption configures a WebhookNotifier.
type WebhookOption func(*WebhookNotifier)

// WithHTTPClient sets the HTTP client. Its timeout replaces the configured
// one.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(w *WebhookNotifier) {
		w.client = client
	}
}

// WithWebhookLogger sets the logger.
func WithWebhookLogger(logger observability.Logger) WebhookOption {
	return func(w *WebhookNotifier) {
		w.logger = logger
	}
}

// WithWebhookMetrics sets the sink metrics.
func WithWebhookMetrics(m *Metrics) WebhookOption {
	return func(w *WebhookNotifier) {
		w.metrics = m
	}
}

// WithWebhookRetry sets the retry configuration for transient failures.
func WithWebhookRetry(cfg *retry.Config) WebhookOption {
	return func(w *WebhookNotifier) {
		w.retry = cfg
	}
}

// NewWebhookNotifier creates a notifier for cfg.
func NewWebhookNotifier(cfg *config.WebhookSinkConfig, opts ...WebhookOption) (*WebhookNotifier, error) {
	if cfg == nil {
		return nil, util.NewConfigError("sinks.webhook", "webhook configuration is required")
	}
	if err := util.ValidateURL(cfg.URL); err != nil {
		return nil, util.NewConfigErrorWithCause("sinks.webhook.url", "invalid webhook URL", err)
	}

	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = config.DefaultSinkTimeout
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = config.DefaultWebhookRate
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = config.DefaultWebhookBurst
	}

	w := &WebhookNotifier{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(limit), burst),
		retry:   retry.DefaultConfig(),
		logger:  observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(w)
	}

	if cb := cfg.CircuitBreaker; cb != nil && cb.Enabled {
		w.breaker = w.newBreaker(cb)
	}

	return w, nil
}

func (w *WebhookNotifier) newBreaker(cfg *config.CircuitBreakerConfig) *gobreaker.CircuitBreaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = config.DefaultBreakerFailures
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = config.DefaultBreakerTimeout
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        SinkWebhook,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// Client errors mean the payload was rejected, not that the
			// endpoint is down.
			return err == nil || !isRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			w.logger.Warn("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			w.metrics.SetBreakerState(SinkWebhook, int(to))
		},
	})
}

// Notify implements transform.Notifier.
func (w *WebhookNotifier) Notify(ctx context.Context, s transform.ErrorSummary) error {
	if !w.limiter.Allow() {
		w.metrics.RecordDelivery(SinkWebhook, ResultDropped, 0)
		return util.NewSinkError(SinkWebhook, "notification dropped", ErrRateLimited)
	}

	body, err := json.Marshal(s)
	if err != nil {
		return util.NewSinkError(SinkWebhook, "failed to encode summary", err)
	}

	ctx, span := sinkTracer.Start(ctx, "sink.webhook.Notify",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("recordflow.error_kind", s.Kind),
			attribute.String("url.full", w.url),
		),
	)
	defer span.End()

	start := time.Now()
	err = w.deliver(ctx, body)
	elapsed := time.Since(start)

	if err != nil {
		w.metrics.RecordDelivery(SinkWebhook, ResultFailed, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		return util.NewSinkError(SinkWebhook, "delivery failed", err)
	}

	w.metrics.RecordDelivery(SinkWebhook, ResultDelivered, elapsed)
	return nil
}

// deliver sends body with retries, through the breaker when configured.
func (w *WebhookNotifier) deliver(ctx context.Context, body []byte) error {
	send := func() error {
		return retry.Do(ctx, w.retry, func() error {
			return w.post(ctx, body)
		}, &retry.Options{
			ShouldRetry: isRetryable,
			OnRetry: func(attempt int, err error, backoff time.Duration) {
				w.logger.Debug("retrying webhook delivery",
					observability.Int("attempt", attempt),
					observability.Duration("backoff", backoff),
					observability.Error(err),
				)
			},
		})
	}

	if w.breaker == nil {
		return send()
	}

	_, err := w.breaker.Execute(func() (interface{}, error) {
		return nil, send()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	return err
}

func (w *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(HeaderContentType, ContentTypeJSON)
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}
	if id := util.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(HeaderRequestID, id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
}

// isRetryable reports whether a delivery error may succeed on retry:
// transport errors, 429 and 5xx responses.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}
