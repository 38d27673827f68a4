package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vyrodovalexey/recordflow/internal/config"
	"github.com/vyrodovalexey/recordflow/internal/observability"
	"github.com/vyrodovalexey/recordflow/internal/transform"
	"github.com/vyrodovalexey/recordflow/internal/util"
)

// SinkQueue labels failures dropped before reaching a remote sink.
const SinkQueue = "queue"

// Dispatch errors.
var (
	// ErrQueueFull is returned when a failure cannot be queued for delivery.
	ErrQueueFull = errors.New("error sink queue is full")

	// ErrDispatcherClosed is returned after Close.
	ErrDispatcherClosed = errors.New("error sink dispatcher is closed")
)

// delivery is one queued notification or error log entry.
type delivery struct {
	ctx     context.Context
	summary *transform.ErrorSummary
	entry   *transform.ErrorEntry
}

// Dispatcher hands failures to slow sinks on background workers so that
// Notify and Record return at once. When the queue is full the failure is
// dropped and ErrQueueFull returned.
type Dispatcher struct {
	notifier transform.Notifier
	errorLog transform.ErrorLog
	timeout  time.Duration
	logger   observability.Logger
	metrics  *Metrics

	queue chan delivery
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchNotifier sets the notifier deliveries go to.
func WithDispatchNotifier(n transform.Notifier) DispatcherOption {
	return func(d *Dispatcher) {
		d.notifier = n
	}
}

// WithDispatchErrorLog sets the error log deliveries go to.
func WithDispatchErrorLog(l transform.ErrorLog) DispatcherOption {
	return func(d *Dispatcher) {
		d.errorLog = l
	}
}

// WithDispatchLogger sets the logger for failed deliveries.
func WithDispatchLogger(logger observability.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithDispatchMetrics sets the sink metrics.
func WithDispatchMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher starts cfg.Workers workers over a queue of cfg.QueueSize.
func NewDispatcher(cfg *config.SinksConfig, opts ...DispatcherOption) *Dispatcher {
	queueSize := config.DefaultSinkQueueSize
	workers := config.DefaultSinkWorkers
	timeout := config.DefaultDeliveryTimeout
	if cfg != nil {
		if cfg.QueueSize > 0 {
			queueSize = cfg.QueueSize
		}
		if cfg.Workers > 0 {
			workers = cfg.Workers
		}
		if cfg.DeliveryTimeout > 0 {
			timeout = cfg.DeliveryTimeout.Duration()
		}
	}

	d := &Dispatcher{
		timeout: timeout,
		logger:  observability.NopLogger(),
		queue:   make(chan delivery, queueSize),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

// Notifier returns a transform.Notifier that queues summaries.
func (d *Dispatcher) Notifier() transform.Notifier {
	return dispatchNotifier{d}
}

// ErrorLog returns a transform.ErrorLog that queues entries.
func (d *Dispatcher) ErrorLog() transform.ErrorLog {
	return dispatchErrorLog{d}
}

// enqueue queues job without blocking. The delivery keeps ctx values such
// as the request id but not its cancellation.
func (d *Dispatcher) enqueue(ctx context.Context, job delivery) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	job.ctx = context.WithoutCancel(ctx)
	select {
	case d.queue <- job:
		return nil
	default:
		d.metrics.RecordDelivery(SinkQueue, ResultDropped, 0)
		return util.NewSinkError(SinkQueue, "delivery dropped", ErrQueueFull)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *Dispatcher) deliver(job delivery) {
	ctx, cancel := context.WithTimeout(job.ctx, d.timeout)
	defer cancel()

	logger := d.logger.WithContext(ctx)
	switch {
	case job.summary != nil && d.notifier != nil:
		if err := d.notifier.Notify(ctx, *job.summary); err != nil {
			logger.Warn("error notification failed", observability.Error(err))
		}
	case job.entry != nil && d.errorLog != nil:
		if err := d.errorLog.Record(ctx, *job.entry); err != nil {
			logger.Warn("error log write failed", observability.Error(err))
		}
	}
}

// Close stops accepting failures and waits until queued ones are delivered
// or ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.logger.Warn("error sink queue not drained before shutdown",
			observability.Int("pending", len(d.queue)),
		)
		return ctx.Err()
	}
}

type dispatchNotifier struct{ d *Dispatcher }

// Notify implements transform.Notifier.
func (n dispatchNotifier) Notify(ctx context.Context, s transform.ErrorSummary) error {
	return n.d.enqueue(ctx, delivery{summary: &s})
}

type dispatchErrorLog struct{ d *Dispatcher }

// Record implements transform.ErrorLog.
func (l dispatchErrorLog) Record(ctx context.Context, e transform.ErrorEntry) error {
	return l.d.enqueue(ctx, delivery{entry: &e})
}
