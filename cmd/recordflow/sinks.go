package main

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/recordflow/internal/config"
	"github.com/vyrodovalexey/recordflow/internal/health"
	"github.com/vyrodovalexey/recordflow/internal/observability"
	"github.com/vyrodovalexey/recordflow/internal/sink"
	"github.com/vyrodovalexey/recordflow/internal/transform"
)

// redisCheckTTL bounds how often readiness probes hit Redis.
const redisCheckTTL = 5 * time.Second

// errorSinks is the set of error sinks built from configuration. The log
// sinks are always present and write synchronously; remote sinks are fed
// through a background dispatcher.
type errorSinks struct {
	notifier   transform.Notifier
	errorLog   transform.ErrorLog
	dispatcher *sink.Dispatcher
	redis      *sink.RedisErrorLog
}

// buildSinks creates the configured error sinks. Sink metrics are
// registered with registerer when it is not nil.
func buildSinks(
	cfg *config.SinksConfig,
	logger observability.Logger,
	namespace string,
	registerer prometheus.Registerer,
) (*errorSinks, error) {
	var metrics *sink.Metrics
	if registerer != nil {
		metrics = sink.NewMetrics(namespace, registerer)
	}

	var remoteNotifiers sink.MultiNotifier
	var remoteLogs sink.MultiErrorLog
	s := &errorSinks{}

	if cfg != nil && cfg.Webhook != nil && cfg.Webhook.Enabled {
		webhook, err := sink.NewWebhookNotifier(cfg.Webhook,
			sink.WithWebhookLogger(logger),
			sink.WithWebhookMetrics(metrics),
		)
		if err != nil {
			return nil, err
		}
		remoteNotifiers = append(remoteNotifiers, webhook)
		logger.Info("webhook error notifier enabled", observability.String("url", cfg.Webhook.URL))
	}

	if cfg != nil && cfg.Redis != nil && cfg.Redis.Enabled {
		redisLog, err := sink.NewRedisErrorLog(cfg.Redis,
			sink.WithRedisLogger(logger),
			sink.WithRedisMetrics(metrics),
		)
		if err != nil {
			return nil, err
		}
		remoteLogs = append(remoteLogs, redisLog)
		s.redis = redisLog
		logger.Info("redis error log enabled",
			observability.String("address", cfg.Redis.Address),
			observability.String("stream", redisLog.Stream()),
		)
	}

	notifiers := sink.MultiNotifier{sink.NewLogNotifier(logger)}
	errorLogs := sink.MultiErrorLog{sink.NewLogErrorLog(logger)}

	if len(remoteNotifiers) > 0 || len(remoteLogs) > 0 {
		s.dispatcher = sink.NewDispatcher(cfg,
			sink.WithDispatchNotifier(remoteNotifiers),
			sink.WithDispatchErrorLog(remoteLogs),
			sink.WithDispatchLogger(logger),
			sink.WithDispatchMetrics(metrics),
		)
		if len(remoteNotifiers) > 0 {
			notifiers = append(notifiers, s.dispatcher.Notifier())
		}
		if len(remoteLogs) > 0 {
			errorLogs = append(errorLogs, s.dispatcher.ErrorLog())
		}
	}

	s.notifier = notifiers
	s.errorLog = errorLogs
	return s, nil
}

// registerChecks adds readiness checks for sinks with a remote dependency.
// An unreachable Redis degrades readiness instead of failing it: records
// are still processed and failures still logged.
func (s *errorSinks) registerChecks(checker *health.Checker) {
	if s.redis == nil {
		return
	}
	checker.RegisterCheck(sink.SinkRedis, health.CachedCheck(
		health.PingCheck(sink.SinkRedis, s.redis.Ping, time.Second, health.WithCritical(false)),
		redisCheckTTL,
	))
}

// Close delivers queued failures until ctx is done, then releases sink
// connections.
func (s *errorSinks) Close(ctx context.Context) error {
	var errs []error
	if s.dispatcher != nil {
		if err := s.dispatcher.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ping verifies remote sinks are reachable.
func (s *errorSinks) ping(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Ping(ctx)
}
