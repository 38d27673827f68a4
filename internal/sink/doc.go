// Package sink provides the error sinks a RecordTransformer reports
// processing failures to.
//
// Notifiers receive a short ErrorSummary per failure:
//
//   - LogNotifier writes it to the structured logger
//   - WebhookNotifier POSTs it as JSON, rate limited and behind a
//     circuit breaker
//
// Error logs durably record the full ErrorEntry:
//
//   - LogErrorLog writes it to the structured logger
//   - RedisErrorLog appends it to a capped Redis stream
//
// Dispatcher queues failures for remote sinks and delivers them on
// background workers, so a slow webhook or Redis never delays processing.
//
// MultiNotifier and MultiErrorLog fan out to several sinks. Every sink
// returns a *util.SinkError on failure; the transformer logs and drops it.
package sink
