// Package observability provides logging, metrics, and tracing
// functionality for recordflow.
//
// # Logging
//
// The Logger interface provides structured logging backed by zap:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("record processed",
//	    observability.String("id", id),
//	    observability.Int("rules", 3),
//	)
//
// # Metrics
//
// A custom Prometheus registry shared by all subsystems:
//
//	metrics := observability.NewMetrics("recordflow")
//	handler := metrics.Handler()
//
// # Tracing
//
// OpenTelemetry distributed tracing with OTLP gRPC export. SDK diagnostics
// are routed into the zap logger through a logr bridge.
package observability
