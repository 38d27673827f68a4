package sink

import (
	"context"

	"github.com/vyrodovalexey/recordflow/internal/observability"
	"github.com/vyrodovalexey/recordflow/internal/transform"
)

// LogNotifier logs error summaries at warn level.
type LogNotifier struct {
	logger observability.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses the global one.
func NewLogNotifier(logger observability.Logger) *LogNotifier {
	if logger == nil {
		logger = observability.L()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements transform.Notifier.
func (n *LogNotifier) Notify(ctx context.Context, s transform.ErrorSummary) error {
	n.logger.WithContext(ctx).Warn("record processing failed",
		observability.String("kind", s.Kind),
		observability.String("record_id", s.RecordID),
		observability.String("error", s.Message),
		observability.Time("at", s.Timestamp),
	)
	return nil
}

// LogErrorLog logs full error entries at error level.
type LogErrorLog struct {
	logger observability.Logger
}

// NewLogErrorLog creates a LogErrorLog. A nil logger uses the global one.
func NewLogErrorLog(logger observability.Logger) *LogErrorLog {
	if logger == nil {
		logger = observability.L()
	}
	return &LogErrorLog{logger: logger}
}

// Record implements transform.ErrorLog.
func (l *LogErrorLog) Record(ctx context.Context, e transform.ErrorEntry) error {
	l.logger.WithContext(ctx).Error("record processing error",
		observability.String("kind", e.Kind),
		observability.String("record_id", e.RecordID),
		observability.String("error", e.Error),
		observability.Any("record", e.Record),
		observability.String("stack", e.Stack),
		observability.Time("at", e.Timestamp),
	)
	return nil
}
