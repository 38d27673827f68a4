package sink

import (
	"context"
	"errors"

	"github.com/vyrodovalexey/recordflow/internal/transform"
)

// MultiNotifier delivers each summary to every notifier in order. A
// failing notifier does not stop the others; their errors are joined.
type MultiNotifier []transform.Notifier

// Notify implements transform.Notifier.
func (m MultiNotifier) Notify(ctx context.Context, s transform.ErrorSummary) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MultiErrorLog records each entry in every log in order. A failing log
// does not stop the others; their errors are joined.
type MultiErrorLog []transform.ErrorLog

// Record implements transform.ErrorLog.
func (m MultiErrorLog) Record(ctx context.Context, e transform.ErrorEntry) error {
	var errs []error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
