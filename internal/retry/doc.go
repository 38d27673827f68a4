// Package retry runs an operation with exponential backoff and jitter.
//
// The error sinks use it to ride out short outages of a webhook endpoint
// or Redis:
//
//	err := retry.Do(ctx, cfg, func() error {
//	    return deliver(ctx)
//	}, &retry.Options{ShouldRetry: isTransient})
//
// A nil Config uses DefaultConfig. Cancelling ctx stops the loop between
// attempts and returns ctx.Err().
package retry
