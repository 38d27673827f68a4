package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PingFunc reports whether a dependency is reachable.
type PingFunc func(ctx context.Context) error

// CheckOption configures a ping check.
type CheckOption func(*pingCheck)

// WithCritical marks the dependency as critical (the default). A failing
// non-critical dependency degrades readiness instead of failing it.
func WithCritical(critical bool) CheckOption {
	return func(p *pingCheck) {
		p.critical = critical
	}
}

type pingCheck struct {
	name     string
	ping     PingFunc
	timeout  time.Duration
	critical bool
}

// PingCheck turns a ping into a readiness check bounded by timeout.
func PingCheck(name string, ping PingFunc, timeout time.Duration, opts ...CheckOption) CheckFunc {
	p := &pingCheck{name: name, ping: ping, timeout: timeout, critical: true}
	for _, opt := range opts {
		opt(p)
	}

	return func(ctx context.Context) Check {
		if p.ping == nil {
			return Check{Status: p.failureStatus(), Message: fmt.Sprintf("%s: no ping function", p.name)}
		}

		if p.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}

		start := time.Now()
		if err := p.ping(ctx); err != nil {
			return Check{Status: p.failureStatus(), Message: fmt.Sprintf("%s ping failed: %v", p.name, err)}
		}
		return Check{Status: StatusHealthy, Message: fmt.Sprintf("%s reachable in %s", p.name, time.Since(start).Round(time.Millisecond))}
	}
}

func (p *pingCheck) failureStatus() Status {
	if p.critical {
		return StatusUnhealthy
	}
	return StatusDegraded
}

// CachedCheck reuses the result of check for ttl so that frequent probes
// do not hit the dependency each time.
func CachedCheck(check CheckFunc, ttl time.Duration) CheckFunc {
	var (
		mu        sync.Mutex
		lastCheck time.Time
		last      Check
	)

	return func(ctx context.Context) Check {
		mu.Lock()
		defer mu.Unlock()

		if !lastCheck.IsZero() && time.Since(lastCheck) < ttl {
			return last
		}
		last = check(ctx)
		lastCheck = time.Now()
		return last
	}
}
