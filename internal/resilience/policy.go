package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
)

// Policy is the full budget for one logical call: every attempt gets its own
// timeout and passes through the breaker, and attempts are retried per Retry.
type Policy struct {
	Retry          RetryConfig
	AttemptTimeout time.Duration
	Breaker        *CircuitBreaker
}

// Call runs fn under p. An open circuit is returned immediately and is not
// retried.
func Call[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	retry := p.Retry
	inner := retry.ShouldRetry
	if inner == nil {
		inner = IsTransient
	}
	retry.ShouldRetry = func(err error) bool {
		if eris.Is(err, ErrCircuitOpen) {
			return false
		}
		// A per-attempt timeout is worth another try while the caller's
		// context is still live.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return true
		}
		return inner(err)
	}

	attempt := func(ctx context.Context) (T, error) {
		if p.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
			defer cancel()
		}
		if p.Breaker == nil {
			return fn(ctx)
		}
		return ExecuteVal(ctx, p.Breaker, fn)
	}

	return DoVal(ctx, retry, attempt)
}
