package rag

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RetryPolicy bounds how the pipeline calls the embedding backend: a
// per-attempt timeout, a number of retries with capped exponential backoff,
// and an optional request rate limit shared by all calls.
type RetryPolicy struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	limiter *rate.Limiter
}

// DefaultRetryPolicy returns a 30s timeout, 3 retries and 200ms..5s backoff
// without rate limiting.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// NoRetry returns a policy that makes a single attempt with no timeout.
func NoRetry() *RetryPolicy {
	return &RetryPolicy{}
}

// WithRateLimit limits backend calls to rps requests per second. A
// non-positive rps removes the limit.
func (r *RetryPolicy) WithRateLimit(rps float64) *RetryPolicy {
	if rps <= 0 {
		r.limiter = nil
		return r
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return r
}

// Backoff returns the wait before retry number attempt (0-based).
func (r *RetryPolicy) Backoff(attempt int) time.Duration {
	d := r.InitialBackoff
	for i := 0; i < attempt && d < r.MaxBackoff; i++ {
		d *= 2
	}
	if r.MaxBackoff > 0 && d > r.MaxBackoff {
		d = r.MaxBackoff
	}
	return d
}

// acquire blocks until the rate limiter admits a request.
func (r *RetryPolicy) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// attemptContext applies the per-attempt timeout.
func (r *RetryPolicy) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.Timeout)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
