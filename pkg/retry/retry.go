// Package retry re-runs best-effort writes with capped exponential backoff.
// The ledger's sync loop and the week adjuster's calendar moves use it; the
// caller decides which errors are worth another attempt.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Retrier runs an operation until it succeeds, the error is not retryable,
// the attempts run out or the context ends. It is safe for concurrent use.
type Retrier struct {
	attempts int
	initial  time.Duration
	max      time.Duration
	jitter   float64
	retryIf  func(error) bool
	onRetry  func(attempt int, err error, delay time.Duration)
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithMaxAttempts sets the total number of attempts, the first included.
func WithMaxAttempts(n int) Option {
	return func(r *Retrier) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithInitialDelay sets the pause before the second attempt.
func WithInitialDelay(d time.Duration) Option {
	return func(r *Retrier) {
		if d > 0 {
			r.initial = d
		}
	}
}

// WithMaxDelay caps the pause between attempts.
func WithMaxDelay(d time.Duration) Option {
	return func(r *Retrier) {
		if d > 0 {
			r.max = d
		}
	}
}

// WithJitter spreads each pause by up to ±f of its length. f is in [0, 1].
func WithJitter(f float64) Option {
	return func(r *Retrier) {
		if f >= 0 && f <= 1 {
			r.jitter = f
		}
	}
}

// WithRetryIf decides which errors get another attempt.
// Without it every error except a context error is retried.
func WithRetryIf(fn func(error) bool) Option {
	return func(r *Retrier) {
		r.retryIf = fn
	}
}

// WithOnRetry is called before each pause with the failed attempt number.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(r *Retrier) {
		r.onRetry = fn
	}
}

// New creates a Retrier. Defaults: 3 attempts, 100ms doubling to 30s, 10% jitter.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		attempts: 3,
		initial:  100 * time.Millisecond,
		max:      30 * time.Second,
		jitter:   0.1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SyncRetrier is the preset for the ledger's background writes. Nobody waits
// on them, so pauses grow to 5s with wider jitter. extra applies last.
func SyncRetrier(maxAttempts int, initialDelay time.Duration, extra ...Option) *Retrier {
	opts := []Option{
		WithMaxAttempts(maxAttempts),
		WithInitialDelay(initialDelay),
		WithMaxDelay(5 * time.Second),
		WithJitter(0.2),
	}
	return New(append(opts, extra...)...)
}

// Do runs op and returns its last error. A context that ends during a pause
// returns the operation's error, not the context's.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt >= r.attempts || !r.shouldRetry(err) {
			return err
		}

		delay := r.delay(attempt)
		if r.onRetry != nil {
			r.onRetry(attempt, err, delay)
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}

func (r *Retrier) shouldRetry(err error) bool {
	if r.retryIf != nil {
		return r.retryIf(err)
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// delay is initial * 2^(attempt-1), capped, then jittered.
func (r *Retrier) delay(attempt int) time.Duration {
	d := r.initial
	for i := 1; i < attempt && d < r.max; i++ {
		d *= 2
	}
	if d > r.max {
		d = r.max
	}
	if r.jitter > 0 {
		d += time.Duration(float64(d) * r.jitter * (rand.Float64()*2 - 1))
	}
	if d < 0 {
		return 0
	}
	return d
}
