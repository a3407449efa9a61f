// Package retry runs an operation again when it fails, on top of
// github.com/avast/retry-go.
//
// Delays grow exponentially by default. LinearBackoff waits the base delay
// times the attempt number, which suits explorer APIs that rate limit per
// fixed window:
//
//	r := retry.New(
//	    retry.WithAttempts(6),
//	    retry.WithDelay(5*time.Second),
//	    retry.WithBackoff(retry.LinearBackoff),
//	    retry.WithMaxDelay(0),
//	)
//	err := r.Execute(ctx, func() error { return fetchPage(ctx, page) })
package retry

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v4"
)

// Retry executes operations with a retry policy.
type Retry interface {
	// Execute calls operation until it returns nil, the attempts run out, or
	// ctx is done. operation must be safe to call more than once.
	Execute(ctx context.Context, operation func() error) error
}

// Backoff selects how the delay between attempts grows.
type Backoff int

const (
	// ExponentialBackoff doubles the delay after every failed attempt.
	ExponentialBackoff Backoff = iota

	// LinearBackoff waits delay, 2*delay, 3*delay, ...
	LinearBackoff
)

// OnRetryFunc is called after each failed attempt with its 1-based number.
type OnRetryFunc func(attempt uint, err error)

type config struct {
	attempts    uint          // total attempts, the first one included
	delay       time.Duration // base delay
	maxDelay    time.Duration // cap on a single delay, zero for none
	lastErrOnly bool
	backoff     Backoff
	onRetry     OnRetryFunc
}

// Option configures a Retry built by New.
type Option func(*config)

type retrier struct {
	cfg config
}

var _ Retry = (*retrier)(nil)

// New returns a Retry with the given options applied over these defaults:
//
//   - attempts:    3
//   - delay:       1s
//   - maxDelay:    5s
//   - lastErrOnly: true
//   - backoff:     ExponentialBackoff
func New(opts ...Option) Retry {
	cfg := config{
		attempts:    3,
		delay:       time.Second,
		maxDelay:    5 * time.Second,
		lastErrOnly: true,
		backoff:     ExponentialBackoff,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &retrier{cfg: cfg}
}

// Execute implements Retry. The first attempt runs immediately.
func (r *retrier) Execute(ctx context.Context, operation func() error) error {
	options := []retry.Option{
		retry.Attempts(r.cfg.attempts),
		retry.Delay(r.cfg.delay),
		retry.MaxDelay(r.cfg.maxDelay),
		retry.DelayType(r.delayType()),
		retry.LastErrorOnly(r.cfg.lastErrOnly),
		retry.Context(ctx),
	}

	if r.cfg.onRetry != nil {
		onRetry := r.cfg.onRetry
		options = append(options, retry.OnRetry(func(n uint, err error) {
			onRetry(n+1, err)
		}))
	}

	return retry.Do(operation, options...)
}

// delayType maps the Backoff to a retry-go delay function. retry-go passes
// n = 1 for the wait that follows the first failure.
func (r *retrier) delayType() retry.DelayTypeFunc {
	if r.cfg.backoff != LinearBackoff {
		return retry.BackOffDelay
	}

	base := r.cfg.delay
	return func(n uint, _ error, _ *retry.Config) time.Duration {
		return base * time.Duration(n)
	}
}

// WithAttempts sets the total number of attempts, the first one included.
func WithAttempts(n uint) Option {
	return func(c *config) {
		c.attempts = n
	}
}

// WithDelay sets the base delay between attempts.
func WithDelay(d time.Duration) Option {
	return func(c *config) {
		c.delay = d
	}
}

// WithMaxDelay caps a single delay. Zero removes the cap.
func WithMaxDelay(d time.Duration) Option {
	return func(c *config) {
		c.maxDelay = d
	}
}

// WithLastErrorOnly controls whether Execute returns only the last error or
// every attempt's error combined.
func WithLastErrorOnly(b bool) Option {
	return func(c *config) {
		c.lastErrOnly = b
	}
}

// WithBackoff sets the delay growth strategy.
func WithBackoff(b Backoff) Option {
	return func(c *config) {
		c.backoff = b
	}
}

// WithOnRetry registers a hook called after each failed attempt, before the wait.
func WithOnRetry(fn OnRetryFunc) Option {
	return func(c *config) {
		c.onRetry = fn
	}
}
