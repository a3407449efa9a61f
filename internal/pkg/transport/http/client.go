// Package http builds the outbound HTTP clients used to reach explorers and
// RPC nodes. Clients retry through hashicorp/go-retryablehttp and report
// through the application logger, with credentials passed as query
// parameters (apikey, token) masked in every logged value.
package http

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/gabapcia/txhistory/internal/pkg/logger"

	"github.com/hashicorp/go-retryablehttp"
)

// Redacted replaces secret query values in logs and errors.
const Redacted = "REDACTED"

var secretParam = regexp.MustCompile(`(?i)\b(api[_-]?key|token|access[_-]?token)=[^&\s"]*`)

// RedactSecrets masks the values of credential query parameters in s.
func RedactSecrets(s string) string {
	return secretParam.ReplaceAllString(s, "${1}="+Redacted)
}

type config struct {
	timeout      time.Duration // per attempt
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	retryMax     int // retries after the first attempt
}

// Option configures a client built by NewClient.
type Option func(*config)

// leveledLogger adapts the application logger to retryablehttp.LeveledLogger.
// The transport's own request chatter is logged at debug.
type leveledLogger struct{}

var _ retryablehttp.LeveledLogger = leveledLogger{}

func redactValues(keysAndValues []any) []any {
	out := make([]any, len(keysAndValues))
	for i, v := range keysAndValues {
		switch v := v.(type) {
		case string:
			out[i] = RedactSecrets(v)
		case error:
			out[i] = RedactSecrets(v.Error())
		case fmt.Stringer:
			out[i] = RedactSecrets(v.String())
		default:
			out[i] = v
		}
	}

	return out
}

func (leveledLogger) Error(msg string, keysAndValues ...any) {
	logger.Error(context.Background(), msg, redactValues(keysAndValues)...)
}

func (leveledLogger) Info(msg string, keysAndValues ...any) {
	logger.Debug(context.Background(), msg, redactValues(keysAndValues)...)
}

func (leveledLogger) Debug(msg string, keysAndValues ...any) {
	logger.Debug(context.Background(), msg, redactValues(keysAndValues)...)
}

func (leveledLogger) Warn(msg string, keysAndValues ...any) {
	logger.Warn(context.Background(), msg, redactValues(keysAndValues)...)
}

// NewClient returns a retryablehttp.Client with these defaults unless
// overridden:
//
//   - timeout:      5s
//   - retryWaitMin: 1s
//   - retryWaitMax: 5s
//   - retryMax:     2
//
// Retries follow retryablehttp's default policy: connection errors, 429 and
// 5xx, honoring Retry-After.
func NewClient(opts ...Option) *retryablehttp.Client {
	cfg := config{
		timeout:      5 * time.Second,
		retryWaitMin: time.Second,
		retryWaitMax: 5 * time.Second,
		retryMax:     2,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := retryablehttp.NewClient()
	client.Logger = leveledLogger{}
	client.HTTPClient.Timeout = cfg.timeout
	client.RetryWaitMin = cfg.retryWaitMin
	client.RetryWaitMax = cfg.retryWaitMax
	client.RetryMax = cfg.retryMax
	return client
}

// NewStandardClient wraps NewClient in a *http.Client for adapters that take
// the standard type.
func NewStandardClient(opts ...Option) *http.Client {
	return NewClient(opts...).StandardClient()
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithRetryWaitMin sets the shortest wait between attempts.
func WithRetryWaitMin(d time.Duration) Option {
	return func(c *config) {
		c.retryWaitMin = d
	}
}

// WithRetryWaitMax sets the longest wait between attempts.
func WithRetryWaitMax(d time.Duration) Option {
	return func(c *config) {
		c.retryWaitMax = d
	}
}

// WithRetryMax sets how many times a request is retried. Zero leaves
// retrying to the caller, as the EVM fetcher does per page.
func WithRetryMax(n int) Option {
	return func(c *config) {
		c.retryMax = n
	}
}
