// Package evmhistory collects the internal transaction history of an address on
// an EVM-compatible chain by walking a block explorer's paginated listing from
// the newest record backwards until a cutoff time is passed.
package evmhistory

import (
	"context"
	"math"
	"time"

	"github.com/gabapcia/txhistory/internal/pkg/logger"
	"github.com/gabapcia/txhistory/internal/pkg/resilience/retry"
	"github.com/gabapcia/txhistory/internal/pkg/telemetry"
	"github.com/gabapcia/txhistory/internal/pkg/validator"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/gabapcia/txhistory/internal/evmhistory"

const (
	defaultOffset        = 100
	defaultPageDelay     = 5 * time.Second
	defaultRetryAttempts = 6
	defaultRetryDelay    = 5 * time.Second

	// defaultResultWindow is the deepest record Etherscan-style explorers
	// serve: they reject any request with page*offset above it.
	defaultResultWindow = 10000
)

func init() {
	if err := validator.RegisterStringRule("evm_address", common.IsHexAddress); err != nil {
		panic(err)
	}
}

// Explorer is the paginated block explorer the history is read from.
type Explorer interface {
	// ListInternalTransactions returns one page of internal transactions for
	// address, newest first. Pages start at 1. An address with no more records
	// yields an empty slice and a nil error.
	ListInternalTransactions(ctx context.Context, address string, page, offset int) ([]RawTransaction, error)
}

// Service fetches EVM transaction history.
type Service interface {
	// Fetch returns every transaction of address whose block time is at or
	// before cutoff, newest first.
	//
	// A page that keeps failing after all retry attempts ends the walk: the
	// transactions gathered from earlier pages are returned with a nil error.
	// The only error returned alongside a partial result is the context's.
	Fetch(ctx context.Context, address string, cutoff time.Time) ([]Transaction, error)
}

type fetchInput struct {
	Address string `validate:"required,evm_address"`
	Cutoff  int64  `validate:"gt=0"`
}

type service struct {
	explorer Explorer

	offset        int
	resultWindow  int
	pageDelay     time.Duration
	retryAttempts uint
	retryDelay    time.Duration

	tracer         trace.Tracer
	pagesCounter   metric.Int64Counter
	retriesCounter metric.Int64Counter
	recordsCounter metric.Int64Counter
}

var _ Service = (*service)(nil)

func (s *service) Fetch(ctx context.Context, address string, cutoff time.Time) ([]Transaction, error) {
	endTimestamp := cutoff.Unix()
	if err := validator.Validate(fetchInput{Address: address, Cutoff: endTimestamp}); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "evmhistory.Fetch", trace.WithAttributes(
		attribute.String("evm.address", address),
		attribute.Int64("evm.cutoff", endTimestamp),
	))
	defer span.End()

	ctx = logger.Derive(ctx, "evm.address", address)
	logger.Info(ctx, "fetching evm transactions", "evm.cutoff", cutoff.UTC().Format(time.RFC3339))

	var result []Transaction
	for page := 1; ; page++ {
		raw, err := s.fetchPage(ctx, address, page)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				span.SetStatus(codes.Error, ctxErr.Error())
				return result, ctxErr
			}

			logger.Error(ctx, "giving up on evm page, returning partial result",
				"evm.page", page,
				"evm.collected", len(result),
				"error", err,
			)
			span.RecordError(err)
			break
		}

		s.pagesCounter.Add(ctx, 1)
		if len(raw) == 0 {
			logger.Debug(ctx, "evm page is empty", "evm.page", page)
			break
		}

		batch, oldest := s.collect(ctx, raw, endTimestamp)
		result = append(result, batch...)
		s.recordsCounter.Add(ctx, int64(len(batch)))

		logger.Debug(ctx, "evm page fetched",
			"evm.page", page,
			"evm.page_size", len(raw),
			"evm.accepted", len(batch),
		)

		if oldest < endTimestamp || len(raw) < s.offset {
			break
		}

		if (page+1)*s.offset > s.resultWindow {
			logger.Warn(ctx, "evm history truncated at the explorer result window",
				"evm.page", page,
				"evm.result_window", s.resultWindow,
			)
			span.SetAttributes(attribute.Bool("evm.truncated", true))
			break
		}

		if err := s.wait(ctx); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return result, err
		}
	}

	span.SetAttributes(attribute.Int("evm.transactions", len(result)))
	logger.Info(ctx, "evm transactions fetched", "evm.transactions", len(result))
	return result, nil
}

// fetchPage requests a single page, retrying with linear backoff.
func (s *service) fetchPage(ctx context.Context, address string, page int) ([]RawTransaction, error) {
	r := retry.New(
		retry.WithAttempts(s.retryAttempts),
		retry.WithDelay(s.retryDelay),
		retry.WithMaxDelay(0),
		retry.WithBackoff(retry.LinearBackoff),
		retry.WithOnRetry(func(attempt uint, err error) {
			s.retriesCounter.Add(ctx, 1)
			logger.Warn(ctx, "evm page request failed",
				"evm.page", page,
				"retry.attempt", attempt,
				"retry.max_attempts", s.retryAttempts,
				"error", err,
			)
		}),
	)

	var raw []RawTransaction
	err := r.Execute(ctx, func() (err error) {
		raw, err = s.explorer.ListInternalTransactions(ctx, address, page, s.offset)
		return err
	})

	return raw, err
}

// collect normalizes a page and keeps the records at or before endTimestamp.
// It also returns the unix time of the oldest record on the page. Records that
// cannot be normalized are skipped.
func (s *service) collect(ctx context.Context, raw []RawTransaction, endTimestamp int64) ([]Transaction, int64) {
	var (
		batch  = make([]Transaction, 0, len(raw))
		oldest = int64(math.MaxInt64)
	)

	for _, r := range raw {
		tx, err := r.Normalize()
		if err != nil {
			logger.Warn(ctx, "skipping malformed evm transaction", "evm.hash", r.Hash, "error", err)
			continue
		}

		ts := tx.Time.Unix()
		oldest = min(oldest, ts)

		if ts <= endTimestamp {
			batch = append(batch, tx)
		}
	}

	return batch, oldest
}

// wait sleeps for the configured inter-page delay, returning early with the
// context's error if it is done first.
func (s *service) wait(ctx context.Context) error {
	if s.pageDelay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(s.pageDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type config struct {
	offset        int
	resultWindow  int
	pageDelay     time.Duration
	retryAttempts uint
	retryDelay    time.Duration
}

// Option configures the service returned by New.
type Option func(*config)

// New builds an EVM history Service on top of the given explorer.
//
// Defaults:
//   - offset:        100 records per page
//   - resultWindow:  10000 records reachable through paging
//   - pageDelay:     5 seconds between pages
//   - retryAttempts: 6 attempts per page (1 + 5 retries)
//   - retryDelay:    5 seconds, multiplied by the attempt number
func New(explorer Explorer, opts ...Option) *service {
	cfg := config{
		offset:        defaultOffset,
		resultWindow:  defaultResultWindow,
		pageDelay:     defaultPageDelay,
		retryAttempts: defaultRetryAttempts,
		retryDelay:    defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	meter := otel.Meter(instrumentationName)

	return &service{
		explorer:       explorer,
		offset:         cfg.offset,
		resultWindow:   cfg.resultWindow,
		pageDelay:      cfg.pageDelay,
		retryAttempts:  cfg.retryAttempts,
		retryDelay:     cfg.retryDelay,
		tracer:         otel.Tracer(instrumentationName),
		pagesCounter:   telemetry.Int64Counter(meter, "txhistory.evm.pages", "Explorer pages fetched"),
		retriesCounter: telemetry.Int64Counter(meter, "txhistory.evm.retries", "Failed explorer page requests"),
		recordsCounter: telemetry.Int64Counter(meter, "txhistory.evm.transactions", "EVM transactions collected"),
	}
}

// WithOffset sets the explorer page size. Non-positive values are ignored.
func WithOffset(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.offset = n
		}
	}
}

// WithResultWindow sets how many records the explorer serves through paging.
// The walk stops before requesting a page that would reach past it.
// Non-positive values are ignored.
func WithResultWindow(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.resultWindow = n
		}
	}
}

// WithPageDelay sets the pause between consecutive page requests.
// Zero disables the pause.
func WithPageDelay(d time.Duration) Option {
	return func(c *config) {
		c.pageDelay = d
	}
}

// WithRetryAttempts sets how many times a page is attempted before giving up.
func WithRetryAttempts(n uint) Option {
	return func(c *config) {
		if n > 0 {
			c.retryAttempts = n
		}
	}
}

// WithRetryDelay sets the base of the linear backoff between page attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *config) {
		c.retryDelay = d
	}
}
