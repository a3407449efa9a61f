// Package solanahistory collects the transactions of a Solana address that
// landed inside a time window, walking the address's signature history from
// the newest signature backwards.
package solanahistory

import (
	"context"
	"fmt"
	"time"

	"github.com/gabapcia/txhistory/internal/pkg/logger"
	"github.com/gabapcia/txhistory/internal/pkg/telemetry"
	"github.com/gabapcia/txhistory/internal/pkg/validator"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/gabapcia/txhistory/internal/solanahistory"

const (
	defaultPageLimit        = 100
	defaultEmptyStreakLimit = 5
)

func init() {
	err := validator.RegisterStringRule("solana_address", func(s string) bool {
		_, err := solana.PublicKeyFromBase58(s)
		return err == nil
	})
	if err != nil {
		panic(err)
	}
}

// RPC is the subset of the Solana JSON-RPC API the history walk needs.
type RPC interface {
	// GetSignaturesForAddress returns up to limit signatures of address older
	// than before, newest first. An empty before starts from the newest one.
	GetSignaturesForAddress(ctx context.Context, address, before string, limit int) ([]Signature, error)

	// GetTransaction returns the confirmed transaction for signature, or nil
	// when the node does not have it.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
}

// Service fetches Solana transaction history.
type Service interface {
	// Fetch returns the transactions of address whose block time lies in
	// [start, end], in discovery order (newest first). Any RPC failure aborts
	// the walk and is returned without a partial result.
	Fetch(ctx context.Context, address string, start, end time.Time) ([]TransactionDetails, error)
}

type fetchInput struct {
	Address string `validate:"required,solana_address"`
	Start   int64  `validate:"gte=0"`
	End     int64  `validate:"gtefield=Start"`
}

type service struct {
	rpc RPC

	pageLimit        int
	emptyStreakLimit int

	tracer         trace.Tracer
	pagesCounter   metric.Int64Counter
	lookupsCounter metric.Int64Counter
	recordsCounter metric.Int64Counter
}

var _ Service = (*service)(nil)

func (s *service) Fetch(ctx context.Context, address string, start, end time.Time) ([]TransactionDetails, error) {
	startTime, endTime := start.Unix(), end.Unix()
	if err := validator.Validate(fetchInput{Address: address, Start: startTime, End: endTime}); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "solanahistory.Fetch", trace.WithAttributes(
		attribute.String("solana.address", address),
		attribute.Int64("solana.start", startTime),
		attribute.Int64("solana.end", endTime),
	))
	defer span.End()

	ctx = logger.Derive(ctx, "solana.address", address)
	logger.Info(ctx, "fetching solana transactions",
		"solana.start", start.UTC().Format(time.RFC3339),
		"solana.end", end.UTC().Format(time.RFC3339),
	)

	result, err := s.walk(ctx, address, startTime, endTime)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("solana.transactions", len(result)))
	logger.Info(ctx, "solana transactions fetched", "solana.transactions", len(result))
	return result, nil
}

func (s *service) walk(ctx context.Context, address string, startTime, endTime int64) ([]TransactionDetails, error) {
	var (
		result      []TransactionDetails
		cursor      string
		emptyStreak int
	)

	inWindow := func(t int64) bool { return t >= startTime && t <= endTime }

	for page := 1; ; page++ {
		signatures, err := s.rpc.GetSignaturesForAddress(ctx, address, cursor, s.pageLimit)
		if err != nil {
			return nil, fmt.Errorf("list signatures before %q: %w", cursor, err)
		}

		s.pagesCounter.Add(ctx, 1)
		if len(signatures) == 0 {
			logger.Debug(ctx, "solana signature history exhausted", "solana.page", page)
			break
		}

		found := 0
		for _, sig := range signatures {
			if sig.BlockTime != nil && !inWindow(*sig.BlockTime) {
				continue
			}

			s.lookupsCounter.Add(ctx, 1)
			tx, err := s.rpc.GetTransaction(ctx, sig.Signature)
			if err != nil {
				return nil, fmt.Errorf("get transaction %q: %w", sig.Signature, err)
			}

			if tx == nil || tx.BlockTime == nil || !inWindow(*tx.BlockTime) {
				continue
			}

			if tx.Signature == "" {
				tx.Signature = sig.Signature
			}

			result = append(result, normalize(*tx))
			found++
		}

		s.recordsCounter.Add(ctx, int64(found))
		logger.Debug(ctx, "solana page walked",
			"solana.page", page,
			"solana.signatures", len(signatures),
			"solana.accepted", found,
		)

		if found == 0 {
			emptyStreak++
			if emptyStreak >= s.emptyStreakLimit {
				logger.Debug(ctx, "stopping after consecutive pages without transactions in the window",
					"solana.empty_streak", emptyStreak,
				)
				break
			}
		} else {
			emptyStreak = 0
		}

		oldest := signatures[len(signatures)-1]
		cursor = oldest.Signature

		if oldest.BlockTime != nil && *oldest.BlockTime < startTime {
			break
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	return result, nil
}

type config struct {
	pageLimit        int
	emptyStreakLimit int
}

// Option configures the service returned by New.
type Option func(*config)

// New builds a Solana history Service on top of the given RPC.
//
// Defaults:
//   - pageLimit:        100 signatures per page
//   - emptyStreakLimit: 5 consecutive pages without a transaction in the window
func New(rpc RPC, opts ...Option) *service {
	cfg := config{
		pageLimit:        defaultPageLimit,
		emptyStreakLimit: defaultEmptyStreakLimit,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	meter := otel.Meter(instrumentationName)

	return &service{
		rpc:              rpc,
		pageLimit:        cfg.pageLimit,
		emptyStreakLimit: cfg.emptyStreakLimit,
		tracer:           otel.Tracer(instrumentationName),
		pagesCounter:     telemetry.Int64Counter(meter, "txhistory.solana.pages", "Signature pages fetched"),
		lookupsCounter:   telemetry.Int64Counter(meter, "txhistory.solana.lookups", "Transaction detail lookups"),
		recordsCounter:   telemetry.Int64Counter(meter, "txhistory.solana.transactions", "Solana transactions collected"),
	}
}

// WithPageLimit sets how many signatures are requested per page.
// Values outside 1..1000 are ignored.
func WithPageLimit(n int) Option {
	return func(c *config) {
		if n > 0 && n <= 1000 {
			c.pageLimit = n
		}
	}
}

// WithEmptyStreakLimit sets how many consecutive pages may yield nothing in
// the window before the walk stops. Non-positive values are ignored.
func WithEmptyStreakLimit(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.emptyStreakLimit = n
		}
	}
}
