// Command txhistory fetches the transaction history of an address on an EVM
// chain (through a block explorer) or on Solana (through a JSON-RPC node).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gabapcia/txhistory/internal/config"
	"github.com/gabapcia/txhistory/internal/evmhistory"
	"github.com/gabapcia/txhistory/internal/export"
	"github.com/gabapcia/txhistory/internal/handlers/cli"
	"github.com/gabapcia/txhistory/internal/infra/blockchain/etherscan"
	"github.com/gabapcia/txhistory/internal/infra/blockchain/solana"
	"github.com/gabapcia/txhistory/internal/infra/messaging/kafka"
	"github.com/gabapcia/txhistory/internal/infra/storage/redis"
	"github.com/gabapcia/txhistory/internal/pkg/logger"
	"github.com/gabapcia/txhistory/internal/pkg/telemetry"
	transporthttp "github.com/gabapcia/txhistory/internal/pkg/transport/http"
	"github.com/gabapcia/txhistory/internal/pkg/transport/jsonrpc"
	"github.com/gabapcia/txhistory/internal/solanahistory"
)

// newPublisher connects the configured sinks. It returns nil when none is configured.
func newPublisher(ctx context.Context, cfg config.Config) (export.Publisher, error) {
	var publishers []export.Publisher

	if cfg.Redis.Addr != "" {
		r, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Username, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithKeyPrefix(cfg.Redis.KeyPrefix),
			redis.WithMaxLen(cfg.Redis.MaxLen),
		)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}

		publishers = append(publishers, r)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		publishers = append(publishers, kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic))
	}

	if len(publishers) == 0 {
		return nil, nil
	}

	return export.MultiPublisher(publishers...), nil
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		_ = logger.Init("info")
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.LogLevel); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.ServiceVersion)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Warn(ctx, "failed to shut telemetry down", "error", err)
			}
		}()
	}

	explorerHTTP := transporthttp.NewStandardClient(
		transporthttp.WithTimeout(cfg.Explorer.HTTPTimeout),
		transporthttp.WithRetryMax(0),
	)
	explorer := etherscan.NewClient(explorerHTTP, cfg.Explorer.URL, cfg.Explorer.APIKey)

	evm := evmhistory.New(explorer,
		evmhistory.WithOffset(cfg.Explorer.Offset),
		evmhistory.WithResultWindow(cfg.Explorer.ResultWindow),
		evmhistory.WithPageDelay(cfg.Explorer.PageDelay),
		evmhistory.WithRetryAttempts(cfg.Explorer.RetryAttempts),
		evmhistory.WithRetryDelay(cfg.Explorer.RetryDelay),
	)

	rpcHTTP := transporthttp.NewStandardClient(
		transporthttp.WithTimeout(cfg.Solana.HTTPTimeout),
		transporthttp.WithRetryMax(cfg.Solana.HTTPRetryMax),
	)
	node := solana.NewClient(jsonrpc.NewClient(rpcHTTP, cfg.Solana.RPCURL))

	sol := solanahistory.New(node,
		solanahistory.WithPageLimit(cfg.Solana.PageLimit),
		solanahistory.WithEmptyStreakLimit(cfg.Solana.EmptyStreakLimit),
	)

	pub, err := newPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	if pub != nil {
		defer func() {
			if err := pub.Close(); err != nil {
				logger.Warn(ctx, "failed to close publishers", "error", err)
			}
		}()
	}

	return cli.Run(ctx, evm, sol, pub, cli.Defaults{
		Address:   cfg.Defaults.Address,
		StartDate: cfg.Defaults.StartDate,
		EndDate:   cfg.Defaults.EndDate,
		HTTPAddr:  cfg.HTTP.Addr,
	})
}

func main() {
	ctx := context.Background()

	if err := run(ctx); err != nil {
		logger.Error(ctx, "txhistory failed", "error", err)
		logger.Sync()
		os.Exit(1)
	}
}
