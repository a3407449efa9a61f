// Package cli wires the history fetchers to the command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gabapcia/txhistory/internal/evmhistory"
	"github.com/gabapcia/txhistory/internal/export"
	"github.com/gabapcia/txhistory/internal/pkg/logger"
	"github.com/gabapcia/txhistory/internal/solanahistory"

	"github.com/urfave/cli/v3"
)

var (
	// ErrMissingFlag is returned when a flag has no value and no configured default.
	ErrMissingFlag = errors.New("missing flag")

	// ErrNoPublisher is returned when --publish is set but no sink is configured.
	ErrNoPublisher = errors.New("no publishing sink configured")
)

// Defaults hold the configured fallbacks of the command flags.
type Defaults struct {
	Address   string
	StartDate string
	EndDate   string
	HTTPAddr  string
}

// stringFlag returns the value of a string flag, failing when it is empty.
func stringFlag(c *cli.Command, name string) (string, error) {
	v := c.String(name)
	if v == "" {
		return "", fmt.Errorf("%w: --%s", ErrMissingFlag, name)
	}

	return v, nil
}

// publish sends batch to pub when the command was invoked with --publish.
func publish(ctx context.Context, c *cli.Command, pub export.Publisher, batch export.Batch) error {
	if !c.Bool("publish") {
		return nil
	}

	if pub == nil {
		return ErrNoPublisher
	}

	if err := pub.Publish(ctx, batch); err != nil {
		logger.Error(ctx, "failed to publish transactions", "chain", batch.Chain, "address", batch.Address, "error", err)
		return err
	}

	logger.Info(ctx, "transactions published", "chain", batch.Chain, "address", batch.Address, "count", len(batch.Records))
	return nil
}

func publishFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "publish",
		Usage: "Publish the fetched transactions to the configured sinks (Redis, Kafka)",
	}
}

func newApp(evm evmhistory.Service, solana solanahistory.Service, pub export.Publisher, defaults Defaults) *cli.Command {
	return &cli.Command{
		EnableShellCompletion: true,
		Name:                  "txhistory",
		Description:           "Fetches the transaction history of an address on an EVM chain or on Solana.",
		Usage:                 "txhistory [command] [flags]",
		Commands: []*cli.Command{
			evmCommand(evm, pub, defaults),
			solanaCommand(solana, pub, defaults),
			serveCommand(evm, solana, defaults),
		},
	}
}

// Run initializes and executes the txhistory CLI application.
//
// It registers all available commands:
//
//   - `evm`: Exports the internal transactions of an EVM address to CSV.
//   - `solana`: Streams the Solana transactions of an address inside a date window.
//   - `serve`: Serves both histories over HTTP.
//
// SIGINT and SIGTERM cancel the context handed to the running command.
// pub may be nil when no sink is configured.
func Run(ctx context.Context, evm evmhistory.Service, solana solanahistory.Service, pub export.Publisher, defaults Defaults) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return newApp(evm, solana, pub, defaults).Run(ctx, os.Args)
}
