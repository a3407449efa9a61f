package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/gabapcia/txhistory/internal/evmhistory"
	"github.com/gabapcia/txhistory/internal/export"
	"github.com/gabapcia/txhistory/internal/pkg/dates"
	"github.com/gabapcia/txhistory/internal/pkg/logger"

	"github.com/urfave/cli/v3"
)

const defaultCSVPath = "transactions.csv"

// evmCommand returns a CLI command that exports the internal transactions of an
// EVM address made at or before the end date to a CSV file, newest first.
//
// Usage example:
//
//	txhistory evm --address 0xABC123... --end-date 2024-04-01 --output out.csv
//
// A fetch that stops early still writes what it collected before the error is
// returned. Publishing only happens after a complete fetch.
func evmCommand(evm evmhistory.Service, pub export.Publisher, defaults Defaults) *cli.Command {
	return &cli.Command{
		Name:        "evm",
		Description: "Export the internal transactions of an EVM address to a CSV file.",
		Usage:       "Fetches internal transactions at or before the end date and writes them as CSV.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "address",
				Usage: "Wallet address (0x...)",
				Value: defaults.Address,
			},
			&cli.StringFlag{
				Name:    "end-date",
				Aliases: []string{"end"},
				Usage:   "Newest date to include (YYYY-MM-DD or RFC 3339)",
				Value:   defaults.EndDate,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "CSV file to write",
				Value:   defaultCSVPath,
			},
			publishFlag(),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			address, err := stringFlag(c, "address")
			if err != nil {
				return err
			}

			rawEnd, err := stringFlag(c, "end-date")
			if err != nil {
				return err
			}

			cutoff, err := dates.Parse(rawEnd)
			if err != nil {
				return err
			}

			txs, fetchErr := evm.Fetch(ctx, address, cutoff)
			if fetchErr != nil && len(txs) == 0 {
				return fetchErr
			}

			output := c.String("output")
			if err := export.WriteCSVFile(output, txs); err != nil {
				return errors.Join(fetchErr, err)
			}

			logger.Info(ctx, "transactions exported", "address", address, "output", output, "count", len(txs))
			fmt.Fprintf(c.Root().Writer, "%d transactions saved to %s\n", len(txs), output)

			if fetchErr != nil {
				return fetchErr
			}

			return publish(ctx, c, pub, export.Batch{
				Chain:   evmhistory.ChainName,
				Address: address,
				Records: export.Records(txs),
			})
		},
	}
}
