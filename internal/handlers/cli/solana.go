package cli

import (
	"context"

	"github.com/gabapcia/txhistory/internal/export"
	"github.com/gabapcia/txhistory/internal/pkg/dates"
	"github.com/gabapcia/txhistory/internal/solanahistory"
	"github.com/gabapcia/txhistory/internal/stream"

	"github.com/urfave/cli/v3"
)

// solanaCommand returns a CLI command that streams the Solana transactions of
// an address inside an inclusive date window to standard output.
//
// Usage example:
//
//	txhistory solana --address Tokenkeg... --start 2024-04-01 --end 2024-04-30
func solanaCommand(solana solanahistory.Service, pub export.Publisher, defaults Defaults) *cli.Command {
	return &cli.Command{
		Name:        "solana",
		Description: "Stream the Solana transactions of an address between two dates as JSON lines.",
		Usage:       "Fetches transactions inside the inclusive window and writes one JSON document per line.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "address",
				Usage: "Account address (base58)",
				Value: defaults.Address,
			},
			&cli.StringFlag{
				Name:  "start",
				Usage: "First date of the window (YYYY-MM-DD or RFC 3339)",
				Value: defaults.StartDate,
			},
			&cli.StringFlag{
				Name:  "end",
				Usage: "Last date of the window, inclusive (YYYY-MM-DD or RFC 3339)",
				Value: defaults.EndDate,
			},
			publishFlag(),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			address, err := stringFlag(c, "address")
			if err != nil {
				return err
			}

			rawStart, err := stringFlag(c, "start")
			if err != nil {
				return err
			}

			rawEnd, err := stringFlag(c, "end")
			if err != nil {
				return err
			}

			start, err := dates.Parse(rawStart)
			if err != nil {
				return err
			}

			end, err := dates.ParseEnd(rawEnd)
			if err != nil {
				return err
			}

			var fetched []solanahistory.TransactionDetails
			err = stream.Run(c.Root().Writer, func() ([]solanahistory.TransactionDetails, error) {
				txs, err := solana.Fetch(ctx, address, start, end)
				fetched = txs
				return txs, err
			})
			if err != nil {
				return err
			}

			return publish(ctx, c, pub, export.Batch{
				Chain:   solanahistory.ChainName,
				Address: address,
				Records: export.Records(fetched),
			})
		},
	}
}
