package cli

import (
	"context"

	"github.com/gabapcia/txhistory/internal/evmhistory"
	httphandler "github.com/gabapcia/txhistory/internal/handlers/http"
	"github.com/gabapcia/txhistory/internal/solanahistory"

	"github.com/urfave/cli/v3"
)

// serveCommand returns a CLI command that serves both histories over HTTP.
//
// Usage example:
//
//	txhistory serve --addr :8080
//
// The server runs until it receives an interrupt (SIGINT or SIGTERM).
func serveCommand(evm evmhistory.Service, solana solanahistory.Service, defaults Defaults) *cli.Command {
	return &cli.Command{
		Name:        "serve",
		Description: "Serve the EVM and Solana histories as streaming HTTP endpoints.",
		Usage:       "Starts the HTTP server. Terminates gracefully on Ctrl+C or termination signals.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Address to listen on",
				Value: defaults.HTTPAddr,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			addr, err := stringFlag(c, "addr")
			if err != nil {
				return err
			}

			handler := httphandler.NewHandler(evm, solana, httphandler.Defaults{
				Address:   defaults.Address,
				StartDate: defaults.StartDate,
				EndDate:   defaults.EndDate,
			})

			return httphandler.Serve(ctx, addr, handler)
		},
	}
}
