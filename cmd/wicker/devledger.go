package main

import (
	"log/slog"
	"os"

	"github.com/ayrten/wicker/devledger"
	"github.com/urfave/cli/v2"
)

var devledgerCmd = &cli.Command{
	Name:  "devledger",
	Usage: "Run an in-memory nym ledger gateway for local development",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "addr",
			Value:   ":9702",
			EnvVars: []string{"WICKER_DEVLEDGER_ADDR"},
		},
	},
	Action: func(cmd *cli.Context) error {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

		s, err := devledger.New(&devledger.Args{
			Addr:   cmd.String("addr"),
			Logger: logger,
		})
		if err != nil {
			return err
		}

		return s.Serve(cmd.Context)
	},
}
