package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
)

var Version = "dev"

func main() {
	app := &cli.App{
		Name:  "wicker",
		Usage: "A wallet and identity manager for Indy-style DID ledgers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "wicker.toml",
				EnvVars: []string{"WICKER_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "wallet",
				Usage:   "path to the wallet database",
				EnvVars: []string{"WICKER_WALLET"},
			},
			&cli.StringFlag{
				Name:    "passphrase",
				Usage:   "wallet passphrase",
				EnvVars: []string{"WICKER_PASSPHRASE"},
			},
			&cli.StringFlag{
				Name:    "ledger-url",
				Usage:   "base url of the nym ledger gateway",
				EnvVars: []string{"WICKER_LEDGER_URL"},
			},
		},
		Commands: []*cli.Command{
			walletCmd,
			didCmd,
			devledgerCmd,
		},
		ErrWriter: os.Stdout,
		Version:   Version,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
