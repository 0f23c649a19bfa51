package main

import (
	"fmt"

	"github.com/ayrten/wicker/wallet"
	"github.com/urfave/cli/v2"
)

var walletCmd = &cli.Command{
	Name:  "wallet",
	Usage: "Wallet management commands",
	Subcommands: []*cli.Command{
		{
			Name:  "create",
			Usage: "Create a new wallet",
			Action: func(cmd *cli.Context) error {
				cfg, err := loadConfig(cmd.String("config"))
				if err != nil {
					return err
				}

				path := cmd.String("wallet")
				if path == "" {
					path = cfg.WalletPath
				}
				if path == "" {
					path = "wicker.db"
				}

				passphrase := cmd.String("passphrase")
				if passphrase == "" {
					return fmt.Errorf("wallet passphrase must be set")
				}

				w, err := wallet.Create(path, passphrase)
				if err != nil {
					return err
				}
				defer w.Close()

				fmt.Printf("Wallet has been created at %q\n", path)
				return nil
			},
		},
	},
}
