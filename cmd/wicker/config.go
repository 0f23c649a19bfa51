package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
)

// config is the optional wicker.toml file. CLI flags and env vars win
// over anything set here.
type config struct {
	WalletPath string `toml:"wallet_path"`
	LedgerURL  string `toml:"ledger_url"`
}

func loadConfig(path string) (*config, error) {
	var cfg config

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &cfg, nil
		}
		return nil, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
