package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ayrten/wicker/did"
	"github.com/ayrten/wicker/ledger"
	"github.com/ayrten/wicker/wallet"
	"github.com/urfave/cli/v2"
)

const (
	configCategory = "config"
	activeDidName  = "active_did"
)

// session is the per-invocation context: the opened wallet, the
// registry and engine built over it, and the persisted active DID.
// It replaces the ambient "current did" a REPL would keep.
type session struct {
	wallet   *wallet.Wallet
	registry *did.Registry
	engine   *did.Engine
	logger   *slog.Logger
}

func newSession(cmd *cli.Context) (*session, error) {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	walletPath := cmd.String("wallet")
	if walletPath == "" {
		walletPath = cfg.WalletPath
	}
	if walletPath == "" {
		walletPath = "wicker.db"
	}

	passphrase := cmd.String("passphrase")
	if passphrase == "" {
		return nil, fmt.Errorf("wallet passphrase must be set")
	}

	w, err := wallet.Open(walletPath, passphrase)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{}))

	registry := did.NewRegistry(w)

	var engine *did.Engine
	ledgerURL := cmd.String("ledger-url")
	if ledgerURL == "" {
		ledgerURL = cfg.LedgerURL
	}
	if ledgerURL != "" {
		lc, err := ledger.NewHTTPClient(&ledger.HTTPClientArgs{
			Base:   ledgerURL,
			Logger: logger,
		})
		if err != nil {
			w.Close()
			return nil, err
		}
		engine = did.NewEngine(registry, lc, logger)
	}

	return &session{
		wallet:   w,
		registry: registry,
		engine:   engine,
		logger:   logger,
	}, nil
}

func (s *session) close() {
	s.wallet.Close()
}

func (s *session) activeDid() (string, error) {
	var active string
	err := s.wallet.View(func(ws *wallet.Session) error {
		rec, err := ws.Fetch(configCategory, activeDidName, false)
		if err != nil {
			return err
		}
		active = string(rec.Value)
		return nil
	})
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return "", fmt.Errorf("no active did set, run `wicker did use <did>` first")
		}
		return "", err
	}
	return active, nil
}

func (s *session) setActiveDid(d string) error {
	return s.wallet.Update(func(ws *wallet.Session) error {
		err := s.insertOrReplace(ws, configCategory, activeDidName, []byte(d))
		return err
	})
}

func (s *session) insertOrReplace(ws *wallet.Session, category, name string, value []byte) error {
	if err := ws.Replace(category, name, value, nil); err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return ws.Insert(category, name, value, nil)
		}
		return err
	}
	return nil
}

// didFrom resolves the DID a command operates on: the --did flag when
// given, the persisted active DID otherwise.
func (s *session) didFrom(cmd *cli.Context) (string, error) {
	if d := cmd.String("did"); d != "" {
		return d, nil
	}
	return s.activeDid()
}
