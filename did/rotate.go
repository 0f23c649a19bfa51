package did

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ayrten/wicker/didkey"
	"github.com/ayrten/wicker/ledger"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// Engine drives the two-phase key replacement protocol across the
// wallet and the ledger. There is no persisted phase field: state is
// inferred from the record's NextVerkey and the verkey the ledger
// reports, so an interrupted rotation can always be re-driven with
// resume.
type Engine struct {
	registry *Registry
	ledger   ledger.Client
	logger   *slog.Logger
}

func NewEngine(registry *Registry, lc ledger.Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry: registry,
		ledger:   lc,
		logger:   logger,
	}
}

// RotateResult reports the outcome of one rotation drive.
type RotateResult struct {
	Did       string
	NewVerkey string

	// LedgerUpdated is false when the DID has no ledger presence and
	// the rotation completed locally only.
	LedgerUpdated bool
}

// RotateKey replaces the signing key bound to did.
//
// Fresh (resume=false): a candidate key is generated and recorded,
// announced to the ledger if the DID is published there, and promoted
// locally once the announcement resolves. An unpublished DID rotates
// locally only: the wallet is authoritative for it.
//
// On an ambiguous submission timeout the candidate is kept, nothing is
// promoted, and the caller must re-invoke with resume=true.
//
// Resume (resume=true): the ledger's current verkey is reconciled
// against the wallet's current and candidate keys and the rotation is
// driven to completion without generating new key material. A ledger
// verkey matching neither is a hard ErrStateMismatch; the engine never
// overwrites a key someone else published.
func (e *Engine) RotateKey(ctx context.Context, did string, seed *string, resume bool) (*RotateResult, error) {
	// Ledger first. The wallet is only mutated once the network side
	// has resolved, so the record can never claim a key is applied
	// before the submission that justifies it.
	nym, err := e.ledger.GetNym(ctx, did)
	if err != nil {
		return nil, err
	}
	published := nym != nil

	var newVerkey string
	submit := false
	confirmed := false

	if resume {
		newVerkey, submit, confirmed, err = e.reconcile(did, nym)
		if err != nil {
			return nil, err
		}
	} else {
		newVerkey, err = e.registry.ReplaceKeysStart(did, seed)
		if err != nil {
			return nil, err
		}
		submit = true
	}

	if submit && published {
		if err := e.submitNym(ctx, did, newVerkey); err != nil {
			if errors.Is(err, ledger.ErrTimeout) {
				e.logger.Warn("nym submission outcome unknown", "did", did)
				return nil, fmt.Errorf("%w; re-run rotate-key with resume to complete", err)
			}
			return nil, err
		}
		confirmed = true
	}

	if !published {
		e.logger.Warn("did is not registered on the ledger, rotating locally only", "did", did)
	}

	if err := e.registry.ReplaceKeysApply(did); err != nil {
		return nil, err
	}

	return &RotateResult{
		Did:           did,
		NewVerkey:     newVerkey,
		LedgerUpdated: confirmed,
	}, nil
}

// reconcile infers where an interrupted rotation stopped. It returns
// the candidate verkey, whether the announcement still needs to be
// submitted, and whether the ledger is already known to hold the
// candidate.
func (e *Engine) reconcile(did string, nym *ledger.NymData) (string, bool, bool, error) {
	rec, err := e.registry.Get(did)
	if err != nil {
		return "", false, false, err
	}

	if rec.NextVerkey == nil {
		return "", false, false, fmt.Errorf(
			"%w: nothing to resume for %s, have you already run rotate-key?", ErrNoPendingRotation, did)
	}

	candidate := *rec.NextVerkey
	current := rec.Verkey

	if nym == nil {
		// Never published: the wallet is authoritative, promote locally.
		return candidate, false, false, nil
	}

	// The ledger may hold the abbreviated form; reduce both wallet keys
	// to the same representation before comparing.
	ledgerVerkey := nym.Verkey
	cmpCandidate, cmpCurrent := candidate, current
	if strings.HasPrefix(ledgerVerkey, "~") {
		cmpCandidate = didkey.AbbreviateVerkey(did, cmpCandidate)
		cmpCurrent = didkey.AbbreviateVerkey(did, cmpCurrent)
	}

	e.logger.Info("reconciling rotation",
		"did", did,
		"ledger_verkey", ledgerVerkey,
		"wallet_verkey", cmpCurrent,
		"candidate_verkey", cmpCandidate,
	)

	switch ledgerVerkey {
	case cmpCandidate:
		// The announcement landed before the interruption; only the
		// local promotion is missing.
		return candidate, false, true, nil
	case cmpCurrent:
		// The announcement never reached the ledger; submit it again.
		return candidate, true, false, nil
	default:
		return "", false, false, fmt.Errorf(
			"%w: ledger verkey for %s matches neither the wallet verkey nor the candidate", ErrStateMismatch, did)
	}
}

// submitNym announces did -> newVerkey, signed by the DID's current
// (pre-rotation) key, which is the key the ledger still trusts.
func (e *Engine) submitNym(ctx context.Context, did string, newVerkey string) error {
	req := &ledger.NymRequest{
		ReqID:  uuid.NewString(),
		Did:    did,
		Verkey: newVerkey,
	}

	payload, err := req.SigningBytes()
	if err != nil {
		return err
	}

	sig, err := e.registry.Sign(did, payload)
	if err != nil {
		return err
	}
	req.Signature = base58.Encode(sig)

	return e.ledger.SubmitNym(ctx, req)
}
