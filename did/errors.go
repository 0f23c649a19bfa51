package did

import "errors"

var (
	ErrNotFound  = errors.New("did does not exist in the wallet")
	ErrDuplicate = errors.New("did already present in the wallet")

	// ErrNoPendingRotation means apply or resume was called with no
	// candidate key outstanding.
	ErrNoPendingRotation = errors.New("no rotation in progress")

	// ErrStateMismatch means the ledger's verkey matches neither the
	// wallet's current key nor its candidate; the rotation cannot be
	// reconciled automatically.
	ErrStateMismatch = errors.New("wallet and ledger key state cannot be reconciled")
)
