// Package did owns DID records in the wallet and the key-rotation
// protocol that keeps them consistent with the ledger.
package did

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ayrten/wicker/didkey"
	"github.com/ayrten/wicker/wallet"
	"github.com/go-playground/validator"
)

// Category is the wallet category every DID record lives under.
const Category = "did"

// Record is the persisted shape of one identity. NextVerkey is only
// present while a rotation is in flight: it is the candidate key that
// will replace Verkey once the rotation is confirmed.
type Record struct {
	Did        string  `json:"did"`
	Verkey     string  `json:"verkey"`
	VerkeyType string  `json:"verkey_type"`
	Method     *string `json:"method,omitempty"`
	Metadata   *string `json:"metadata,omitempty"`
	NextVerkey *string `json:"next_verkey,omitempty"`
}

type Registry struct {
	wallet *wallet.Wallet
}

func NewRegistry(w *wallet.Wallet) *Registry {
	return &Registry{wallet: w}
}

type CreateArgs struct {
	Did      *string
	Seed     *string
	Metadata *string
	Method   *string
}

// Create generates or derives a keypair, computes the DID (explicit or
// from the first 16 bytes of the public key), and atomically inserts
// the keypair and the record. Fails with ErrDuplicate if the DID
// already exists.
func (r *Registry) Create(args CreateArgs) (string, string, error) {
	priv, err := newKeypair(args.Seed)
	if err != nil {
		return "", "", err
	}

	pub := priv.Public().(ed25519.PublicKey)
	verkey := didkey.Verkey(pub)

	d := didkey.DidFromPubkey(pub)
	if args.Did != nil {
		d = *args.Did
	}

	if args.Method != nil {
		d, err = didkey.QualifyDid(d, *args.Method)
		if err != nil {
			return "", "", err
		}
	}

	rec := &Record{
		Did:        d,
		Verkey:     verkey,
		VerkeyType: didkey.KeyType,
		Method:     args.Method,
		Metadata:   args.Metadata,
	}

	err = r.wallet.Update(func(s *wallet.Session) error {
		if _, err := s.Fetch(Category, d, false); err == nil {
			return fmt.Errorf("%w: %s", ErrDuplicate, d)
		} else if !errors.Is(err, wallet.ErrNotFound) {
			return err
		}

		if err := s.InsertKey(verkey, priv, ""); err != nil {
			return err
		}

		return storeRecord(s, rec, true)
	})
	if err != nil {
		return "", "", err
	}

	return d, verkey, nil
}

func (r *Registry) Get(did string) (*Record, error) {
	var rec *Record
	err := r.wallet.View(func(s *wallet.Session) error {
		var err error
		rec, err = fetchRecord(s, did, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Registry) List() ([]*Record, error) {
	var recs []*Record
	err := r.wallet.View(func(s *wallet.Session) error {
		raw, err := s.FetchAll(Category)
		if err != nil {
			return err
		}
		for _, item := range raw {
			var rec Record
			if err := json.Unmarshal(item.Value, &rec); err != nil {
				return err
			}
			recs = append(recs, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// SetMetadata is a read-modify-write under fetch-for-update so
// concurrent writers can't drop each other's changes.
func (r *Registry) SetMetadata(did string, metadata string) error {
	return r.wallet.Update(func(s *wallet.Session) error {
		rec, err := fetchRecord(s, did, true)
		if err != nil {
			return err
		}

		rec.Metadata = &metadata

		return storeRecord(s, rec, false)
	})
}

// ReplaceKeysStart generates a candidate keypair and records it as
// NextVerkey. The ledger is never touched. Repeated calls before an
// apply overwrite the previous candidate: last rotation request wins.
func (r *Registry) ReplaceKeysStart(did string, seed *string) (string, error) {
	priv, err := newKeypair(seed)
	if err != nil {
		return "", err
	}
	verkey := didkey.Verkey(priv.Public().(ed25519.PublicKey))

	err = r.wallet.Update(func(s *wallet.Session) error {
		rec, err := fetchRecord(s, did, true)
		if err != nil {
			return err
		}

		if err := s.InsertKey(verkey, priv, ""); err != nil {
			return err
		}

		rec.NextVerkey = &verkey

		return storeRecord(s, rec, false)
	})
	if err != nil {
		return "", err
	}

	return verkey, nil
}

// ReplaceKeysApply promotes NextVerkey into Verkey and clears it. The
// ledger is never touched.
func (r *Registry) ReplaceKeysApply(did string) error {
	return r.wallet.Update(func(s *wallet.Session) error {
		rec, err := fetchRecord(s, did, true)
		if err != nil {
			return err
		}

		if rec.NextVerkey == nil {
			return fmt.Errorf("%w: next key is not set for %s", ErrNoPendingRotation, did)
		}

		rec.Verkey = *rec.NextVerkey
		rec.NextVerkey = nil

		return storeRecord(s, rec, false)
	})
}

// Qualify rewrites a stored DID under its did:<method>: form, moving
// the record to the new name.
func (r *Registry) Qualify(did string, method string) (string, error) {
	qualified, err := didkey.QualifyDid(did, method)
	if err != nil {
		return "", err
	}

	err = r.wallet.Update(func(s *wallet.Session) error {
		rec, err := fetchRecord(s, did, true)
		if err != nil {
			return err
		}

		if err := s.Remove(Category, did); err != nil {
			return err
		}

		rec.Did = qualified
		rec.Method = &method

		return storeRecord(s, rec, true)
	})
	if err != nil {
		return "", err
	}

	return qualified, nil
}

// Sign signs msg with the DID's current key.
func (r *Registry) Sign(did string, msg []byte) ([]byte, error) {
	rec, err := r.Get(did)
	if err != nil {
		return nil, err
	}
	return r.wallet.Sign(rec.Verkey, msg)
}

type importFile struct {
	Version int           `json:"version" validate:"required,eq=1"`
	Dids    []importEntry `json:"dids" validate:"required,min=1,dive"`
}

type importEntry struct {
	Did  *string `json:"did"`
	Seed string  `json:"seed" validate:"required"`
}

// Import reads a versioned JSON file of {did, seed} entries and
// creates each one, returning the resulting (did, verkey) pairs.
func (r *Registry) Import(rd io.Reader) ([][2]string, error) {
	b, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	var file importFile
	if err := json.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("%w: can't parse import file: %v", didkey.ErrInvalidInput, err)
	}

	if err := validator.New().Struct(&file); err != nil {
		return nil, fmt.Errorf("%w: invalid or missing version or dids", didkey.ErrInvalidInput)
	}

	var created [][2]string
	for _, entry := range file.Dids {
		seed := entry.Seed
		d, vk, err := r.Create(CreateArgs{Did: entry.Did, Seed: &seed})
		if err != nil {
			return created, err
		}
		created = append(created, [2]string{d, vk})
	}

	return created, nil
}

func newKeypair(seed *string) (ed25519.PrivateKey, error) {
	if seed != nil {
		return didkey.KeyFromSeed(*seed)
	}
	return didkey.Generate()
}

func fetchRecord(s *wallet.Session, did string, forUpdate bool) (*Record, error) {
	raw, err := s.Fetch(Category, did, forUpdate)
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, did)
		}
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return nil, err
	}

	return &rec, nil
}

func storeRecord(s *wallet.Session, rec *Record, isNew bool) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	if isNew {
		if err := s.Insert(Category, rec.Did, b, nil); err != nil {
			if errors.Is(err, wallet.ErrDuplicate) {
				return fmt.Errorf("%w: %s", ErrDuplicate, rec.Did)
			}
			return err
		}
		return nil
	}

	return s.Replace(Category, rec.Did, b, nil)
}
