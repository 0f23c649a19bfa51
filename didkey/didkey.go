// Package didkey derives, encodes and abbreviates Ed25519 verification
// keys for Indy-style DIDs. Everything here is pure; the wallet owns
// key storage.
package didkey

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

const (
	// KeyType is recorded on every DID record for forward compatibility.
	KeyType = "ed25519"

	SeedBytes = 32

	didIDBytes = 16
)

var (
	ErrInvalidSeed  = errors.New("invalid seed")
	ErrInvalidInput = errors.New("invalid input")
)

func Generate() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return priv, nil
}

// KeyFromSeed deterministically derives a keypair from seed material.
// The same seed always yields the same keypair.
func KeyFromSeed(seed string) (ed25519.PrivateKey, error) {
	b, err := decodeSeed(seed)
	if err != nil {
		return nil, err
	}
	return ed25519.NewKeyFromSeed(b), nil
}

// decodeSeed accepts the same encodings indy tooling does: a 32 byte
// utf-8 string, a base64 string, or a 64 character hex string.
func decodeSeed(seed string) ([]byte, error) {
	if len(seed) == SeedBytes {
		return []byte(seed), nil
	}

	if strings.HasSuffix(seed, "=") {
		b, err := base64.StdEncoding.DecodeString(seed)
		if err != nil {
			return nil, fmt.Errorf("%w: not valid base64", ErrInvalidSeed)
		}
		if len(b) != SeedBytes {
			return nil, fmt.Errorf("%w: base64 seed must decode to %d bytes", ErrInvalidSeed, SeedBytes)
		}
		return b, nil
	}

	if len(seed) == SeedBytes*2 {
		b, err := hex.DecodeString(seed)
		if err != nil {
			return nil, fmt.Errorf("%w: not valid hex", ErrInvalidSeed)
		}
		return b, nil
	}

	return nil, fmt.Errorf(
		"%w: seed must be a %d byte string, base64, or %d character hex",
		ErrInvalidSeed, SeedBytes, SeedBytes*2,
	)
}

// Verkey returns the base58 form of a public key.
func Verkey(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}

// DidFromPubkey derives an identifier from the first 16 bytes of a
// public key.
func DidFromPubkey(pub ed25519.PublicKey) string {
	return base58.Encode(pub[:didIDBytes])
}

// AbbreviateVerkey returns the compact "~" form of verkey when the
// verkey extends the DID's identifying bytes. Keys without that
// relationship are returned unchanged; not every key abbreviates.
func AbbreviateVerkey(did, verkey string) string {
	idb, err := base58.Decode(UnqualifyDid(did))
	if err != nil || len(idb) != didIDBytes {
		return verkey
	}

	vkb, err := base58.Decode(verkey)
	if err != nil || len(vkb) != ed25519.PublicKeySize {
		return verkey
	}

	if !bytes.Equal(vkb[:didIDBytes], idb) {
		return verkey
	}

	return "~" + base58.Encode(vkb[didIDBytes:])
}

// ExpandVerkey reverses AbbreviateVerkey given the same DID. Values
// that don't carry the "~" prefix pass through untouched.
func ExpandVerkey(did, verkey string) string {
	if !strings.HasPrefix(verkey, "~") {
		return verkey
	}

	idb, err := base58.Decode(UnqualifyDid(did))
	if err != nil || len(idb) != didIDBytes {
		return verkey
	}

	sfx, err := base58.Decode(strings.TrimPrefix(verkey, "~"))
	if err != nil || len(sfx) != ed25519.PublicKeySize-didIDBytes {
		return verkey
	}

	return base58.Encode(append(idb, sfx...))
}

// QualifyDid rewrites a bare identifier into did:<method>:<id> form.
func QualifyDid(did, method string) (string, error) {
	id := UnqualifyDid(did)

	b, err := base58.Decode(id)
	if err != nil || (len(b) != didIDBytes && len(b) != ed25519.PublicKeySize) {
		return "", fmt.Errorf("%w: %q is not a valid base58 identifier", ErrInvalidInput, did)
	}

	return fmt.Sprintf("did:%s:%s", method, id), nil
}

// UnqualifyDid strips a did:<method>: prefix if one is present.
func UnqualifyDid(did string) string {
	if !strings.HasPrefix(did, "did:") {
		return did
	}

	pts := strings.SplitN(did, ":", 3)
	if len(pts) != 3 || pts[2] == "" {
		return did
	}

	return pts[2]
}
