package wallet

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const saltBytes = 16

var ErrBadPassphrase = errors.New("wallet passphrase is incorrect")

// deriveKey stretches the passphrase into an AEAD key with argon2id.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, chacha20poly1305.KeySize)
}

// seal encrypts pt with a random nonce prepended to the ciphertext.
func (w *Wallet) seal(pt []byte) ([]byte, error) {
	nonce := make([]byte, w.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return w.aead.Seal(nonce, nonce, pt, nil), nil
}

func (w *Wallet) open(ct []byte) ([]byte, error) {
	ns := w.aead.NonceSize()
	if len(ct) < ns {
		return nil, fmt.Errorf("sealed value too short")
	}
	pt, err := w.aead.Open(nil, ct[:ns], ct[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("unable to unseal value: %w", err)
	}
	return pt, nil
}
