package wallet

import "time"

// Item is one sealed record. Value and Tags are chacha20poly1305
// ciphertexts; nothing readable leaves the process unsealed.
type Item struct {
	ID        uint   `gorm:"primaryKey"`
	Category  string `gorm:"uniqueIndex:idx_item_category_name"`
	Name      string `gorm:"uniqueIndex:idx_item_category_name"`
	Value     []byte
	Tags      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key holds a sealed Ed25519 private key, keyed by its base58 verkey.
type Key struct {
	Name      string `gorm:"primaryKey"`
	Seckey    []byte
	Metadata  string
	CreatedAt time.Time
}

// Meta stores wallet-level bookkeeping: KDF salt and the passphrase
// check value. Never sealed with the record key.
type Meta struct {
	Name  string `gorm:"primaryKey"`
	Value []byte
}
