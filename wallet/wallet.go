// Package wallet is an encrypted, transactional record store backed by
// sqlite. Record values are sealed client-side; sessions map onto
// database transactions so multi-step mutations land atomically.
package wallet

import (
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrNotFound  = errors.New("record not found in wallet")
	ErrDuplicate = errors.New("record already present in wallet")
)

const (
	metaSalt  = "salt"
	metaCheck = "check"
)

// canary is sealed at creation time so Open can tell a wrong
// passphrase apart from a corrupt wallet.
var canary = []byte("wicker-wallet-check")

type Wallet struct {
	db   *gorm.DB
	aead cipher.AEAD
}

// Record is an unsealed wallet item. Tags are opaque to the wallet;
// callers decide what, if anything, goes in them.
type Record struct {
	Category string
	Name     string
	Value    []byte
	Tags     []byte
}

// Create initializes a new wallet at path. Fails if one already exists.
func Create(path string, passphrase string) (*Wallet, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("wallet already exists at %s", path)
	}

	db, err := openDb(path)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	w := &Wallet{db: db, aead: aead}

	check, err := w.seal(canary)
	if err != nil {
		return nil, err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&Meta{Name: metaSalt, Value: salt}).Error; err != nil {
			return err
		}
		return tx.Create(&Meta{Name: metaCheck, Value: check}).Error
	})
	if err != nil {
		return nil, err
	}

	return w, nil
}

// Open opens an existing wallet, failing with ErrBadPassphrase if the
// passphrase can't unseal the check value.
func Open(path string, passphrase string) (*Wallet, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("wallet does not exist at %s", path)
	}

	db, err := openDb(path)
	if err != nil {
		return nil, err
	}

	var salt Meta
	if err := db.First(&salt, Meta{Name: metaSalt}).Error; err != nil {
		return nil, fmt.Errorf("wallet metadata is missing: %w", err)
	}

	aead, err := chacha20poly1305.New(deriveKey(passphrase, salt.Value))
	if err != nil {
		return nil, err
	}

	w := &Wallet{db: db, aead: aead}

	var check Meta
	if err := db.First(&check, Meta{Name: metaCheck}).Error; err != nil {
		return nil, fmt.Errorf("wallet metadata is missing: %w", err)
	}

	if _, err := w.open(check.Value); err != nil {
		return nil, ErrBadPassphrase
	}

	return w, nil
}

func openDb(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Item{}, &Key{}, &Meta{}); err != nil {
		return nil, err
	}

	return db, nil
}

func (w *Wallet) Close() error {
	sqlDb, err := w.db.DB()
	if err != nil {
		return err
	}
	return sqlDb.Close()
}

// Session is a wallet transaction. All reads and writes inside one
// session commit or roll back together.
type Session struct {
	w  *Wallet
	tx *gorm.DB
}

// Update runs fn inside a read-write transaction.
func (w *Wallet) Update(fn func(s *Session) error) error {
	return w.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Session{w: w, tx: tx})
	})
}

// View runs fn inside a transaction used only for reads.
func (w *Wallet) View(fn func(s *Session) error) error {
	return w.Update(fn)
}

// Fetch reads one record. forUpdate signals intent to replace the
// record in the same session; sqlite serializes writers so the flag
// carries no extra locking here, but callers that mutate must set it
// so stores with row locks behave correctly.
func (s *Session) Fetch(category string, name string, forUpdate bool) (*Record, error) {
	var item Item
	if err := s.tx.First(&item, Item{Category: category, Name: name}).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, category, name)
		}
		return nil, err
	}
	return s.unsealItem(&item)
}

// FetchAll returns every record in a category.
func (s *Session) FetchAll(category string) ([]*Record, error) {
	var items []Item
	if err := s.tx.Where(&Item{Category: category}).Find(&items).Error; err != nil {
		return nil, err
	}

	recs := make([]*Record, 0, len(items))
	for i := range items {
		rec, err := s.unsealItem(&items[i])
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	return recs, nil
}

func (s *Session) unsealItem(item *Item) (*Record, error) {
	value, err := s.w.open(item.Value)
	if err != nil {
		return nil, err
	}

	var tags []byte
	if len(item.Tags) > 0 {
		tags, err = s.w.open(item.Tags)
		if err != nil {
			return nil, err
		}
	}

	return &Record{
		Category: item.Category,
		Name:     item.Name,
		Value:    value,
		Tags:     tags,
	}, nil
}

// Insert creates a record, failing with ErrDuplicate if one already
// exists under the same category and name.
func (s *Session) Insert(category string, name string, value []byte, tags []byte) error {
	item, err := s.sealItem(category, name, value, tags)
	if err != nil {
		return err
	}

	if err := s.tx.Create(item).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s/%s", ErrDuplicate, category, name)
		}
		return err
	}

	return nil
}

// Replace overwrites an existing record in a single write.
func (s *Session) Replace(category string, name string, value []byte, tags []byte) error {
	item, err := s.sealItem(category, name, value, tags)
	if err != nil {
		return err
	}

	res := s.tx.Model(&Item{}).
		Where(&Item{Category: category, Name: name}).
		Updates(map[string]any{"value": item.Value, "tags": item.Tags})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, category, name)
	}

	return nil
}

// Remove deletes a record.
func (s *Session) Remove(category string, name string) error {
	res := s.tx.Where(&Item{Category: category, Name: name}).Delete(&Item{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, category, name)
	}
	return nil
}

func (s *Session) sealItem(category string, name string, value []byte, tags []byte) (*Item, error) {
	sealed, err := s.w.seal(value)
	if err != nil {
		return nil, err
	}

	var sealedTags []byte
	if len(tags) > 0 {
		sealedTags, err = s.w.seal(tags)
		if err != nil {
			return nil, err
		}
	}

	return &Item{Category: category, Name: name, Value: sealed, Tags: sealedTags}, nil
}

// InsertKey stores a keypair under its verkey name.
func (s *Session) InsertKey(name string, priv ed25519.PrivateKey, metadata string) error {
	sealed, err := s.w.seal(priv)
	if err != nil {
		return err
	}

	if err := s.tx.Create(&Key{Name: name, Seckey: sealed, Metadata: metadata}).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: key %s", ErrDuplicate, name)
		}
		return err
	}

	return nil
}

func (s *Session) FetchKey(name string) (ed25519.PrivateKey, error) {
	var key Key
	if err := s.tx.First(&key, Key{Name: name}).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: key %s", ErrNotFound, name)
		}
		return nil, err
	}

	seckey, err := s.w.open(key.Seckey)
	if err != nil {
		return nil, err
	}
	if len(seckey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("stored key %s has unexpected size", name)
	}

	return ed25519.PrivateKey(seckey), nil
}

// Sign signs msg with the stored key named keyName.
func (w *Wallet) Sign(keyName string, msg []byte) ([]byte, error) {
	var sig []byte
	err := w.View(func(s *Session) error {
		priv, err := s.FetchKey(keyName)
		if err != nil {
			return err
		}
		sig = ed25519.Sign(priv, msg)
		return nil
	})
	return sig, err
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}
