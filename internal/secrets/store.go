// Package secrets implements the SecretStore: custody of API keys, the
// journal's K_audit HMAC key, and the auth gate's K_jwt signing key. Secrets
// prefer the OS keyring; when a keyring write fails, Put falls back to an
// AES-256-GCM encrypted row store on local disk whose data-encryption key is
// itself a keyring entry, so the on-disk database alone never discloses
// secret material. Open needs a working keyring for that data key and fails
// without one.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
	_ "modernc.org/sqlite"
)

// Generator produces new secret material, e.g. a random 32-byte key or a
// caller-supplied API key entry form.
type Generator func() ([]byte, error)

// RandomBytes returns a Generator that yields n CSPRNG bytes, the shape
// K_audit and K_jwt are generated with (spec: "CSPRNG-generated ≥32-byte
// keys").
func RandomBytes(n int) Generator {
	return func() ([]byte, error) {
		b := make([]byte, n)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("secrets: generate random bytes: %w", err)
		}
		return b, nil
	}
}

// ErrNotFound is returned by Get when no secret is stored under name.
var ErrNotFound = errors.New("secrets: not found")

// ErrCorrupted is returned when a stored secret fails to decrypt, signalling
// on-disk tampering or a data-key mismatch.
var ErrCorrupted = errors.New("secrets: corrupted entry")

const keyringService = "orchestrator-core"

// dataKeyEntry is the keyring account under which the local store's AES
// data-encryption key lives.
const dataKeyEntry = "__store_data_key__"

// Store is the SecretStore (component A). The zero value is not usable; use
// Open.
type Store struct {
	db      *sql.DB
	dataKey [32]byte
	dir     string
}

// Open opens (creating if absent) the encrypted local store rooted at dir.
// dir and its database file are hardened to 0700/0600 respectively, mirroring
// the permission-hardening the desktop host's security module performs on
// its own state directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("secrets: create store dir: %w", err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		return nil, fmt.Errorf("secrets: harden store dir: %w", err)
	}

	dbPath := filepath.Join(dir, "secrets.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("secrets: open db: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS secrets (
		name       TEXT PRIMARY KEY,
		nonce      BLOB NOT NULL,
		ciphertext BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("secrets: create table: %w", err)
	}
	if err := os.Chmod(dbPath, 0o600); err != nil {
		db.Close()
		return nil, fmt.Errorf("secrets: harden db file: %w", err)
	}

	dataKey, err := loadOrCreateDataKey()
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, dataKey: dataKey, dir: dir}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func loadOrCreateDataKey() ([32]byte, error) {
	var key [32]byte
	encoded, err := keyring.Get(keyringService, dataKeyEntry)
	if err == nil {
		raw, decErr := base64.StdEncoding.DecodeString(encoded)
		if decErr != nil || len(raw) != 32 {
			return key, fmt.Errorf("%w: store data key malformed", ErrCorrupted)
		}
		copy(key[:], raw)
		return key, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return key, fmt.Errorf("secrets: read data key from keyring: %w", err)
	}

	if _, randErr := rand.Read(key[:]); randErr != nil {
		return key, fmt.Errorf("secrets: generate data key: %w", randErr)
	}
	if setErr := keyring.Set(keyringService, dataKeyEntry, base64.StdEncoding.EncodeToString(key[:])); setErr != nil {
		return key, fmt.Errorf("secrets: persist data key to keyring: %w", setErr)
	}
	return key, nil
}

// Get returns the secret stored under name, preferring the OS keyring and
// falling back to the local encrypted store. It returns (nil, ErrNotFound)
// when no secret is present under either backend.
func (s *Store) Get(name string) ([]byte, error) {
	if v, err := keyring.Get(keyringService, name); err == nil {
		return []byte(v), nil
	} else if !errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("secrets: keyring get %s: %w", name, err)
	}
	return s.getLocal(name)
}

// Put stores value under name, preferring the OS keyring.
func (s *Store) Put(name string, value []byte) error {
	if err := keyring.Set(keyringService, name, string(value)); err == nil {
		return nil
	}
	return s.putLocal(name, value)
}

// GetOrCreate returns the secret under name, generating and storing one via
// gen if absent.
func (s *Store) GetOrCreate(name string, gen Generator) ([]byte, error) {
	v, err := s.Get(name)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	v, err = gen()
	if err != nil {
		return nil, err
	}
	if err := s.Put(name, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Rotate generates a fresh secret via gen and overwrites name with it,
// returning the new value. Callers holding the old value (e.g. the auth
// gate invalidating sessions signed with the previous K_jwt) must re-read
// before Rotate returns to observe the old value one last time.
func (s *Store) Rotate(name string, gen Generator) ([]byte, error) {
	v, err := gen()
	if err != nil {
		return nil, err
	}
	if err := s.Put(name, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store) getLocal(name string) ([]byte, error) {
	var nonce, ciphertext []byte
	err := s.db.QueryRow(`SELECT nonce, ciphertext FROM secrets WHERE name = ?`, name).Scan(&nonce, &ciphertext)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("secrets: query %s: %w", name, err)
	}

	block, err := aes.NewCipher(s.dataKey[:])
	if err != nil {
		return nil, fmt.Errorf("secrets: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: init gcm: %w", err)
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorrupted, name)
	}
	return plain, nil
}

func (s *Store) putLocal(name string, value []byte) error {
	block, err := aes.NewCipher(s.dataKey[:])
	if err != nil {
		return fmt.Errorf("secrets: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("secrets: init gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("secrets: generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, value, nil)

	_, err = s.db.Exec(`INSERT INTO secrets (name, nonce, ciphertext) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET nonce = excluded.nonce, ciphertext = excluded.ciphertext`,
		name, nonce, ciphertext)
	if err != nil {
		return fmt.Errorf("secrets: store %s: %w", name, err)
	}
	return nil
}
