// Package vault stores secrets in a local SQLite database, sealed with
// XChaCha20-Poly1305 under a key derived from a passphrase with Argon2id.
package vault

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	_ "modernc.org/sqlite"
)

// Record names.
const (
	DefaultStore = "main"
	APIKeyRecord = "elevenlabs-api-key"
)

var (
	// ErrStoreUnavailable is returned when the vault database cannot be opened.
	ErrStoreUnavailable = errors.New("vault: store unavailable")

	// ErrWrongPassphrase is returned when the passphrase does not open the vault.
	ErrWrongPassphrase = errors.New("vault: wrong passphrase")

	// ErrClosed is returned by a vault used after Close.
	ErrClosed = errors.New("vault: closed")
)

// Argon2id parameters.
const (
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4
	saltSize   = 16
)

// checkPlaintext is sealed at creation and opened on every Open to verify
// the passphrase.
const checkPlaintext = "vista-vault-v1"

// Vault is an open secret store.
type Vault struct {
	db     *sql.DB
	aead   cipher.AEAD
	store  string
	logger *log.Logger
	clock  func() time.Time
}

// Open opens or creates the vault at path.
func Open(ctx context.Context, path string, passphrase []byte) (*Vault, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("%w: create data dir: %w", ErrStoreUnavailable, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", ErrStoreUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping sqlite: %w", ErrStoreUnavailable, err)
	}

	v := &Vault{
		db:     db,
		store:  DefaultStore,
		logger: log.Default().WithPrefix("vault"),
		clock:  time.Now,
	}
	if err := v.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: schema: %w", ErrStoreUnavailable, err)
	}
	if err := v.unlock(ctx, passphrase); err != nil {
		db.Close()
		return nil, err
	}

	// Owner-only, like the data dir.
	_ = os.Chmod(path, 0o600)
	return v, nil
}

func (v *Vault) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS vault_meta (
    name TEXT PRIMARY KEY,
    value BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS vault_records (
    store TEXT NOT NULL,
    name TEXT NOT NULL,
    nonce BLOB NOT NULL,
    ciphertext BLOB NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (store, name)
);
`
	_, err := v.db.ExecContext(ctx, ddl)
	return err
}

// unlock derives the key from the stored salt, creating salt and check
// value on first use.
func (v *Vault) unlock(ctx context.Context, passphrase []byte) error {
	salt, err := v.meta(ctx, "salt")
	if err != nil {
		return fmt.Errorf("%w: read salt: %w", ErrStoreUnavailable, err)
	}
	fresh := salt == nil
	if fresh {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("vault: generate salt: %w", err)
		}
	}

	key := argon2.IDKey(passphrase, salt, kdfTime, kdfMemory, kdfThreads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("vault: cipher: %w", err)
	}
	v.aead = aead

	if fresh {
		nonce, sealed, err := v.seal("meta/check", []byte(checkPlaintext))
		if err != nil {
			return err
		}
		tx, err := v.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		defer tx.Rollback()
		for name, value := range map[string][]byte{"salt": salt, "check": append(nonce, sealed...)} {
			if _, err := tx.ExecContext(ctx, `INSERT INTO vault_meta(name, value) VALUES(?, ?)`, name, value); err != nil {
				return fmt.Errorf("%w: write %s: %w", ErrStoreUnavailable, name, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		v.logger.Debug("vault created")
		return nil
	}

	check, err := v.meta(ctx, "check")
	if err != nil || len(check) < chacha20poly1305.NonceSizeX {
		return fmt.Errorf("%w: missing check value", ErrStoreUnavailable)
	}
	plain, err := v.open("meta/check", check[:chacha20poly1305.NonceSizeX], check[chacha20poly1305.NonceSizeX:])
	if err != nil || string(plain) != checkPlaintext {
		return ErrWrongPassphrase
	}
	return nil
}

func (v *Vault) meta(ctx context.Context, name string) ([]byte, error) {
	var value []byte
	err := v.db.QueryRowContext(ctx, `SELECT value FROM vault_meta WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return value, err
}

func (v *Vault) seal(aad string, plaintext []byte) (nonce, ciphertext []byte, err error) {
	nonce = make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("vault: generate nonce: %w", err)
	}
	return nonce, v.aead.Seal(nil, nonce, plaintext, []byte(aad)), nil
}

func (v *Vault) open(aad string, nonce, ciphertext []byte) ([]byte, error) {
	return v.aead.Open(nil, nonce, ciphertext, []byte(aad))
}

func (v *Vault) aad(name string) string {
	return v.store + "/" + name
}

// Get returns the secret stored under name, or "" if there is none.
func (v *Vault) Get(ctx context.Context, name string) (string, error) {
	if v.db == nil {
		return "", ErrClosed
	}
	var nonce, sealed []byte
	err := v.db.QueryRowContext(ctx,
		`SELECT nonce, ciphertext FROM vault_records WHERE store = ? AND name = ?`,
		v.store, name).Scan(&nonce, &sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrStoreUnavailable, name, err)
	}
	plain, err := v.open(v.aad(name), nonce, sealed)
	if err != nil {
		return "", fmt.Errorf("vault: record %s is corrupt: %w", name, err)
	}
	return string(plain), nil
}

// Set stores value under name, replacing any previous value.
func (v *Vault) Set(ctx context.Context, name, value string) error {
	if v.db == nil {
		return ErrClosed
	}
	nonce, sealed, err := v.seal(v.aad(name), []byte(value))
	if err != nil {
		return err
	}
	_, err = v.db.ExecContext(ctx,
		`INSERT INTO vault_records(store, name, nonce, ciphertext, updated_at)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(store, name) DO UPDATE SET nonce=excluded.nonce, ciphertext=excluded.ciphertext, updated_at=excluded.updated_at`,
		v.store, name, nonce, sealed, v.clock().UTC())
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrStoreUnavailable, name, err)
	}
	v.logger.Debug("record stored", "name", name)
	return nil
}

// Clear removes the secret stored under name.
func (v *Vault) Clear(ctx context.Context, name string) error {
	if v.db == nil {
		return ErrClosed
	}
	if _, err := v.db.ExecContext(ctx,
		`DELETE FROM vault_records WHERE store = ? AND name = ?`, v.store, name); err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrStoreUnavailable, name, err)
	}
	v.logger.Debug("record cleared", "name", name)
	return nil
}

// Close releases the database.
func (v *Vault) Close() error {
	if v.db == nil {
		return nil
	}
	err := v.db.Close()
	v.db = nil
	return err
}
