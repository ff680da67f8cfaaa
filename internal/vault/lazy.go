package vault

import (
	"context"
	"sync"
)

// Lazy is a process-wide vault handle. The vault is opened on first use,
// stays open until Close, and is reopened by the next use after that.
// A failed open is not cached.
type Lazy struct {
	path       string
	passphrase func() []byte

	mu sync.Mutex
	v  *Vault
}

// NewLazy returns a handle for the vault at path. passphrase is called once
// per open.
func NewLazy(path string, passphrase func() []byte) *Lazy {
	return &Lazy{path: path, passphrase: passphrase}
}

// Path returns the vault's database path.
func (l *Lazy) Path() string { return l.path }

// Vault returns the open vault, opening it if needed.
func (l *Lazy) Vault(ctx context.Context) (*Vault, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.v != nil {
		return l.v, nil
	}
	v, err := Open(ctx, l.path, l.passphrase())
	if err != nil {
		return nil, err
	}
	l.v = v
	return v, nil
}

// Close closes the vault if it is open.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.v == nil {
		return nil
	}
	err := l.v.Close()
	l.v = nil
	return err
}

// Credential is one secret in a vault.
type Credential struct {
	handle *Lazy
	name   string
}

// Credential returns the secret stored under name.
func (l *Lazy) Credential(name string) Credential {
	return Credential{handle: l, name: name}
}

// Get returns the secret, or "" if it is not set.
func (c Credential) Get(ctx context.Context) (string, error) {
	v, err := c.handle.Vault(ctx)
	if err != nil {
		return "", err
	}
	return v.Get(ctx, c.name)
}

// Set stores the secret.
func (c Credential) Set(ctx context.Context, value string) error {
	v, err := c.handle.Vault(ctx)
	if err != nil {
		return err
	}
	return v.Set(ctx, c.name, value)
}

// Clear removes the secret.
func (c Credential) Clear(ctx context.Context) error {
	v, err := c.handle.Vault(ctx)
	if err != nil {
		return err
	}
	return v.Clear(ctx, c.name)
}
