package registry

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the keychain service name refresh tokens are stored under.
const DefaultKeyringService = "npmauth"

// keyringBackend keeps refresh tokens in the OS keychain and delegates
// everything else to the wrapped file backend, which package managers read.
type keyringBackend struct {
	Backend
	service string
}

// WithKeyring wraps backend so refresh tokens are read from and written to the OS keychain.
func WithKeyring(backend Backend, service string) Backend {
	if service == "" {
		service = DefaultKeyringService
	}
	return &keyringBackend{Backend: backend, service: service}
}

func (b *keyringBackend) RegistryRefreshToken(registry string) (string, bool, error) {
	secret, err := keyring.Get(b.service, NerfDart(registry))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read refresh token from keychain: %w", err)
	}
	return secret, secret != "", nil
}

func (b *keyringBackend) SetRegistryRefreshToken(registry, token string) error {
	if err := keyring.Set(b.service, NerfDart(registry), token); err != nil {
		return fmt.Errorf("failed to store refresh token in keychain: %w", err)
	}
	return nil
}
