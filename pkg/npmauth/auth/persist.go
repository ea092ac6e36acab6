package auth

import (
	"errors"
	"fmt"
)

// TokenWriter stores credentials for a registry.
type TokenWriter interface {
	SetRegistryAuthToken(registry, token string) error
	SetRegistryRefreshToken(registry, token string) error
}

// Persister writes an authenticated token set into a configuration backend.
type Persister struct {
	Store TokenWriter
}

// Persist writes the access token and then, when issued, the refresh token.
// The two writes are not transactional; a stale refresh token heals on the
// next device flow.
func (p *Persister) Persist(registry string, token *TokenSet) error {
	if p.Store == nil {
		return errors.New("token store is required")
	}
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("no access token to persist for %s", registry)
	}
	if err := p.Store.SetRegistryAuthToken(registry, token.AccessToken); err != nil {
		return fmt.Errorf("failed to store auth token for %s: %w", registry, err)
	}
	if token.RefreshToken == "" {
		return nil
	}
	if err := p.Store.SetRegistryRefreshToken(registry, token.RefreshToken); err != nil {
		return fmt.Errorf("failed to store refresh token for %s: %w", registry, err)
	}
	return nil
}
