package auth

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// DiscoveryError reports that the provider metadata could not be fetched or used.
type DiscoveryError struct {
	Tenant string
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("failed to discover OIDC provider for tenant %q: %v", e.Tenant, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// RefreshError reports a failed refresh-token grant. Code is the OAuth error
// code returned by the token endpoint, empty for transport failures.
type RefreshError struct {
	Code string
	Err  error
}

func (e *RefreshError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("refresh token grant failed: %v", e.Err)
	}
	return fmt.Sprintf("refresh token grant failed (%s): %v", e.Code, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the stored refresh token is merely stale or
// insufficient, in which case a device flow can take over.
func (e *RefreshError) Recoverable() bool {
	switch e.Code {
	case "invalid_grant", "interaction_required":
		return true
	default:
		return false
	}
}

// DeviceFlowError reports a failed device authorization request or poll
// (denied, expired or a provider error).
type DeviceFlowError struct {
	Stage string
	Code  string
	Err   error
}

func (e *DeviceFlowError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("device code %s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("device code %s failed (%s): %v", e.Stage, e.Code, e.Err)
}

func (e *DeviceFlowError) Unwrap() error {
	return e.Err
}

// oauthErrorCode extracts the RFC 6749 error code from an x/oauth2 error.
func oauthErrorCode(err error) string {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return retrieveErr.ErrorCode
	}
	return ""
}
