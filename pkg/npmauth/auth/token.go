package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// TokenSet is the credential material produced by a successful grant.
type TokenSet struct {
	AccessToken string
	// RefreshToken is empty when the provider did not issue one.
	RefreshToken string
	// Expiry is zero when unknown.
	Expiry time.Time
}

func newTokenSet(token *oauth2.Token) *TokenSet {
	if token == nil {
		return nil
	}
	return &TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
}

// RefreshOutcome tags the result of a refresh attempt.
type RefreshOutcome int

const (
	RefreshSucceeded RefreshOutcome = iota
	// RefreshRecoverable means the stored token is stale; fall back to the device flow.
	RefreshRecoverable
	// RefreshFatal means the failure is not known to be safe to paper over.
	RefreshFatal
)

func (o RefreshOutcome) String() string {
	switch o {
	case RefreshSucceeded:
		return "succeeded"
	case RefreshRecoverable:
		return "recoverable"
	case RefreshFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// RefreshResult is returned by IdentityClient.Refresh. Token is set on
// success, Err (a *RefreshError) otherwise.
type RefreshResult struct {
	Outcome RefreshOutcome
	Token   *TokenSet
	Err     error
}

// RefreshFailure classifies err into a recoverable or fatal RefreshResult.
func RefreshFailure(err error) RefreshResult {
	refreshErr := &RefreshError{Code: oauthErrorCode(err), Err: err}
	if refreshErr.Recoverable() {
		return RefreshResult{Outcome: RefreshRecoverable, Err: refreshErr}
	}
	return RefreshResult{Outcome: RefreshFatal, Err: refreshErr}
}

// DeviceAuthorization is a pending device authorization. It lives for one
// device-flow attempt and is never persisted.
type DeviceAuthorization struct {
	VerificationURI string
	UserCode        string
	poll            func(context.Context) (*TokenSet, error)
}

// NewDeviceAuthorization builds a handle whose Poll delegates to poll.
func NewDeviceAuthorization(verificationURI, userCode string, poll func(context.Context) (*TokenSet, error)) *DeviceAuthorization {
	return &DeviceAuthorization{VerificationURI: verificationURI, UserCode: userCode, poll: poll}
}

// Poll blocks until the provider reports success, denial or expiry.
func (d *DeviceAuthorization) Poll(ctx context.Context) (*TokenSet, error) {
	if d.poll == nil {
		return nil, &DeviceFlowError{Stage: "poll", Err: errors.New("device authorization has no poller")}
	}
	return d.poll(ctx)
}
