package auth

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const (
	// DefaultAuthorityHost is the Microsoft identity platform login host.
	DefaultAuthorityHost = "https://login.microsoftonline.com"

	// RequestTimeout bounds every outbound call made for OIDC operations.
	// The identity platform occasionally stalls connections indefinitely.
	RequestTimeout = 5 * time.Second
)

// requestTimeout is RequestTimeout, shortened by tests.
var requestTimeout = RequestTimeout

// Provider is a discovered OIDC issuer with a public client able to refresh
// tokens and run the device authorization grant.
type Provider struct {
	tenant string
	oauth  oauth2.Config
	client *http.Client
}

type discoverOptions struct {
	authorityHost string
}

// DiscoverOption customizes Discover.
type DiscoverOption func(*discoverOptions)

// WithAuthorityHost replaces DefaultAuthorityHost, e.g. for sovereign clouds.
func WithAuthorityHost(host string) DiscoverOption {
	return func(o *discoverOptions) {
		if host != "" {
			o.authorityHost = host
		}
	}
}

// Discover fetches the tenant's OpenID configuration document and returns a
// Provider for clientID.
func Discover(ctx context.Context, tenant, clientID string, opts ...DiscoverOption) (*Provider, error) {
	o := discoverOptions{authorityHost: DefaultAuthorityHost}
	for _, opt := range opts {
		opt(&o)
	}
	if tenant == "" {
		tenant = DefaultTenantID
	}
	if clientID == "" {
		return nil, &DiscoveryError{Tenant: tenant, Err: errors.New("client-id is required")}
	}

	client := newHTTPClient()
	authority := strings.TrimRight(o.authorityHost, "/") + "/" + url.PathEscape(tenant) + "/v2.0"

	// Multi-tenant documents advertise a templated "{tenantid}" issuer that
	// never matches the discovery URL.
	ctx = oidc.ClientContext(ctx, client)
	ctx = oidc.InsecureIssuerURLContext(ctx, authority)
	provider, err := oidc.NewProvider(ctx, authority)
	if err != nil {
		return nil, &DiscoveryError{Tenant: tenant, Err: err}
	}

	endpoint := provider.Endpoint()
	if endpoint.DeviceAuthURL == "" {
		var claims struct {
			DeviceAuthorizationEndpoint string `json:"device_authorization_endpoint"`
		}
		if err := provider.Claims(&claims); err != nil {
			return nil, &DiscoveryError{Tenant: tenant, Err: fmt.Errorf("malformed provider metadata: %w", err)}
		}
		endpoint.DeviceAuthURL = claims.DeviceAuthorizationEndpoint
	}
	if endpoint.TokenURL == "" {
		return nil, &DiscoveryError{Tenant: tenant, Err: errors.New("token endpoint not advertised")}
	}
	if endpoint.DeviceAuthURL == "" {
		return nil, &DiscoveryError{Tenant: tenant, Err: errors.New("device authorization endpoint not advertised")}
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return &Provider{
		tenant: tenant,
		oauth: oauth2.Config{
			ClientID: clientID,
			Endpoint: endpoint,
		},
		client: client,
	}, nil
}

// Refresh exchanges refreshToken for a new token set.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	source := p.oauth.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return RefreshFailure(err)
	}
	return RefreshResult{Outcome: RefreshSucceeded, Token: newTokenSet(token)}
}

// DeviceAuthorization starts a device authorization grant for the space
// separated scope list.
func (p *Provider) DeviceAuthorization(ctx context.Context, scope string) (*DeviceAuthorization, error) {
	cfg := p.oauth
	cfg.Scopes = strings.Fields(scope)
	resp, err := cfg.DeviceAuth(p.clientContext(ctx))
	if err != nil {
		return nil, &DeviceFlowError{Stage: "authorization", Code: oauthErrorCode(err), Err: err}
	}
	poll := func(ctx context.Context) (*TokenSet, error) {
		// Cadence, slow_down and expiry are driven by the provider's response.
		token, err := cfg.DeviceAccessToken(p.clientContext(ctx), resp)
		if err != nil {
			return nil, &DeviceFlowError{Stage: "poll", Code: oauthErrorCode(err), Err: err}
		}
		return newTokenSet(token), nil
	}
	return NewDeviceAuthorization(resp.VerificationURI, resp.UserCode, poll), nil
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

func newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	return &http.Client{Transport: transport, Timeout: requestTimeout}
}
