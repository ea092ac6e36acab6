/*
SPDX-FileCopyrightText: 2025 Deutsche Telekom AG

SPDX-License-Identifier: Apache-2.0
*/

package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/telekom/npmauth/pkg/system"
)

const testRegistry = "https://pkgs.dev.azure.com/org/_packaging/feed/npm/registry/"

// fakeClient is a scripted IdentityClient.
type fakeClient struct {
	mu            sync.Mutex
	refreshResult RefreshResult
	deviceToken   *TokenSet
	deviceErr     error
	authorizeErr  error

	refreshCalls []string
	deviceCalls  []string
	pollCalls    int
}

func (f *fakeClient) Refresh(_ context.Context, refreshToken string) RefreshResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls = append(f.refreshCalls, refreshToken)
	return f.refreshResult
}

func (f *fakeClient) DeviceAuthorization(_ context.Context, scope string) (*DeviceAuthorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deviceCalls = append(f.deviceCalls, scope)
	if f.authorizeErr != nil {
		return nil, f.authorizeErr
	}
	return NewDeviceAuthorization("https://microsoft.com/devicelogin", "ABCD-1234", func(context.Context) (*TokenSet, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.pollCalls++
		return f.deviceToken, f.deviceErr
	}), nil
}

// memoryStore is an in-memory registry.Backend.
type memoryStore struct {
	registries []string
	auth       map[string]string
	refresh    map[string]string
	writes     []string
	lookupErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{auth: map[string]string{}, refresh: map[string]string{}}
}

func (m *memoryStore) Registries() ([]string, error) { return m.registries, nil }

func (m *memoryStore) RegistryRefreshToken(registry string) (string, bool, error) {
	if m.lookupErr != nil {
		return "", false, m.lookupErr
	}
	token, ok := m.refresh[registry]
	return token, ok, nil
}

func (m *memoryStore) SetRegistryAuthToken(registry, token string) error {
	m.writes = append(m.writes, "auth:"+registry)
	m.auth[registry] = token
	return nil
}

func (m *memoryStore) SetRegistryRefreshToken(registry, token string) error {
	m.writes = append(m.writes, "refresh:"+registry)
	m.refresh[registry] = token
	return nil
}

// recordingInteractor records prompts and can fail the side actions.
type recordingInteractor struct {
	messages     []string
	presented    []string
	confirmed    int
	opened       []string
	clipboardErr error
	browserErr   error
	confirmErr   error
}

func (r *recordingInteractor) Message(_ MessageKind, text string) {
	r.messages = append(r.messages, text)
}
func (r *recordingInteractor) RegistryFound(registry string) {
	r.messages = append(r.messages, "found "+registry)
}
func (r *recordingInteractor) RegistryDone(registry string) {
	r.messages = append(r.messages, "done "+registry)
}
func (r *recordingInteractor) PresentDeviceCode(uri, code string) {
	r.presented = append(r.presented, uri+" "+code)
}
func (r *recordingInteractor) CopyToClipboard(string) error { return r.clipboardErr }
func (r *recordingInteractor) AwaitConfirmation(context.Context, string, bool) error {
	r.confirmed++
	return r.confirmErr
}
func (r *recordingInteractor) OpenBrowser(url string) error {
	r.opened = append(r.opened, url)
	return r.browserErr
}

func newManager(t *testing.T, client *fakeClient, store *memoryStore, ui *recordingInteractor) *Manager {
	return &Manager{Client: client, Store: store, Interactor: ui, Log: system.NewTestLogger(t)}
}

func retrieveErr(code string) error {
	return &oauth2.RetrieveError{ErrorCode: code, ErrorDescription: code + " from test"}
}

func TestAcquire_RefreshSucceeds(t *testing.T) {
	store := newMemoryStore()
	store.refresh[testRegistry] = "stored-refresh"
	client := &fakeClient{refreshResult: RefreshResult{Outcome: RefreshSucceeded, Token: &TokenSet{AccessToken: "new-access", RefreshToken: "new-refresh"}}}
	ui := &recordingInteractor{}

	token, err := newManager(t, client, store, ui).Acquire(context.Background(), testRegistry)
	require.NoError(t, err)
	assert.Equal(t, "new-access", token.AccessToken)
	assert.Equal(t, []string{"stored-refresh"}, client.refreshCalls)
	assert.Empty(t, client.deviceCalls, "device authorization must not run after a successful refresh")
}

func TestAcquire_RecoverableRefreshFallsBackToDeviceFlow(t *testing.T) {
	for _, code := range []string{"invalid_grant", "interaction_required"} {
		t.Run(code, func(t *testing.T) {
			store := newMemoryStore()
			store.refresh[testRegistry] = "stale"
			client := &fakeClient{
				refreshResult: RefreshFailure(retrieveErr(code)),
				deviceToken:   &TokenSet{AccessToken: "device-access", RefreshToken: "device-refresh"},
			}
			ui := &recordingInteractor{}

			token, err := newManager(t, client, store, ui).Acquire(context.Background(), testRegistry)
			require.NoError(t, err)
			assert.Equal(t, "device-access", token.AccessToken)
			assert.Len(t, client.refreshCalls, 1)
			assert.Equal(t, []string{DeviceScope}, client.deviceCalls)
			assert.Equal(t, 1, client.pollCalls)
			assert.Equal(t, []string{"https://microsoft.com/devicelogin ABCD-1234"}, ui.presented)
		})
	}
}

func TestAcquire_InteractionRequiredMessage(t *testing.T) {
	store := newMemoryStore()
	store.refresh[testRegistry] = "stale"
	client := &fakeClient{
		refreshResult: RefreshFailure(retrieveErr("interaction_required")),
		deviceToken:   &TokenSet{AccessToken: "a"},
	}
	ui := &recordingInteractor{}

	_, err := newManager(t, client, store, ui).Acquire(context.Background(), testRegistry)
	require.NoError(t, err)
	assert.Contains(t, ui.messages, "Interaction required.")
}

func TestAcquire_UnknownRefreshErrorIsFatal(t *testing.T) {
	store := newMemoryStore()
	store.refresh[testRegistry] = "stored"
	original := retrieveErr("invalid_client")
	client := &fakeClient{refreshResult: RefreshFailure(original)}

	_, err := newManager(t, client, store, &recordingInteractor{}).Acquire(context.Background(), testRegistry)
	require.Error(t, err)
	assert.ErrorIs(t, err, original)

	var refreshErr *RefreshError
	require.True(t, errors.As(err, &refreshErr))
	assert.Equal(t, "invalid_client", refreshErr.Code)
	assert.False(t, refreshErr.Recoverable())
	assert.Empty(t, client.deviceCalls, "device flow must not run after a fatal refresh error")
}

func TestAcquire_TransportErrorIsFatal(t *testing.T) {
	store := newMemoryStore()
	store.refresh[testRegistry] = "stored"
	client := &fakeClient{refreshResult: RefreshFailure(errors.New("dial tcp: i/o timeout"))}

	_, err := newManager(t, client, store, &recordingInteractor{}).Acquire(context.Background(), testRegistry)
	require.Error(t, err)
	assert.Empty(t, client.deviceCalls)
}

func TestAcquire_NoStoredTokenGoesStraightToDeviceFlow(t *testing.T) {
	client := &fakeClient{deviceToken: &TokenSet{AccessToken: "device-access"}}
	ui := &recordingInteractor{}

	token, err := newManager(t, client, newMemoryStore(), ui).Acquire(context.Background(), testRegistry)
	require.NoError(t, err)
	assert.Equal(t, "device-access", token.AccessToken)
	assert.Empty(t, client.refreshCalls)
	assert.Len(t, client.deviceCalls, 1)
	assert.Equal(t, 1, ui.confirmed)
	assert.Equal(t, []string{"https://microsoft.com/devicelogin"}, ui.opened)
}

func TestAcquire_SideActionFailuresDoNotAffectOutcome(t *testing.T) {
	client := &fakeClient{deviceToken: &TokenSet{AccessToken: "device-access"}}
	ui := &recordingInteractor{
		clipboardErr: errors.New("no clipboard"),
		browserErr:   errors.New("no browser"),
	}

	token, err := newManager(t, client, newMemoryStore(), ui).Acquire(context.Background(), testRegistry)
	require.NoError(t, err)
	assert.Equal(t, "device-access", token.AccessToken)
	assert.Contains(t, ui.messages, "Warning: Could not open browser automatically")
}

func TestAcquire_ConfirmationFailureSkipsBrowserButPolls(t *testing.T) {
	client := &fakeClient{deviceToken: &TokenSet{AccessToken: "device-access"}}
	ui := &recordingInteractor{confirmErr: errors.New("EOF")}

	token, err := newManager(t, client, newMemoryStore(), ui).Acquire(context.Background(), testRegistry)
	require.NoError(t, err)
	assert.Equal(t, "device-access", token.AccessToken)
	assert.Empty(t, ui.opened)
	assert.Equal(t, 1, client.pollCalls)
}

func TestAcquire_CanceledConfirmationFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &fakeClient{deviceToken: &TokenSet{AccessToken: "device-access"}}
	ui := &recordingInteractor{confirmErr: context.Canceled}

	_, err := newManager(t, client, newMemoryStore(), ui).Acquire(ctx, testRegistry)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, client.pollCalls)
}

func TestAcquire_NonInteractiveSkipsPromptAndBrowser(t *testing.T) {
	client := &fakeClient{deviceToken: &TokenSet{AccessToken: "device-access"}}
	ui := &recordingInteractor{}
	manager := newManager(t, client, newMemoryStore(), ui)
	manager.NonInteractive = true

	_, err := manager.Acquire(context.Background(), testRegistry)
	require.NoError(t, err)
	assert.Zero(t, ui.confirmed)
	assert.Empty(t, ui.opened)
	assert.Len(t, ui.presented, 1)
}

func TestAcquire_DeviceFlowFailures(t *testing.T) {
	denied := &DeviceFlowError{Stage: "poll", Code: "access_denied", Err: retrieveErr("access_denied")}
	client := &fakeClient{deviceErr: denied}

	_, err := newManager(t, client, newMemoryStore(), &recordingInteractor{}).Acquire(context.Background(), testRegistry)
	require.ErrorIs(t, err, denied)

	authorizeErr := &DeviceFlowError{Stage: "authorization", Err: errors.New("unreachable")}
	client = &fakeClient{authorizeErr: authorizeErr}
	_, err = newManager(t, client, newMemoryStore(), &recordingInteractor{}).Acquire(context.Background(), testRegistry)
	require.ErrorIs(t, err, authorizeErr)
	assert.Zero(t, client.pollCalls)
}

func TestAcquire_LookupErrorFails(t *testing.T) {
	store := newMemoryStore()
	store.lookupErr = errors.New("permission denied")
	client := &fakeClient{}

	_, err := newManager(t, client, store, &recordingInteractor{}).Acquire(context.Background(), testRegistry)
	require.ErrorIs(t, err, store.lookupErr)
	assert.Empty(t, client.refreshCalls)
	assert.Empty(t, client.deviceCalls)
}

func TestRefreshFailureClassification(t *testing.T) {
	tests := []struct {
		err  error
		want RefreshOutcome
	}{
		{retrieveErr("invalid_grant"), RefreshRecoverable},
		{retrieveErr("interaction_required"), RefreshRecoverable},
		{retrieveErr("invalid_client"), RefreshFatal},
		{retrieveErr(""), RefreshFatal},
		{errors.New("network down"), RefreshFatal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			result := RefreshFailure(tt.err)
			assert.Equal(t, tt.want, result.Outcome)
			assert.Nil(t, result.Token)
			assert.ErrorIs(t, result.Err, tt.err)
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "AttemptingRefresh", StateAttemptingRefresh.String())
	assert.Equal(t, "State(42)", State(42).String())
}
