package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct {
	memoryStore
	authErr    error
	refreshErr error
}

func (f *failingWriter) SetRegistryAuthToken(registry, token string) error {
	if f.authErr != nil {
		return f.authErr
	}
	return f.memoryStore.SetRegistryAuthToken(registry, token)
}

func (f *failingWriter) SetRegistryRefreshToken(registry, token string) error {
	if f.refreshErr != nil {
		return f.refreshErr
	}
	return f.memoryStore.SetRegistryRefreshToken(registry, token)
}

func TestPersist(t *testing.T) {
	t.Run("writes access token before refresh token", func(t *testing.T) {
		store := newMemoryStore()
		err := (&Persister{Store: store}).Persist(testRegistry, &TokenSet{AccessToken: "a", RefreshToken: "r"})
		require.NoError(t, err)
		assert.Equal(t, []string{"auth:" + testRegistry, "refresh:" + testRegistry}, store.writes)
		assert.Equal(t, "a", store.auth[testRegistry])
		assert.Equal(t, "r", store.refresh[testRegistry])
	})

	t.Run("keeps stored refresh token when none issued", func(t *testing.T) {
		store := newMemoryStore()
		store.refresh[testRegistry] = "old"
		err := (&Persister{Store: store}).Persist(testRegistry, &TokenSet{AccessToken: "a"})
		require.NoError(t, err)
		assert.Equal(t, []string{"auth:" + testRegistry}, store.writes)
		assert.Equal(t, "old", store.refresh[testRegistry])
	})

	t.Run("access token failure skips refresh token", func(t *testing.T) {
		boom := errors.New("read-only file system")
		store := &failingWriter{memoryStore: *newMemoryStore(), authErr: boom}
		err := (&Persister{Store: store}).Persist(testRegistry, &TokenSet{AccessToken: "a", RefreshToken: "r"})
		require.ErrorIs(t, err, boom)
		assert.Empty(t, store.writes)
	})

	t.Run("refresh token failure leaves access token", func(t *testing.T) {
		boom := errors.New("disk full")
		store := &failingWriter{memoryStore: *newMemoryStore(), refreshErr: boom}
		err := (&Persister{Store: store}).Persist(testRegistry, &TokenSet{AccessToken: "a", RefreshToken: "r"})
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "refresh token")
		assert.Equal(t, "a", store.auth[testRegistry])
	})

	t.Run("rejects empty token set", func(t *testing.T) {
		err := (&Persister{Store: newMemoryStore()}).Persist(testRegistry, &TokenSet{})
		require.Error(t, err)
		err = (&Persister{}).Persist(testRegistry, &TokenSet{AccessToken: "a"})
		require.Error(t, err)
	})
}

func TestInspectAccessToken(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"aud":                ResourceID,
		"preferred_username": "dev@example.com",
		"exp":                exp.Unix(),
	}).SignedString([]byte("not-verified"))
	require.NoError(t, err)

	details, ok := InspectAccessToken(raw)
	require.True(t, ok)
	assert.Equal(t, "dev@example.com", details.Account)
	assert.True(t, exp.Equal(details.Expiry))

	t.Run("upn wins", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"upn":   "upn@example.com",
			"email": "mail@example.com",
		}).SignedString([]byte("k"))
		require.NoError(t, err)
		details, ok := InspectAccessToken(raw)
		require.True(t, ok)
		assert.Equal(t, "upn@example.com", details.Account)
		assert.True(t, details.Expiry.IsZero())
	})

	t.Run("opaque token", func(t *testing.T) {
		_, ok := InspectAccessToken("opaque-access-token")
		assert.False(t, ok)
	})
}

func TestErrorMessages(t *testing.T) {
	inner := errors.New("boom")
	assert.Equal(t, `failed to discover OIDC provider for tenant "common": boom`, (&DiscoveryError{Tenant: "common", Err: inner}).Error())
	assert.Equal(t, "refresh token grant failed: boom", (&RefreshError{Err: inner}).Error())
	assert.Equal(t, "refresh token grant failed (invalid_grant): boom", (&RefreshError{Code: "invalid_grant", Err: inner}).Error())
	assert.Equal(t, "device code poll failed (expired_token): boom", (&DeviceFlowError{Stage: "poll", Code: "expired_token", Err: inner}).Error())
	assert.ErrorIs(t, &DeviceFlowError{Stage: "poll", Err: inner}, inner)
}
