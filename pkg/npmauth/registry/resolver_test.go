/*
SPDX-FileCopyrightText: 2025 Deutsche Telekom AG

SPDX-License-Identifier: Apache-2.0
*/

package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticBackend struct {
	registries []string
	err        error
}

func (s *staticBackend) Registries() ([]string, error) { return s.registries, s.err }

func (s *staticBackend) RegistryRefreshToken(string) (string, bool, error) { return "", false, nil }

func (s *staticBackend) SetRegistryAuthToken(string, string) error { return nil }

func (s *staticBackend) SetRegistryRefreshToken(string, string) error { return nil }

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		project []string
		user    []string
		want    []string
	}{
		{
			name: "user fallback with duplicates",
			user: []string{"https://r1", "https://r2", "https://r1"},
			want: []string{"https://r1", "https://r2"},
		},
		{
			name:    "project is authoritative",
			project: []string{"https://p1"},
			user:    []string{"https://u1", "https://u2"},
			want:    []string{"https://p1"},
		},
		{
			name:    "project duplicates keep first occurrence order",
			project: []string{"https://p2", "https://p1", "https://p2", "https://p3", "https://p1"},
			want:    []string{"https://p2", "https://p1", "https://p3"},
		},
		{
			name:    "exact string equality",
			project: []string{"https://r1", "https://r1/"},
			want:    []string{"https://r1", "https://r1/"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(&staticBackend{registries: tt.user}, &staticBackend{registries: tt.project})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveNoRegistries(t *testing.T) {
	_, err := Resolve(&staticBackend{}, &staticBackend{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoRegistriesConfigured))

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), ".npmrc")
}

func TestResolveNoRegistriesYarn(t *testing.T) {
	_, err := Resolve(&yarnrcBackend{path: t.TempDir() + "/u.yml"}, &yarnrcBackend{path: t.TempDir() + "/p.yml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".yarnrc.yml")
}

func TestResolvePropagatesReadErrors(t *testing.T) {
	boom := errors.New("boom")

	_, err := Resolve(&staticBackend{}, &staticBackend{err: boom})
	require.ErrorIs(t, err, boom)

	_, err = Resolve(&staticBackend{err: boom}, &staticBackend{})
	require.ErrorIs(t, err, boom)
}

func TestResolveScopedReportsSource(t *testing.T) {
	res, err := ResolveScoped(&staticBackend{registries: []string{"https://u"}}, &staticBackend{})
	require.NoError(t, err)
	assert.Equal(t, ScopeUser, res.Source)

	res, err = ResolveScoped(&staticBackend{registries: []string{"https://u"}}, &staticBackend{registries: []string{"https://p"}})
	require.NoError(t, err)
	assert.Equal(t, ScopeProject, res.Source)
	assert.Equal(t, []string{"https://p"}, res.Registries)
}
