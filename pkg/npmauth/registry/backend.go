package registry

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Scope selects which physical configuration file a backend reads and writes.
type Scope string

const (
	ScopeUser    Scope = "user"
	ScopeProject Scope = "project"
)

// Kind is the on-disk configuration format.
type Kind string

const (
	KindNpmrc  Kind = "npmrc"
	KindYarnrc Kind = "yarnrc"
)

const (
	npmrcFile  = ".npmrc"
	yarnrcFile = ".yarnrc.yml"
)

// Backend is the capability set shared by every scope and format combination.
type Backend interface {
	// Registries returns the registries configured in this file, in file order.
	Registries() ([]string, error)
	// RegistryRefreshToken returns the stored refresh token for registry, if any.
	RegistryRefreshToken(registry string) (string, bool, error)
	SetRegistryAuthToken(registry, token string) error
	SetRegistryRefreshToken(registry, token string) error
}

// Locations holds the directories used to find configuration files.
type Locations struct {
	HomeDir    string
	ProjectDir string
	// NpmUserConfig overrides the user .npmrc path (NPM_CONFIG_USERCONFIG).
	NpmUserConfig string
}

// Path returns the configuration file for kind at scope.
func (l Locations) Path(kind Kind, scope Scope) (string, error) {
	var dir string
	switch scope {
	case ScopeUser:
		if kind == KindNpmrc && l.NpmUserConfig != "" {
			return l.NpmUserConfig, nil
		}
		dir = l.HomeDir
	case ScopeProject:
		dir = l.ProjectDir
	default:
		return "", fmt.Errorf("unknown config scope: %q", scope)
	}
	if dir == "" {
		return "", fmt.Errorf("no directory configured for %s scope", scope)
	}
	switch kind {
	case KindNpmrc:
		return filepath.Join(dir, npmrcFile), nil
	case KindYarnrc:
		return filepath.Join(dir, yarnrcFile), nil
	default:
		return "", fmt.Errorf("unknown config kind: %q", kind)
	}
}

// DetectKind reports KindYarnrc when the project carries a .yarnrc.yml, KindNpmrc otherwise.
func DetectKind(projectDir string) Kind {
	if _, err := os.Stat(filepath.Join(projectDir, yarnrcFile)); err == nil {
		return KindYarnrc
	}
	return KindNpmrc
}

// Open returns the backend for kind at scope.
func Open(kind Kind, scope Scope, loc Locations) (Backend, error) {
	path, err := loc.Path(kind, scope)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindNpmrc:
		return &npmrcBackend{path: path}, nil
	case KindYarnrc:
		return &yarnrcBackend{path: path}, nil
	default:
		return nil, fmt.Errorf("unknown config kind: %q", kind)
	}
}

// ParseScope converts a user-supplied string into a Scope. Empty means ScopeUser.
func ParseScope(value string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(value))) {
	case "", ScopeUser:
		return ScopeUser, nil
	case ScopeProject:
		return ScopeProject, nil
	default:
		return "", fmt.Errorf("invalid scope %q: must be user or project", value)
	}
}

// NerfDart returns the scheme-less, trailing-slash form npm uses to key
// per-registry settings, e.g. "//pkgs.dev.azure.com/org/_packaging/feed/npm/registry/".
func NerfDart(registry string) string {
	parsed, err := url.Parse(registry)
	if err != nil || parsed.Host == "" {
		trimmed := strings.TrimPrefix(strings.TrimPrefix(registry, "https:"), "http:")
		if !strings.HasPrefix(trimmed, "//") {
			trimmed = "//" + strings.TrimLeft(trimmed, "/")
		}
		if !strings.HasSuffix(trimmed, "/") {
			trimmed += "/"
		}
		return trimmed
	}
	path := parsed.Path
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return "//" + parsed.Host + path
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	return nil
}

func readOptional(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return content, nil
}
