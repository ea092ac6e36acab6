package registry

import (
	"errors"
	"fmt"

	"golang.org/x/exp/slices"
)

// ErrNoRegistriesConfigured is matched by every ConfigurationError returned from Resolve.
var ErrNoRegistriesConfigured = errors.New("no private registry defined in project or user configuration")

// ConfigurationError reports that neither scope declared a registry.
type ConfigurationError struct {
	Kind Kind
}

func (e *ConfigurationError) Error() string {
	file := npmrcFile
	if e.Kind == KindYarnrc {
		file = yarnrcFile
	}
	return fmt.Sprintf("no private registry defined in project %s or user defined %s", file, file)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrNoRegistriesConfigured
}

// Resolution lists the registries to authenticate against and the scope that declared them.
type Resolution struct {
	Registries []string
	Source     Scope
}

// Resolve returns the registries to authenticate against. Project registries
// win when present, otherwise user registries are used. Duplicates are
// dropped keeping the first occurrence.
func Resolve(user, project Backend) ([]string, error) {
	resolution, err := ResolveScoped(user, project)
	if err != nil {
		return nil, err
	}
	return resolution.Registries, nil
}

// ResolveScoped is Resolve, also reporting which scope the registries came from.
func ResolveScoped(user, project Backend) (*Resolution, error) {
	source := ScopeProject
	registries, err := project.Registries()
	if err != nil {
		return nil, fmt.Errorf("failed to read project registries: %w", err)
	}
	if len(registries) == 0 {
		source = ScopeUser
		registries, err = user.Registries()
		if err != nil {
			return nil, fmt.Errorf("failed to read user registries: %w", err)
		}
	}
	unique := make([]string, 0, len(registries))
	for _, r := range registries {
		if !slices.Contains(unique, r) {
			unique = append(unique, r)
		}
	}
	if len(unique) == 0 {
		return nil, &ConfigurationError{Kind: kindOf(project)}
	}
	return &Resolution{Registries: unique, Source: source}, nil
}

func kindOf(b Backend) Kind {
	switch v := b.(type) {
	case *yarnrcBackend:
		return KindYarnrc
	case *keyringBackend:
		return kindOf(v.Backend)
	default:
		return KindNpmrc
	}
}
