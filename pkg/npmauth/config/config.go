package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v2"
)

const (
	VersionV1 = "v1"
)

var (
	tokenStorages = []string{"file", "keychain"}
	persistScopes = []string{"user", "project"}
)

// Config holds defaults for flags that are not given on the command line.
type Config struct {
	Version        string `yaml:"version"`
	ClientID       string `yaml:"client-id,omitempty"`
	TenantID       string `yaml:"tenant-id,omitempty"`
	CIVariable     string `yaml:"ci-variable,omitempty"`
	TokenStorage   string `yaml:"token-storage,omitempty"`
	PersistScope   string `yaml:"persist-scope,omitempty"`
	NonInteractive bool   `yaml:"non-interactive,omitempty"`
	AuthorityHost  string `yaml:"authority-host,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Version:      VersionV1,
		TokenStorage: "file",
		PersistScope: "user",
	}
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	return &cfg, nil
}

// LoadOptional is Load, returning DefaultConfig when the file does not exist.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		def := DefaultConfig()
		return &def, nil
	}
	return cfg, err
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}

func (c *Config) Validate() error {
	if c.Version == "" {
		return errors.New("config version missing")
	}
	if c.Version != VersionV1 {
		return fmt.Errorf("unsupported config version: %s", c.Version)
	}
	if c.ClientID != "" {
		if _, err := uuid.Parse(c.ClientID); err != nil {
			return fmt.Errorf("client-id %q is not a valid UUID: %w", c.ClientID, err)
		}
	}
	if c.TokenStorage != "" && !slices.Contains(tokenStorages, c.TokenStorage) {
		return fmt.Errorf("token-storage must be one of %v, got %q", tokenStorages, c.TokenStorage)
	}
	if c.PersistScope != "" && !slices.Contains(persistScopes, c.PersistScope) {
		return fmt.Errorf("persist-scope must be one of %v, got %q", persistScopes, c.PersistScope)
	}
	return nil
}
