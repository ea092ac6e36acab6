package registry

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	yarnRegistryServerKey = "npmRegistryServer"
	yarnScopesKey         = "npmScopes"
	yarnRegistriesKey     = "npmRegistries"
	yarnAuthTokenKey      = "npmAuthToken"
	yarnRefreshTokenKey   = "npmRefreshToken"
)

// yarnrcBackend stores credentials in a nested mapping:
//
//	npmRegistries:
//	  //host/path/:
//	    npmAuthToken: ...
//	    npmRefreshToken: ...
//
// The document is edited as a yaml.Node tree so comments and key order survive.
type yarnrcBackend struct {
	path string
}

func (b *yarnrcBackend) Registries() ([]string, error) {
	root, err := b.load()
	if err != nil {
		return nil, err
	}
	var registries []string
	if server := scalarValue(mappingValue(root, yarnRegistryServerKey)); server != "" {
		registries = append(registries, server)
	}
	scopes := mappingValue(root, yarnScopesKey)
	if scopes != nil && scopes.Kind == yaml.MappingNode {
		for i := 1; i < len(scopes.Content); i += 2 {
			if server := scalarValue(mappingValue(scopes.Content[i], yarnRegistryServerKey)); server != "" {
				registries = append(registries, server)
			}
		}
	}
	return registries, nil
}

func (b *yarnrcBackend) RegistryRefreshToken(registry string) (string, bool, error) {
	root, err := b.load()
	if err != nil {
		return "", false, err
	}
	entry := registryEntry(mappingValue(root, yarnRegistriesKey), registry)
	value := strings.TrimSpace(scalarValue(mappingValue(entry, yarnRefreshTokenKey)))
	return value, value != "", nil
}

func (b *yarnrcBackend) SetRegistryAuthToken(registry, token string) error {
	return b.set(registry, yarnAuthTokenKey, token)
}

func (b *yarnrcBackend) SetRegistryRefreshToken(registry, token string) error {
	return b.set(registry, yarnRefreshTokenKey, token)
}

func (b *yarnrcBackend) set(registry, key, value string) error {
	root, err := b.load()
	if err != nil {
		return err
	}
	registries := ensureMapping(root, yarnRegistriesKey)
	entry := registryEntry(registries, registry)
	if entry == nil {
		entry = ensureMapping(registries, NerfDart(registry))
	}
	setScalar(entry, key, value)
	return b.save(root)
}

func (b *yarnrcBackend) load() (*yaml.Node, error) {
	content, err := readOptional(b.path)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if len(bytes.TrimSpace(content)) > 0 {
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", b.path, err)
		}
	}
	if doc.Kind == 0 {
		return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}, nil
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("failed to parse %s: unexpected document structure", b.path)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("failed to parse %s: top level must be a mapping", b.path)
	}
	return root, nil
}

func (b *yarnrcBackend) save(root *yaml.Node) error {
	if root == nil {
		return errors.New("yarnrc document is nil")
	}
	if err := ensureDir(b.path); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}); err != nil {
		return fmt.Errorf("failed to marshal %s: %w", b.path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to marshal %s: %w", b.path, err)
	}
	return os.WriteFile(b.path, buf.Bytes(), 0o600)
}

// registryEntry finds the npmRegistries entry for registry, accepting either
// the full URL or the nerf-dart form as the key.
func registryEntry(registries *yaml.Node, registry string) *yaml.Node {
	if registries == nil || registries.Kind != yaml.MappingNode {
		return nil
	}
	want := NerfDart(registry)
	for i := 0; i+1 < len(registries.Content); i += 2 {
		key := registries.Content[i].Value
		if key == registry || NerfDart(key) == want {
			return registries.Content[i+1]
		}
	}
	return nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func scalarValue(node *yaml.Node) string {
	if node == nil || node.Kind != yaml.ScalarNode {
		return ""
	}
	return node.Value
}

func ensureMapping(node *yaml.Node, key string) *yaml.Node {
	if existing := mappingValue(node, key); existing != nil {
		if existing.Kind != yaml.MappingNode {
			// null or scalar placeholder, e.g. "npmRegistries:" with no children
			existing.Kind = yaml.MappingNode
			existing.Tag = "!!map"
			existing.Value = ""
			existing.Content = nil
		}
		return existing
	}
	child := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	node.Content = append(node.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		child,
	)
	return child
}

func setScalar(node *yaml.Node, key, value string) {
	if existing := mappingValue(node, key); existing != nil {
		existing.Kind = yaml.ScalarNode
		existing.Tag = "!!str"
		existing.Style = 0
		existing.Value = value
		existing.Content = nil
		return
	}
	node.Content = append(node.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value},
	)
}
