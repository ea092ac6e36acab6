package registry

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/ini.v1"
)

const (
	npmAuthTokenKey    = "_authToken"
	npmRefreshTokenKey = "_refreshToken"
	npmRegistryKey     = "registry"
)

// npmrc keys contain ':' so only '=' may delimit a value. Tokens and URLs may
// legitimately contain '#' or ';', which must not be read as comments.
// Repeated keys such as ca[] and bare flags such as always-auth must survive
// a rewrite.
var npmrcLoadOptions = ini.LoadOptions{
	KeyValueDelimiters:       "=",
	KeyValueDelimiterOnWrite: "=",
	IgnoreInlineComment:      true,
	SkipUnrecognizableLines:  true,
	AllowShadows:             true,
	AllowBooleanKeys:         true,
}

// renderMu guards the ini package's global formatting switch while a file is
// rendered.
var renderMu sync.Mutex

// npmrcBackend stores one flat key per registry setting:
//
//	//host/path/:_authToken=...
//	//host/path/:_refreshToken=...
//
// Setting a token rewrites the whole file. Keys, repeated keys, bare flags and
// comments are kept, but blank lines are dropped and surrounding quotes are
// removed from values.
type npmrcBackend struct {
	path string
}

func (b *npmrcBackend) Registries() ([]string, error) {
	file, err := b.load()
	if err != nil {
		return nil, err
	}
	var registries []string
	for _, key := range file.Section(ini.DefaultSection).Keys() {
		name := key.Name()
		if name != npmRegistryKey && !strings.HasSuffix(name, ":"+npmRegistryKey) {
			continue
		}
		if value := strings.TrimSpace(key.Value()); value != "" {
			registries = append(registries, value)
		}
	}
	return registries, nil
}

func (b *npmrcBackend) RegistryRefreshToken(registry string) (string, bool, error) {
	file, err := b.load()
	if err != nil {
		return "", false, err
	}
	section := file.Section(ini.DefaultSection)
	name := NerfDart(registry) + ":" + npmRefreshTokenKey
	if !section.HasKey(name) {
		return "", false, nil
	}
	value := strings.TrimSpace(section.Key(name).Value())
	return value, value != "", nil
}

func (b *npmrcBackend) SetRegistryAuthToken(registry, token string) error {
	return b.set(NerfDart(registry)+":"+npmAuthTokenKey, token)
}

func (b *npmrcBackend) SetRegistryRefreshToken(registry, token string) error {
	return b.set(NerfDart(registry)+":"+npmRefreshTokenKey, token)
}

func (b *npmrcBackend) set(name, value string) error {
	file, err := b.load()
	if err != nil {
		return err
	}
	file.Section(ini.DefaultSection).Key(name).SetValue(value)
	return b.save(file)
}

func (b *npmrcBackend) load() (*ini.File, error) {
	content, err := readOptional(b.path)
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return ini.Empty(npmrcLoadOptions), nil
	}
	file, err := ini.LoadSources(npmrcLoadOptions, content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", b.path, err)
	}
	return file, nil
}

func (b *npmrcBackend) save(file *ini.File) error {
	if err := ensureDir(b.path); err != nil {
		return err
	}
	content, err := renderNpmrc(file)
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", b.path, err)
	}
	return os.WriteFile(b.path, content, 0o600)
}

// renderNpmrc writes file without key alignment padding and restores the
// ini package default afterwards.
func renderNpmrc(file *ini.File) ([]byte, error) {
	renderMu.Lock()
	defer renderMu.Unlock()
	pretty := ini.PrettyFormat
	ini.PrettyFormat = false
	defer func() { ini.PrettyFormat = pretty }()

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
