package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/telekom/npmauth/pkg/npmauth/registry"
	"github.com/telekom/npmauth/pkg/system"
)

const (
	// DefaultClientID identifies this application to the identity platform.
	DefaultClientID = "f9d5fef7-a410-4582-bb27-68a319b1e5a1"
	DefaultTenantID = "common"
	// DefaultCIVariable is set by Azure Pipelines agents.
	DefaultCIVariable = "TF_BUILD"

	TokenStorageFile     = "file"
	TokenStorageKeychain = "keychain"
)

// CISkip names the environment variable whose presence skips authentication.
// The zero value never skips.
type CISkip struct {
	Variable string
}

// ParseCISkip interprets the --ci flag: empty or "false" disables the check,
// "true" uses DefaultCIVariable and anything else names the variable.
func ParseCISkip(value string) CISkip {
	trimmed := strings.TrimSpace(value)
	switch strings.ToLower(trimmed) {
	case "", "false", "0":
		return CISkip{}
	case "true", "1":
		return CISkip{Variable: DefaultCIVariable}
	default:
		return CISkip{Variable: trimmed}
	}
}

// ShouldSkip reports whether the configured variable is set to a non-empty value.
func (c CISkip) ShouldSkip(lookupEnv func(string) (string, bool)) bool {
	if c.Variable == "" || lookupEnv == nil {
		return false
	}
	value, ok := lookupEnv(c.Variable)
	return ok && value != ""
}

// Options are the already-parsed inputs of a run.
type Options struct {
	ClientID string
	TenantID string
	CI       CISkip
	// LookupEnv replaces os.LookupEnv so runs stay independent of process state.
	LookupEnv       func(string) (string, bool)
	ProjectBasePath string
	HomeDir         string
	TokenStorage    string
	KeyringService  string
	PersistScope    registry.Scope
	NonInteractive  bool
	AuthorityHost   string
}

// Plan is the local, network-free part of a run.
type Plan struct {
	Kind       registry.Kind
	ProjectDir string
	Registries []string
	// Source is the scope the registries were declared in.
	Source registry.Scope
	// Store is used both to look up refresh tokens and to persist results.
	Store      registry.Backend
	StoreScope registry.Scope
}

// Prepare detects the configuration format, opens both scopes and resolves registries.
func Prepare(opts Options) (*Plan, error) {
	projectDir, err := resolveProjectDir(opts.ProjectBasePath)
	if err != nil {
		return nil, err
	}
	loc := registry.Locations{HomeDir: opts.HomeDir, ProjectDir: projectDir}
	if loc.HomeDir == "" {
		if loc.HomeDir, err = os.UserHomeDir(); err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
	}
	loc.NpmUserConfig = lookupFirst(opts.LookupEnv, "NPM_CONFIG_USERCONFIG", "npm_config_userconfig")

	kind := registry.DetectKind(projectDir)
	user, err := registry.Open(kind, registry.ScopeUser, loc)
	if err != nil {
		return nil, err
	}
	project, err := registry.Open(kind, registry.ScopeProject, loc)
	if err != nil {
		return nil, err
	}
	resolution, err := registry.ResolveScoped(user, project)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Kind:       kind,
		ProjectDir: projectDir,
		Registries: resolution.Registries,
		Source:     resolution.Source,
		Store:      user,
		StoreScope: registry.ScopeUser,
	}
	if opts.PersistScope == registry.ScopeProject {
		plan.Store = project
		plan.StoreScope = registry.ScopeProject
	}
	switch opts.TokenStorage {
	case "", TokenStorageFile:
	case TokenStorageKeychain:
		plan.Store = registry.WithKeyring(plan.Store, opts.KeyringService)
	default:
		return nil, fmt.Errorf("unsupported token storage: %s", opts.TokenStorage)
	}
	return plan, nil
}

// DiscoverFunc returns an IdentityClient for the tenant.
type DiscoverFunc func(ctx context.Context, opts Options) (IdentityClient, error)

// Runner orchestrates a whole authentication run.
type Runner struct {
	Discover   DiscoverFunc
	Interactor Interactor
	Log        *zap.SugaredLogger
}

// Run authenticates every resolved registry in order. The first failure ends
// the run; registries already updated stay updated.
func (r *Runner) Run(ctx context.Context, opts Options) error {
	log := r.logger()
	ui := r.interactor()
	if opts.CI.ShouldSkip(opts.LookupEnv) {
		log.Infow("Skipping authentication", "variable", opts.CI.Variable)
		ui.Message(MessageInfo, "Skipped auth due to running in CI environment")
		return nil
	}

	plan, err := Prepare(opts)
	if err != nil {
		return err
	}
	log.Debugw("Resolved registries",
		"kind", plan.Kind,
		"source", plan.Source,
		"store", plan.StoreScope,
		"registries", plan.Registries)

	var client IdentityClient
	for _, reg := range plan.Registries {
		ui.RegistryFound(reg)
		if client == nil {
			if client, err = r.discover(ctx, opts); err != nil {
				return err
			}
		}
		manager := &Manager{
			Client:         client,
			Store:          plan.Store,
			Interactor:     ui,
			Log:            log,
			NonInteractive: opts.NonInteractive,
		}
		token, err := manager.Acquire(ctx, reg)
		if err != nil {
			return err
		}
		if details, ok := InspectAccessToken(token.AccessToken); ok {
			if token.Expiry.IsZero() {
				token.Expiry = details.Expiry
			}
			log.With(system.NamedFields(reg, string(plan.Source))...).
				Infow("Authenticated", "account", details.Account, "expiry", token.Expiry)
		}
		if err := (&Persister{Store: plan.Store}).Persist(reg, token); err != nil {
			return err
		}
		ui.RegistryDone(reg)
	}
	return nil
}

func (r *Runner) discover(ctx context.Context, opts Options) (IdentityClient, error) {
	if r.Discover != nil {
		return r.Discover(ctx, opts)
	}
	return DiscoverProvider(ctx, opts)
}

// DiscoverProvider is the default DiscoverFunc.
func DiscoverProvider(ctx context.Context, opts Options) (IdentityClient, error) {
	clientID := opts.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}
	provider, err := Discover(ctx, opts.TenantID, clientID, WithAuthorityHost(opts.AuthorityHost))
	if err != nil {
		return nil, err
	}
	return provider, nil
}

func (r *Runner) logger() *zap.SugaredLogger {
	if r.Log != nil {
		return r.Log
	}
	return zap.NewNop().Sugar()
}

func (r *Runner) interactor() Interactor {
	if r.Interactor != nil {
		return r.Interactor
	}
	return nopInteractor{}
}

func resolveProjectDir(base string) (string, error) {
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to determine working directory: %w", err)
		}
		return wd, nil
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("invalid project base path %q: %w", base, err)
	}
	return abs, nil
}

func lookupFirst(lookupEnv func(string) (string, bool), names ...string) string {
	if lookupEnv == nil {
		return ""
	}
	for _, name := range names {
		if value, ok := lookupEnv(name); ok && value != "" {
			return value
		}
	}
	return ""
}
