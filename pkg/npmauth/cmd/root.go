package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/telekom/npmauth/pkg/npmauth/auth"
	"github.com/telekom/npmauth/pkg/npmauth/config"
	"github.com/telekom/npmauth/pkg/npmauth/interact"
	"github.com/telekom/npmauth/pkg/npmauth/registry"
	"github.com/telekom/npmauth/pkg/system"
)

type Config struct {
	ConfigPath   string
	OutputWriter io.Writer
	// ErrorWriter receives diagnostic logs. Defaults to os.Stderr.
	ErrorWriter io.Writer
	// Input is read for confirmations. Defaults to os.Stdin.
	Input io.Reader
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
	// HomeDir overrides the user's home directory.
	HomeDir string
	// Discover overrides OIDC discovery.
	Discover auth.DiscoverFunc
	// Interactor overrides the terminal.
	Interactor auth.Interactor
}

type runtimeState struct {
	configPath      string
	cfg             *config.Config
	clientID        string
	tenantID        string
	ci              string
	projectBasePath string
	tokenStorage    string
	persistScope    string
	nonInteractive  bool
	verbose         bool

	writer     io.Writer
	errWriter  io.Writer
	input      io.Reader
	lookupEnv  func(string) (string, bool)
	homeDir    string
	discover   auth.DiscoverFunc
	interactor auth.Interactor
	log        *zap.SugaredLogger
}

type runtimeKey struct{}

// flagAliases maps the historical snake_case and short names onto the flags.
var flagAliases = map[string]string{
	"client_id":                       "client-id",
	"cid":                             "client-id",
	"tenant_id":                       "tenant-id",
	"tid":                             "tenant-id",
	"continuous_integration_variable": "ci",
	"project_base_path":               "project-base-path",
	"pbp":                             "project-base-path",
}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   config.DefaultConfigPath(),
		OutputWriter: os.Stdout,
		ErrorWriter:  os.Stderr,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath: cfg.ConfigPath,
		writer:     cfg.OutputWriter,
		errWriter:  cfg.ErrorWriter,
		input:      cfg.Input,
		lookupEnv:  cfg.LookupEnv,
		homeDir:    cfg.HomeDir,
		discover:   cfg.Discover,
		interactor: cfg.Interactor,
	}

	root := &cobra.Command{
		Use:   "npmauth",
		Short: "Authenticate npm and yarn against Azure DevOps Artifacts feeds",
		Long: `npmauth finds the private registries configured in the project or user
.npmrc (or .yarnrc.yml for yarn berry projects) and stores a fresh access token
for each of them, refreshing silently when possible and falling back to the
device code flow otherwise.`,
		Args:         rt.noArgs,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.initialize(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuth(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	flags.StringVar(&rt.clientID, "client-id", "", "Application (client) ID to authenticate as (default "+auth.DefaultClientID+")")
	flags.StringVar(&rt.tenantID, "tenant-id", "", "Directory (tenant) ID or domain (default "+auth.DefaultTenantID+")")
	flags.StringVar(&rt.ci, "ci", "", "Skip authentication when this environment variable is set, given as --ci=NAME; --ci alone checks "+auth.DefaultCIVariable)
	flags.Lookup("ci").NoOptDefVal = "true"
	flags.StringVar(&rt.projectBasePath, "project-base-path", "", "Project directory (default: current directory)")
	flags.StringVar(&rt.tokenStorage, "token-storage", "", "Where refresh tokens are kept: file or keychain")
	flags.StringVar(&rt.persistScope, "persist-scope", "", "Configuration file tokens are written to: user or project")
	flags.BoolVar(&rt.nonInteractive, "non-interactive", false, "Do not wait for Enter or open a browser")
	flags.BoolVarP(&rt.verbose, "verbose", "v", false, "Enable debug logging on stderr")

	if cfg.OutputWriter != nil {
		root.SetOut(cfg.OutputWriter)
	}
	if cfg.ErrorWriter != nil {
		root.SetErr(cfg.ErrorWriter)
	}
	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		NewRegistriesCommand(),
		NewConfigCommand(),
		NewCompletionCommand(),
		NewVersionCommand(),
	)
	root.SetGlobalNormalizationFunc(normalizeFlagName)

	return root
}

// noArgs rejects positional arguments. A lone argument after a bare --ci is
// almost always a variable name given with a space instead of '='.
func (rt *runtimeState) noArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 1 && rt.ci == "true" && cmd.Flags().Changed("ci") {
		return fmt.Errorf("unexpected argument %q: pass the CI variable as --ci=%s", args[0], args[0])
	}
	return cobra.NoArgs(cmd, args)
}

func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if canonical, ok := flagAliases[name]; ok {
		return pflag.NormalizedName(canonical)
	}
	return pflag.NormalizedName(name)
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

// initialize resolves every setting from flags, then environment, then the
// config file, then built-in defaults.
func (rt *runtimeState) initialize(cmd *cobra.Command) error {
	if rt.writer == nil {
		rt.writer = os.Stdout
	}
	if rt.errWriter == nil {
		rt.errWriter = os.Stderr
	}
	if rt.lookupEnv == nil {
		rt.lookupEnv = os.LookupEnv
	}
	if rt.configPath == "" {
		rt.configPath = rt.env("NPMAUTH_CONFIG")
	}
	if rt.configPath == "" {
		rt.configPath = config.DefaultConfigPath()
	}
	if !rt.verbose {
		rt.verbose = strings.EqualFold(rt.env("NPMAUTH_VERBOSE"), "true")
	}
	rt.log = system.NewCLILogger(rt.verbose, rt.errWriter)

	// Commands that must work without (or before) a config file.
	if cmd.Name() == "version" || cmd.Name() == "completion" ||
		(cmd.Name() == "init" && cmd.Parent() != nil && cmd.Parent().Name() == "config") {
		def := config.DefaultConfig()
		rt.cfg = &def
	} else {
		cfg, err := config.LoadOptional(rt.configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		rt.cfg = cfg
	}

	rt.clientID = firstNonEmpty(rt.clientID, rt.env("NPMAUTH_CLIENT_ID"), rt.cfg.ClientID, auth.DefaultClientID)
	rt.tenantID = firstNonEmpty(rt.tenantID, rt.env("NPMAUTH_TENANT_ID"), rt.cfg.TenantID, auth.DefaultTenantID)
	rt.tokenStorage = firstNonEmpty(rt.tokenStorage, rt.env("NPMAUTH_TOKEN_STORAGE"), rt.cfg.TokenStorage, auth.TokenStorageFile)
	rt.persistScope = firstNonEmpty(rt.persistScope, rt.env("NPMAUTH_PERSIST_SCOPE"), rt.cfg.PersistScope, string(registry.ScopeUser))
	if !cmd.Flags().Changed("ci") && rt.cfg.CIVariable != "" {
		rt.ci = rt.cfg.CIVariable
	}
	if !rt.nonInteractive {
		rt.nonInteractive = strings.EqualFold(rt.env("NPMAUTH_NON_INTERACTIVE"), "true") ||
			rt.cfg.NonInteractive ||
			(rt.input == nil && !interact.IsInteractive(os.Stdin))
	}

	effective := rt.effectiveConfig()
	if err := effective.Validate(); err != nil {
		return err
	}
	rt.log.Debugw("Resolved settings",
		"config", rt.configPath,
		"clientID", rt.clientID,
		"tenantID", rt.tenantID,
		"tokenStorage", rt.tokenStorage,
		"persistScope", rt.persistScope,
		"nonInteractive", rt.nonInteractive)
	return nil
}

func (rt *runtimeState) env(name string) string {
	if rt.lookupEnv == nil {
		return ""
	}
	value, _ := rt.lookupEnv(name)
	return value
}

// effectiveConfig is the resolved settings in config file form.
func (rt *runtimeState) effectiveConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.ClientID = rt.clientID
	cfg.TenantID = rt.tenantID
	cfg.TokenStorage = rt.tokenStorage
	cfg.PersistScope = rt.persistScope
	cfg.NonInteractive = rt.nonInteractive
	if skip := auth.ParseCISkip(rt.ci); skip.Variable != "" {
		cfg.CIVariable = skip.Variable
	}
	if rt.cfg != nil {
		cfg.AuthorityHost = rt.cfg.AuthorityHost
	}
	return cfg
}

// Options converts the resolved settings into run options.
func (rt *runtimeState) Options() (auth.Options, error) {
	scope, err := registry.ParseScope(rt.persistScope)
	if err != nil {
		return auth.Options{}, err
	}
	opts := auth.Options{
		ClientID:        rt.clientID,
		TenantID:        rt.tenantID,
		CI:              auth.ParseCISkip(rt.ci),
		LookupEnv:       rt.lookupEnv,
		ProjectBasePath: rt.projectBasePath,
		HomeDir:         rt.homeDir,
		TokenStorage:    rt.tokenStorage,
		KeyringService:  registry.DefaultKeyringService,
		PersistScope:    scope,
		NonInteractive:  rt.nonInteractive,
	}
	if rt.cfg != nil {
		opts.AuthorityHost = rt.cfg.AuthorityHost
	}
	return opts, nil
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) Logger() *zap.SugaredLogger {
	if rt.log != nil {
		return rt.log
	}
	return zap.NewNop().Sugar()
}

func (rt *runtimeState) Interactor() auth.Interactor {
	if rt.interactor != nil {
		return rt.interactor
	}
	input := rt.input
	if input == nil {
		input = os.Stdin
	}
	var opts []interact.Option
	if rt.writer != os.Stdout {
		opts = append(opts, interact.WithoutColor())
	}
	rt.interactor = interact.NewTerminal(input, rt.Writer(), rt.Logger(), opts...)
	return rt.interactor
}

func (rt *runtimeState) configPathValue() string {
	if rt.configPath == "" {
		return config.DefaultConfigPath()
	}
	return rt.configPath
}

func runAuth(cmd *cobra.Command) error {
	rt, err := getRuntime(cmd)
	if err != nil {
		return err
	}
	opts, err := rt.Options()
	if err != nil {
		return err
	}
	runner := &auth.Runner{
		Discover:   rt.discover,
		Interactor: rt.Interactor(),
		Log:        rt.Logger(),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runner.Run(ctx, opts); err != nil {
		rt.Logger().Debugw("Authentication failed", "error", err)
		return err
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
