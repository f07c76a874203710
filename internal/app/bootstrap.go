package app

import (
	"errors"
	"fmt"
	"io"
	"os"

	"adtoken/internal/config"
	"adtoken/internal/store"
	"adtoken/internal/token"
	"adtoken/pkg/logging"
	"adtoken/pkg/oauth"
)

// Application wires configuration, the credential backend and the context
// registry together for one CLI invocation.
type Application struct {
	config   *Config
	settings config.Config
	backend  store.Backend
	registry *token.Registry
	closers  []func()
}

// NewApplication bootstraps the application:
//
//  1. Loads the config file (missing file means defaults)
//  2. Configures logging from the file and the debug/quiet flags
//  3. Opens the durable credential backend
//  4. Registers every configured context
func NewApplication(cfg *Config) (*Application, error) {
	configPath := cfg.ConfigPath
	if configPath == "" {
		defaultPath, err := config.GetDefaultConfigPath()
		if err != nil {
			return nil, err
		}
		configPath = defaultPath
	}

	settings, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := initLogging(cfg, settings); err != nil {
		return nil, err
	}

	a := &Application{config: cfg, settings: settings}

	backend, closer, err := openBackend(settings.Storage)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to open %s credential backend", settings.Storage.Backend)
		return nil, err
	}
	a.backend = backend
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	grantClient := oauth.NewGrantClient(oauth.WithLogger(logging.Logger()))
	a.registry = token.NewRegistry(
		token.WithBackend(backend),
		token.WithContextOptions(token.WithGrantClient(grantClient)),
	)

	for _, ctxCfg := range settings.Contexts {
		if _, err := a.registry.Create(ctxCfg); err != nil {
			a.Close()
			return nil, err
		}
	}

	logging.Debug("Bootstrap", "Loaded %d contexts from %s, storage=%s",
		len(settings.Contexts), configPath, settings.Storage.Backend)
	return a, nil
}

func initLogging(cfg *Config, settings config.Config) error {
	level, err := logging.ParseLevel(settings.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid logLevel: %w", err)
	}
	if cfg.Debug {
		level = logging.LevelDebug
	}

	var output io.Writer = os.Stderr
	if cfg.Quiet {
		output = io.Discard
	}
	logging.Init(level, output)
	return nil
}

// openBackend creates the durable backend selected by storage.
func openBackend(storage config.StorageConfig) (store.Backend, func(), error) {
	switch storage.Backend {
	case config.StorageMemory:
		return store.NewMemoryBackend(), nil, nil
	case config.StorageFile, "":
		if storage.URL == "" {
			return nil, nil, fmt.Errorf("file storage requires storage.url")
		}
		return store.NewFileBackend(storage.URL), nil, nil
	case config.StorageValkey:
		client, err := store.DialValkey(storage.ValkeyAddress)
		if err != nil {
			return nil, nil, err
		}
		return store.NewValkeyBackend(client, storage.ValkeyPrefix), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend: %s (supported: memory, file, valkey)", storage.Backend)
	}
}

// Registry returns the context registry.
func (a *Application) Registry() *token.Registry {
	return a.registry
}

// Settings returns the loaded configuration file.
func (a *Application) Settings() config.Config {
	return a.settings
}

// Context resolves the context a command acts on. An empty client_id selects
// the first configured context. Overrides that change the configuration
// re-register the context; a client_id that is not configured is created
// from the overrides alone.
func (a *Application) Context(o ContextOverrides) (*token.Context, error) {
	base, found := a.settings.FindContext(o.ClientID)
	if !found {
		if o.ClientID == "" {
			return nil, errors.New("no context configured; pass --client-id or add one to the config file")
		}
		base = config.Context{ClientID: o.ClientID}
	}

	merged, changed := applyOverrides(base, o)
	if tc, ok := a.registry.Get(merged.ClientID); ok && found && !changed {
		return tc, nil
	}
	return a.registry.Create(merged)
}

func applyOverrides(base config.Context, o ContextOverrides) (config.Context, bool) {
	out := base.Clone()
	changed := false
	set := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}
	set(&out.ClientSecret, o.ClientSecret)
	set(&out.Tenant, o.Tenant)
	set(&out.RedirectURI, o.RedirectURI)
	set(&out.Prompt, o.Prompt)
	set(&out.LoginHint, o.LoginHint)
	if len(o.Resources) > 0 {
		out.Resources = append(config.Resources(nil), o.Resources...)
		changed = true
	}
	if o.PKCE && !out.PKCE {
		out.PKCE = true
		changed = true
	}
	return out, changed
}

// Close flushes pending durable writes of every context and releases the
// backend. Write failures are logged and returned joined.
func (a *Application) Close() error {
	var errs []error
	if a.registry != nil {
		for _, id := range a.registry.List() {
			tc, ok := a.registry.Get(id)
			if !ok {
				continue
			}
			if err := tc.Flush(); err != nil {
				logging.Warn("Bootstrap", "Pending credential writes for %s failed: %v", id, err)
				errs = append(errs, err)
			}
		}
	}
	for _, closer := range a.closers {
		closer()
	}
	a.closers = nil
	return errors.Join(errs...)
}
