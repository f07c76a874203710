package app

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of the config file.
	Debug bool

	// Quiet suppresses all log output.
	Quiet bool

	// ConfigPath is the config file to load. Empty means
	// ~/.config/adtoken/config.yaml.
	ConfigPath string
}

// NewConfig creates a new application configuration
func NewConfig(debug, quiet bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		Quiet:      quiet,
		ConfigPath: configPath,
	}
}

// ContextOverrides adjusts or defines a context from command-line flags.
// Empty fields keep the configured value.
type ContextOverrides struct {
	ClientID     string
	ClientSecret string
	Tenant       string
	RedirectURI  string
	Resources    []string
	Prompt       string
	LoginHint    string
	PKCE         bool
}
