package config

const (
	// DefaultLogLevel is used when the config file does not set logLevel.
	DefaultLogLevel = "info"

	// DefaultValkeyPrefix namespaces credential keys in a shared valkey.
	DefaultValkeyPrefix = "adtoken:"

	// credentialsDirName is the file backend directory under the config dir.
	credentialsDirName = "credentials"
)

// GetDefaultConfig returns the default configuration: file-backed storage
// under the user config directory and no contexts.
func GetDefaultConfig() Config {
	return Config{
		LogLevel: DefaultLogLevel,
		Storage: StorageConfig{
			Backend:      StorageFile,
			ValkeyPrefix: DefaultValkeyPrefix,
		},
	}
}
