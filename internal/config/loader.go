package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"adtoken/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/adtoken"
	configFileName = "config.yaml"
)

// osUserHomeDir is swapped in tests.
var osUserHomeDir = os.UserHomeDir

// GetDefaultConfigDir returns ~/.config/adtoken.
func GetDefaultConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// GetDefaultConfigPath returns ~/.config/adtoken/config.yaml.
func GetDefaultConfigPath() (string, error) {
	dir, err := GetDefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// LoadConfig loads configuration from configFilePath on top of the defaults.
// A missing file yields the defaults. The result is validated.
func LoadConfig(configFilePath string) (Config, error) {
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("ConfigLoader", "No config found at %s, using defaults", configFilePath)
			return config, config.applyStorageDefaults(filepath.Dir(configFilePath))
		}
		return Config{}, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}
	if err := config.applyStorageDefaults(filepath.Dir(configFilePath)); err != nil {
		return Config{}, err
	}
	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("error validating config from %s: %w", configFilePath, err)
	}

	logging.Debug("ConfigLoader", "Loaded configuration from %s (%d contexts)", configFilePath, len(config.Contexts))
	return config, nil
}

// applyStorageDefaults fills backend-specific defaults relative to the
// directory that holds the config file.
func (c *Config) applyStorageDefaults(configDir string) error {
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageFile
	}
	if c.Storage.Backend == StorageFile && c.Storage.URL == "" {
		abs, err := filepath.Abs(filepath.Join(configDir, credentialsDirName))
		if err != nil {
			return fmt.Errorf("could not resolve credentials directory: %w", err)
		}
		c.Storage.URL = "file://" + filepath.ToSlash(abs)
	}
	if c.Storage.ValkeyPrefix == "" {
		c.Storage.ValkeyPrefix = DefaultValkeyPrefix
	}
	return nil
}
