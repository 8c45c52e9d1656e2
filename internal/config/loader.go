package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"authhub/pkg/logging"
)

const (
	userConfigDir  = ".config/authhub"
	configFileName = "config.yaml"
)

// Environment variables that override config.yaml.
const (
	EnvBaseURL  = "AUTHHUB_BASE_URL"
	EnvApp      = "AUTHHUB_APP"
	EnvAPIKey   = "AUTHHUB_API_KEY"
	EnvStorage  = "AUTHHUB_STORAGE"
	EnvLogLevel = "AUTHHUB_LOG_LEVEL"
)

var osUserHomeDir = os.UserHomeDir

// GetDefaultConfigPath returns ~/.config/authhub.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig loads config.yaml from configPath on top of the defaults and
// applies environment overrides. An empty configPath uses the default path.
func LoadConfig(configPath string) (Config, error) {
	if configPath == "" {
		var err error
		if configPath, err = GetDefaultConfigPath(); err != nil {
			return Config{}, err
		}
	}

	config := DefaultConfig()
	configFilePath := filepath.Join(configPath, configFileName)

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, fmt.Errorf("failed to read %s: %w", configFilePath, err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, NewConfigurationErrorWithDetails(configFilePath, "", "parse",
				"malformed YAML", err.Error(), []string{"Check indentation and quoting in " + configFileName})
		}
		logging.Debug("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	ApplyEnv(&config, os.Getenv)
	return config, nil
}

// ApplyEnv overrides fields from the environment. Unset or empty variables
// leave the field untouched.
func ApplyEnv(config *Config, getenv func(string) string) {
	overrides := []struct {
		name   string
		target *string
	}{
		{EnvBaseURL, &config.BaseURL},
		{EnvApp, &config.App},
		{EnvAPIKey, &config.APIKey},
		{EnvStorage, &config.Storage.Mode},
		{EnvLogLevel, &config.LogLevel},
	}
	for _, o := range overrides {
		if v := getenv(o.name); v != "" {
			*o.target = v
		}
	}
}

// Save writes config to configPath/config.yaml, creating the directory.
func Save(configPath string, config Config) error {
	if err := os.MkdirAll(configPath, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(&config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(configPath, configFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
