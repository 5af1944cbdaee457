package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultConfigDir is the default config directory name.
	DefaultConfigDir = ".autopy"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.json"
)

// GetConfigDir returns the default config directory path (~/.autopy).
func GetConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", DefaultConfigDir)
	}
	return filepath.Join(home, DefaultConfigDir)
}

// GetConfigPath returns the default config file path (~/.autopy/config.json).
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), DefaultConfigFile)
}

// LoadConfig loads configuration from the specified path.
// If path is empty, it uses the default config path (~/.autopy/config.json).
// If the config file doesn't exist, it returns the default configuration.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = GetConfigPath()
	}
	path = expandPath(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Start with defaults and unmarshal over them
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified path.
// If path is empty, it uses the default config path (~/.autopy/config.json).
func SaveConfig(cfg *Config, path string) error {
	if path == "" {
		path = GetConfigPath()
	}
	path = expandPath(path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// API keys may be stored here; keep the file owner-only.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// Exists checks if a config file exists at the given path.
// If path is empty, checks the default config path.
func Exists(path string) bool {
	if path == "" {
		path = GetConfigPath()
	}
	path = expandPath(path)
	_, err := os.Stat(path)
	return err == nil
}

// InitConfig creates a default config file at path if it doesn't exist.
// It reports whether a new file was written.
func InitConfig(path string) (bool, error) {
	if path == "" {
		path = GetConfigPath()
	}
	if Exists(path) {
		return false, nil
	}
	if err := SaveConfig(DefaultConfig(), path); err != nil {
		return false, err
	}
	return true, nil
}

// EnsureDirs creates the log and history directories.
func EnsureDirs(cfg *Config) error {
	for _, dir := range []string{cfg.LogDir(), cfg.HistoryDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
