// Package cliconfig loads the developer-local CLI defaults x07 reads
// from ~/.x07/config.toml (or X07_CONFIG): default registry name,
// offline mode, and color mode. None of it touches build determinism —
// it only picks which registries/paths the CLI facade talks to and how
// it renders diagnostics, the same ambient-config role a flag-driven
// process config plays for any CLI tool.
package cliconfig

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config is the on-disk shape of ~/.x07/config.toml.
type Config struct {
	DefaultRegistry string `toml:"default_registry"`
	Offline         bool   `toml:"offline"`
	// Color is one of "auto" (default), "always", "never".
	Color string `toml:"color"`
}

// Load reads the CLI config file, returning a zero-value Config (never
// an error) when no file is present — an absent config.toml just means
// "use the built-in defaults", not a failure.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func configPath() (string, error) {
	if p := os.Getenv("X07_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".x07", "config.toml"), nil
}
