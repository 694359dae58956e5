package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions so typos never silently fall back to defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	applyCLIOverrides(cfg, cli)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyCLIOverrides(cfg *Config, cli CLIOverrides) {
	if cli.Workers != nil {
		cfg.Transfers.ParallelDownloads = *cli.Workers
	}

	if cli.MaxRetries != nil {
		cfg.Transfers.MaxRetries = *cli.MaxRetries
	}

	if cli.BandwidthLimit != nil {
		cfg.Transfers.BandwidthLimit = *cli.BandwidthLimit
	}

	if cli.RemoteFolder != nil {
		cfg.Backup.RemoteFolder = *cli.RemoteFolder
	}

	if cli.PicturesSubdir != nil {
		cfg.Backup.PicturesSubdir = *cli.PicturesSubdir
	}

	if cli.VideosSubdir != nil {
		cfg.Backup.VideosSubdir = *cli.VideosSubdir
	}

	if cli.OutputTemplate != nil {
		cfg.Backup.OutputDirTemplate = *cli.OutputTemplate
	}
}
