package config

import (
	"log/slog"
	"os"
)

// ConfigFileEnv names the environment variable holding an explicit config
// file path; when unset, Load falls back to DefaultConfigPath.
const ConfigFileEnv = "FINMODEL_CONFIG"

// DefaultConfigPath is the config file path used when FINMODEL_CONFIG is
// unset.
const DefaultConfigPath = "finmodel.yaml"

// Loader loads configuration with layered precedence: defaults, then an
// optional YAML file, then environment-variable overrides for secrets.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load resolves the config file path, loads it if present, applies
// environment overrides, and validates the result.
func (l *Loader) Load() (*Config, error) {
	path := os.Getenv(ConfigFileEnv)
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := DefaultConfig()
	if fileCfg, err := LoadFromFile(path); err == nil {
		l.logger.Debug("loaded config file", "path", path)
		cfg = fileCfg
	} else if !os.IsNotExist(err) {
		l.logger.Warn("failed to load config file, using defaults", "path", path, "error", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
