// Package config provides configuration loading and management for the
// finmodel pipeline engine.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete process configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	NATS      NATSConfig      `yaml:"nats"`
	Providers ProvidersConfig `yaml:"providers"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Prompts   PromptsConfig   `yaml:"prompts"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`
	// MaxUploadBytes is loaded and merged but not read by the upload
	// handler, which applies its own fixed 20 MiB limit.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// StoreConfig configures the state store backend.
type StoreConfig struct {
	// DSN is the SQL data source name. Empty selects the in-memory backend.
	DSN string `yaml:"dsn"`
}

// NATSConfig configures the optional JetStream job broker.
type NATSConfig struct {
	// URL is the NATS server URL. Empty selects the in-process executor.
	URL string `yaml:"url"`
}

// ProvidersConfig configures the default LLM provider/model and per-provider
// endpoints.
type ProvidersConfig struct {
	// Default is the default provider name (anthropic, openai, ollama).
	Default string `yaml:"default"`
	// DefaultModel is used when a phase request does not pin a model.
	DefaultModel string `yaml:"default_model"`
	// OllamaEndpoint overrides the Ollama base URL.
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	// Temperature is the default sampling temperature for agent calls.
	Temperature float64 `yaml:"temperature"`
	// RequestTimeout bounds a single provider call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// JobsConfig configures the job execution substrate.
type JobsConfig struct {
	// WorkerConcurrency is the number of jobs the in-process executor runs
	// at once. LLM calls are rate-limited upstream, so this defaults low.
	WorkerConcurrency int `yaml:"worker_concurrency"`
	// SoftTimeout is the duration after which a running job is warned about.
	SoftTimeout time.Duration `yaml:"soft_timeout"`
	// HardTimeout is the duration after which a running job is killed and
	// marked timeout.
	HardTimeout time.Duration `yaml:"hard_timeout"`
}

// PromptsConfig names a prompt override directory.
type PromptsConfig struct {
	// OverrideDir is loaded and merged with the rest of the config; nothing
	// in the process watches the directory or reads prompt files from it.
	OverrideDir string `yaml:"override_dir"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadBytes: 20 << 20,
		},
		Store: StoreConfig{
			DSN: "",
		},
		NATS: NATSConfig{
			URL: "",
		},
		Providers: ProvidersConfig{
			Default:        "anthropic",
			DefaultModel:   "standard",
			OllamaEndpoint: "http://localhost:11434",
			Temperature:    0.2,
			RequestTimeout: 5 * time.Minute,
		},
		Jobs: JobsConfig{
			WorkerConcurrency: 2,
			SoftTimeout:       3 * time.Minute,
			HardTimeout:       10 * time.Minute,
		},
		Prompts: PromptsConfig{},
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}
	if c.Providers.Temperature < 0 || c.Providers.Temperature > 1 {
		return fmt.Errorf("providers.temperature must be between 0 and 1")
	}
	if c.Jobs.WorkerConcurrency < 1 {
		return fmt.Errorf("jobs.worker_concurrency must be at least 1")
	}
	if c.Jobs.HardTimeout <= c.Jobs.SoftTimeout {
		return fmt.Errorf("jobs.hard_timeout must exceed jobs.soft_timeout")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file, starting from defaults
// so unset fields keep their zero-value-safe default.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// Merge overlays other's non-zero fields onto c. Environment overrides do
// not go through Merge; applyEnvOverrides writes them directly.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.MaxUploadBytes != 0 {
		c.Server.MaxUploadBytes = other.Server.MaxUploadBytes
	}
	if other.Store.DSN != "" {
		c.Store.DSN = other.Store.DSN
	}
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.Providers.Default != "" {
		c.Providers.Default = other.Providers.Default
	}
	if other.Providers.DefaultModel != "" {
		c.Providers.DefaultModel = other.Providers.DefaultModel
	}
	if other.Providers.OllamaEndpoint != "" {
		c.Providers.OllamaEndpoint = other.Providers.OllamaEndpoint
	}
	if other.Providers.Temperature != 0 {
		c.Providers.Temperature = other.Providers.Temperature
	}
	if other.Providers.RequestTimeout != 0 {
		c.Providers.RequestTimeout = other.Providers.RequestTimeout
	}
	if other.Jobs.WorkerConcurrency != 0 {
		c.Jobs.WorkerConcurrency = other.Jobs.WorkerConcurrency
	}
	if other.Jobs.SoftTimeout != 0 {
		c.Jobs.SoftTimeout = other.Jobs.SoftTimeout
	}
	if other.Jobs.HardTimeout != 0 {
		c.Jobs.HardTimeout = other.Jobs.HardTimeout
	}
	if other.Prompts.OverrideDir != "" {
		c.Prompts.OverrideDir = other.Prompts.OverrideDir
	}
}

// applyEnvOverrides layers secret-bearing environment variables on top of a
// loaded config. Provider API keys are never read from YAML.
func applyEnvOverrides(c *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		c.Store.DSN = dsn
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		c.NATS.URL = url
	}
	if addr := os.Getenv("FINMODEL_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
}
