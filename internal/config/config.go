// Package config provides configuration loading and validation for the
// curation engine.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Backend names for the persistence layer, selected at process start.
const (
	BackendPostgres   = "postgres"
	BackendFilesystem = "filesystem"
)

// Config represents the service configuration that can be loaded from a
// JSON file. All fields are optional; missing values use defaults or must
// be provided via CLI flags or the environment.
type Config struct {
	// Serving
	Port int `json:"port,omitempty"` // HTTP listen port

	// Backends
	Backend     string `json:"backend,omitempty"`      // "postgres" or "filesystem"
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL (postgres backend)
	DataDir     string `json:"data_dir,omitempty"`     // Data directory (filesystem backend)

	// Collaborators
	ExecutorURL string `json:"executor_url,omitempty"` // Base URL of the rule-engine runner
	RuleCatalog string `json:"rule_catalog,omitempty"` // Path to the rule catalog JSON file

	// Behavior
	LeaseTTLSeconds int  `json:"lease_ttl_seconds,omitempty"` // Validation run lease TTL
	Debug           bool `json:"debug,omitempty"`             // Verbose, human-readable logging
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	switch c.Backend {
	case "", BackendPostgres, BackendFilesystem:
	default:
		return fmt.Errorf("config error: unknown backend %q", c.Backend)
	}

	if c.Backend == BackendPostgres && c.DatabaseURL == "" {
		return fmt.Errorf("config error: 'database_url' is required for the postgres backend")
	}
	if c.Backend == BackendFilesystem && c.DataDir == "" {
		return fmt.Errorf("config error: 'data_dir' is required for the filesystem backend")
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' out of range: %d", c.Port)
	}
	if c.LeaseTTLSeconds < 0 {
		return fmt.Errorf("config error: 'lease_ttl_seconds' must be non-negative")
	}

	if c.RuleCatalog != "" {
		if _, err := os.Stat(c.RuleCatalog); os.IsNotExist(err) {
			return fmt.Errorf("config error: rule catalog file not found: %s", c.RuleCatalog)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from
// defaults. This is used to apply config file values as defaults for CLI
// flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.Backend == "" {
		result.Backend = defaults.Backend
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.DataDir == "" {
		result.DataDir = defaults.DataDir
	}
	if result.ExecutorURL == "" {
		result.ExecutorURL = defaults.ExecutorURL
	}
	if result.RuleCatalog == "" {
		result.RuleCatalog = defaults.RuleCatalog
	}
	if result.LeaseTTLSeconds == 0 {
		result.LeaseTTLSeconds = defaults.LeaseTTLSeconds
	}
	if !result.Debug {
		result.Debug = defaults.Debug
	}

	return result
}

// LeaseTTL returns the configured lease TTL as a duration, or 0 when unset
// so callers can fall back to their default.
func (c *Config) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLSeconds) * time.Second
}

// FromEnv fills unset fields from environment variables.
func (c *Config) FromEnv() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.ExecutorURL == "" {
		c.ExecutorURL = os.Getenv("EXECUTOR_URL")
	}
	if c.DataDir == "" {
		c.DataDir = os.Getenv("DATA_DIR")
	}
	if c.RuleCatalog == "" {
		c.RuleCatalog = os.Getenv("RULE_CATALOG")
	}
}
