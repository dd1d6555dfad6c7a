// Package config provides configuration loading, validation, and defaults
// for the pipeline orchestrator. Configuration comes from an optional YAML
// file with environment variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config file constants.
const (
	ConfigFilename = "foreman.yaml"

	DefaultSessionRoot = "plan"
	DefaultParallelism = 1

	// DefaultMaxIterations guards the execution loop against a scheduler that
	// always reports work available.
	DefaultMaxIterations = 2000

	// DefaultFixCycleBudget bounds verification/fix-cycle rounds.
	DefaultFixCycleBudget = 3

	DefaultCacheTTLHours = 24 * 7
)

// RetryConfig tunes the backoff policy used for collaborator calls.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	Jitter        bool          `yaml:"jitter"`
}

// Config is the root configuration for a pipeline run.
type Config struct {
	// SessionRoot is the directory holding all session directories.
	SessionRoot string `yaml:"session_root"`

	// Parallelism is the worker count for the scheduler; 1 means strictly
	// sequential execution.
	Parallelism int `yaml:"parallelism"`

	// MaxIterations is the execution loop ceiling.
	MaxIterations int `yaml:"max_iterations"`

	// FixCycleBudget bounds post-verification fix rounds.
	FixCycleBudget int `yaml:"fix_cycle_budget"`

	// CacheTTLHours bounds the age of content-addressed cache entries.
	CacheTTLHours int `yaml:"cache_ttl_hours"`

	Retry RetryConfig `yaml:"retry"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		SessionRoot:    DefaultSessionRoot,
		Parallelism:    DefaultParallelism,
		MaxIterations:  DefaultMaxIterations,
		FixCycleBudget: DefaultFixCycleBudget,
		CacheTTLHours:  DefaultCacheTTLHours,
		Retry: RetryConfig{
			MaxAttempts:   3,
			BaseDelay:     100 * time.Millisecond,
			MaxDelay:      10 * time.Second,
			BackoffFactor: 2.0,
			Jitter:        true,
		},
	}
}

// Load reads configuration from path, falling back to defaults when the file
// does not exist. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = ConfigFilename
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No config file is fine; defaults apply.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if root := os.Getenv("FOREMAN_SESSION_ROOT"); root != "" {
		cfg.SessionRoot = root
	}
	if par := os.Getenv("FOREMAN_PARALLELISM"); par != "" {
		if n, err := strconv.Atoi(par); err == nil {
			cfg.Parallelism = n
		}
	}
}

// Validate checks config invariants.
func (c *Config) Validate() error {
	if c.SessionRoot == "" {
		return fmt.Errorf("session_root cannot be empty")
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be >= 1, got %d", c.Parallelism)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be >= 1, got %d", c.MaxIterations)
	}
	if c.FixCycleBudget < 0 {
		return fmt.Errorf("fix_cycle_budget cannot be negative, got %d", c.FixCycleBudget)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BackoffFactor < 1.0 {
		return fmt.Errorf("retry.backoff_factor must be >= 1.0, got %v", c.Retry.BackoffFactor)
	}
	return nil
}

// CacheTTL returns the cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}
