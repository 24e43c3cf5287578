// Package config loads poolctl configuration from YAML or TOML files, .env
// files and TEEPOOL_* environment variables, in that order of precedence
// (environment wins).
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/teepool/internal/pool"
)

// Config is the complete runtime configuration.
type Config struct {
	Pool    PoolConfig    `yaml:"pool" toml:"pool"`
	Log     LogConfig     `yaml:"log" toml:"log"`
	Sweeper SweeperConfig `yaml:"sweeper" toml:"sweeper"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
	TEE     TEEConfig     `yaml:"tee" toml:"tee"`
}

// PoolConfig configures the lifecycle engine.
type PoolConfig struct {
	// TimeoutInterval is the response window in seconds.
	TimeoutInterval uint64 `yaml:"timeout_interval" toml:"timeout_interval" env:"TEEPOOL_TIMEOUT_INTERVAL"`
	// ChainDisputes binds response signatures to the per-pool dispute chain.
	ChainDisputes bool `yaml:"chain_disputes" toml:"chain_disputes" env:"TEEPOOL_CHAIN_DISPUTES"`
	EventBuffer   int  `yaml:"event_buffer" toml:"event_buffer" env:"TEEPOOL_EVENT_BUFFER"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level" env:"TEEPOOL_LOG_LEVEL"`
	Format string `yaml:"format" toml:"format" env:"TEEPOOL_LOG_FORMAT"`
}

type SweeperConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled" env:"TEEPOOL_SWEEPER_ENABLED"`
	Schedule string `yaml:"schedule" toml:"schedule" env:"TEEPOOL_SWEEPER_SCHEDULE"`
	// CheckRate caps timeout checks per second; zero is unlimited.
	CheckRate  float64 `yaml:"check_rate" toml:"check_rate" env:"TEEPOOL_SWEEPER_CHECK_RATE"`
	CheckBurst int     `yaml:"check_burst" toml:"check_burst" env:"TEEPOOL_SWEEPER_CHECK_BURST"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace" toml:"namespace" env:"TEEPOOL_METRICS_NAMESPACE"`
}

// TEEConfig configures key derivation and attestation.
type TEEConfig struct {
	Mode string `yaml:"mode" toml:"mode" env:"TEEPOOL_TEE_MODE"`
	// MasterSeed is hex. It is normally supplied through the environment.
	MasterSeed string `yaml:"master_seed" toml:"master_seed" env:"TEEPOOL_MASTER_SEED"`
	// Measurements lists allowed MRENCLAVE values; the environment form is
	// semicolon separated.
	Measurements []string `yaml:"measurements" toml:"measurements" env:"TEEPOOL_TEE_MEASUREMENTS"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			TimeoutInterval: 15,
			ChainDisputes:   true,
			EventBuffer:     1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Sweeper: SweeperConfig{
			Enabled:  true,
			Schedule: "@every 5s",
		},
		Metrics: MetricsConfig{
			Namespace: "teepool",
		},
		TEE: TEEConfig{
			Mode: "simulation",
		},
	}
}

// Load reads path (YAML or TOML by extension) over the defaults, applies
// environment overrides and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
	return nil
}

// LoadEnvFile loads KEY=value pairs from path into the process environment.
// Variables already set are not overwritten.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from TEEPOOL_* variables that are set.
func (c *Config) ApplyEnv() error {
	if err := envdecode.Decode(c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("failed to decode environment: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the components would reject.
func (c *Config) Validate() error {
	if c.Pool.TimeoutInterval == 0 {
		return fmt.Errorf("pool.timeout_interval must be positive")
	}
	if c.Pool.TimeoutInterval > pool.MaxTimeoutInterval {
		return fmt.Errorf("pool.timeout_interval must not exceed %d", pool.MaxTimeoutInterval)
	}
	if c.Pool.EventBuffer < 0 {
		return fmt.Errorf("pool.event_buffer must not be negative")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.Sweeper.Enabled {
		if _, err := cron.ParseStandard(c.Sweeper.Schedule); err != nil {
			return fmt.Errorf("sweeper.schedule: %w", err)
		}
	}
	if c.Sweeper.CheckRate < 0 || c.Sweeper.CheckBurst < 0 {
		return fmt.Errorf("sweeper.check_rate and sweeper.check_burst must not be negative")
	}

	switch c.TEE.Mode {
	case "simulation", "hardware":
	default:
		return fmt.Errorf("tee.mode must be simulation or hardware, got %q", c.TEE.Mode)
	}
	if c.TEE.MasterSeed != "" {
		if _, err := c.TEE.Seed(); err != nil {
			return err
		}
	}
	for _, m := range c.TEE.Measurements {
		raw, err := hex.DecodeString(strings.TrimPrefix(m, "0x"))
		if err != nil || len(raw) != 32 {
			return fmt.Errorf("tee.measurements: %q is not a 32-byte hex value", m)
		}
	}
	return nil
}

// Seed decodes MasterSeed.
func (t TEEConfig) Seed() ([]byte, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(t.MasterSeed), "0x"))
	if err != nil {
		return nil, fmt.Errorf("tee.master_seed must be hex: %w", err)
	}
	if len(seed) < 16 {
		return nil, fmt.Errorf("tee.master_seed must be at least 16 bytes, got %d", len(seed))
	}
	return seed, nil
}
