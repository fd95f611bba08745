// Package config owns the engine configuration surface. The scheduler
// and processor consume validated values; out-of-bounds settings are
// rejected here, never inside the engine.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	engerrors "github.com/taskloop/taskloop/errors"
	"github.com/taskloop/taskloop/model"
	"github.com/taskloop/taskloop/polling"
)

// Polling interval bounds, in minutes.
const (
	MinPollingIntervalMinutes = 1
	MaxPollingIntervalMinutes = 1440 // 24 hours

	DefaultPollingIntervalMinutes = 1
	DefaultWorkers                = 4
)

// Environment variables recognized by FromEnv.
const (
	EnvModel           = "AI_MODEL"
	EnvPollingEnabled  = "ENABLE_CONTINUOUS_POLLING"
	EnvPollingInterval = "POLLING_INTERVAL_MINUTES"
)

// Config is the engine configuration.
type Config struct {
	// Model is the default "provider/model" string used when a task
	// does not name one.
	Model string

	// PollingEnabled gates the continuous polling loop. Off by default.
	PollingEnabled bool

	// PollingIntervalMinutes is the fixed-interval poll cadence.
	PollingIntervalMinutes int

	// Strategy selects the polling strategy. Empty means fixed_interval.
	Strategy polling.StrategyType

	// Workers bounds processor concurrency.
	Workers int

	// MaxTokens caps generation length. Zero means the backend default.
	MaxTokens int

	// CredentialsFile is the path to the TOML API-key file. Empty means
	// environment variables only.
	CredentialsFile string

	// SystemPrompt is sent with every generation request.
	SystemPrompt string
}

type tomlConfig struct {
	Model           string `toml:"model"`
	CredentialsFile string `toml:"credentials_file"`
	SystemPrompt    string `toml:"system_prompt"`

	Polling struct {
		Enabled         *bool  `toml:"enabled"`
		IntervalMinutes *int   `toml:"interval_minutes"`
		Strategy        string `toml:"strategy"`
	} `toml:"polling"`

	Processor struct {
		Workers   *int `toml:"workers"`
		MaxTokens *int `toml:"max_tokens"`
	} `toml:"processor"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Model:                  model.DefaultModel,
		PollingEnabled:         false,
		PollingIntervalMinutes: DefaultPollingIntervalMinutes,
		Strategy:               polling.StrategyFixedInterval,
		Workers:                DefaultWorkers,
	}
}

// LoadFile loads configuration from a TOML file over the defaults.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, engerrors.Wrap(err, "could not read config file")
	}
	return Parse(string(content))
}

// Parse parses TOML content over the defaults.
func Parse(content string) (*Config, error) {
	var tc tomlConfig
	if _, err := toml.Decode(content, &tc); err != nil {
		return nil, engerrors.Wrap(err, "could not parse config")
	}

	cfg := Default()
	if tc.Model != "" {
		cfg.Model = tc.Model
	}
	cfg.CredentialsFile = tc.CredentialsFile
	cfg.SystemPrompt = tc.SystemPrompt
	if tc.Polling.Enabled != nil {
		cfg.PollingEnabled = *tc.Polling.Enabled
	}
	if tc.Polling.IntervalMinutes != nil {
		cfg.PollingIntervalMinutes = *tc.Polling.IntervalMinutes
	}
	if tc.Polling.Strategy != "" {
		cfg.Strategy = polling.StrategyType(tc.Polling.Strategy)
	}
	if tc.Processor.Workers != nil {
		cfg.Workers = *tc.Processor.Workers
	}
	if tc.Processor.MaxTokens != nil {
		cfg.MaxTokens = *tc.Processor.MaxTokens
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables. Malformed
// values are an error, not a silent fallback.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvModel); v != "" {
		c.Model = strings.TrimSpace(v)
	}
	if v := os.Getenv(EnvPollingEnabled); v != "" {
		enabled, err := parseBool(v)
		if err != nil {
			return engerrors.Validation(fmt.Sprintf(
				"invalid %s value %q: must be a boolean (true/1/yes/on or false/0/no/off)",
				EnvPollingEnabled, v))
		}
		c.PollingEnabled = enabled
	}
	if v := os.Getenv(EnvPollingInterval); v != "" {
		interval, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return engerrors.Validation(fmt.Sprintf(
				"invalid %s value %q: must be an integer between %d and %d",
				EnvPollingInterval, v, MinPollingIntervalMinutes, MaxPollingIntervalMinutes))
		}
		c.PollingIntervalMinutes = interval
	}
	return c.Validate()
}

// Validate checks every setting against its bounds.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return engerrors.Validation("model must be a non-empty string")
	}
	if c.PollingIntervalMinutes < MinPollingIntervalMinutes {
		return engerrors.Validation(fmt.Sprintf(
			"polling interval must be >= %d minute(s)", MinPollingIntervalMinutes))
	}
	if c.PollingIntervalMinutes > MaxPollingIntervalMinutes {
		return engerrors.Validation(fmt.Sprintf(
			"polling interval must be <= %d minute(s)", MaxPollingIntervalMinutes))
	}
	if !validStrategy(c.Strategy) {
		return engerrors.Validation(fmt.Sprintf("unknown polling strategy %q", c.Strategy))
	}
	if c.Workers <= 0 {
		return engerrors.Validation("workers must be positive")
	}
	if c.MaxTokens < 0 {
		return engerrors.Validation("max_tokens must not be negative")
	}
	return nil
}

// PollingActive reports whether continuous polling is both enabled and
// validly configured.
func (c *Config) PollingActive() bool {
	return c.PollingEnabled && c.Validate() == nil
}

func validStrategy(s polling.StrategyType) bool {
	switch s {
	case polling.StrategyFixedInterval, polling.StrategyExponentialBackoff,
		polling.StrategyAdaptive, polling.StrategyScheduledWindows:
		return true
	}
	return false
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, engerrors.Validation(fmt.Sprintf("not a boolean: %q", v))
}
