// ABOUTME: Orchestrator configuration: YAML file with environment overrides.
package api

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "5s" or
// "250ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	dur, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(dur)
	return nil
}

// Config is the orchestrator daemon's configuration. Every field has a usable
// default; a config file and environment variables override in that order.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// ExecutorURL is the base URL of the code execution service.
	ExecutorURL string `yaml:"executor_url"`
	// RelayURL is the base URL of the fallback message relay. Empty disables
	// the relay channel.
	RelayURL string `yaml:"relay_url"`
	// DatabasePath is the SQLite file. Empty keeps records in memory only.
	DatabasePath string `yaml:"database_path"`
	// Model is the completion model for the generation stages.
	Model string `yaml:"model"`
	// ModelBaseURL points at an OpenAI-compatible provider. Empty uses the
	// default endpoint.
	ModelBaseURL string `yaml:"model_base_url"`

	// MaxDiscoveryAttempts bounds discovery+validation pairs.
	MaxDiscoveryAttempts int `yaml:"max_discovery_attempts"`
	// MaxHealAttempts bounds execution attempts.
	MaxHealAttempts int `yaml:"max_heal_attempts"`
	// HealCooldown is the pause between correction and re-run.
	HealCooldown Duration `yaml:"heal_cooldown"`
	// RelayWait bounds the fallback relay poll during schema capture.
	RelayWait Duration `yaml:"relay_wait"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Listen:               ":8088",
		ExecutorURL:          "http://localhost:8090",
		Model:                "gpt-4o",
		MaxDiscoveryAttempts: 3,
		MaxHealAttempts:      3,
		HealCooldown:         Duration(5 * time.Second),
		RelayWait:            Duration(30 * time.Second),
	}
}

// LoadConfig reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ORCHESTRATOR_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("ORCHESTRATOR_EXECUTOR_URL"); v != "" {
		cfg.ExecutorURL = v
	}
	if v := os.Getenv("ORCHESTRATOR_RELAY_URL"); v != "" {
		cfg.RelayURL = v
	}
	if v := os.Getenv("ORCHESTRATOR_DB"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("ORCHESTRATOR_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("ORCHESTRATOR_MODEL_BASE_URL"); v != "" {
		cfg.ModelBaseURL = v
	}
}
