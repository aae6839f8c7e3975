// Package config loads and validates the engine configuration from YAML
// or JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Account AccountConfig `json:"account" yaml:"account"`
	Engine  EngineConfig  `json:"engine" yaml:"engine"`
	Monitor MonitorConfig `json:"monitor" yaml:"monitor"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// AccountConfig contains account initialization parameters.
type AccountConfig struct {
	Balance float64 `json:"balance" yaml:"balance"`
}

// EngineConfig contains paper-ledger parameters.
type EngineConfig struct {
	LiquidationFeeRate float64 `json:"liquidation_fee_rate" yaml:"liquidation_fee_rate"`
}

// MonitorConfig contains live-monitor polling parameters. Intervals are
// duration strings, e.g. "3s" or "500ms".
type MonitorConfig struct {
	TriggerInterval string  `json:"trigger_interval" yaml:"trigger_interval"`
	RefreshInterval string  `json:"refresh_interval" yaml:"refresh_interval"`
	MaxFailures     int     `json:"max_failures" yaml:"max_failures"`
	RateLimit       float64 `json:"rate_limit" yaml:"rate_limit"`
}

// TriggerIntervalDuration parses the trigger polling interval.
func (m MonitorConfig) TriggerIntervalDuration() (time.Duration, error) {
	return time.ParseDuration(m.TriggerInterval)
}

// RefreshIntervalDuration parses the position refresh interval.
func (m MonitorConfig) RefreshIntervalDuration() (time.Duration, error) {
	return time.ParseDuration(m.RefreshInterval)
}

// JournalConfig selects and configures the journal backend.
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv", "sqlite" or "memory"
	EventsFile string `json:"events_file,omitempty" yaml:"events_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// LogConfig contains logging parameters.
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// LoadFromFile loads configuration from a YAML or JSON file, trying YAML
// first.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile writes the configuration, picking the format from the file
// extension.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}
	if c.Engine.LiquidationFeeRate < 0 || c.Engine.LiquidationFeeRate >= 1 {
		return fmt.Errorf("engine.liquidation_fee_rate must be in [0, 1)")
	}
	if d, err := c.Monitor.TriggerIntervalDuration(); err != nil || d <= 0 {
		return fmt.Errorf("monitor.trigger_interval must be a positive duration")
	}
	if d, err := c.Monitor.RefreshIntervalDuration(); err != nil || d <= 0 {
		return fmt.Errorf("monitor.refresh_interval must be a positive duration")
	}
	if c.Monitor.MaxFailures <= 0 {
		return fmt.Errorf("monitor.max_failures must be positive")
	}
	if c.Monitor.RateLimit <= 0 {
		return fmt.Errorf("monitor.rate_limit must be positive")
	}

	switch c.Journal.Type {
	case "csv":
		if c.Journal.EventsFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal events_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "memory":
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'memory'")
	}

	return nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			Balance: 10_000,
		},
		Engine: EngineConfig{
			LiquidationFeeRate: 0.01,
		},
		Monitor: MonitorConfig{
			TriggerInterval: "3s",
			RefreshInterval: "5s",
			MaxFailures:     3,
			RateLimit:       10,
		},
		Journal: JournalConfig{
			Type:       "csv",
			EventsFile: "./events.csv",
			EquityFile: "./equity.csv",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
