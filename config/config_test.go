package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Default().Validate())
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
account:
  balance: 25000
engine:
  liquidation_fee_rate: 0.005
monitor:
  trigger_interval: 1s
  refresh_interval: 2s
  max_failures: 5
  rate_limit: 20
journal:
  type: sqlite
  db_path: ./trades.db
log:
  level: debug
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.InDelta(t, 25_000.0, cfg.Account.Balance, 1e-9)
	assert.InDelta(t, 0.005, cfg.Engine.LiquidationFeeRate, 1e-12)
	assert.Equal(t, 5, cfg.Monitor.MaxFailures)
	assert.Equal(t, "sqlite", cfg.Journal.Type)
	assert.Equal(t, "debug", cfg.Log.Level)

	d, err := cfg.Monitor.TriggerIntervalDuration()
	require.NoError(t, err)
	assert.Equal(t, "1s", d.String())
}

func TestLoadJSONFallback(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"account": {"balance": 5000},
		"journal": {"type": "memory"}
	}`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.InDelta(t, 5_000.0, cfg.Account.Balance, 1e-9)
	assert.Equal(t, "memory", cfg.Journal.Type)

	// Omitted sections keep their defaults.
	assert.Equal(t, "3s", cfg.Monitor.TriggerInterval)
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero balance", func(c *Config) { c.Account.Balance = 0 }},
		{"fee rate over one", func(c *Config) { c.Engine.LiquidationFeeRate = 1 }},
		{"bad interval", func(c *Config) { c.Monitor.TriggerInterval = "soon" }},
		{"zero failures", func(c *Config) { c.Monitor.MaxFailures = 0 }},
		{"unknown journal", func(c *Config) { c.Journal.Type = "parquet" }},
		{"csv without paths", func(c *Config) { c.Journal.EventsFile = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Account.Balance = 42_000

	require.NoError(t, cfg.SaveToFile(path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.InDelta(t, 42_000.0, got.Account.Balance, 1e-9)
}
