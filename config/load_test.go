package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
symbols: [BTCUSDT, ETHUSDT]
thresholds: [0.01, 0.03, 0.05]
trading:
  orderKind: LIMIT
  tradeAmount: 100
  usdtReserve: 200
gateway:
  apiKey: k
  apiSecret: s
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Symbols)
	assert.Equal(t, 8, cfg.Trading.ExpiryHours)
	assert.Equal(t, 8*time.Hour, cfg.Trading.ExpiryWindow())
	assert.Equal(t, 3, cfg.Trading.MaxOrdersPerSymbol)
	assert.Equal(t, 60, cfg.Intervals.SignalSeconds)
	assert.Equal(t, 5, cfg.Intervals.PollSeconds)
	assert.Equal(t, 300, cfg.Intervals.SweepSeconds)
	assert.Equal(t, "1h", cfg.Intervals.KlineInterval)
	assert.Equal(t, 24, cfg.Intervals.KlineLimit)
	assert.NotEmpty(t, cfg.Logger.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DIPBUYER_API_KEY", "env-key")
	t.Setenv("DIPBUYER_API_SECRET", "env-secret")
	cfg, err := LoadWithEnvOverrides(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Gateway.APIKey)
	assert.Equal(t, "env-secret", cfg.Gateway.APISecret)
}

func TestValidateRejections(t *testing.T) {
	base := func() AppConfig {
		cfg, err := Load(writeConfig(t, validYAML))
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"no symbols", func(c *AppConfig) { c.Symbols = nil }},
		{"no thresholds", func(c *AppConfig) { c.Thresholds = nil }},
		{"threshold zero", func(c *AppConfig) { c.Thresholds = []float64{0} }},
		{"threshold above one", func(c *AppConfig) { c.Thresholds = []float64{1.5} }},
		{"thresholds not ascending", func(c *AppConfig) { c.Thresholds = []float64{0.03, 0.01} }},
		{"duplicate thresholds", func(c *AppConfig) { c.Thresholds = []float64{0.01, 0.01} }},
		{"bad order kind", func(c *AppConfig) { c.Trading.OrderKind = "STOP" }},
		{"zero trade amount", func(c *AppConfig) { c.Trading.TradeAmount = 0 }},
		{"percentage above one", func(c *AppConfig) {
			c.Trading.UsePercentage = true
			c.Trading.TradeAmount = 1.5
		}},
		{"negative reserve", func(c *AppConfig) { c.Trading.USDTReserve = -1 }},
		{"missing api key", func(c *AppConfig) { c.Gateway.APIKey = "" }},
		{"telegram enabled without token", func(c *AppConfig) {
			c.Telegram.Enabled = true
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidatePercentageMode(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	cfg.Trading.UsePercentage = true
	cfg.Trading.TradeAmount = 0.2
	assert.NoError(t, Validate(cfg))
}
