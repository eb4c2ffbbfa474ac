package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "EUR", cfg.BaseCurrency)
	assert.Equal(t, 7, cfg.Rates.MaxBackoffDays)
	assert.True(t, cfg.Posting.RecognizeRealizedGains)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shl.yaml")
	content := `
portfolio: main
base_currency: USD
rates:
  max_backoff_days: 3
  cache_ttl: 1h
posting:
  recognize_realized_gains: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.Portfolio)
	assert.Equal(t, "USD", cfg.BaseCurrency)
	assert.Equal(t, 3, cfg.Rates.MaxBackoffDays)
	assert.Equal(t, time.Hour, cfg.Rates.CacheTTL)
	assert.False(t, cfg.Posting.RecognizeRealizedGains)
	// Unset fields keep their defaults.
	assert.Equal(t, "shl.db", cfg.Database)
	assert.Equal(t, "https://api.frankfurter.app", cfg.Rates.BaseURL)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("portfolio: [unterminated"), 0o644))
	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SHL_PORTFOLIO_TEST_ONLY=1\nEODHD_API_KEY=from-file\n"), 0o644))
	t.Setenv("EODHD_API_KEY", "from-env")
	t.Setenv("SHL_BASE_CURRENCY", "gbp")
	t.Setenv("SHL_RECOGNIZE_GAINS", "false")

	cfg, err := Load(filepath.Join(dir, "missing.yaml"), envFile, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "GBP", cfg.BaseCurrency)
	// Variables already set win over the env file.
	assert.Equal(t, "from-env", cfg.EODHD.APIKey)
	assert.False(t, cfg.Posting.RecognizeRealizedGains)
	assert.Equal(t, "1", os.Getenv("SHL_PORTFOLIO_TEST_ONLY"))
	os.Unsetenv("SHL_PORTFOLIO_TEST_ONLY")
}

func TestApplyEnv_BadBool(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(key string) (string, bool) {
		if key == "SHL_RECOGNIZE_GAINS" {
			return "maybe", true
		}
		return "", false
	})
	assert.ErrorContains(t, err, "SHL_RECOGNIZE_GAINS")
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing portfolio", func(c *Config) { c.Portfolio = "" }, "portfolio is required"},
		{"bad currency", func(c *Config) { c.BaseCurrency = "EURO" }, "ISO 4217"},
		{"unknown currency", func(c *Config) { c.BaseCurrency = "XYZ" }, "ISO 4217"},
		{"missing database", func(c *Config) { c.Database = "" }, "database is required"},
		{"zero rate limit", func(c *Config) { c.Rates.RequestsPerSecond = 0 }, "rates.requests_per_second"},
		{"negative backoff", func(c *Config) { c.Rates.MaxBackoffDays = -1 }, "max_backoff_days"},
		{"zero eodhd limit", func(c *Config) { c.EODHD.RequestsPerSecond = -2 }, "eodhd.requests_per_second"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.errMsg)
		})
	}
}
